package bufferpool

import "github.com/novasql/novasql/internal/storage"

// guardPool is the subset of GlobalPool a guard needs to release itself.
// Satisfied by *GlobalPool; an interface keeps guard.go testable without a
// real pool.
type guardPool interface {
	Unpin(fs storage.FileSet, page *storage.Page, dirty bool) bool
}

// BasicPageGuard owns a pin on one page without any latch. Dropping it
// unpins the page, marking it dirty if the guard observed a mutation.
//
// BasicPageGuard is move-only: copying it would let two guards race to
// unpin the same pin. Callers must not copy a BasicPageGuard after
// constructing it; pass it by pointer or return it by value exactly once.
type BasicPageGuard struct {
	pool    guardPool
	fs      storage.FileSet
	page    *storage.Page
	dirty   bool
	dropped bool
}

func newBasicPageGuard(pool guardPool, fs storage.FileSet, page *storage.Page) BasicPageGuard {
	return BasicPageGuard{pool: pool, fs: fs, page: page}
}

// Page returns the underlying page. Valid until Drop is called.
func (g *BasicPageGuard) Page() *storage.Page { return g.page }

// PageID returns the id of the guarded page.
func (g *BasicPageGuard) PageID() uint32 { return g.page.PageID() }

// MarkDirty records that the guard's holder mutated the page; the dirty
// flag is applied when the guard is dropped.
func (g *BasicPageGuard) MarkDirty() { g.dirty = true }

// Drop releases the guard's pin. Safe to call multiple times; only the
// first call has effect. Callers should defer Drop immediately after
// acquiring a guard.
func (g *BasicPageGuard) Drop() {
	if g.dropped || g.page == nil {
		return
	}
	g.dropped = true
	g.pool.Unpin(g.fs, g.page, g.dirty)
}

// ReadPageGuard adds a shared latch to a BasicPageGuard. Drop releases the
// latch before unpinning, matching latch-then-pin acquisition order in
// reverse.
type ReadPageGuard struct {
	inner   BasicPageGuard
	dropped bool
}

func newReadPageGuard(pool guardPool, fs storage.FileSet, page *storage.Page) ReadPageGuard {
	page.RLatch()
	return ReadPageGuard{inner: newBasicPageGuard(pool, fs, page)}
}

func (g *ReadPageGuard) Page() *storage.Page { return g.inner.page }
func (g *ReadPageGuard) PageID() uint32      { return g.inner.PageID() }

func (g *ReadPageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.inner.page.RUnlatch()
	g.inner.Drop()
}

// WritePageGuard adds an exclusive latch to a BasicPageGuard and always
// unpins dirty, since holding a write latch implies the holder may have
// mutated the page.
type WritePageGuard struct {
	inner   BasicPageGuard
	dropped bool
}

func newWritePageGuard(pool guardPool, fs storage.FileSet, page *storage.Page) WritePageGuard {
	page.WLatch()
	bg := newBasicPageGuard(pool, fs, page)
	bg.dirty = true
	return WritePageGuard{inner: bg}
}

func (g *WritePageGuard) Page() *storage.Page { return g.inner.page }
func (g *WritePageGuard) PageID() uint32      { return g.inner.PageID() }

func (g *WritePageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.inner.page.WUnlatch()
	g.inner.Drop()
}

// FetchPageBasic fetches and pins a page, returning an unlatched guard
// (C3's "Basic" guard kind).
func (g *GlobalPool) FetchPageBasic(fs storage.FileSet, pageID uint32) (BasicPageGuard, error) {
	page, err := g.GetPage(fs, pageID)
	if err != nil {
		return BasicPageGuard{}, err
	}
	return newBasicPageGuard(g, fs, page), nil
}

// FetchPageRead fetches, pins, and shared-latches a page.
func (g *GlobalPool) FetchPageRead(fs storage.FileSet, pageID uint32) (ReadPageGuard, error) {
	page, err := g.GetPage(fs, pageID)
	if err != nil {
		return ReadPageGuard{}, err
	}
	return newReadPageGuard(g, fs, page), nil
}

// FetchPageWrite fetches, pins, and exclusively latches a page.
func (g *GlobalPool) FetchPageWrite(fs storage.FileSet, pageID uint32) (WritePageGuard, error) {
	page, err := g.GetPage(fs, pageID)
	if err != nil {
		return WritePageGuard{}, err
	}
	return newWritePageGuard(g, fs, page), nil
}

// NewPageGuarded allocates a new page behind a WritePageGuard — a fresh
// page is always exclusively owned by its allocator until initialized.
func (g *GlobalPool) NewPageGuarded(fs storage.FileSet) (uint32, WritePageGuard, bool) {
	pageID, page, ok := g.NewPage(fs)
	if !ok {
		return 0, WritePageGuard{}, false
	}
	return pageID, newWritePageGuard(g, fs, page), true
}
