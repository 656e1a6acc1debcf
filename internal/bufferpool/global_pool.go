package bufferpool

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/novasql/novasql/internal/storage"
	"github.com/novasql/novasql/internal/wal"
)

var (
	DefaultCapacity = 128
	DefaultLRUK     = 2

	logDebugPrefix = "bufferpool: "

	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")
	ErrPagePinned  = errors.New("bufferpool: page is pinned")
)

// Replacer is the C1 contract. LRUKReplacer is the only production
// implementation; the interface exists so tests can substitute a
// deterministic fake.
type Replacer interface {
	RecordAccess(frameID int)
	SetEvictable(frameID int, evictable bool)
	Evict() (frameID int, ok bool)
	Remove(frameID int)
	Size() int
}

// Manager is the per-relation view of the buffer pool (C2's contract,
// scoped to one FileSet).
type Manager interface {
	// GetPage is fetch_page: pin and return the page, loading it if needed.
	GetPage(pageID uint32) (*storage.Page, error)
	Unpin(page *storage.Page, dirty bool) error
	FlushAll() error
}

// ErrUnsupportedFileSet is returned when GlobalPool cannot work with a FileSet implementation.
var ErrUnsupportedFileSet = errors.New("bufferpool: unsupported FileSet (global pool requires LocalFileSet)")

// PageTag uniquely identifies a page in the global pool.
type PageTag struct {
	FSKey  string
	PageID uint32
}

// GlobalPool is the single shared buffer pool for all relations (heap
// tables, B+ tree indexes, overflow pages). It mimics PostgreSQL's
// shared_buffers: one fixed set of frames, one page table, one
// replacement policy, all behind one mutex (the spec's C2 invariant that
// a single mutex guards the page table, free list, and replacer).
type GlobalPool struct {
	sm  *storage.StorageManager
	wal *wal.Manager // optional; nil means writes go straight to disk, no redo log

	mu        sync.Mutex
	frames    []*Frame        // len == capacity, nil == free slot
	freeList  []int           // indices of nil frames, LIFO free list
	table     map[PageTag]int // (fsKey,pageID) -> frame index
	repl      Replacer
	nextPage  map[string]uint32 // fsKey -> next page id to allocate
}

// SetWAL attaches a write-ahead log: every page write-back (eviction or an
// explicit Flush*) is logged as a page image before it hits the data file.
// Passing nil disables logging again.
func (g *GlobalPool) SetWAL(w *wal.Manager) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wal = w
}

// writeBack logs the frame's page image (if a WAL is attached) and then
// writes it to its data file. SetWAL is expected to run once at startup
// before concurrent traffic, so this reads g.wal without holding g.mu.
func (g *GlobalPool) writeBack(f *Frame) error {
	if g.wal != nil {
		if _, err := g.wal.AppendPageImage(f.FS.Dir, f.FS.Base, f.Tag.PageID, f.Page.Buf); err != nil {
			return err
		}
	}
	return g.sm.SavePage(f.FS, f.Tag.PageID, *f.Page)
}

// Frame is a slot in the buffer pool. At most one page lives in a frame
// at a time; pin_count == 0 iff the frame is marked evictable in repl.
type Frame struct {
	Tag   PageTag
	FS    storage.LocalFileSet
	Page  *storage.Page
	Dirty bool
	Pin   int32
}

func NewGlobalPool(sm *storage.StorageManager, capacity int) *GlobalPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	free := make([]int, capacity)
	for i := range free {
		free[i] = capacity - 1 - i // pop from the back -> frame 0 used first
	}
	return &GlobalPool{
		sm:       sm,
		frames:   make([]*Frame, capacity),
		freeList: free,
		table:    make(map[PageTag]int),
		repl:     NewLRUKReplacer(capacity, DefaultLRUK),
		nextPage: make(map[string]uint32),
	}
}

func tagFor(fs storage.FileSet, pageID uint32) (PageTag, storage.LocalFileSet, bool) {
	key, lfs, ok := storage.FsKeyOf(fs)
	if !ok {
		return PageTag{}, storage.LocalFileSet{}, false
	}
	return PageTag{FSKey: key, PageID: pageID}, lfs, true
}

// popFreeLocked returns a free frame index, or -1 if none remain.
func (g *GlobalPool) popFreeLocked() int {
	n := len(g.freeList)
	if n == 0 {
		return -1
	}
	idx := g.freeList[n-1]
	g.freeList = g.freeList[:n-1]
	return idx
}

// evictVictimLocked flushes (if dirty) and frees one frame via the
// replacer, returning its index. Caller holds g.mu.
func (g *GlobalPool) evictVictimLocked() (int, error) {
	victimIdx, ok := g.repl.Evict()
	if !ok {
		return -1, ErrNoFreeFrame
	}
	victim := g.frames[victimIdx]
	if victim == nil || victim.Pin != 0 {
		return -1, ErrNoFreeFrame
	}
	if victim.Dirty {
		if err := g.writeBack(victim); err != nil {
			return -1, err
		}
		victim.Dirty = false
	}
	delete(g.table, victim.Tag)
	g.frames[victimIdx] = nil
	return victimIdx, nil
}

// NewPage allocates a brand-new page (new_page): a fresh page id for fs,
// pinned in a frame and zero-initialized. Returns ok=false if no frame
// could be freed.
func (g *GlobalPool) NewPage(fs storage.FileSet) (uint32, *storage.Page, bool) {
	key, lfs, ok := storage.FsKeyOf(fs)
	if !ok {
		return 0, nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	pageID, err := g.allocPageIDLocked(lfs, key)
	if err != nil {
		slog.Error(logDebugPrefix+"NewPage: count pages failed", "err", err)
		return 0, nil, false
	}

	idx := g.popFreeLocked()
	if idx == -1 {
		var evictErr error
		idx, evictErr = g.evictVictimLocked()
		if evictErr != nil {
			return 0, nil, false
		}
	}

	buf := make([]byte, storage.PageSize)
	page, err := storage.NewPage(buf, pageID)
	if err != nil {
		slog.Error(logDebugPrefix+"NewPage: init page failed", "err", err)
		g.freeList = append(g.freeList, idx)
		return 0, nil, false
	}

	tag := PageTag{FSKey: key, PageID: pageID}
	g.frames[idx] = &Frame{Tag: tag, FS: lfs, Page: page, Dirty: true, Pin: 1}
	g.table[tag] = idx
	g.repl.RecordAccess(idx)
	g.repl.SetEvictable(idx, false)

	return pageID, page, true
}

func (g *GlobalPool) allocPageIDLocked(lfs storage.LocalFileSet, key string) (uint32, error) {
	if n, ok := g.nextPage[key]; ok {
		g.nextPage[key] = n + 1
		return n, nil
	}
	n, err := g.sm.CountPages(lfs)
	if err != nil {
		return 0, err
	}
	g.nextPage[key] = n + 1
	return n, nil
}

// GetPage is fetch_page: pins and returns the page (fs,pageID), loading it
// from disk on a miss.
func (g *GlobalPool) GetPage(fs storage.FileSet, pageID uint32) (*storage.Page, error) {
	tag, lfs, ok := tagFor(fs, pageID)
	if !ok {
		return nil, ErrUnsupportedFileSet
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.table[tag]; ok {
		f := g.frames[idx]
		if f == nil {
			delete(g.table, tag)
		} else {
			wasZero := f.Pin == 0
			f.Pin++
			g.repl.RecordAccess(idx)
			if wasZero {
				g.repl.SetEvictable(idx, false)
			}
			return f.Page, nil
		}
	}

	idx := g.popFreeLocked()
	if idx == -1 {
		var err error
		idx, err = g.evictVictimLocked()
		if err != nil {
			return nil, err
		}
	}

	page, err := g.sm.LoadPage(lfs, pageID)
	if err != nil {
		g.freeList = append(g.freeList, idx)
		return nil, err
	}

	g.frames[idx] = &Frame{Tag: tag, FS: lfs, Page: page, Dirty: false, Pin: 1}
	g.table[tag] = idx
	g.repl.RecordAccess(idx)
	g.repl.SetEvictable(idx, false)

	return page, nil
}

// Unpin is unpin_page: decrements pin count and optionally marks dirty.
// Returns false if the page is not in the pool or its pin count was
// already zero.
func (g *GlobalPool) Unpin(fs storage.FileSet, page *storage.Page, dirty bool) bool {
	if page == nil {
		return false
	}
	tag, _, ok := tagFor(fs, page.PageID())
	if !ok {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.table[tag]
	if !ok {
		return false
	}
	f := g.frames[idx]
	if f == nil || f.Pin <= 0 {
		return false
	}

	if dirty {
		f.Dirty = true
	}
	f.Pin--
	if f.Pin == 0 {
		g.repl.SetEvictable(idx, true)
	}
	return true
}

// FlushPage is flush_page: writes the page to disk regardless of pin
// state or dirty bit, clearing the dirty bit on success.
func (g *GlobalPool) FlushPage(fs storage.FileSet, pageID uint32) bool {
	tag, _, ok := tagFor(fs, pageID)
	if !ok {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.table[tag]
	if !ok {
		return false
	}
	f := g.frames[idx]
	if f == nil {
		return false
	}
	if err := g.writeBack(f); err != nil {
		slog.Error(logDebugPrefix+"FlushPage failed", "pageID", pageID, "err", err)
		return false
	}
	f.Dirty = false
	return true
}

// FlushAll flushes every dirty frame in the pool, aggregating any errors
// instead of stopping at the first failure.
func (g *GlobalPool) FlushAll() error {
	g.mu.Lock()
	frames := make([]*Frame, 0, len(g.frames))
	for _, f := range g.frames {
		if f != nil && f.Dirty {
			frames = append(frames, f)
		}
	}
	g.mu.Unlock()

	var errs error
	for _, f := range frames {
		if err := g.writeBack(f); err != nil {
			errs = joinErr(errs, err)
			continue
		}
		g.mu.Lock()
		f.Dirty = false
		g.mu.Unlock()
	}
	return errs
}

// FlushFileSet flushes dirty pages belonging to a single relation.
func (g *GlobalPool) FlushFileSet(fs storage.FileSet) error {
	key, _, ok := storage.FsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}

	g.mu.Lock()
	frames := make([]*Frame, 0)
	for _, f := range g.frames {
		if f != nil && f.Dirty && f.Tag.FSKey == key {
			frames = append(frames, f)
		}
	}
	g.mu.Unlock()

	var errs error
	for _, f := range frames {
		if err := g.writeBack(f); err != nil {
			errs = joinErr(errs, err)
			continue
		}
		g.mu.Lock()
		f.Dirty = false
		g.mu.Unlock()
	}
	return errs
}

// DeletePage is delete_page: removes the page from the pool and its
// replacer bookkeeping. Returns false only if the page is pinned;
// deleting an absent page is a no-op success.
func (g *GlobalPool) DeletePage(fs storage.FileSet, pageID uint32) bool {
	tag, _, ok := tagFor(fs, pageID)
	if !ok {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.table[tag]
	if !ok {
		return true
	}
	f := g.frames[idx]
	if f == nil {
		delete(g.table, tag)
		return true
	}
	if f.Pin != 0 {
		return false
	}

	g.repl.Remove(idx)
	delete(g.table, tag)
	g.frames[idx] = nil
	g.freeList = append(g.freeList, idx)
	return true
}

// DropFileSet removes ALL pages of a relation from the pool. Must be
// called before deleting/renaming the relation's underlying files.
func (g *GlobalPool) DropFileSet(fs storage.FileSet) error {
	key, _, ok := storage.FsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.frames {
		if f != nil && f.Tag.FSKey == key && f.Pin != 0 {
			return ErrPagePinned
		}
	}

	for i, f := range g.frames {
		if f == nil || f.Tag.FSKey != key {
			continue
		}
		if f.Dirty {
			if err := g.writeBack(f); err != nil {
				return err
			}
		}
		delete(g.table, f.Tag)
		g.frames[i] = nil
		g.freeList = append(g.freeList, i)
		g.repl.Remove(i)
	}
	return nil
}

// Size returns the number of currently evictable frames, per the C1
// contract's size() operation exposed at the pool level.
func (g *GlobalPool) Size() int {
	return g.repl.Size()
}
