package bufferpool

import (
	"errors"

	"github.com/novasql/novasql/internal/storage"
)

// ErrUnpinFailed is returned by FileSetView.Unpin when the underlying
// GlobalPool.Unpin (unpin_page) reports false — the page was not found in
// the pool, or its pin count was already zero.
var ErrUnpinFailed = errors.New("bufferpool: unpin failed (page not pinned)")

// FileSetView binds a GlobalPool to a specific FileSet (relation).
// It implements Manager so heap/table/btree can use it without caring about FS.
type FileSetView struct {
	gp *GlobalPool
	fs storage.FileSet
}

func (v *FileSetView) GetPage(pageID uint32) (*storage.Page, error) {
	return v.gp.GetPage(v.fs, pageID)
}

func (v *FileSetView) Unpin(page *storage.Page, dirty bool) error {
	if !v.gp.Unpin(v.fs, page, dirty) {
		return ErrUnpinFailed
	}
	return nil
}

// FlushAll flushes dirty pages for THIS FileSet only.
func (v *FileSetView) FlushAll() error {
	return v.gp.FlushFileSet(v.fs)
}

// FlushPage flushes one page regardless of dirty state (flush_page).
func (v *FileSetView) FlushPage(pageID uint32) bool {
	return v.gp.FlushPage(v.fs, pageID)
}

// DeletePage removes a page from the pool (delete_page).
func (v *FileSetView) DeletePage(pageID uint32) bool {
	return v.gp.DeletePage(v.fs, pageID)
}

// NewPage allocates a fresh page (new_page).
func (v *FileSetView) NewPage() (uint32, *storage.Page, bool) {
	return v.gp.NewPage(v.fs)
}

// View returns a relation-scoped Manager backed by the shared GlobalPool.
func (gp *GlobalPool) View(fs storage.FileSet) Manager {
	return &FileSetView{gp: gp, fs: fs}
}
