package bufferpool

import "github.com/novasql/novasql/internal/storage"

// NewPool returns a Manager scoped to a single FileSet, backed by its own
// GlobalPool instance. Most of the engine shares one GlobalPool across all
// relations (see engine.Database); this constructor remains for callers
// (tests, standalone demos) that only ever touch one relation and want a
// private pool.
func NewPool(sm *storage.StorageManager, fs storage.FileSet, capacity int) Manager {
	gp := NewGlobalPool(sm, capacity)
	return gp.View(fs)
}
