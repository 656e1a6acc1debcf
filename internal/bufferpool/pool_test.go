package bufferpool

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novasql/novasql/internal/storage"
)

// newTestPool creates a temporary directory, StorageManager and a GlobalPool
// for testing, along with the FileSet under test.
func newTestPool(t *testing.T, capacity int) (*GlobalPool, storage.LocalFileSet, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "novasql-bp-*")
	require.NoError(t, err)

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{
		Dir:  dir,
		Base: "testtable",
	}

	gp := NewGlobalPool(sm, capacity)

	cleanup := func() {
		_ = os.RemoveAll(dir)
	}

	return gp, fs, cleanup
}

func TestPool_GetPage_LoadsAndPins(t *testing.T) {
	gp, fs, cleanup := newTestPool(t, 4)
	defer cleanup()

	page1, err := gp.GetPage(fs, 0)
	require.NoError(t, err)
	require.NotNil(t, page1)
	require.Equal(t, uint32(0), page1.PageID())

	tag, _, _ := tagFor(fs, 0)
	idx := gp.table[tag]
	frame := gp.frames[idx]
	require.Equal(t, int32(1), frame.Pin)
	require.False(t, frame.Dirty)

	page2, err := gp.GetPage(fs, 0)
	require.NoError(t, err)
	require.Same(t, page1, page2)
	require.Equal(t, int32(2), frame.Pin)
}

func TestPool_GetPage_Full_NoFreeFrameError(t *testing.T) {
	gp, fs, cleanup := newTestPool(t, 1)
	defer cleanup()

	page0, err := gp.GetPage(fs, 0)
	require.NoError(t, err)
	require.NotNil(t, page0)

	_, err = gp.GetPage(fs, 1)
	require.ErrorIs(t, err, ErrNoFreeFrame)
}

func TestPool_EvictDirtyFrameAndFlush(t *testing.T) {
	gp, fs, cleanup := newTestPool(t, 1)
	defer cleanup()

	page0, err := gp.GetPage(fs, 0)
	require.NoError(t, err)
	require.NotNil(t, page0)

	buf := page0.Buf
	require.NotEmpty(t, buf)
	buf[0] = 42

	require.True(t, gp.Unpin(fs, page0, true))

	// Requesting page 1 forces eviction of page 0, which must flush first.
	page1, err := gp.GetPage(fs, 1)
	require.NoError(t, err)
	require.NotNil(t, page1)

	reloaded, err := gp.sm.LoadPage(fs, 0)
	require.NoError(t, err)
	require.Equal(t, byte(42), reloaded.Buf[0])
}

func TestPool_FlushAll_WritesDirtyFrames(t *testing.T) {
	gp, fs, cleanup := newTestPool(t, 2)
	defer cleanup()

	page0, err := gp.GetPage(fs, 0)
	require.NoError(t, err)
	page1, err := gp.GetPage(fs, 1)
	require.NoError(t, err)

	page0.Buf[10] = 11
	page1.Buf[20] = 22

	require.True(t, gp.Unpin(fs, page0, true))
	require.True(t, gp.Unpin(fs, page1, true))

	require.NoError(t, gp.FlushAll())

	reloaded0, err := gp.sm.LoadPage(fs, 0)
	require.NoError(t, err)
	require.Equal(t, byte(11), reloaded0.Buf[10])

	reloaded1, err := gp.sm.LoadPage(fs, 1)
	require.NoError(t, err)
	require.Equal(t, byte(22), reloaded1.Buf[20])
}

func TestNewPool_DefaultCapacity(t *testing.T) {
	sm := storage.NewStorageManager()
	dir := t.TempDir()
	fs := storage.LocalFileSet{
		Dir:  dir,
		Base: "testtable",
	}

	pool := NewPool(sm, fs, 0)

	page, err := pool.GetPage(0)
	require.NoError(t, err)
	require.NotNil(t, page)
}

func TestGlobalPool_NewPageThenDelete(t *testing.T) {
	gp, fs, cleanup := newTestPool(t, 4)
	defer cleanup()

	pageID, page, ok := gp.NewPage(fs)
	require.True(t, ok)
	require.NotNil(t, page)

	require.True(t, gp.Unpin(fs, page, false))
	require.True(t, gp.DeletePage(fs, pageID))

	// Deleting an already-absent page is idempotent.
	require.True(t, gp.DeletePage(fs, pageID))
}

func TestGlobalPool_DeletePinnedPageFails(t *testing.T) {
	gp, fs, cleanup := newTestPool(t, 4)
	defer cleanup()

	pageID, _, ok := gp.NewPage(fs)
	require.True(t, ok)

	require.False(t, gp.DeletePage(fs, pageID))
}
