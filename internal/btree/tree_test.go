package btree

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novasql/novasql/internal/bufferpool"
	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/storage"
)

func newTestTree(t *testing.T) (*Tree, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "novasql-btree-*")
	require.NoError(t, err)

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: dir, Base: "idx"}
	pool := bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity)

	tree, err := NewTree(pool, fs, 8, BytesComparator)
	require.NoError(t, err)

	return tree, func() { _ = os.RemoveAll(dir) }
}

// shrinkCapacity forces small node sizes so split/merge/redistribute paths
// are exercised without needing thousands of inserts to overflow an 8KB page.
func shrinkCapacity(t *Tree, maxLeaf, maxInternal int) {
	t.maxLeaf = maxLeaf
	t.maxInternal = maxInternal
	t.minLeaf = ceilHalf(maxLeaf)
	t.minInternal = ceilHalf(maxInternal)
}

func tidFor(i int64) heap.TID {
	return heap.TID{PageID: uint32(i), Slot: uint16(i % 65536)}
}

func TestTree_InsertGet_Sequential(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()

	for i := int64(1); i <= 100; i++ {
		ok, err := tree.Insert(Int64Key(i), tidFor(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(1); i <= 100; i++ {
		tid, found, err := tree.Get(Int64Key(i))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, tidFor(i), tid)
	}

	_, found, err := tree.Get(Int64Key(101))
	require.NoError(t, err)
	require.False(t, found)
}

func TestTree_Insert_RejectsDuplicate(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()

	ok, err := tree.Insert(Int64Key(5), tidFor(5))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(Int64Key(5), tidFor(99))
	require.NoError(t, err)
	require.False(t, ok)

	tid, found, err := tree.Get(Int64Key(5))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, tidFor(5), tid)
}

func TestTree_Insert_KeyWidthMismatch(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()

	_, err := tree.Insert(Key{1, 2, 3}, tidFor(1))
	require.ErrorIs(t, err, ErrKeyWidthMismatch)
}

// TestTree_SmallM_SplitsAndGrowsHeight drives inserts through a tree whose
// leaf/internal capacity has been shrunk to 4, forcing leaf splits, root
// splits, and internal-node splits well before 8KB of real page space
// would ever fill up.
func TestTree_SmallM_SplitsAndGrowsHeight(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()
	shrinkCapacity(tree, 4, 4)

	keys := []int64{5, 4, 3, 2, 1, 10, 9, 8, 7, 6, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11}
	for _, k := range keys {
		ok, err := tree.Insert(Int64Key(k), tidFor(k))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Greater(t, tree.Height, 1)

	for _, k := range keys {
		tid, found, err := tree.Get(Int64Key(k))
		require.NoError(t, err)
		require.True(t, found, "key %d missing", k)
		require.Equal(t, tidFor(k), tid)
	}
}

func TestTree_Remove_AbsentKeyIsNoop(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()

	require.NoError(t, tree.Remove(Int64Key(42)))
}

func TestTree_Remove_LeafRedistributeAndMerge(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()
	shrinkCapacity(tree, 4, 4)

	for i := int64(1); i <= 40; i++ {
		ok, err := tree.Insert(Int64Key(i), tidFor(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Delete every other key, forcing leaves below minLeaf and triggering
	// redistribution from siblings or merges.
	for i := int64(1); i <= 40; i += 2 {
		require.NoError(t, tree.Remove(Int64Key(i)))
	}

	for i := int64(1); i <= 40; i++ {
		_, found, err := tree.Get(Int64Key(i))
		require.NoError(t, err)
		if i%2 == 0 {
			require.True(t, found, "key %d should still be present", i)
		} else {
			require.False(t, found, "key %d should have been removed", i)
		}
	}
}

func TestTree_Remove_CollapsesRoot(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()
	shrinkCapacity(tree, 4, 4)

	for i := int64(1); i <= 20; i++ {
		ok, err := tree.Insert(Int64Key(i), tidFor(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Greater(t, tree.Height, 1)

	rootBefore := tree.Root
	for i := int64(1); i <= 20; i++ {
		require.NoError(t, tree.Remove(Int64Key(i)))
	}
	require.Equal(t, rootBefore, tree.Root, "root page id must never change")
	require.Equal(t, 1, tree.Height)

	for i := int64(1); i <= 20; i++ {
		_, found, err := tree.Get(Int64Key(i))
		require.NoError(t, err)
		require.False(t, found)
	}
}

func TestTree_Iterator_WalksInOrder(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()
	shrinkCapacity(tree, 4, 4)

	order := []int64{7, 2, 9, 4, 1, 8, 3, 6, 5, 10}
	for _, k := range order {
		ok, err := tree.Insert(Int64Key(k), tidFor(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var got []int64
	for !it.IsEnd() {
		k, _, ok := it.Next()
		require.True(t, ok)
		got = append(got, int64(k[0])<<56|int64(k[1])<<48|int64(k[2])<<40|int64(k[3])<<32|
			int64(k[4])<<24|int64(k[5])<<16|int64(k[6])<<8|int64(k[7]))
	}

	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1]^(-1<<63), got[i]^(-1<<63))
	}
	require.Len(t, got, len(order))
}

func TestTree_Iterator_BeginAt(t *testing.T) {
	tree, cleanup := newTestTree(t)
	defer cleanup()
	shrinkCapacity(tree, 4, 4)

	for i := int64(1); i <= 30; i++ {
		ok, err := tree.Insert(Int64Key(i*2), tidFor(i*2))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.BeginAt(Int64Key(41))
	require.NoError(t, err)
	defer it.Close()

	_, tid, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, tidFor(42), tid)
}

func TestTree_OpenTree_RestoresState(t *testing.T) {
	dir, err := os.MkdirTemp("", "novasql-btree-open-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: dir, Base: "idx"}
	pool := bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity)

	tree, err := NewTree(pool, fs, 8, BytesComparator)
	require.NoError(t, err)
	for i := int64(1); i <= 10; i++ {
		ok, err := tree.Insert(Int64Key(i), tidFor(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, pool.FlushAll())

	reopened, err := OpenTree(pool, fs, 8, BytesComparator)
	require.NoError(t, err)
	require.Equal(t, tree.Root, reopened.Root)
	require.Equal(t, tree.Height, reopened.Height)

	for i := int64(1); i <= 10; i++ {
		tid, found, err := reopened.Get(Int64Key(i))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, tidFor(i), tid)
	}
}

func TestTree_OpenTree_KeyWidthMismatch(t *testing.T) {
	dir, err := os.MkdirTemp("", "novasql-btree-mismatch-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: dir, Base: "idx"}
	pool := bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity)

	_, err = NewTree(pool, fs, 8, BytesComparator)
	require.NoError(t, err)

	_, err = OpenTree(pool, fs, 16, BytesComparator)
	require.ErrorIs(t, err, ErrKeyWidthMismatch)
}
