package btree

import (
	"github.com/novasql/novasql/internal/bufferpool"
	"github.com/novasql/novasql/internal/heap"
)

// Iterator walks leaf entries in key order via the leaf chain's
// next-pointer, holding a read latch on at most one leaf at a time.
type Iterator struct {
	tree    *Tree
	leaf    bufferpool.ReadPageGuard
	entries []leafEntry
	idx     int
	done    bool
	closed  bool
}

// Begin returns an iterator positioned at the smallest key in the tree.
func (t *Tree) Begin() (*Iterator, error) {
	rootID := t.currentRoot()
	leaf, err := t.descendToLeftmostLeaf(rootID)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, leaf: leaf, entries: readLeafEntries(*leaf.Page())}
	it.advanceToNonEmpty()
	return it, nil
}

// BeginAt returns an iterator positioned at the first entry with a key
// greater than or equal to key.
func (t *Tree) BeginAt(key Key) (*Iterator, error) {
	if len(key) != t.KeyWidth {
		return nil, ErrKeyWidthMismatch
	}
	rootID := t.currentRoot()
	leaf, err := t.Pool.FetchPageRead(t.FS, rootID)
	if err != nil {
		return nil, err
	}
	for nodeKindOf(*leaf.Page()) == nodeInternal {
		entries := readInternalEntries(*leaf.Page())
		childID := chooseChild(entries, key, t.Comparator)
		child, err := t.Pool.FetchPageRead(t.FS, childID)
		if err != nil {
			leaf.Drop()
			return nil, err
		}
		leaf.Drop()
		leaf = child
	}

	entries := readLeafEntries(*leaf.Page())
	pos := 0
	for pos < len(entries) && t.Comparator(entries[pos].Key, key) < 0 {
		pos++
	}
	it := &Iterator{tree: t, leaf: leaf, entries: entries, idx: pos}
	it.advanceToNonEmpty()
	return it, nil
}

// IsEnd reports whether the iterator has been exhausted.
func (it *Iterator) IsEnd() bool { return it.done }

// Next advances the iterator and returns the current (key,tid) pair,
// false once it is exhausted.
func (it *Iterator) Next() (Key, heap.TID, bool) {
	if it.done {
		return nil, heap.TID{}, false
	}
	e := it.entries[it.idx]
	it.idx++
	it.advanceToNonEmpty()
	return e.Key, e.TID, true
}

// Close releases the iterator's held leaf latch. Safe to call multiple
// times, including after the iterator is already exhausted.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	if !it.done {
		it.leaf.Drop()
	}
}

func (it *Iterator) advanceToNonEmpty() {
	for it.idx >= len(it.entries) {
		next := nextLeafIDOf(*it.leaf.Page())
		it.leaf.Drop()
		if next == 0 {
			it.done = true
			it.closed = true
			return
		}
		guard, err := it.tree.Pool.FetchPageRead(it.tree.FS, next)
		if err != nil {
			it.done = true
			it.closed = true
			return
		}
		it.leaf = guard
		it.entries = readLeafEntries(*guard.Page())
		it.idx = 0
	}
}

func (t *Tree) descendToLeftmostLeaf(rootID uint32) (bufferpool.ReadPageGuard, error) {
	cur, err := t.Pool.FetchPageRead(t.FS, rootID)
	if err != nil {
		return cur, err
	}
	for nodeKindOf(*cur.Page()) == nodeInternal {
		entries := readInternalEntries(*cur.Page())
		child, err := t.Pool.FetchPageRead(t.FS, entries[0].ChildID)
		if err != nil {
			cur.Drop()
			return child, err
		}
		cur.Drop()
		cur = child
	}
	return cur, nil
}
