package btree

import (
	"sync"

	"github.com/novasql/novasql/internal/bufferpool"
	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/storage"
)

// Tree is a disk-backed B+ tree index over fixed-width byte-array keys,
// backed by the shared GlobalPool and latch-coupled (crabbing) for
// concurrent access. The root page id never changes once the tree is
// created: a root split rewrites the root page in place as a fresh
// internal node pointing at two newly allocated children, and a root
// collapse copies its sole remaining child's content back into the root
// page. That invariant is what lets rootLatch act as a lightweight header
// latch instead of protecting every read of Tree.Root.
type Tree struct {
	Pool       *bufferpool.GlobalPool
	FS         storage.FileSet
	Comparator Comparator
	KeyWidth   int

	rootLatch sync.RWMutex
	Root      uint32
	Height    int

	maxLeaf     int
	maxInternal int
	minLeaf     int
	minInternal int

	nextPageID  uint32
	metaEnabled bool
	metaPath    string
}

// ancestorT is one write-latched internal node held while descending, kept
// around only as long as it might still need to absorb a split or a
// child's merge.
type ancestorT struct {
	pageID uint32
	guard  bufferpool.WritePageGuard
}

func dropAll(as []ancestorT) {
	for _, a := range as {
		a.guard.Drop()
	}
}

// NewTree creates a brand-new, empty index: a single empty leaf page as
// the root.
func NewTree(pool *bufferpool.GlobalPool, fs storage.FileSet, keyWidth int, cmp Comparator) (*Tree, error) {
	if !validWidth(keyWidth) {
		return nil, ErrUnsupportedWidth
	}
	if cmp == nil {
		cmp = BytesComparator
	}

	t := newTreeShell(pool, fs, keyWidth, cmp)

	rootID, guard, ok := pool.NewPageGuarded(fs)
	if !ok {
		return nil, bufferpool.ErrNoFreeFrame
	}
	initNode(*guard.Page(), nodeLeaf, keyWidth, 0)
	guard.Drop()

	t.Root = rootID
	t.Height = 1

	if err := t.saveMeta(); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenTree reopens an index previously created with NewTree, restoring
// root/height/key-width from its meta file.
func OpenTree(pool *bufferpool.GlobalPool, fs storage.FileSet, keyWidth int, cmp Comparator) (*Tree, error) {
	if !validWidth(keyWidth) {
		return nil, ErrUnsupportedWidth
	}
	if cmp == nil {
		cmp = BytesComparator
	}

	t := newTreeShell(pool, fs, keyWidth, cmp)

	m, found, err := t.loadMeta()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrTreeClosed
	}
	if m.KeyWidth != 0 && m.KeyWidth != keyWidth {
		return nil, ErrKeyWidthMismatch
	}
	t.Root = m.Root
	t.Height = m.Height
	t.nextPageID = m.NextPageID
	return t, nil
}

func newTreeShell(pool *bufferpool.GlobalPool, fs storage.FileSet, keyWidth int, cmp Comparator) *Tree {
	t := &Tree{
		Pool:       pool,
		FS:         fs,
		Comparator: cmp,
		KeyWidth:   keyWidth,
	}
	t.maxLeaf = maxLeafEntries(keyWidth)
	t.maxInternal = maxInternalEntries(keyWidth)
	t.minLeaf = ceilHalf(t.maxLeaf)
	t.minInternal = ceilHalf(t.maxInternal)
	if path, ok := metaPathForFileSet(fs); ok {
		t.metaEnabled = true
		t.metaPath = path
	}
	return t
}

func (t *Tree) currentRoot() uint32 {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.Root
}

// Get looks up key and returns its tuple id, the shared-latch path down
// to the leaf latching each child before releasing its parent.
func (t *Tree) Get(key Key) (heap.TID, bool, error) {
	if len(key) != t.KeyWidth {
		return heap.TID{}, false, ErrKeyWidthMismatch
	}

	rootID := t.currentRoot()
	cur, err := t.Pool.FetchPageRead(t.FS, rootID)
	if err != nil {
		return heap.TID{}, false, err
	}
	for nodeKindOf(*cur.Page()) == nodeInternal {
		entries := readInternalEntries(*cur.Page())
		childID := chooseChild(entries, key, t.Comparator)
		child, err := t.Pool.FetchPageRead(t.FS, childID)
		if err != nil {
			cur.Drop()
			return heap.TID{}, false, err
		}
		cur.Drop()
		cur = child
	}
	defer cur.Drop()

	entries := readLeafEntries(*cur.Page())
	if i, ok := findExact(entries, key, t.Comparator); ok {
		return entries[i].TID, true, nil
	}
	return heap.TID{}, false, nil
}

// Insert adds (key,tid). It reports ok=false without error if key is
// already present.
func (t *Tree) Insert(key Key, tid heap.TID) (bool, error) {
	if len(key) != t.KeyWidth {
		return false, ErrKeyWidthMismatch
	}
	key = append(Key(nil), key...)

	rootID := t.currentRoot()
	cur, err := t.Pool.FetchPageWrite(t.FS, rootID)
	if err != nil {
		return false, err
	}

	var ancestors []ancestorT
	curID := rootID
	for nodeKindOf(*cur.Page()) == nodeInternal {
		entries := readInternalEntries(*cur.Page())
		if len(entries) < t.maxInternal {
			dropAll(ancestors)
			ancestors = ancestors[:0]
		}
		ancestors = append(ancestors, ancestorT{pageID: curID, guard: cur})

		childID := chooseChild(entries, key, t.Comparator)
		child, err := t.Pool.FetchPageWrite(t.FS, childID)
		if err != nil {
			dropAll(ancestors)
			return false, err
		}
		cur = child
		curID = childID
	}

	entries := readLeafEntries(*cur.Page())
	pos, found := findInsertPos(entries, key, t.Comparator)
	if found {
		cur.Drop()
		dropAll(ancestors)
		return false, nil
	}
	entries = insertLeafAt(entries, pos, leafEntry{Key: key, TID: tid})

	if len(entries) <= t.maxLeaf {
		writeLeafEntries(*cur.Page(), t.KeyWidth, entries)
		cur.Drop()
		dropAll(ancestors)
		return true, nil
	}

	leftCount := len(entries) / 2
	leftEntries := entries[:leftCount]
	rightEntries := entries[leftCount:]
	promoted := append(Key(nil), rightEntries[0].Key...)

	if len(ancestors) == 0 {
		return true, t.splitRootLeaf(cur, leftEntries, rightEntries, promoted)
	}

	rightID, rightGuard, ok := t.Pool.NewPageGuarded(t.FS)
	if !ok {
		cur.Drop()
		dropAll(ancestors)
		return false, bufferpool.ErrNoFreeFrame
	}
	initNode(*rightGuard.Page(), nodeLeaf, t.KeyWidth, 0)
	setNextLeafID(*rightGuard.Page(), nextLeafIDOf(*cur.Page()))
	writeLeafEntries(*rightGuard.Page(), t.KeyWidth, rightEntries)

	writeLeafEntries(*cur.Page(), t.KeyWidth, leftEntries)
	setNextLeafID(*cur.Page(), rightID)

	leftID := curID
	cur.Drop()
	rightGuard.Drop()

	return true, t.insertIntoParent(ancestors, leftID, promoted, rightID)
}

func (t *Tree) splitRootLeaf(rootGuard bufferpool.WritePageGuard, leftEntries, rightEntries []leafEntry, promoted Key) error {
	rootID := rootGuard.PageID()

	leftID, leftGuard, ok := t.Pool.NewPageGuarded(t.FS)
	if !ok {
		rootGuard.Drop()
		return bufferpool.ErrNoFreeFrame
	}
	rightID, rightGuard, ok := t.Pool.NewPageGuarded(t.FS)
	if !ok {
		leftGuard.Drop()
		rootGuard.Drop()
		return bufferpool.ErrNoFreeFrame
	}

	initNode(*leftGuard.Page(), nodeLeaf, t.KeyWidth, rootID)
	setNextLeafID(*leftGuard.Page(), rightID)
	writeLeafEntries(*leftGuard.Page(), t.KeyWidth, leftEntries)

	initNode(*rightGuard.Page(), nodeLeaf, t.KeyWidth, rootID)
	setNextLeafID(*rightGuard.Page(), 0)
	writeLeafEntries(*rightGuard.Page(), t.KeyWidth, rightEntries)

	rootEntries := []internalEntry{
		{Key: make(Key, t.KeyWidth), ChildID: leftID},
		{Key: promoted, ChildID: rightID},
	}
	initNode(*rootGuard.Page(), nodeInternal, t.KeyWidth, 0)
	writeInternalEntries(*rootGuard.Page(), t.KeyWidth, rootEntries)

	leftGuard.Drop()
	rightGuard.Drop()
	rootGuard.Drop()

	t.Height++
	return t.saveMeta()
}

func (t *Tree) splitRootInternal(rootGuard bufferpool.WritePageGuard, leftEntries, rightEntries []internalEntry, promoted Key) error {
	rootID := rootGuard.PageID()

	leftID, leftGuard, ok := t.Pool.NewPageGuarded(t.FS)
	if !ok {
		rootGuard.Drop()
		return bufferpool.ErrNoFreeFrame
	}
	rightID, rightGuard, ok := t.Pool.NewPageGuarded(t.FS)
	if !ok {
		leftGuard.Drop()
		rootGuard.Drop()
		return bufferpool.ErrNoFreeFrame
	}

	initNode(*leftGuard.Page(), nodeInternal, t.KeyWidth, rootID)
	writeInternalEntries(*leftGuard.Page(), t.KeyWidth, leftEntries)

	initNode(*rightGuard.Page(), nodeInternal, t.KeyWidth, rootID)
	writeInternalEntries(*rightGuard.Page(), t.KeyWidth, rightEntries)

	rootEntries := []internalEntry{
		{Key: make(Key, t.KeyWidth), ChildID: leftID},
		{Key: promoted, ChildID: rightID},
	}
	initNode(*rootGuard.Page(), nodeInternal, t.KeyWidth, 0)
	writeInternalEntries(*rootGuard.Page(), t.KeyWidth, rootEntries)

	leftGuard.Drop()
	rightGuard.Drop()
	rootGuard.Drop()

	t.Height++
	return t.saveMeta()
}

// insertIntoParent adds the (promoted,rightID) separator produced by a
// child split into its parent (the innermost of ancestors), recursing
// upward if that insertion overflows the parent too.
func (t *Tree) insertIntoParent(ancestors []ancestorT, leftID uint32, promoted Key, rightID uint32) error {
	parent := ancestors[len(ancestors)-1]
	rest := ancestors[:len(ancestors)-1]

	entries := readInternalEntries(*parent.guard.Page())
	pos := findChildPos(entries, leftID)
	entries = insertInternalAt(entries, pos+1, internalEntry{Key: promoted, ChildID: rightID})

	if len(entries) <= t.maxInternal {
		writeInternalEntries(*parent.guard.Page(), t.KeyWidth, entries)
		parent.guard.Drop()
		dropAll(rest)
		return nil
	}

	total := len(entries)
	mid := ceilHalf(total)
	leftEntries := append([]internalEntry{}, entries[:mid]...)
	promotedKey := append(Key(nil), entries[mid].Key...)
	rightEntries := append([]internalEntry{}, entries[mid:]...)
	rightEntries[0] = internalEntry{Key: make(Key, t.KeyWidth), ChildID: rightEntries[0].ChildID}

	if len(rest) == 0 {
		return t.splitRootInternal(parent.guard, leftEntries, rightEntries, promotedKey)
	}

	rid, rguard, ok := t.Pool.NewPageGuarded(t.FS)
	if !ok {
		parent.guard.Drop()
		dropAll(rest)
		return bufferpool.ErrNoFreeFrame
	}
	initNode(*rguard.Page(), nodeInternal, t.KeyWidth, 0)
	writeInternalEntries(*rguard.Page(), t.KeyWidth, rightEntries)
	writeInternalEntries(*parent.guard.Page(), t.KeyWidth, leftEntries)

	leftPID := parent.pageID
	parent.guard.Drop()
	rguard.Drop()

	return t.insertIntoParent(rest, leftPID, promotedKey, rid)
}

// Remove deletes key. It is a no-op, not an error, if key is absent.
func (t *Tree) Remove(key Key) error {
	if len(key) != t.KeyWidth {
		return ErrKeyWidthMismatch
	}

	rootID := t.currentRoot()
	cur, err := t.Pool.FetchPageWrite(t.FS, rootID)
	if err != nil {
		return err
	}

	var ancestors []ancestorT
	curID := rootID
	for nodeKindOf(*cur.Page()) == nodeInternal {
		entries := readInternalEntries(*cur.Page())
		if len(entries) > t.minInternal {
			dropAll(ancestors)
			ancestors = ancestors[:0]
		}
		ancestors = append(ancestors, ancestorT{pageID: curID, guard: cur})

		childID := chooseChild(entries, key, t.Comparator)
		child, err := t.Pool.FetchPageWrite(t.FS, childID)
		if err != nil {
			dropAll(ancestors)
			return err
		}
		cur = child
		curID = childID
	}

	entries := readLeafEntries(*cur.Page())
	pos, found := findExact(entries, key, t.Comparator)
	if !found {
		cur.Drop()
		dropAll(ancestors)
		return nil
	}
	entries = append(append([]leafEntry{}, entries[:pos]...), entries[pos+1:]...)
	writeLeafEntries(*cur.Page(), t.KeyWidth, entries)

	isRoot := len(ancestors) == 0
	if isRoot || len(entries) >= t.minLeaf {
		cur.Drop()
		dropAll(ancestors)
		return nil
	}

	return t.fixLeafUnderflow(curID, cur, ancestors)
}

// fixLeafUnderflow redistributes from or merges with a sibling of an
// underflowing leaf, reached through its parent (the innermost of
// ancestors, which is never empty here: the root case is filtered out by
// the caller).
func (t *Tree) fixLeafUnderflow(curID uint32, cur bufferpool.WritePageGuard, ancestors []ancestorT) error {
	parent := ancestors[len(ancestors)-1]
	rest := ancestors[:len(ancestors)-1]

	parentEntries := readInternalEntries(*parent.guard.Page())
	pos := findChildPos(parentEntries, curID)

	if pos > 0 {
		leftSibID := parentEntries[pos-1].ChildID
		leftGuard, err := t.Pool.FetchPageWrite(t.FS, leftSibID)
		if err != nil {
			cur.Drop()
			parent.guard.Drop()
			dropAll(rest)
			return err
		}
		leftEntries := readLeafEntries(*leftGuard.Page())
		if len(leftEntries) > t.minLeaf {
			moved := leftEntries[len(leftEntries)-1]
			leftEntries = leftEntries[:len(leftEntries)-1]
			curEntries := append([]leafEntry{moved}, readLeafEntries(*cur.Page())...)
			writeLeafEntries(*leftGuard.Page(), t.KeyWidth, leftEntries)
			writeLeafEntries(*cur.Page(), t.KeyWidth, curEntries)
			parentEntries[pos].Key = append(Key(nil), moved.Key...)
			writeInternalEntries(*parent.guard.Page(), t.KeyWidth, parentEntries)
			leftGuard.Drop()
			cur.Drop()
			parent.guard.Drop()
			dropAll(rest)
			return nil
		}

		merged := append(leftEntries, readLeafEntries(*cur.Page())...)
		writeLeafEntries(*leftGuard.Page(), t.KeyWidth, merged)
		setNextLeafID(*leftGuard.Page(), nextLeafIDOf(*cur.Page()))
		leftGuard.Drop()
		cur.Drop()
		t.Pool.DeletePage(t.FS, curID)

		parentEntries = append(append([]internalEntry{}, parentEntries[:pos]...), parentEntries[pos+1:]...)
		return t.fixInternalAfterRemoval(parent, rest, parentEntries)
	}

	rightSibID := parentEntries[pos+1].ChildID
	rightGuard, err := t.Pool.FetchPageWrite(t.FS, rightSibID)
	if err != nil {
		cur.Drop()
		parent.guard.Drop()
		dropAll(rest)
		return err
	}
	rightEntries := readLeafEntries(*rightGuard.Page())
	if len(rightEntries) > t.minLeaf {
		moved := rightEntries[0]
		rightEntries = rightEntries[1:]
		curEntries := append(readLeafEntries(*cur.Page()), moved)
		writeLeafEntries(*rightGuard.Page(), t.KeyWidth, rightEntries)
		writeLeafEntries(*cur.Page(), t.KeyWidth, curEntries)
		parentEntries[pos+1].Key = append(Key(nil), rightEntries[0].Key...)
		writeInternalEntries(*parent.guard.Page(), t.KeyWidth, parentEntries)
		rightGuard.Drop()
		cur.Drop()
		parent.guard.Drop()
		dropAll(rest)
		return nil
	}

	merged := append(readLeafEntries(*cur.Page()), rightEntries...)
	writeLeafEntries(*cur.Page(), t.KeyWidth, merged)
	setNextLeafID(*cur.Page(), nextLeafIDOf(*rightGuard.Page()))
	rightGuard.Drop()
	cur.Drop()
	t.Pool.DeletePage(t.FS, rightSibID)

	parentEntries = append(append([]internalEntry{}, parentEntries[:pos+1]...), parentEntries[pos+2:]...)
	return t.fixInternalAfterRemoval(parent, rest, parentEntries)
}

// fixInternalAfterRemoval applies a child-count reduction (merge below)
// to parent, whose new entries are already computed, handling root
// collapse and propagating further underflow up the ancestor chain.
func (t *Tree) fixInternalAfterRemoval(parent ancestorT, rest []ancestorT, entries []internalEntry) error {
	isRoot := len(rest) == 0

	if isRoot {
		if len(entries) == 1 {
			return t.collapseRootInto(parent.guard, entries[0].ChildID)
		}
		writeInternalEntries(*parent.guard.Page(), t.KeyWidth, entries)
		parent.guard.Drop()
		return nil
	}

	writeInternalEntries(*parent.guard.Page(), t.KeyWidth, entries)
	if len(entries) >= t.minInternal {
		parent.guard.Drop()
		dropAll(rest)
		return nil
	}

	return t.fixInternalUnderflow(parent.pageID, parent.guard, rest)
}

// fixInternalUnderflow is fixLeafUnderflow's internal-node counterpart:
// redistribute a child from a sibling through the shared parent
// separator, or merge with a sibling by pulling that separator down.
func (t *Tree) fixInternalUnderflow(curID uint32, cur bufferpool.WritePageGuard, ancestors []ancestorT) error {
	parent := ancestors[len(ancestors)-1]
	rest := ancestors[:len(ancestors)-1]

	parentEntries := readInternalEntries(*parent.guard.Page())
	pos := findChildPos(parentEntries, curID)

	if pos > 0 {
		leftSibID := parentEntries[pos-1].ChildID
		leftGuard, err := t.Pool.FetchPageWrite(t.FS, leftSibID)
		if err != nil {
			cur.Drop()
			parent.guard.Drop()
			dropAll(rest)
			return err
		}
		leftEntries := readInternalEntries(*leftGuard.Page())
		if len(leftEntries) > t.minInternal {
			sep := append(Key(nil), parentEntries[pos].Key...)
			moved := leftEntries[len(leftEntries)-1]
			leftEntries = leftEntries[:len(leftEntries)-1]

			curEntries := readInternalEntries(*cur.Page())
			newCur := make([]internalEntry, 0, len(curEntries)+1)
			newCur = append(newCur, internalEntry{Key: make(Key, t.KeyWidth), ChildID: moved.ChildID})
			newCur = append(newCur, internalEntry{Key: sep, ChildID: curEntries[0].ChildID})
			newCur = append(newCur, curEntries[1:]...)

			writeInternalEntries(*leftGuard.Page(), t.KeyWidth, leftEntries)
			writeInternalEntries(*cur.Page(), t.KeyWidth, newCur)
			parentEntries[pos].Key = append(Key(nil), moved.Key...)
			writeInternalEntries(*parent.guard.Page(), t.KeyWidth, parentEntries)

			leftGuard.Drop()
			cur.Drop()
			parent.guard.Drop()
			dropAll(rest)
			return nil
		}

		sep := append(Key(nil), parentEntries[pos].Key...)
		curEntries := readInternalEntries(*cur.Page())
		curEntries[0] = internalEntry{Key: sep, ChildID: curEntries[0].ChildID}
		merged := append(leftEntries, curEntries...)
		writeInternalEntries(*leftGuard.Page(), t.KeyWidth, merged)
		leftGuard.Drop()
		cur.Drop()
		t.Pool.DeletePage(t.FS, curID)

		parentEntries = append(append([]internalEntry{}, parentEntries[:pos]...), parentEntries[pos+1:]...)
		return t.fixInternalAfterRemoval(parent, rest, parentEntries)
	}

	rightSibID := parentEntries[pos+1].ChildID
	rightGuard, err := t.Pool.FetchPageWrite(t.FS, rightSibID)
	if err != nil {
		cur.Drop()
		parent.guard.Drop()
		dropAll(rest)
		return err
	}
	rightEntries := readInternalEntries(*rightGuard.Page())
	if len(rightEntries) > t.minInternal {
		sep := append(Key(nil), parentEntries[pos+1].Key...)
		moved := rightEntries[0]
		newSep := append(Key(nil), rightEntries[1].Key...)
		newRight := make([]internalEntry, 0, len(rightEntries)-1)
		newRight = append(newRight, internalEntry{Key: make(Key, t.KeyWidth), ChildID: rightEntries[1].ChildID})
		newRight = append(newRight, rightEntries[2:]...)

		curEntries := append(readInternalEntries(*cur.Page()), internalEntry{Key: sep, ChildID: moved.ChildID})
		writeInternalEntries(*rightGuard.Page(), t.KeyWidth, newRight)
		writeInternalEntries(*cur.Page(), t.KeyWidth, curEntries)
		parentEntries[pos+1].Key = newSep
		writeInternalEntries(*parent.guard.Page(), t.KeyWidth, parentEntries)

		rightGuard.Drop()
		cur.Drop()
		parent.guard.Drop()
		dropAll(rest)
		return nil
	}

	sep := append(Key(nil), parentEntries[pos+1].Key...)
	rightEntries[0] = internalEntry{Key: sep, ChildID: rightEntries[0].ChildID}
	merged := append(readInternalEntries(*cur.Page()), rightEntries...)
	writeInternalEntries(*cur.Page(), t.KeyWidth, merged)
	rightGuard.Drop()
	cur.Drop()
	t.Pool.DeletePage(t.FS, rightSibID)

	parentEntries = append(append([]internalEntry{}, parentEntries[:pos+1]...), parentEntries[pos+2:]...)
	return t.fixInternalAfterRemoval(parent, rest, parentEntries)
}

// collapseRootInto replaces the root's content with its sole remaining
// child's content, keeping the root page id fixed, and frees the child
// page. rootGuard is already held by the caller.
func (t *Tree) collapseRootInto(rootGuard bufferpool.WritePageGuard, childID uint32) error {
	childGuard, err := t.Pool.FetchPageWrite(t.FS, childID)
	if err != nil {
		rootGuard.Drop()
		return err
	}

	if nodeKindOf(*childGuard.Page()) == nodeLeaf {
		entries := readLeafEntries(*childGuard.Page())
		next := nextLeafIDOf(*childGuard.Page())
		initNode(*rootGuard.Page(), nodeLeaf, t.KeyWidth, 0)
		setNextLeafID(*rootGuard.Page(), next)
		writeLeafEntries(*rootGuard.Page(), t.KeyWidth, entries)
	} else {
		entries := readInternalEntries(*childGuard.Page())
		initNode(*rootGuard.Page(), nodeInternal, t.KeyWidth, 0)
		writeInternalEntries(*rootGuard.Page(), t.KeyWidth, entries)
	}

	childGuard.Drop()
	rootGuard.Drop()
	t.Pool.DeletePage(t.FS, childID)

	if t.Height > 1 {
		t.Height--
	}
	return t.saveMeta()
}
