package btree

// findInsertPos returns the position where key belongs in a sorted leaf
// entry slice, and whether it is already present there.
func findInsertPos(entries []leafEntry, key []byte, cmp Comparator) (pos int, found bool) {
	for i, e := range entries {
		c := cmp(e.Key, key)
		if c == 0 {
			return i, true
		}
		if c > 0 {
			return i, false
		}
	}
	return len(entries), false
}

func findExact(entries []leafEntry, key []byte, cmp Comparator) (int, bool) {
	for i, e := range entries {
		if cmp(e.Key, key) == 0 {
			return i, true
		}
	}
	return -1, false
}

func insertLeafAt(entries []leafEntry, pos int, e leafEntry) []leafEntry {
	out := make([]leafEntry, 0, len(entries)+1)
	out = append(out, entries[:pos]...)
	out = append(out, e)
	out = append(out, entries[pos:]...)
	return out
}

func insertInternalAt(entries []internalEntry, pos int, e internalEntry) []internalEntry {
	out := make([]internalEntry, 0, len(entries)+1)
	out = append(out, entries[:pos]...)
	out = append(out, e)
	out = append(out, entries[pos:]...)
	return out
}

// chooseChild walks an internal node's entries and returns the id of the
// rightmost child whose separator key is <= target. entries[0].Key is the
// unused/-infinity slot, so it is always the starting candidate.
func chooseChild(entries []internalEntry, key []byte, cmp Comparator) uint32 {
	chosen := entries[0].ChildID
	for _, e := range entries[1:] {
		if cmp(e.Key, key) <= 0 {
			chosen = e.ChildID
		} else {
			break
		}
	}
	return chosen
}

func findChildPos(entries []internalEntry, childID uint32) int {
	for i, e := range entries {
		if e.ChildID == childID {
			return i
		}
	}
	return -1
}
