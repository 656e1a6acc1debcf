package btree

import "github.com/novasql/novasql/internal/storage"

// maxLeafEntries returns the largest number of (key,tid) entries a leaf of
// the given key width can hold before it must split.
func maxLeafEntries(keyWidth int) int {
	usable := storage.PageSize - storage.HeaderSize
	perEntry := keyWidth + tidSize + storage.SlotSize
	return usable / perEntry
}

// maxInternalEntries returns the largest number of (key,childID) entries an
// internal node of the given key width can hold before it must split.
func maxInternalEntries(keyWidth int) int {
	usable := storage.PageSize - storage.HeaderSize
	perEntry := keyWidth + childIDSize + storage.SlotSize
	return usable / perEntry
}

// ceilHalf returns ceil(n/2), the minimum occupancy a non-root node must
// keep after a delete before it is merged or redistributed with a sibling.
func ceilHalf(n int) int { return (n + 1) / 2 }
