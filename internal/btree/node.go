package btree

import (
	"github.com/novasql/novasql/internal/storage"
)

type nodeKind uint8

const (
	nodeLeaf nodeKind = iota + 1
	nodeInternal
)

// B+ tree node header fields live in the page's header area, just past
// the generic slotted-page header (flags/page_id/lower/upper/special).
// storage.HeaderSize is 24 bytes; offsets 12..24 are ours:
//
//	12: node kind (1 byte)
//	13: key width (1 byte)
//	14: (padding, 2 bytes)
//	16: parent page id (4 bytes)
//	20: next leaf page id (4 bytes, leaves only; 0 for internal/rightmost)
const (
	offNodeKind   = 12
	offKeyWidth   = 13
	offParentID   = 16
	offNextLeafID = 20
)

func nodeKindOf(p storage.Page) nodeKind   { return nodeKind(p.Buf[offNodeKind]) }
func keyWidthOf(p storage.Page) int        { return int(p.Buf[offKeyWidth]) }
func parentIDOf(p storage.Page) uint32     { return storage.GetU32(p.Buf, offParentID) }
func setParentID(p storage.Page, id uint32) { storage.PutU32(p.Buf, offParentID, id) }
func nextLeafIDOf(p storage.Page) uint32   { return storage.GetU32(p.Buf, offNextLeafID) }
func setNextLeafID(p storage.Page, id uint32) {
	storage.PutU32(p.Buf, offNextLeafID, id)
}

// initNode resets p to an empty node of the given kind/keyWidth, keeping
// its page id. Slot array and tuple area are cleared by Page.init via
// NewPage's caller; here we only stamp the btree-specific header fields.
func initNode(p storage.Page, kind nodeKind, keyWidth int, parent uint32) {
	p.Buf[offNodeKind] = byte(kind)
	p.Buf[offKeyWidth] = byte(keyWidth)
	setParentID(p, parent)
	setNextLeafID(p, 0)
}

// readLeafEntries returns every (key,tid) pair in p, in slot order. The
// tree always keeps slot order equal to key order for leaves.
func readLeafEntries(p storage.Page) []leafEntry {
	kw := keyWidthOf(p)
	n := p.NumSlots()
	out := make([]leafEntry, 0, n)
	for i := 0; i < n; i++ {
		buf, err := p.ReadTuple(i)
		if err != nil {
			continue
		}
		out = append(out, decodeLeafEntry(kw, buf))
	}
	return out
}

// writeLeafEntries rewrites p's slot/tuple area with exactly these
// entries, in order, preserving the node header.
func writeLeafEntries(p storage.Page, keyWidth int, entries []leafEntry) {
	kind, parent, next := nodeKindOf(p), parentIDOf(p), nextLeafIDOf(p)
	p.SetLower(storage.HeaderSize)
	p.SetUpper(storage.PageSize)
	initNode(p, kind, keyWidth, parent)
	setNextLeafID(p, next)
	for _, e := range entries {
		p.InsertTuple(encodeLeafEntry(keyWidth, e))
	}
}

func readInternalEntries(p storage.Page) []internalEntry {
	kw := keyWidthOf(p)
	n := p.NumSlots()
	out := make([]internalEntry, 0, n)
	for i := 0; i < n; i++ {
		buf, err := p.ReadTuple(i)
		if err != nil {
			continue
		}
		out = append(out, decodeInternalEntry(kw, buf))
	}
	return out
}

func writeInternalEntries(p storage.Page, keyWidth int, entries []internalEntry) {
	kind, parent := nodeKindOf(p), parentIDOf(p)
	p.SetLower(storage.HeaderSize)
	p.SetUpper(storage.PageSize)
	initNode(p, kind, keyWidth, parent)
	for _, e := range entries {
		p.InsertTuple(encodeInternalEntry(keyWidth, e))
	}
}
