package btree

import (
	"bytes"

	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/pkg/bx"
)

// Key is a fixed-width byte-array key. Width must be one of 4, 8, 16, 32,
// or 64 bytes, as configured on the owning Tree.
type Key []byte

// Comparator orders two keys of the tree's configured width. Callers
// typically get a big-endian byte compare for free via bytes.Compare when
// keys are fixed-width big-endian integers; BytesComparator below covers
// that common case.
type Comparator func(a, b []byte) int

// BytesComparator orders keys lexicographically, which is the correct
// ordering for fixed-width big-endian integers and for raw byte strings
// padded/truncated to a common width.
func BytesComparator(a, b []byte) int { return bytes.Compare(a, b) }

var validWidths = map[int]bool{4: true, 8: true, 16: true, 32: true, 64: true}

func validWidth(w int) bool { return validWidths[w] }

// Int64Key encodes a signed int64 into an order-preserving 8-byte big-endian
// key: flipping the sign bit makes the two's-complement bit pattern compare
// the same way as the signed integer under a plain byte compare.
func Int64Key(v int64) Key {
	u := uint64(v) ^ (1 << 63)
	buf := make(Key, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(u)
		u >>= 8
	}
	return buf
}

const tidSize = 6  // heap.TID: PageID(4) + Slot(2)
const childIDSize = 4

func encodeTID(tid heap.TID) []byte {
	buf := make([]byte, tidSize)
	bx.PutU32(buf, tid.PageID)
	bx.PutU16At(buf, 4, tid.Slot)
	return buf
}

func decodeTID(buf []byte) heap.TID {
	return heap.TID{
		PageID: bx.U32(buf),
		Slot:   bx.U16(buf[4:]),
	}
}

// leafEntry is one (key, tid) pair stored in a leaf node.
type leafEntry struct {
	Key Key
	TID heap.TID
}

func encodeLeafEntry(keyWidth int, e leafEntry) []byte {
	buf := make([]byte, keyWidth+tidSize)
	copy(buf, e.Key)
	copy(buf[keyWidth:], encodeTID(e.TID))
	return buf
}

func decodeLeafEntry(keyWidth int, buf []byte) leafEntry {
	key := make(Key, keyWidth)
	copy(key, buf[:keyWidth])
	return leafEntry{Key: key, TID: decodeTID(buf[keyWidth:])}
}

// internalEntry is one (key, child page id) pair. By convention the
// entry at index 0 of an internal node has an unused/zero Key: only its
// ChildID is meaningful, since every key reachable via child[0] is by
// definition smaller than every other separator in the node.
type internalEntry struct {
	Key     Key
	ChildID uint32
}

func encodeInternalEntry(keyWidth int, e internalEntry) []byte {
	buf := make([]byte, keyWidth+childIDSize)
	copy(buf, e.Key)
	bx.PutU32At(buf, keyWidth, e.ChildID)
	return buf
}

func decodeInternalEntry(keyWidth int, buf []byte) internalEntry {
	key := make(Key, keyWidth)
	copy(key, buf[:keyWidth])
	return internalEntry{Key: key, ChildID: bx.U32At(buf, keyWidth)}
}
