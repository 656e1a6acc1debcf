package storage

import (
	"errors"
	"fmt"
	"sync"
)

const (
	_256   = 256
	_256_2 = 256 * 256
	_256_3 = 256 * 256 * 256
)

func GetU16(b []byte, offset int) uint16 {
	return uint16(b[offset]) + uint16(b[offset+1])*_256
}

func PutU16(b []byte, offset int, v uint16) {
	b[offset], b[offset+1] = byte(v%_256), byte(v/_256)
}

func GetU32(b []byte, offset int) uint32 {
	return uint32(b[offset]) +
		uint32(b[offset+1])*_256 +
		uint32(b[offset+2])*_256_2 +
		uint32(b[offset+3])*_256_3
}

func PutU32(b []byte, offset int, v uint32) {
	b[offset] = byte(v % _256)
	b[offset+1] = byte((v / _256) % _256)
	b[offset+2] = byte((v / (_256 * _256)) % _256)
	b[offset+3] = byte((v / (_256 * _256 * _256)) % _256)
}

// Slot flags. A slot normally points at a live tuple; DeleteTuple
// tombstones it in place, and UpdateTuple tombstones-by-redirect when a
// grown tuple no longer fits its original slot (the slot's Offset then
// holds the index of the slot holding the real data).
const (
	SlotFlagNormal  uint16 = 0
	SlotFlagDeleted uint16 = 1
	SlotFlagMoved   uint16 = 2
)

var (
	ErrBadSlot = errors.New("storage: bad, out-of-range, or deleted slot")
	ErrNoSpace = errors.New("storage: not enough free space on page")
)

// Slot is one entry of a page's line-pointer array.
type Slot struct {
	Offset uint16
	Length uint16
	Flags  uint16
}

// +------------------+ 0
// | PageHeaderData   |
// | LinePointers[]   | <-- pd_lower
// +------------------+
// |                  |
// |   Free space     |
// |                  |
// +------------------+ <-- pd_upper
// |  Tuple Data      |
// |  (grows down)    |
// +------------------+ <-- pd_special
// |  Special Space   |
// |  (fixed size)    |
// +------------------+ Block/Page Size (8192)
type Page struct {
	// buf := make([]byte, PageSize) -> max is only 8192
	Buf []byte

	// Latch guards concurrent readers/writers of Buf. It is a pointer so
	// that Page, which is otherwise passed around by value in low-level
	// helpers, still shares one latch per underlying frame.
	Latch *sync.RWMutex
}

// NewPage wraps buf (which must be exactly PageSize bytes) as a
// zero-initialized page stamped with pageID.
func NewPage(buf []byte, pageID uint32) (*Page, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("storage: page buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	p := &Page{Buf: buf, Latch: &sync.RWMutex{}}
	p.init(pageID)
	return p, nil
}

// RLatch/RUnlatch/WLatch/WUnlatch implement the shared/exclusive latch a
// ReadPageGuard/WritePageGuard acquires and releases. Callers must hold a
// pin on the page (via the buffer pool) before latching it.
func (p *Page) RLatch()   { p.Latch.RLock() }
func (p *Page) RUnlatch() { p.Latch.RUnlock() }
func (p *Page) WLatch()   { p.Latch.Lock() }
func (p *Page) WUnlatch() { p.Latch.Unlock() }

// ---- Page header ----

func (p *Page) init(pageID uint32) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	p.setFlags(0)
	PutU32(p.Buf, 2, pageID)
	p.SetLower(HeaderSize)
	p.SetUpper(PageSize)
	PutU16(p.Buf, 10, PageSize) // pd_special (unused yet)
}

// PageID returns the page id stored in the page header.
func (p *Page) PageID() uint32 { return GetU32(p.Buf, 2) }

func (p *Page) flags() uint16     { return GetU16(p.Buf, 0) }
func (p *Page) setFlags(v uint16) { PutU16(p.Buf, 0, v) }

func (p *Page) lower() uint16 { return GetU16(p.Buf, 6) }

// SetLower sets pd_lower (the end of the slot directory). Exported for
// the B+ tree, which rewrites a node's slot directory from scratch on
// every mutation.
func (p *Page) SetLower(v uint16) { PutU16(p.Buf, 6, v) }

func (p *Page) upper() uint16 { return GetU16(p.Buf, 8) }

// SetUpper sets pd_upper (the start of the tuple data area).
func (p *Page) SetUpper(v uint16) { PutU16(p.Buf, 8, v) }

func (p *Page) special() uint16 { return GetU16(p.Buf, 10) }

func (p *Page) IsUninitialized() bool {
	return p.lower() == 0 && p.upper() == 0
}

// FreeSpace returns the number of unused bytes between the slot
// directory and the tuple data area.
func (p *Page) FreeSpace() int {
	return int(p.upper()) - int(p.lower())
}

func (p *Page) NumSlots() int {
	return (int(p.lower()) - HeaderSize) / SlotSize
}

func (p *Page) slotOff(idx int) int {
	return HeaderSize + idx*SlotSize
}

func (p *Page) getSlot(idx int) (Slot, error) {
	if idx < 0 || idx >= p.NumSlots() {
		return Slot{}, ErrBadSlot
	}
	o := p.slotOff(idx)
	return Slot{
		Offset: GetU16(p.Buf, o),
		Length: GetU16(p.Buf, o+2),
		Flags:  GetU16(p.Buf, o+4),
	}, nil
}

// GetSlot is the exported form of getSlot, used by the B+ tree to decode
// a node's slot directory directly.
func (p *Page) GetSlot(idx int) (Slot, error) { return p.getSlot(idx) }

func (p *Page) putSlot(idx int, s Slot) {
	o := p.slotOff(idx)
	PutU16(p.Buf, o, s.Offset)
	PutU16(p.Buf, o+2, s.Length)
	PutU16(p.Buf, o+4, s.Flags)
}

func (p *Page) appendSlot(s Slot) int {
	i := p.NumSlots()
	p.putSlot(i, s)
	p.SetLower(p.lower() + SlotSize)
	return i
}

// ---- Tuple CRUD ----

func (p *Page) InsertTuple(tup []byte) (slot int, err error) {
	need := len(tup) + SlotSize
	if p.FreeSpace() < need {
		return -1, ErrNoSpace
	}
	u := int(p.upper()) - len(tup)
	copy(p.Buf[u:], tup)
	p.SetUpper(uint16(u))
	return p.appendSlot(Slot{Offset: uint16(u), Length: uint16(len(tup)), Flags: SlotFlagNormal}), nil
}

// ReadTuple returns the tuple bytes for slot, following a single
// move-redirect if the slot was relocated by a grow-update.
func (p *Page) ReadTuple(slot int) ([]byte, error) {
	s, err := p.getSlot(slot)
	if err != nil {
		return nil, err
	}
	switch s.Flags {
	case SlotFlagDeleted:
		return nil, ErrBadSlot
	case SlotFlagMoved:
		return p.ReadTuple(int(s.Offset))
	default:
		return p.Buf[s.Offset : s.Offset+s.Length], nil
	}
}

// UpdateTuple overwrites slot's tuple in place when newTuple still fits
// the slot's current length (an in-place shrink lowers that length, so the
// freed tail is not reused by a later grow); otherwise it inserts newTuple as a
// fresh tuple elsewhere on the page and redirects slot to it, so callers
// that cached the original slot index keep reading the latest value.
func (p *Page) UpdateTuple(slot int, newTuple []byte) error {
	s, err := p.getSlot(slot)
	if err != nil {
		return err
	}
	if s.Flags == SlotFlagMoved {
		return p.UpdateTuple(int(s.Offset), newTuple)
	}
	if s.Flags == SlotFlagDeleted {
		return ErrBadSlot
	}

	if len(newTuple) <= int(s.Length) {
		copy(p.Buf[s.Offset:], newTuple)
		p.putSlot(slot, Slot{Offset: s.Offset, Length: uint16(len(newTuple)), Flags: SlotFlagNormal})
		return nil
	}

	newSlot, err := p.InsertTuple(newTuple)
	if err != nil {
		return err
	}
	p.putSlot(slot, Slot{Offset: uint16(newSlot), Length: 0, Flags: SlotFlagMoved})
	return nil
}

// DeleteTuple tombstones slot. A slot that redirects elsewhere (moved)
// is tombstoned directly too; the tuple it pointed at is left in place
// (a bounded leak within the page, cleared whenever the page is
// rewritten wholesale, e.g. by the B+ tree's writeLeafEntries).
func (p *Page) DeleteTuple(slot int) error {
	if _, err := p.getSlot(slot); err != nil {
		return err
	}
	p.putSlot(slot, Slot{Offset: 0, Length: 0, Flags: SlotFlagDeleted})
	return nil
}
