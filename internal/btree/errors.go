package btree

import "errors"

var (
	ErrTreeClosed        = errors.New("btree: tree is closed")
	ErrDuplicateKey      = errors.New("btree: duplicate key")
	ErrKeyWidthMismatch  = errors.New("btree: key width does not match tree's configured width")
	ErrUnsupportedWidth  = errors.New("btree: key width must be one of 4, 8, 16, 32, 64")
	ErrIteratorExhausted = errors.New("btree: iterator is at end")
)
