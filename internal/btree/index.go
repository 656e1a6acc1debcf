package btree

import "github.com/novasql/novasql/internal/heap"

// Index is the generic ordered-index contract a B+ tree (and any future
// alternative implementation) satisfies for executors in internal/sql/executor.
type Index interface {
	Get(key Key) (heap.TID, bool, error)
	Insert(key Key, tid heap.TID) (bool, error)
	Remove(key Key) error
	Begin() (*Iterator, error)
	BeginAt(key Key) (*Iterator, error)
}

var _ Index = (*Tree)(nil)
