// Package locking holds small atomic counters: a reference counter and a
// monotonic id allocator (used for transaction ids).
package locking

import (
	"fmt"

	"go.uber.org/atomic"
)

// RefCount is an atomic reference counter that goroutines can
// increment/decrement concurrently without a surrounding mutex. No other
// package in this module uses it.
type RefCount struct {
	count atomic.Int32
}

func NewRefCount() *RefCount {
	r := &RefCount{}
	r.count.Store(1)
	return r
}

func (r *RefCount) Inc() {
	r.count.Inc()
}

func (r *RefCount) Dec() bool {
	newCount := r.count.Dec()
	if newCount < 0 {
		panic("refcount dropped below zero")
	}
	return newCount == 0
}

func (r *RefCount) Get() int32 {
	return r.count.Load()
}

func (r *RefCount) String() string {
	return fmt.Sprintf("RefCount: %d", r.Get())
}

// Counter is a simple atomic monotonic id allocator, used for transaction
// ids.
type Counter struct {
	n atomic.Uint32
}

// NewCounter returns a Counter whose first Next() call yields start.
func NewCounter(start uint32) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

func (c *Counter) Next() uint32 {
	return c.n.Inc() - 1
}

func (c *Counter) Peek() uint32 {
	return c.n.Load()
}
