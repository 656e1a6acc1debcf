package executor

import "github.com/novasql/novasql/internal/heap"

// fakeOp is a canned Operator for unit-testing operators that compose over
// children (joins, filter, sort, topN, limit) without a real heap/table.
type fakeOp struct {
	cols []string
	rows [][]any

	pos      int
	initErr  error
	initBody func() error
}

func (f *fakeOp) Columns() []string { return f.cols }

func (f *fakeOp) Init() error {
	f.pos = 0
	if f.initBody != nil {
		return f.initBody()
	}
	return f.initErr
}

func (f *fakeOp) Next() ([]any, heap.TID, bool, error) {
	if f.pos >= len(f.rows) {
		return nil, heap.TID{}, false, nil
	}
	row := f.rows[f.pos]
	f.pos++
	return row, heap.TID{}, true, nil
}
