package executor

import (
	"github.com/novasql/novasql/internal/heap"
)

// Operator is the pull-based execution interface C7 specifies: Init
// prepares an operator (and, transitively, its children) to produce
// tuples; Next pulls one tuple at a time, returning ok=false once
// exhausted. rid is meaningful for scan-like operators (it identifies the
// heap slot a row came from, for executors further up the tree that need
// to mutate it) and is the zero value for synthesized rows (joins, sorts,
// DML summaries).
//
// Every concrete operator owns its children directly (NestedLoopJoin
// holds both child operators, Sort/TopN/Update/Delete hold one), so a
// plan tree and its operator tree have the same shape and any operator
// can be composed underneath any other.
type Operator interface {
	Init() error
	Next() (row []any, rid heap.TID, ok bool, err error)
	Columns() []string
}

// affectedRower is implemented by DML operators whose "rows produced" and
// "rows affected" differ: Insert/Update/Delete run to completion on their
// first Next() call and report a row count rather than streaming tuples.
type affectedRower interface {
	Affected() int64
}

func indexOf(cols []string) map[string]int {
	m := make(map[string]int, len(cols))
	for i, c := range cols {
		m[c] = i
	}
	return m
}

func padJoinedRow(leftRow []any, rightLen int) []any {
	out := make([]any, 0, len(leftRow)+rightLen)
	out = append(out, leftRow...)
	for i := 0; i < rightLen; i++ {
		out = append(out, nil)
	}
	return out
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return a == b
	}
}
