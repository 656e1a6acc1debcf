package executor

import (
	containerheap "container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/sql/planner"
)

// resolveColumn finds name in cols, first by exact match (it may already
// be "table.col" qualified) and then, for an unqualified name, by a
// unique "<table>.<name>" suffix match. Returns -1 if not found or if an
// unqualified name is ambiguous across qualified columns.
func resolveColumn(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	found := -1
	for i, c := range cols {
		if strings.HasSuffix(c, "."+name) {
			if found != -1 {
				return -1
			}
			found = i
		}
	}
	return found
}

// compareValues orders two column values of the same underlying type;
// nil sorts before any non-nil value.
func compareValues(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, fmt.Errorf("executor: cannot compare %T with %T", a, b)
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		default:
			return 0, nil
		}
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("executor: cannot compare %T with %T", a, b)
		}
		return strings.Compare(x, y), nil
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, fmt.Errorf("executor: cannot compare %T with %T", a, b)
		}
		switch {
		case x == y:
			return 0, nil
		case !x && y:
			return -1, nil
		default:
			return 1, nil
		}
	default:
		return 0, fmt.Errorf("executor: unsupported comparison type %T", a)
	}
}

// filterOp implements FilterPlan: a WHERE re-applied above a join (or any
// other operator), resolving its column by name against the child's
// Columns() rather than a fixed schema position.
type filterOp struct {
	child Operator
	where *planner.WhereEq

	pos int
}

func newFilterOp(child Operator, w *planner.WhereEq) *filterOp {
	return &filterOp{child: child, where: w}
}

func (o *filterOp) Columns() []string { return o.child.Columns() }

func (o *filterOp) Init() error {
	if err := o.child.Init(); err != nil {
		return err
	}
	o.pos = resolveColumn(o.child.Columns(), o.where.Column)
	if o.pos < 0 {
		return fmt.Errorf("executor: unknown column in WHERE: %s", o.where.Column)
	}
	return nil
}

func (o *filterOp) Next() ([]any, heap.TID, bool, error) {
	for {
		row, rid, ok, err := o.child.Next()
		if err != nil || !ok {
			return nil, heap.TID{}, false, err
		}
		if valuesEqual(row[o.pos], o.where.Value) {
			return row, rid, true, nil
		}
	}
}

// orderKey resolves an OrderByItem list against a set of columns once, up
// front, so Sort/TopN don't re-resolve column names on every comparison.
type orderKey struct {
	pos  int
	desc bool
}

func resolveOrderBy(cols []string, items []planner.OrderByItem) ([]orderKey, error) {
	keys := make([]orderKey, len(items))
	for i, it := range items {
		pos := resolveColumn(cols, it.Column)
		if pos < 0 {
			return nil, fmt.Errorf("executor: unknown ORDER BY column: %s", it.Column)
		}
		keys[i] = orderKey{pos: pos, desc: it.Desc}
	}
	return keys, nil
}

func lessByOrderKeys(a, b []any, keys []orderKey) (bool, error) {
	for _, k := range keys {
		c, err := compareValues(a[k.pos], b[k.pos])
		if err != nil {
			return false, err
		}
		if c == 0 {
			continue
		}
		if k.desc {
			return c > 0, nil
		}
		return c < 0, nil
	}
	return false, nil
}

// sortOp implements Sort (spec §4.6): materializes its child fully in
// Init, then stable-sorts by the OrderBy list, lexicographic across keys.
type sortOp struct {
	child   Operator
	orderBy []planner.OrderByItem

	rows []scanRow
	pos  int
	err  error
}

func (o *sortOp) Columns() []string { return o.child.Columns() }

func (o *sortOp) Init() error {
	if err := o.child.Init(); err != nil {
		return err
	}
	o.rows = nil
	o.pos = 0

	for {
		row, rid, ok, err := o.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		o.rows = append(o.rows, scanRow{row: row, rid: rid})
	}

	keys, err := resolveOrderBy(o.child.Columns(), o.orderBy)
	if err != nil {
		return err
	}

	sort.SliceStable(o.rows, func(i, j int) bool {
		if o.err != nil {
			return false
		}
		less, err := lessByOrderKeys(o.rows[i].row, o.rows[j].row, keys)
		if err != nil {
			o.err = err
			return false
		}
		return less
	})
	return o.err
}

func (o *sortOp) Next() ([]any, heap.TID, bool, error) {
	if o.pos >= len(o.rows) {
		return nil, heap.TID{}, false, nil
	}
	r := o.rows[o.pos]
	o.pos++
	return r.row, r.rid, true, nil
}

// topNHeap is a max-heap (under the OrderBy comparator) of at most N
// rows; topNOp keeps only the N best by evicting its current max whenever
// a better row arrives, then reverses the heap into ascending order.
type topNHeap struct {
	rows []scanRow
	keys []orderKey
	err  error
}

func (h *topNHeap) Len() int      { return len(h.rows) }
func (h *topNHeap) Swap(i, j int) { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }
func (h *topNHeap) Less(i, j int) bool {
	if h.err != nil {
		return false
	}
	// Max-heap: the "largest" row under the ORDER BY comparator sits at
	// the root, so it's the first one evicted when the heap overflows N.
	less, err := lessByOrderKeys(h.rows[j].row, h.rows[i].row, h.keys)
	if err != nil {
		h.err = err
		return false
	}
	return less
}
func (h *topNHeap) Push(x any) { h.rows = append(h.rows, x.(scanRow)) }
func (h *topNHeap) Pop() any {
	n := len(h.rows)
	v := h.rows[n-1]
	h.rows = h.rows[:n-1]
	return v
}

// topNOp implements TopN (spec §4.6 and the C8 Sort+Limit->TopN rewrite):
// a bounded max-heap of size Count, emitting ascending.
type topNOp struct {
	child   Operator
	orderBy []planner.OrderByItem
	count   int64

	rows []scanRow
	pos  int
}

func (o *topNOp) Columns() []string { return o.child.Columns() }

func (o *topNOp) Init() error {
	if err := o.child.Init(); err != nil {
		return err
	}
	o.pos = 0
	if o.count <= 0 {
		o.rows = nil
		return nil
	}

	keys, err := resolveOrderBy(o.child.Columns(), o.orderBy)
	if err != nil {
		return err
	}

	h := &topNHeap{keys: keys}
	for {
		row, rid, ok, err := o.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if int64(h.Len()) < o.count {
			containerheap.Push(h, scanRow{row: row, rid: rid})
			continue
		}
		less, err := lessByOrderKeys(row, h.rows[0].row, keys)
		if err != nil {
			return err
		}
		if less {
			containerheap.Pop(h)
			containerheap.Push(h, scanRow{row: row, rid: rid})
		}
	}
	if h.err != nil {
		return h.err
	}

	out := make([]scanRow, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = containerheap.Pop(h).(scanRow)
	}
	o.rows = out
	return nil
}

func (o *topNOp) Next() ([]any, heap.TID, bool, error) {
	if o.pos >= len(o.rows) {
		return nil, heap.TID{}, false, nil
	}
	r := o.rows[o.pos]
	o.pos++
	return r.row, r.rid, true, nil
}

// limitOp caps its child to at most Count rows.
type limitOp struct {
	child Operator
	count int64

	emitted int64
}

func (o *limitOp) Columns() []string { return o.child.Columns() }
func (o *limitOp) Init() error       { o.emitted = 0; return o.child.Init() }

func (o *limitOp) Next() ([]any, heap.TID, bool, error) {
	if o.emitted >= o.count {
		return nil, heap.TID{}, false, nil
	}
	row, rid, ok, err := o.child.Next()
	if err != nil || !ok {
		return nil, heap.TID{}, false, err
	}
	o.emitted++
	return row, rid, true, nil
}
