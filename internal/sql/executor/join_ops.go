package executor

import (
	"fmt"

	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/sql/planner"
)

func qualifyColumns(table string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = table + "." + c
	}
	return out
}

// resolvedEquality is an Equality with both sides' positions pre-resolved
// against their operator's Columns(), computed once in Init.
type resolvedEquality struct {
	leftPos, rightPos int
}

func resolveEqualities(leftCols, rightCols []string, on []planner.Equality) ([]resolvedEquality, error) {
	out := make([]resolvedEquality, len(on))
	for i, eq := range on {
		lp := resolveColumn(leftCols, eq.Left.Name)
		if lp < 0 {
			return nil, fmt.Errorf("executor: unknown JOIN column %s", eq.Left.Name)
		}
		rp := resolveColumn(rightCols, eq.Right.Name)
		if rp < 0 {
			return nil, fmt.Errorf("executor: unknown JOIN column %s", eq.Right.Name)
		}
		out[i] = resolvedEquality{leftPos: lp, rightPos: rp}
	}
	return out, nil
}

// nestedLoopJoinOp implements NestedLoopJoin (spec §4.6): for every Left
// tuple, Right is fully reinitialized and scanned; on INNER no match for
// a Left row produces nothing, on LEFT it emits one NULL-padded row.
type nestedLoopJoinOp struct {
	left, right           Operator
	leftTable, rightTable string
	joinType              planner.JoinType
	on                    []planner.Equality

	cols []string
	eqs  []resolvedEquality

	curLeft     []any
	haveLeft    bool
	matchedLeft bool
	rightCols   int
}

func newNestedLoopJoinOp(left, right Operator, joinType planner.JoinType, on []planner.Equality, leftTable, rightTable string) *nestedLoopJoinOp {
	return &nestedLoopJoinOp{left: left, right: right, joinType: joinType, on: on, leftTable: leftTable, rightTable: rightTable}
}

func (o *nestedLoopJoinOp) Columns() []string { return o.cols }

func (o *nestedLoopJoinOp) Init() error {
	if err := o.left.Init(); err != nil {
		return err
	}
	// Right is initialized once here just to learn its column shape;
	// loadNextLeft reinitializes it for real before every left tuple.
	if err := o.right.Init(); err != nil {
		return err
	}
	o.cols = append(qualifyColumns(o.leftTable, o.left.Columns()), qualifyColumns(o.rightTable, o.right.Columns())...)
	o.rightCols = len(o.right.Columns())

	eqs, err := resolveEqualities(o.left.Columns(), o.right.Columns(), o.on)
	if err != nil {
		return err
	}
	o.eqs = eqs
	o.haveLeft = false
	return nil
}

func (o *nestedLoopJoinOp) loadNextLeft() (bool, error) {
	row, _, ok, err := o.left.Next()
	if err != nil || !ok {
		return false, err
	}
	o.curLeft = row
	o.haveLeft = true
	o.matchedLeft = false
	return true, o.right.Init()
}

func (o *nestedLoopJoinOp) rowMatches(right []any) bool {
	for _, eq := range o.eqs {
		if !valuesEqual(o.curLeft[eq.leftPos], right[eq.rightPos]) {
			return false
		}
	}
	return true
}

func (o *nestedLoopJoinOp) Next() ([]any, heap.TID, bool, error) {
	for {
		if !o.haveLeft {
			ok, err := o.loadNextLeft()
			if err != nil {
				return nil, heap.TID{}, false, err
			}
			if !ok {
				return nil, heap.TID{}, false, nil
			}
		}

		right, _, ok, err := o.right.Next()
		if err != nil {
			return nil, heap.TID{}, false, err
		}
		if !ok {
			// Right exhausted for this left tuple.
			unmatchedLeft := !o.matchedLeft
			o.haveLeft = false
			if o.joinType == planner.LeftJoin && unmatchedLeft {
				return padJoinedRow(o.curLeft, o.rightCols), heap.TID{}, true, nil
			}
			continue
		}

		if !o.rowMatches(right) {
			continue
		}
		o.matchedLeft = true

		out := make([]any, 0, len(o.curLeft)+len(right))
		out = append(out, o.curLeft...)
		out = append(out, right...)
		return out, heap.TID{}, true, nil
	}
}

// hashJoinOp implements HashJoin (spec §4.6, the C8 rewrite target of
// NestedLoopJoin): builds a hash table over Right's join keys once in
// Init, then probes it per Left tuple with a value-verify pass (to guard
// against hash collisions across differing key tuples).
type hashJoinOp struct {
	left, right           Operator
	leftTable, rightTable string
	joinType              planner.JoinType
	leftKeys, rightKeys   []planner.ColumnRef

	cols      []string
	leftPos   []int
	rightPos  []int
	rightCols int

	table map[string][][]any

	curLeft      []any
	haveLeft     bool
	matched      bool
	candidates   [][]any
	candidatePos int
}

func newHashJoinOp(left, right Operator, joinType planner.JoinType, leftKeys, rightKeys []planner.ColumnRef, leftTable, rightTable string) *hashJoinOp {
	return &hashJoinOp{left: left, right: right, joinType: joinType, leftKeys: leftKeys, rightKeys: rightKeys, leftTable: leftTable, rightTable: rightTable}
}

func (o *hashJoinOp) Columns() []string { return o.cols }

func hashKey(row []any, pos []int) string {
	s := ""
	for _, p := range pos {
		s += fmt.Sprintf("%T:%v|", row[p], row[p])
	}
	return s
}

func (o *hashJoinOp) Init() error {
	if err := o.left.Init(); err != nil {
		return err
	}
	if err := o.right.Init(); err != nil {
		return err
	}
	o.cols = append(qualifyColumns(o.leftTable, o.left.Columns()), qualifyColumns(o.rightTable, o.right.Columns())...)
	o.rightCols = len(o.right.Columns())

	o.leftPos = make([]int, len(o.leftKeys))
	for i, k := range o.leftKeys {
		pos := resolveColumn(o.left.Columns(), k.Name)
		if pos < 0 {
			return fmt.Errorf("executor: unknown JOIN column %s", k.Name)
		}
		o.leftPos[i] = pos
	}
	o.rightPos = make([]int, len(o.rightKeys))
	for i, k := range o.rightKeys {
		pos := resolveColumn(o.right.Columns(), k.Name)
		if pos < 0 {
			return fmt.Errorf("executor: unknown JOIN column %s", k.Name)
		}
		o.rightPos[i] = pos
	}

	o.table = make(map[string][][]any)
	for {
		row, _, ok, err := o.right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		k := hashKey(row, o.rightPos)
		o.table[k] = append(o.table[k], row)
	}

	o.haveLeft = false
	return nil
}

func (o *hashJoinOp) rowMatches(left, right []any) bool {
	for i := range o.leftPos {
		if !valuesEqual(left[o.leftPos[i]], right[o.rightPos[i]]) {
			return false
		}
	}
	return true
}

func (o *hashJoinOp) loadNextLeft() (bool, error) {
	row, _, ok, err := o.left.Next()
	if err != nil || !ok {
		return false, err
	}
	o.curLeft = row
	o.haveLeft = true
	o.matched = false
	o.candidates = o.table[hashKey(row, o.leftPos)]
	o.candidatePos = 0
	return true, nil
}

func (o *hashJoinOp) Next() ([]any, heap.TID, bool, error) {
	for {
		if !o.haveLeft {
			ok, err := o.loadNextLeft()
			if err != nil {
				return nil, heap.TID{}, false, err
			}
			if !ok {
				return nil, heap.TID{}, false, nil
			}
		}

		if o.candidatePos >= len(o.candidates) {
			unmatchedLeft := !o.matched
			o.haveLeft = false
			if o.joinType == planner.LeftJoin && unmatchedLeft {
				return padJoinedRow(o.curLeft, o.rightCols), heap.TID{}, true, nil
			}
			continue
		}

		right := o.candidates[o.candidatePos]
		o.candidatePos++
		if !o.rowMatches(o.curLeft, right) {
			continue
		}
		o.matched = true

		out := make([]any, 0, len(o.curLeft)+len(right))
		out = append(out, o.curLeft...)
		out = append(out, right...)
		return out, heap.TID{}, true, nil
	}
}
