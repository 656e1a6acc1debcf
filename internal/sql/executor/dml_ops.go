package executor

import (
	"fmt"

	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/sql/parser"
	"github.com/novasql/novasql/internal/sql/planner"
	"github.com/novasql/novasql/internal/txn"
)

// insertOp has no child: its input is the literal VALUES list. It runs to
// completion on the first Next() call, logs one write record for the row
// it inserts, and reports that row through Affected rather than streaming
// it back out. It takes no locks itself: ExecSQL already holds an
// Exclusive (not IX) lock on the table for the whole statement.
type insertOp struct {
	ex   *Executor
	t    *txn.Transaction
	plan *planner.InsertPlan

	done     bool
	affected int64
}

func (o *insertOp) Columns() []string { return nil }
func (o *insertOp) Init() error       { return nil }
func (o *insertOp) Affected() int64   { return o.affected }

func (o *insertOp) Next() ([]any, heap.TID, bool, error) {
	if o.done {
		return nil, heap.TID{}, false, nil
	}
	o.done = true

	tbl, err := o.ex.DB.OpenTable(o.plan.TableName)
	if err != nil {
		return nil, heap.TID{}, false, err
	}

	raw := make([]any, len(o.plan.Values))
	for i, expr := range o.plan.Values {
		lit, ok := expr.(*parser.LiteralExpr)
		if !ok {
			return nil, heap.TID{}, false, fmt.Errorf("executor: only literal expressions supported in INSERT")
		}
		raw[i] = lit.Value
	}

	values, err := coerceInsertValues(tbl.Schema, raw)
	if err != nil {
		return nil, heap.TID{}, false, err
	}

	tid, err := tbl.Insert(values)
	if err != nil {
		return nil, heap.TID{}, false, err
	}
	o.t.AppendWriteRecord(txn.WriteRecord{
		Type:      txn.WriteInsert,
		TableName: o.plan.TableName,
		RID:       txn.TupleID{PageID: tid.PageID, Slot: tid.Slot},
	})

	if err := o.ex.syncBTreeIndexesOnInsert(o.plan.TableName, tbl.Schema, values, tid); err != nil {
		return nil, heap.TID{}, false, err
	}

	o.affected = 1
	return nil, tid, true, nil
}

// updateOp pulls every row its child produces (typically a seqScanOp
// locking each row Exclusive) and applies the assignment list, per §4.6:
// "Update is symmetric [to Delete], using the child executor's RIDs."
type updateOp struct {
	ex    *Executor
	t     *txn.Transaction
	plan  *planner.UpdatePlan
	child Operator

	done     bool
	affected int64
}

func (o *updateOp) Columns() []string { return nil }
func (o *updateOp) Init() error       { return o.child.Init() }
func (o *updateOp) Affected() int64   { return o.affected }

func (o *updateOp) Next() ([]any, heap.TID, bool, error) {
	if o.done {
		return nil, heap.TID{}, false, nil
	}
	o.done = true

	tbl, err := o.ex.DB.OpenTable(o.plan.TableName)
	if err != nil {
		return nil, heap.TID{}, false, err
	}

	for {
		row, rid, ok, err := o.child.Next()
		if err != nil {
			return nil, heap.TID{}, false, err
		}
		if !ok {
			break
		}

		oldRow := append([]any(nil), row...)
		newRow := append([]any(nil), row...)
		for _, a := range o.plan.Assigns {
			pos := colPos(tbl.Schema, a.Column)
			if pos < 0 {
				return nil, heap.TID{}, false, fmt.Errorf("executor: unknown column in UPDATE: %s", a.Column)
			}
			newRow[pos] = a.Value
		}

		if err := tbl.Update(rid, newRow); err != nil {
			return nil, heap.TID{}, false, err
		}
		o.t.AppendWriteRecord(txn.WriteRecord{
			Type:      txn.WriteUpdate,
			TableName: o.plan.TableName,
			RID:       txn.TupleID{PageID: rid.PageID, Slot: rid.Slot},
			OldRow:    oldRow,
		})

		if err := o.ex.syncBTreeIndexesOnUpdateMaybeInsert(o.plan.TableName, tbl.Schema, newRow, rid, o.plan.Assigns); err != nil {
			return nil, heap.TID{}, false, err
		}
		o.affected++
	}
	return nil, heap.TID{}, true, nil
}

// deleteOp pulls every row its child produces and deletes it by RID.
type deleteOp struct {
	ex    *Executor
	t     *txn.Transaction
	plan  *planner.DeletePlan
	child Operator

	done     bool
	affected int64
}

func (o *deleteOp) Columns() []string { return nil }
func (o *deleteOp) Init() error       { return o.child.Init() }
func (o *deleteOp) Affected() int64   { return o.affected }

func (o *deleteOp) Next() ([]any, heap.TID, bool, error) {
	if o.done {
		return nil, heap.TID{}, false, nil
	}
	o.done = true

	tbl, err := o.ex.DB.OpenTable(o.plan.TableName)
	if err != nil {
		return nil, heap.TID{}, false, err
	}

	for {
		row, rid, ok, err := o.child.Next()
		if err != nil {
			return nil, heap.TID{}, false, err
		}
		if !ok {
			break
		}

		oldRow := append([]any(nil), row...)
		if err := tbl.Delete(rid); err != nil {
			return nil, heap.TID{}, false, err
		}
		o.t.AppendWriteRecord(txn.WriteRecord{
			Type:      txn.WriteDelete,
			TableName: o.plan.TableName,
			RID:       txn.TupleID{PageID: rid.PageID, Slot: rid.Slot},
			OldRow:    oldRow,
		})
		// NOTE: index delete not implemented yet -> index entries become
		// stale. Correctness: IndexLookupPlan filters by heap.Get + matchWhere.
		o.affected++
	}
	return nil, heap.TID{}, true, nil
}
