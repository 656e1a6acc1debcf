package executor

import (
	"github.com/novasql/novasql/internal/btree"
	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/lockmgr"
	"github.com/novasql/novasql/internal/sql/planner"
	"github.com/novasql/novasql/internal/storage"
	"github.com/novasql/novasql/internal/txn"
)

// scanRow is a materialized (row, rid) pair. seqScanOp and indexScanOp
// take their row-level locks while building this buffer in Init, since the
// underlying heap.Table.Scan is push-based; Next then just replays it.
type scanRow struct {
	row []any
	rid heap.TID
}

// seqScanOp implements SeqScan (spec §4.6): init acquires a row lock (S
// for a plain read, X when it is driving an UPDATE/DELETE) on every row it
// visits and only then applies WHERE, so rows WHERE rejects are locked
// too. When unlockAfter is set (plain reads) the lock is released again as
// soon as the row has been handled, matching READ_COMMITTED's "unlock
// immediately after reading"; otherwise it is held. READ_UNCOMMITTED
// skips row locking entirely.
type seqScanOp struct {
	ex          *Executor
	t           *txn.Transaction
	plan        *planner.SeqScanPlan
	lockMode    lockmgr.LockMode
	unlockAfter bool

	cols []string
	buf  []scanRow
	pos  int
}

func newSeqScanOp(ex *Executor, t *txn.Transaction, p *planner.SeqScanPlan, lockMode lockmgr.LockMode, unlockAfter bool) *seqScanOp {
	return &seqScanOp{ex: ex, t: t, plan: p, lockMode: lockMode, unlockAfter: unlockAfter}
}

func (o *seqScanOp) Columns() []string { return o.cols }

func (o *seqScanOp) Init() error {
	tbl, err := o.ex.DB.OpenTable(o.plan.TableName)
	if err != nil {
		return err
	}

	o.cols = o.cols[:0]
	for _, c := range tbl.Schema.Cols {
		o.cols = append(o.cols, c.Name)
	}
	o.buf = nil
	o.pos = 0

	skipLocking := o.t.IsolationLevel() == txn.ReadUncommitted

	return tbl.Scan(func(id heap.TID, row []any) error {
		if !skipLocking {
			rid := lockmgr.RID{TableOID: o.plan.TableName, PageID: id.PageID, Slot: id.Slot}
			if err := o.ex.Locks.LockRow(o.t, o.lockMode, o.plan.TableName, rid); err != nil {
				return err
			}
			if o.unlockAfter {
				defer func() { _ = o.ex.Locks.UnlockRow(o.t, o.plan.TableName, rid, false) }()
			}
		}

		if o.plan.Where != nil {
			ok, err := matchWhere(tbl.Schema, o.plan.Where, row)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}

		cp := make([]any, len(row))
		copy(cp, row)
		o.buf = append(o.buf, scanRow{row: cp, rid: id})
		return nil
	})
}

func (o *seqScanOp) Next() ([]any, heap.TID, bool, error) {
	if o.pos >= len(o.buf) {
		return nil, heap.TID{}, false, nil
	}
	r := o.buf[o.pos]
	o.pos++
	return r.row, r.rid, true, nil
}

// indexScanOp implements IndexLookup: a single btree point lookup,
// re-checking WHERE against the heap row so a stale or partially-built
// index can't surface a wrong row, with the same per-row locking rules as
// seqScanOp applied to the (at most one) row it produces.
type indexScanOp struct {
	ex          *Executor
	t           *txn.Transaction
	plan        *planner.IndexLookupPlan
	lockMode    lockmgr.LockMode
	unlockAfter bool

	cols    []string
	row     []any
	rid     heap.TID
	has     bool
	emitted bool
}

func newIndexScanOp(ex *Executor, t *txn.Transaction, p *planner.IndexLookupPlan, lockMode lockmgr.LockMode, unlockAfter bool) *indexScanOp {
	return &indexScanOp{ex: ex, t: t, plan: p, lockMode: lockMode, unlockAfter: unlockAfter}
}

func (o *indexScanOp) Columns() []string { return o.cols }

func (o *indexScanOp) Init() error {
	o.has = false
	o.emitted = false

	tbl, err := o.ex.DB.OpenTable(o.plan.TableName)
	if err != nil {
		return err
	}
	o.cols = o.cols[:0]
	for _, c := range tbl.Schema.Cols {
		o.cols = append(o.cols, c.Name)
	}

	idxFS := storage.LocalFileSet{Dir: o.ex.DB.TableDir(), Base: o.plan.IndexFileBase}
	tree, err := btree.OpenTree(o.ex.DB.BufferPool(), idxFS, 8, btree.BytesComparator)
	if err != nil {
		return err
	}

	tid, found, err := tree.Get(btree.Int64Key(o.plan.Key))
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	row, err := tbl.Get(tid)
	if err != nil || row == nil {
		// stale/dangling index entry: ignore
		return nil
	}

	if o.t.IsolationLevel() != txn.ReadUncommitted {
		rid := lockmgr.RID{TableOID: o.plan.TableName, PageID: tid.PageID, Slot: tid.Slot}
		if err := o.ex.Locks.LockRow(o.t, o.lockMode, o.plan.TableName, rid); err != nil {
			return err
		}
		if o.unlockAfter {
			defer func() { _ = o.ex.Locks.UnlockRow(o.t, o.plan.TableName, rid, false) }()
		}
	}

	if o.plan.Where != nil {
		ok, err := matchWhere(tbl.Schema, o.plan.Where, row)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	cp := make([]any, len(row))
	copy(cp, row)
	o.row = cp
	o.rid = tid
	o.has = true
	return nil
}

func (o *indexScanOp) Next() ([]any, heap.TID, bool, error) {
	if !o.has || o.emitted {
		return nil, heap.TID{}, false, nil
	}
	o.emitted = true
	return o.row, o.rid, true, nil
}
