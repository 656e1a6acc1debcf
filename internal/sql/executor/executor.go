package executor

import (
	"fmt"
	"log/slog"

	"github.com/novasql/novasql"
	"github.com/novasql/novasql/internal/btree"
	"github.com/novasql/novasql/internal/bufferpool"
	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/lockmgr"
	"github.com/novasql/novasql/internal/record"
	"github.com/novasql/novasql/internal/sql/optimizer"
	"github.com/novasql/novasql/internal/sql/parser"
	"github.com/novasql/novasql/internal/sql/planner"
	"github.com/novasql/novasql/internal/storage"
	"github.com/novasql/novasql/internal/txn"
)

// executorDB is a small seam for unit-testing Executor without a real DB.
type executorDB interface {
	CreateDatabase(name string) error
	DropDatabase(name string) (any, error)
	SelectDatabase(name string) (any, error)

	CreateTable(table string, schema record.Schema) (any, error)
	DropTable(table string) error
	OpenTable(table string) (*heap.Table, error)

	ListTables() ([]*novasql.TableMeta, error)

	TableDir() string
	BufferPool() *bufferpool.GlobalPool
	StorageManager() *storage.StorageManager
}

// realDB adapts *novasql.Database to executorDB.
type realDB struct {
	db *novasql.Database
}

func (r realDB) CreateDatabase(name string) error { return r.db.CreateDatabase(name) }
func (r realDB) DropDatabase(name string) (any, error) {
	return r.db.DropDatabase(name)
}

func (r realDB) SelectDatabase(name string) (any, error) {
	return r.db.SelectDatabase(name)
}

func (r realDB) CreateTable(table string, schema record.Schema) (any, error) {
	return r.db.CreateTable(table, schema)
}
func (r realDB) DropTable(table string) error { return r.db.DropTable(table) }
func (r realDB) OpenTable(table string) (*heap.Table, error) {
	return r.db.OpenTable(table)
}
func (r realDB) ListTables() ([]*novasql.TableMeta, error) { return r.db.ListTables() }
func (r realDB) TableDir() string                          { return r.db.TableDir() }
func (r realDB) BufferPool() *bufferpool.GlobalPool         { return r.db.Pool }
func (r realDB) StorageManager() *storage.StorageManager    { return r.db.SM }

// Executor executes a plan against a Database.
type Executor struct {
	DB executorDB

	// raw is the real database used by planner.BuildPlan (it currently expects *novasql.Database).
	// This keeps production path simple while still allowing executorDB to be mocked in unit tests.
	raw *novasql.Database

	// Locks and Txns give every statement this executor runs strict 2PL:
	// ExecSQL begins a transaction, takes a table-level lock sized to the
	// statement, and commits or aborts it around the plan. One pair per
	// session (see NewExecutor), not shared across connections.
	Locks *lockmgr.LockManager
	Txns  *txn.Manager

	// for unit-test: inject btree insert behavior
	btreeInsertFn func(im novasql.IndexMeta, key int64, tid heap.TID) error
}

func NewExecutor(db *novasql.Database) *Executor {
	ex := &Executor{
		DB:  realDB{db: db},
		raw: db,
	}
	ex.btreeInsertFn = ex.btreeInsert
	ex.Locks = lockmgr.NewLockManager()
	ex.Txns = txn.NewManager(ex.Locks, &executorReverter{db: ex.DB})
	return ex
}

// NewExecutorForTest allows injecting a fake executorDB while still supplying a real *novasql.Database
// (or a lightweight in-memory one) for planner.BuildPlan if needed.
func NewExecutorForTest(db executorDB, raw *novasql.Database) *Executor {
	ex := &Executor{
		DB:  db,
		raw: raw,
	}
	// default to real implementation unless test overrides
	ex.btreeInsertFn = ex.btreeInsert
	ex.Locks = lockmgr.NewLockManager()
	ex.Txns = txn.NewManager(ex.Locks, &executorReverter{db: ex.DB})
	return ex
}

// Close stops the executor's background deadlock detector. Safe to call
// more than once.
func (e *Executor) Close() error {
	if e.Locks != nil {
		e.Locks.Stop()
	}
	return nil
}

// ExecSQL is the top-level entry: SQL string -> Result. Every statement
// runs inside its own auto-commit transaction: BuildPlan determines the
// table touched and the access mode, a table-level lock is acquired
// before the plan executes, and the transaction is committed (releasing
// the lock) or aborted (reversing its write set, then releasing the lock)
// depending on the outcome.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}

	if e.raw == nil {
		return nil, fmt.Errorf("executor: raw database is nil (planner requires *novasql.Database)")
	}

	plan, err := planner.BuildPlan(stmt, e.raw)
	if err != nil {
		return nil, err
	}
	plan = optimizer.Optimize(plan)

	t := e.Txns.Begin(txn.ReadCommitted)

	for _, tgt := range collectLockTargets(plan) {
		if err := e.Locks.LockTable(t, tgt.mode, tgt.oid); err != nil {
			_ = e.Txns.Abort(t)
			return nil, err
		}
	}

	res, err := e.execPlan(t, plan)
	if err != nil {
		if aerr := e.Txns.Abort(t); aerr != nil {
			return nil, fmt.Errorf("%w (and rollback failed: %v)", err, aerr)
		}
		return nil, err
	}

	e.Txns.Commit(t)
	return res, nil
}

// lockTargetFor reports the table a plan needs locked and at what
// granularity. DDL against the database itself (CREATE/DROP/USE DATABASE)
// is left unlocked; it is administrative, not part of 2PL over table data.
func lockTargetFor(p planner.Plan) (oid string, mode lockmgr.LockMode, ok bool) {
	switch plan := p.(type) {
	case *planner.CreateTablePlan:
		return plan.TableName, lockmgr.Exclusive, true
	case *planner.DropTablePlan:
		return plan.TableName, lockmgr.Exclusive, true
	case *planner.InsertPlan:
		return plan.TableName, lockmgr.Exclusive, true
	case *planner.UpdatePlan:
		return plan.TableName, lockmgr.Exclusive, true
	case *planner.DeletePlan:
		return plan.TableName, lockmgr.Exclusive, true
	case *planner.SeqScanPlan:
		return plan.TableName, lockmgr.Shared, true
	case *planner.IndexLookupPlan:
		return plan.TableName, lockmgr.Shared, true
	default:
		return "", 0, false
	}
}

// tableLockTarget is one table-level lock a plan needs before it runs.
type tableLockTarget struct {
	oid  string
	mode lockmgr.LockMode
}

// collectLockTargets walks composite plans (joins, filter, sort, limit)
// down to the leaves lockTargetFor already understands, so a JOIN takes
// table-level locks on both its tables before any row locking happens.
func collectLockTargets(p planner.Plan) []tableLockTarget {
	switch n := p.(type) {
	case *planner.NestedLoopJoinPlan:
		return append(collectLockTargets(n.Left), collectLockTargets(n.Right)...)
	case *planner.HashJoinPlan:
		return append(collectLockTargets(n.Left), collectLockTargets(n.Right)...)
	case *planner.FilterPlan:
		return collectLockTargets(n.Child)
	case *planner.SortPlan:
		return collectLockTargets(n.Child)
	case *planner.TopNPlan:
		return collectLockTargets(n.Child)
	case *planner.LimitPlan:
		return collectLockTargets(n.Child)
	default:
		if oid, mode, ok := lockTargetFor(p); ok {
			return []tableLockTarget{{oid: oid, mode: mode}}
		}
		return nil
	}
}

func (e *Executor) execPlan(t *txn.Transaction, p planner.Plan) (*Result, error) {
	switch plan := p.(type) {
	case *planner.CreateDatabasePlan:
		return e.execCreateDatabase(plan)
	case *planner.DropDatabasePlan:
		return e.execDropDatabase(plan)
	case *planner.UseDatabasePlan:
		return e.execUseDatabase(plan)

	case *planner.CreateTablePlan:
		return e.execCreateTable(plan)
	case *planner.DropTablePlan:
		return e.execDropTable(plan)

	default:
		return e.execOperatorPlan(t, plan)
	}
}

// execOperatorPlan drives every plan shape built from the pull-based
// Operator interface (scans, joins, sort/topN/limit, and the DML
// operators) to completion: Init, then Next in a loop until exhausted.
func (e *Executor) execOperatorPlan(t *txn.Transaction, p planner.Plan) (*Result, error) {
	op, err := e.buildOperator(t, p)
	if err != nil {
		return nil, err
	}
	if err := op.Init(); err != nil {
		return nil, err
	}

	res := &Result{Columns: op.Columns()}
	for {
		row, _, ok, err := op.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if row != nil {
			res.Rows = append(res.Rows, row)
		}
	}

	if ar, ok := op.(affectedRower); ok {
		res.AffectedRows = ar.Affected()
	} else {
		res.AffectedRows = int64(len(res.Rows))
	}
	return res, nil
}

// buildOperator compiles a plan node into its operator, recursing into
// children so the operator tree mirrors the plan tree's shape exactly.
func (e *Executor) buildOperator(t *txn.Transaction, p planner.Plan) (Operator, error) {
	switch n := p.(type) {
	case *planner.SeqScanPlan:
		return newSeqScanOp(e, t, n, lockmgr.Shared, true), nil
	case *planner.IndexLookupPlan:
		return newIndexScanOp(e, t, n, lockmgr.Shared, true), nil

	case *planner.NestedLoopJoinPlan:
		left, err := e.buildOperator(t, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.buildOperator(t, n.Right)
		if err != nil {
			return nil, err
		}
		return newNestedLoopJoinOp(left, right, n.Type, n.On, n.LeftTable, n.RightTable), nil

	case *planner.HashJoinPlan:
		left, err := e.buildOperator(t, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.buildOperator(t, n.Right)
		if err != nil {
			return nil, err
		}
		return newHashJoinOp(left, right, n.Type, n.LeftKeys, n.RightKeys, n.LeftTable, n.RightTable), nil

	case *planner.FilterPlan:
		child, err := e.buildOperator(t, n.Child)
		if err != nil {
			return nil, err
		}
		return newFilterOp(child, n.Where), nil

	case *planner.SortPlan:
		child, err := e.buildOperator(t, n.Child)
		if err != nil {
			return nil, err
		}
		return &sortOp{child: child, orderBy: n.OrderBy}, nil

	case *planner.TopNPlan:
		child, err := e.buildOperator(t, n.Child)
		if err != nil {
			return nil, err
		}
		return &topNOp{child: child, orderBy: n.OrderBy, count: n.Count}, nil

	case *planner.LimitPlan:
		child, err := e.buildOperator(t, n.Child)
		if err != nil {
			return nil, err
		}
		return &limitOp{child: child, count: n.Count}, nil

	case *planner.InsertPlan:
		return &insertOp{ex: e, t: t, plan: n}, nil

	case *planner.UpdatePlan:
		child, err := e.buildWriteChild(t, n.TableName, n.Where)
		if err != nil {
			return nil, err
		}
		return &updateOp{ex: e, t: t, plan: n, child: child}, nil

	case *planner.DeletePlan:
		child, err := e.buildWriteChild(t, n.TableName, n.Where)
		if err != nil {
			return nil, err
		}
		return &deleteOp{ex: e, t: t, plan: n, child: child}, nil

	default:
		return nil, fmt.Errorf("executor: unsupported plan type %T", p)
	}
}

// buildWriteChild is the scan Update/Delete pull their target rows from:
// an Exclusive row lock on every row it visits, taken before WHERE is
// applied (spec §4.6, "symmetric [to Delete], using the child executor's
// RIDs"), held for the rest of the transaction rather than released after
// read.
func (e *Executor) buildWriteChild(t *txn.Transaction, tableName string, where *planner.WhereEq) (Operator, error) {
	sp := &planner.SeqScanPlan{TableName: tableName, Where: where}
	return newSeqScanOp(e, t, sp, lockmgr.Exclusive, false), nil
}

func (e *Executor) execCreateDatabase(p *planner.CreateDatabasePlan) (*Result, error) {
	if err := e.DB.CreateDatabase(p.Name); err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 0}, nil
}

func (e *Executor) execDropDatabase(p *planner.DropDatabasePlan) (*Result, error) {
	if _, err := e.DB.DropDatabase(p.Name); err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 0}, nil
}

func (e *Executor) execUseDatabase(p *planner.UseDatabasePlan) (*Result, error) {
	if _, err := e.DB.SelectDatabase(p.Name); err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 0}, nil
}

func (e *Executor) execCreateTable(p *planner.CreateTablePlan) (*Result, error) {
	_, err := e.DB.CreateTable(p.TableName, p.Schema)
	if err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 0}, nil
}

func (e *Executor) execDropTable(p *planner.DropTablePlan) (*Result, error) {
	if err := e.DB.DropTable(p.TableName); err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 0}, nil
}

func colPos(schema record.Schema, name string) int {
	for i := range schema.Cols {
		if schema.Cols[i].Name == name {
			return i
		}
	}
	return -1
}

func matchWhere(schema record.Schema, w *planner.WhereEq, row []any) (bool, error) {
	pos := colPos(schema, w.Column)
	if pos < 0 {
		return false, fmt.Errorf("executor: unknown column in WHERE: %s", w.Column)
	}
	got := row[pos]
	want := w.Value

	// NULL handling
	if got == nil || want == nil {
		return got == nil && want == nil, nil
	}

	switch schema.Cols[pos].Type {
	case record.ColInt64:
		g, ok1 := got.(int64)
		wv, ok2 := want.(int64)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("executor: WHERE type mismatch on %s", w.Column)
		}
		return g == wv, nil
	case record.ColText:
		g, ok1 := got.(string)
		wv, ok2 := want.(string)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("executor: WHERE type mismatch on %s", w.Column)
		}
		return g == wv, nil
	case record.ColBool:
		g, ok1 := got.(bool)
		wv, ok2 := want.(bool)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("executor: WHERE type mismatch on %s", w.Column)
		}
		return g == wv, nil
	default:
		return false, fmt.Errorf("executor: unsupported WHERE type on %s", w.Column)
	}
}

func coerceInsertValues(schema record.Schema, raw []any) ([]any, error) {
	if len(raw) != len(schema.Cols) {
		return nil, fmt.Errorf("executor: insert values count %d != schema %d", len(raw), len(schema.Cols))
	}
	out := make([]any, len(raw))
	for i := range raw {
		v := raw[i]
		col := schema.Cols[i]
		if v == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("executor: column %s is NOT NULL", col.Name)
			}
			out[i] = nil
			continue
		}
		switch col.Type {
		case record.ColInt64:
			switch x := v.(type) {
			case int64:
				out[i] = x
			case int:
				out[i] = int64(x)
			case int32:
				out[i] = int64(x)
			default:
				return nil, fmt.Errorf("executor: column %s expects INT64, got %T", col.Name, v)
			}
		case record.ColText:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("executor: column %s expects TEXT, got %T", col.Name, v)
			}
			out[i] = s
		case record.ColBool:
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("executor: column %s expects BOOL, got %T", col.Name, v)
			}
			out[i] = b
		default:
			return nil, fmt.Errorf("executor: unsupported column type %v", col.Type)
		}
	}
	return out, nil
}

// syncBTreeIndexesOnInsert inserts (key, tid) into all BTree indexes of the table.
// V1 constraints:
//   - Only indexes with KeyColumn == schema int64 column are maintained.
//   - An index naming an unknown column is skipped with a warning; an error
//     from the btree insert is returned to the caller.
func (e *Executor) syncBTreeIndexesOnInsert(
	tableName string,
	schema record.Schema,
	values []any,
	tid heap.TID,
) error {
	idxs, err := e.listBTreeIndexes(tableName)
	if err != nil {
		return err
	}
	if len(idxs) == 0 {
		return nil
	}

	insertFn := e.btreeInsertFn
	if insertFn == nil {
		insertFn = e.btreeInsert
	}

	for _, im := range idxs {
		col := im.KeyColumn
		pos := colPos(schema, col)
		if pos < 0 {
			// Index meta references unknown column; skip but keep running.
			slog.Warn("executor: btree index refers to unknown column",
				"table", tableName, "index", im.Name, "col", col)
			continue
		}
		if schema.Cols[pos].Type != record.ColInt64 {
			// V1: only int64 keys supported.
			continue
		}

		// NULL key policy: skip index entry for NULL.
		if values[pos] == nil {
			continue
		}

		k, ok := values[pos].(int64)
		if !ok {
			// should not happen after coerceInsertValues
			return fmt.Errorf(
				"executor: btree index key is not int64: table=%s col=%s got=%T",
				tableName,
				col,
				values[pos],
			)
		}

		if err := insertFn(im, k, tid); err != nil {
			return err
		}
	}
	return nil
}

// syncBTreeIndexesOnUpdateMaybeInsert does nothing: an UPDATE neither inserts new
// index entries nor deletes old ones, so indexes on updated columns can become stale.
func (e *Executor) syncBTreeIndexesOnUpdateMaybeInsert(
	tableName string,
	schema record.Schema,
	newRow []any,
	tid heap.TID,
	assigns []planner.Assignment,
) error {
	// Minimal safe behavior: do nothing for now.
	return nil
}

// ---- helpers ----

func (e *Executor) listBTreeIndexes(tableName string) ([]novasql.IndexMeta, error) {
	metas, err := e.DB.ListTables()
	if err != nil {
		return nil, err
	}
	var tm *novasql.TableMeta
	for _, m := range metas {
		if m != nil && m.Name == tableName {
			tm = m
			break
		}
	}
	if tm == nil {
		return nil, fmt.Errorf("executor: table meta not found: %s", tableName)
	}

	out := make([]novasql.IndexMeta, 0, len(tm.Indexes))
	for _, im := range tm.Indexes {
		if im.Kind != novasql.IndexKindBTree {
			continue
		}
		out = append(out, im)
	}
	return out, nil
}

func (e *Executor) btreeInsert(im novasql.IndexMeta, key int64, tid heap.TID) error {
	base := im.FileBase
	if base == "" {
		return fmt.Errorf("executor: btree index missing file base (index=%s)", im.Name)
	}

	idxFS := storage.LocalFileSet{
		Dir:  e.DB.TableDir(),
		Base: base,
	}

	tree, err := btree.OpenTree(e.DB.BufferPool(), idxFS, 8, btree.BytesComparator)
	if err != nil {
		return err
	}

	_, err = tree.Insert(btree.Int64Key(key), tid)
	return err
}
