package planner

import (
	"github.com/novasql/novasql/internal/record"
	"github.com/novasql/novasql/internal/sql/parser"
)

// Plan is the interface for executable plans.
type Plan interface {
	planNode()
}

// ----- DB plans -----

type CreateDatabasePlan struct{ Name string }

func (*CreateDatabasePlan) planNode() {}

type DropDatabasePlan struct{ Name string }

func (*DropDatabasePlan) planNode() {}

type UseDatabasePlan struct{ Name string }

func (*UseDatabasePlan) planNode() {}

// ----- Table plans -----

type CreateTablePlan struct {
	TableName string
	Schema    record.Schema
}

func (*CreateTablePlan) planNode() {}

type DropTablePlan struct {
	TableName string
}

func (*DropTablePlan) planNode() {}

// ----- DML plans -----

type InsertPlan struct {
	TableName string
	Values    []parser.Expr
}

func (*InsertPlan) planNode() {}

type WhereEq struct {
	Column string
	Value  any // already coerced
}

type SeqScanPlan struct {
	TableName string
	Where     *WhereEq
}

func (*SeqScanPlan) planNode() {}

type IndexLookupPlan struct {
	TableName     string
	IndexFileBase string
	Column        string
	Key           int64
	Where         *WhereEq // safety re-check
}

func (*IndexLookupPlan) planNode() {}

type Assignment struct {
	Column string
	Value  any // already coerced
}

type UpdatePlan struct {
	TableName string
	Assigns   []Assignment
	Where     *WhereEq
}

func (*UpdatePlan) planNode() {}

type DeletePlan struct {
	TableName string
	Where     *WhereEq
}

func (*DeletePlan) planNode() {}

// ----- Join/Sort/Limit plans -----
//
// Unlike the scan/DML plans above, these compose: each holds its input(s)
// as a Plan, so the operator tree built from them has the same shape as
// the plan tree itself (spec C7/§9: executors are a sum type over
// concrete variants, wired together by the planner).

// ColumnRef names a column produced by one side of a join, before the
// two input schemas have been merged into one. Side 0 is always the
// FROM-clause table, Side 1 the JOIN-clause table; the builder normalizes
// parsed column references onto this convention regardless of the order
// they appeared in the SQL.
type ColumnRef struct {
	Side int
	Name string
}

// Equality is one ON-clause conjunct, already normalized so Left always
// refers to Side 0 and Right to Side 1.
type Equality struct {
	Left  ColumnRef
	Right ColumnRef
}

type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// NestedLoopJoinPlan re-evaluates Right for every row Left produces
// (spec §4.6: "reinitialize right child per left tuple"). LeftTable and
// RightTable name the tables Left/Right ultimately scan, used only to
// qualify the joined row's output columns as "table.col".
type NestedLoopJoinPlan struct {
	Left, Right           Plan
	LeftTable, RightTable string
	Type                  JoinType
	On                    []Equality
}

func (*NestedLoopJoinPlan) planNode() {}

// HashJoinPlan is the C8 NLJ->HashJoin rewrite target: it builds a hash
// table over Right's join keys once, then probes it per Left tuple.
// Only InnerJoin and LeftJoin are supported, matching the teacher
// NestedLoopJoinPlan it is rewritten from.
type HashJoinPlan struct {
	Left, Right           Plan
	LeftTable, RightTable string
	Type                  JoinType
	LeftKeys, RightKeys   []ColumnRef
}

func (*HashJoinPlan) planNode() {}

// FilterPlan applies a WHERE predicate over a child's already-produced
// (possibly joined, possibly qualified) columns, resolved by name against
// the child's Columns() rather than a fixed schema position.
type FilterPlan struct {
	Child Plan
	Where *WhereEq
}

func (*FilterPlan) planNode() {}

// OrderByItem is one ORDER BY key; Desc false means ASC (the default).
type OrderByItem struct {
	Column string
	Desc   bool
}

// SortPlan materializes Child and stable-sorts it by OrderBy, applied in
// list order (spec §4.6: "lexicographic across keys").
type SortPlan struct {
	Child   Plan
	OrderBy []OrderByItem
}

func (*SortPlan) planNode() {}

// TopNPlan is the C8 Sort+Limit->TopN rewrite target: a bounded max-heap
// of size Count under the OrderBy comparator, emitting ascending.
type TopNPlan struct {
	Child   Plan
	OrderBy []OrderByItem
	Count   int64
}

func (*TopNPlan) planNode() {}

// LimitPlan caps Child to at most Count rows.
type LimitPlan struct {
	Child Plan
	Count int64
}

func (*LimitPlan) planNode() {}
