package planner

import (
	"fmt"
	"strings"

	"github.com/novasql/novasql"
	"github.com/novasql/novasql/internal/record"
	"github.com/novasql/novasql/internal/sql/parser"
)

// BuildPlan builds a physical plan from an AST Statement.
// It may need access to catalog/schema via engine.Database.
func BuildPlan(stmt parser.Statement, db *novasql.Database) (Plan, error) {
	switch s := stmt.(type) {
	case *parser.CreateDatabaseStmt:
		return &CreateDatabasePlan{Name: s.Name}, nil
	case *parser.DropDatabaseStmt:
		return &DropDatabasePlan{Name: s.Name}, nil
	case *parser.UseDatabaseStmt:
		return &UseDatabasePlan{Name: s.Name}, nil

	case *parser.CreateTableStmt:
		return buildCreateTablePlan(s)
	case *parser.DropTableStmt:
		return &DropTablePlan{TableName: s.TableName}, nil

	case *parser.InsertStmt:
		return buildInsertPlan(s)
	case *parser.SelectStmt:
		return buildSelectPlan(s, db)
	case *parser.UpdateStmt:
		return buildUpdatePlan(s, db)
	case *parser.DeleteStmt:
		return buildDeletePlan(s, db)

	default:
		return nil, fmt.Errorf("planner: unsupported statement type %T", stmt)
	}
}

func buildCreateTablePlan(s *parser.CreateTableStmt) (Plan, error) {
	var cols []record.Column
	for _, c := range s.Columns {
		colType, err := mapSQLType(c.Type)
		if err != nil {
			return nil, err
		}
		cols = append(cols, record.Column{
			Name:     c.Name,
			Type:     colType,
			Nullable: true, // default
		})
	}
	return &CreateTablePlan{
		TableName: s.TableName,
		Schema:    record.Schema{Cols: cols},
	}, nil
}

func buildInsertPlan(s *parser.InsertStmt) (Plan, error) {
	return &InsertPlan{
		TableName: s.TableName,
		Values:    s.Values,
	}, nil
}

// buildSelectPlan composes, in spec §4.6/§9 order: a scan or join over the
// FROM/JOIN tables, an optional WHERE filter, an optional ORDER BY sort,
// and an optional LIMIT. The planner always emits NestedLoopJoinPlan and
// a separate SortPlan+LimitPlan pair; the C8 optimizer rewrites those to
// HashJoinPlan/TopNPlan where the shape allows it.
func buildSelectPlan(s *parser.SelectStmt, db *novasql.Database) (Plan, error) {
	var plan Plan

	if s.Join == nil {
		p, err := buildScanPlan(s.TableName, s.Where, db)
		if err != nil {
			return nil, err
		}
		plan = p
	} else {
		p, err := buildJoinPlan(s, db)
		if err != nil {
			return nil, err
		}
		plan = p

		if s.Where != nil {
			w, err := bindWhereEqForJoin(db, s.TableName, s.Join.Table, s.Where)
			if err != nil {
				return nil, err
			}
			plan = &FilterPlan{Child: plan, Where: w}
		}
	}

	if len(s.OrderBy) > 0 {
		ob := make([]OrderByItem, len(s.OrderBy))
		for i, o := range s.OrderBy {
			ob[i] = OrderByItem{Column: o.Column, Desc: o.Desc}
		}
		plan = &SortPlan{Child: plan, OrderBy: ob}
	}

	if s.Limit != nil {
		plan = &LimitPlan{Child: plan, Count: *s.Limit}
	}

	return plan, nil
}

// buildScanPlan picks an IndexLookupPlan when the WHERE column has a
// btree index with an int64 key, falling back to a sequential scan
// otherwise. IndexLookupPlan always carries the original WhereEq so the
// executor re-checks it against the heap row, which keeps a stale or
// partially built index from returning a wrong row.
func buildScanPlan(table string, w *parser.WhereEq, db *novasql.Database) (Plan, error) {
	if w == nil {
		return &SeqScanPlan{TableName: table}, nil
	}

	where, err := bindWhereEqForTable(db, table, w)
	if err != nil {
		return nil, err
	}

	if db != nil {
		if im, key, ok := findInt64IndexPlan(db, table, where); ok {
			return &IndexLookupPlan{
				TableName:     table,
				IndexFileBase: im.FileBase,
				Column:        where.Column,
				Key:           key,
				Where:         where,
			}, nil
		}
	}

	return &SeqScanPlan{TableName: table, Where: where}, nil
}

// buildJoinPlan always emits a NestedLoopJoinPlan: both FROM and JOIN
// tables are scanned in full (their own WHERE is applied afterward, above
// the join, since it may reference either side), and each ON-clause
// equality is normalized so its Left operand is always Side 0 (FROM).
func buildJoinPlan(s *parser.SelectStmt, db *novasql.Database) (Plan, error) {
	left, err := buildScanPlan(s.TableName, nil, db)
	if err != nil {
		return nil, err
	}
	right, err := buildScanPlan(s.Join.Table, nil, db)
	if err != nil {
		return nil, err
	}

	eqs := make([]Equality, 0, len(s.Join.On))
	for _, je := range s.Join.On {
		leftRef, err := resolveJoinColumn(db, s.TableName, s.Join.Table, je.LeftCol)
		if err != nil {
			return nil, err
		}
		rightRef, err := resolveJoinColumn(db, s.TableName, s.Join.Table, je.RightCol)
		if err != nil {
			return nil, err
		}
		if leftRef.Side == rightRef.Side {
			return nil, fmt.Errorf("planner: JOIN condition must reference both tables: %s = %s", je.LeftCol, je.RightCol)
		}
		if leftRef.Side == 1 {
			leftRef, rightRef = rightRef, leftRef
		}
		eqs = append(eqs, Equality{Left: leftRef, Right: rightRef})
	}

	jt := InnerJoin
	if !s.Join.Inner {
		jt = LeftJoin
	}
	return &NestedLoopJoinPlan{
		Left: left, Right: right,
		LeftTable: s.TableName, RightTable: s.Join.Table,
		Type: jt, On: eqs,
	}, nil
}

// resolveJoinColumn normalizes a JOIN/WHERE column reference (bare or
// "table.col") to the table it actually belongs to, disambiguating bare
// names against both schemas when a catalog is available.
func resolveJoinColumn(db *novasql.Database, fromTable, joinTable, colRef string) (ColumnRef, error) {
	if dot := strings.IndexByte(colRef, '.'); dot >= 0 {
		tbl, col := colRef[:dot], colRef[dot+1:]
		switch tbl {
		case fromTable:
			return ColumnRef{Side: 0, Name: col}, nil
		case joinTable:
			return ColumnRef{Side: 1, Name: col}, nil
		default:
			return ColumnRef{}, fmt.Errorf("planner: JOIN column references unknown table %q", tbl)
		}
	}

	inFrom := tableHasColumn(db, fromTable, colRef)
	inJoin := tableHasColumn(db, joinTable, colRef)
	switch {
	case inFrom && inJoin:
		return ColumnRef{}, fmt.Errorf("planner: ambiguous JOIN column %q", colRef)
	case inFrom:
		return ColumnRef{Side: 0, Name: colRef}, nil
	case inJoin:
		return ColumnRef{Side: 1, Name: colRef}, nil
	default:
		return ColumnRef{}, fmt.Errorf("planner: unknown JOIN column %q", colRef)
	}
}

func tableHasColumn(db *novasql.Database, table, col string) bool {
	schema, ok := schemaForTable(db, table)
	if !ok {
		return false
	}
	for _, c := range schema.Cols {
		if c.Name == col {
			return true
		}
	}
	return false
}

// bindWhereEqForJoin resolves a post-join WHERE clause to the table it
// actually targets and fully qualifies its column, matching the
// "<table>.<col>" qualification the join operators give their output.
func bindWhereEqForJoin(db *novasql.Database, fromTable, joinTable string, w *parser.WhereEq) (*WhereEq, error) {
	ref, err := resolveJoinColumn(db, fromTable, joinTable, w.Column)
	if err != nil {
		return nil, err
	}
	table := fromTable
	if ref.Side == 1 {
		table = joinTable
	}

	v, err := literalValue(w.Value)
	if err != nil {
		return nil, err
	}
	if schema, ok := schemaForTable(db, table); ok {
		v, err = coerceLiteralToColumn(schema, ref.Name, v)
		if err != nil {
			return nil, err
		}
	}
	return &WhereEq{Column: table + "." + ref.Name, Value: v}, nil
}

func buildUpdatePlan(s *parser.UpdateStmt, db *novasql.Database) (Plan, error) {
	schema, haveSchema := schemaForTable(db, s.TableName)

	assigns := make([]Assignment, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		v, err := literalValue(a.Value)
		if err != nil {
			return nil, err
		}
		if haveSchema {
			v, err = coerceLiteralToColumn(schema, a.Column, v)
			if err != nil {
				return nil, err
			}
		}
		assigns = append(assigns, Assignment{Column: a.Column, Value: v})
	}

	var where *WhereEq
	if s.Where != nil {
		w, err := bindWhereEqForTable(db, s.TableName, s.Where)
		if err != nil {
			return nil, err
		}
		where = w
	}

	return &UpdatePlan{
		TableName: s.TableName,
		Assigns:   assigns,
		Where:     where,
	}, nil
}

func buildDeletePlan(s *parser.DeleteStmt, db *novasql.Database) (Plan, error) {
	var where *WhereEq
	if s.Where != nil {
		w, err := bindWhereEqForTable(db, s.TableName, s.Where)
		if err != nil {
			return nil, err
		}
		where = w
	}
	return &DeletePlan{TableName: s.TableName, Where: where}, nil
}

// findInt64IndexPlan looks up a btree index on the table whose key column
// matches the WHERE column and whose value is an int64, returning the
// index metadata and the coerced key.
func findInt64IndexPlan(db *novasql.Database, table string, where *WhereEq) (novasql.IndexMeta, int64, bool) {
	key, ok := where.Value.(int64)
	if !ok {
		return novasql.IndexMeta{}, 0, false
	}
	metas, err := db.ListTables()
	if err != nil {
		return novasql.IndexMeta{}, 0, false
	}
	for _, m := range metas {
		if m == nil || m.Name != table {
			continue
		}
		for _, im := range m.Indexes {
			if im.Kind == novasql.IndexKindBTree && im.KeyColumn == where.Column {
				return im, key, true
			}
		}
	}
	return novasql.IndexMeta{}, 0, false
}

// schemaForTable looks up a table's current schema via the catalog. db may
// be nil (unit tests build plans without a live database).
func schemaForTable(db *novasql.Database, table string) (record.Schema, bool) {
	if db == nil {
		return record.Schema{}, false
	}
	metas, err := db.ListTables()
	if err != nil {
		return record.Schema{}, false
	}
	for _, m := range metas {
		if m != nil && m.Name == table {
			return m.Schema, true
		}
	}
	return record.Schema{}, false
}

// bindWhereEqForTable resolves a WHERE clause against the table's schema
// when available, otherwise keeps the parser's literal value as-is (the
// literal is already a concrete Go type: int64/string/bool/nil).
func bindWhereEqForTable(db *novasql.Database, table string, w *parser.WhereEq) (*WhereEq, error) {
	if schema, ok := schemaForTable(db, table); ok {
		return bindWhereEq(schema, w)
	}
	v, err := literalValue(w.Value)
	if err != nil {
		return nil, err
	}
	return &WhereEq{Column: w.Column, Value: v}, nil
}

// bindWhereEq resolves a parsed WHERE clause's literal against the column
// it targets, rejecting unknown columns and type mismatches early instead
// of surfacing them later as a generic executor error.
func bindWhereEq(schema record.Schema, w *parser.WhereEq) (*WhereEq, error) {
	v, err := literalValue(w.Value)
	if err != nil {
		return nil, err
	}
	coerced, err := coerceLiteralToColumn(schema, w.Column, v)
	if err != nil {
		return nil, err
	}
	return &WhereEq{Column: w.Column, Value: coerced}, nil
}

// coerceLiteralToColumn normalizes a literal value (already int64/string/
// bool/nil from the parser) to match the target column's declared type.
func coerceLiteralToColumn(schema record.Schema, col string, v any) (any, error) {
	pos := -1
	for i := range schema.Cols {
		if schema.Cols[i].Name == col {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("planner: unknown column %q", col)
	}

	c := schema.Cols[pos]
	if v == nil {
		if !c.Nullable {
			return nil, fmt.Errorf("planner: column %s is NOT NULL", col)
		}
		return nil, nil
	}

	switch c.Type {
	case record.ColInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		default:
			return nil, fmt.Errorf("planner: column %s expects INT64, got %T", col, v)
		}
	case record.ColText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("planner: column %s expects TEXT, got %T", col, v)
		}
		return s, nil
	case record.ColBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("planner: column %s expects BOOL, got %T", col, v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("planner: unsupported column type %v", c.Type)
	}
}

func literalValue(e parser.Expr) (any, error) {
	lit, ok := e.(*parser.LiteralExpr)
	if !ok {
		return nil, fmt.Errorf("planner: only literal expressions supported, got %T", e)
	}
	return lit.Value, nil
}

func mapSQLType(t string) (record.ColumnType, error) {
	switch strings.ToUpper(t) {
	case "INT", "INTEGER":
		return record.ColInt64, nil
	case "TEXT":
		return record.ColText, nil
	case "BOOL", "BOOLEAN":
		return record.ColBool, nil
	default:
		return 0, fmt.Errorf("unsupported column type: %s", t)
	}
}
