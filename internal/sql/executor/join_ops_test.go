package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novasql/novasql/internal/sql/planner"
)

func drainRows(t *testing.T, op Operator) [][]any {
	t.Helper()
	var out [][]any
	for {
		row, _, ok, err := op.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, row)
	}
}

func ordersUsersFixture() (*fakeOp, *fakeOp) {
	orders := &fakeOp{
		cols: []string{"id", "user_id"},
		rows: [][]any{
			{int64(1), int64(10)},
			{int64(2), int64(20)},
			{int64(3), int64(99)}, // no matching user
		},
	}
	users := &fakeOp{
		cols: []string{"id", "name"},
		rows: [][]any{
			{int64(10), "alice"},
			{int64(20), "bob"},
		},
	}
	return orders, users
}

func joinOn() []planner.Equality {
	return []planner.Equality{
		{Left: planner.ColumnRef{Side: 0, Name: "user_id"}, Right: planner.ColumnRef{Side: 1, Name: "id"}},
	}
}

func TestNestedLoopJoinOp_Inner(t *testing.T) {
	orders, users := ordersUsersFixture()
	op := newNestedLoopJoinOp(orders, users, planner.InnerJoin, joinOn(), "orders", "users")

	require.NoError(t, op.Init())
	require.Equal(t, []string{"orders.id", "orders.user_id", "users.id", "users.name"}, op.Columns())

	rows := drainRows(t, op)
	require.Len(t, rows, 2)
	require.Equal(t, []any{int64(1), int64(10), int64(10), "alice"}, rows[0])
	require.Equal(t, []any{int64(2), int64(20), int64(20), "bob"}, rows[1])
}

func TestNestedLoopJoinOp_Left_PadsUnmatched(t *testing.T) {
	orders, users := ordersUsersFixture()
	op := newNestedLoopJoinOp(orders, users, planner.LeftJoin, joinOn(), "orders", "users")

	require.NoError(t, op.Init())
	rows := drainRows(t, op)

	require.Len(t, rows, 3)
	require.Equal(t, []any{int64(3), int64(99), nil, nil}, rows[2])
}

func TestNestedLoopJoinOp_UnknownJoinColumn(t *testing.T) {
	orders, users := ordersUsersFixture()
	bad := []planner.Equality{
		{Left: planner.ColumnRef{Side: 0, Name: "nope"}, Right: planner.ColumnRef{Side: 1, Name: "id"}},
	}
	op := newNestedLoopJoinOp(orders, users, planner.InnerJoin, bad, "orders", "users")
	require.Error(t, op.Init())
}

func TestHashJoinOp_Inner(t *testing.T) {
	orders, users := ordersUsersFixture()
	op := newHashJoinOp(orders, users, planner.InnerJoin,
		[]planner.ColumnRef{{Side: 0, Name: "user_id"}},
		[]planner.ColumnRef{{Side: 1, Name: "id"}},
		"orders", "users")

	require.NoError(t, op.Init())
	require.Equal(t, []string{"orders.id", "orders.user_id", "users.id", "users.name"}, op.Columns())

	rows := drainRows(t, op)
	require.Len(t, rows, 2)
	require.Equal(t, []any{int64(1), int64(10), int64(10), "alice"}, rows[0])
	require.Equal(t, []any{int64(2), int64(20), int64(20), "bob"}, rows[1])
}

func TestHashJoinOp_Left_PadsUnmatched(t *testing.T) {
	orders, users := ordersUsersFixture()
	op := newHashJoinOp(orders, users, planner.LeftJoin,
		[]planner.ColumnRef{{Side: 0, Name: "user_id"}},
		[]planner.ColumnRef{{Side: 1, Name: "id"}},
		"orders", "users")

	require.NoError(t, op.Init())
	rows := drainRows(t, op)

	require.Len(t, rows, 3)
	require.Equal(t, []any{int64(3), int64(99), nil, nil}, rows[2])
}

func TestHashJoinOp_MatchesNestedLoopJoinOp_SameInput(t *testing.T) {
	o1, u1 := ordersUsersFixture()
	nlj := newNestedLoopJoinOp(o1, u1, planner.InnerJoin, joinOn(), "orders", "users")
	require.NoError(t, nlj.Init())
	nljRows := drainRows(t, nlj)

	o2, u2 := ordersUsersFixture()
	hj := newHashJoinOp(o2, u2, planner.InnerJoin,
		[]planner.ColumnRef{{Side: 0, Name: "user_id"}},
		[]planner.ColumnRef{{Side: 1, Name: "id"}},
		"orders", "users")
	require.NoError(t, hj.Init())
	hjRows := drainRows(t, hj)

	require.Equal(t, nljRows, hjRows)
}

func TestHashJoinOp_UnknownJoinColumn(t *testing.T) {
	orders, users := ordersUsersFixture()
	op := newHashJoinOp(orders, users, planner.InnerJoin,
		[]planner.ColumnRef{{Side: 0, Name: "nope"}},
		[]planner.ColumnRef{{Side: 1, Name: "id"}},
		"orders", "users")
	require.Error(t, op.Init())
}

func TestQualifyColumns(t *testing.T) {
	got := qualifyColumns("users", []string{"id", "name"})
	require.Equal(t, []string{"users.id", "users.name"}, got)
}
