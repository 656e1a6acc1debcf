package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novasql/novasql/internal/sql/planner"
)

func TestResolveColumn(t *testing.T) {
	cols := []string{"orders.id", "orders.user_id", "users.id", "users.name"}

	require.Equal(t, 0, resolveColumn(cols, "orders.id"))
	require.Equal(t, 3, resolveColumn(cols, "name"))
	// "id" is ambiguous between orders.id and users.id
	require.Equal(t, -1, resolveColumn(cols, "id"))
	require.Equal(t, -1, resolveColumn(cols, "missing"))
}

func TestCompareValues(t *testing.T) {
	c, err := compareValues(int64(1), int64(2))
	require.NoError(t, err)
	require.Equal(t, -1, c)

	c, err = compareValues("b", "a")
	require.NoError(t, err)
	require.Equal(t, 1, c)

	c, err = compareValues(nil, int64(1))
	require.NoError(t, err)
	require.Equal(t, -1, c)

	c, err = compareValues(nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, c)

	c, err = compareValues(false, true)
	require.NoError(t, err)
	require.Equal(t, -1, c)

	_, err = compareValues(int64(1), "x")
	require.Error(t, err)
}

func TestFilterOp(t *testing.T) {
	child := &fakeOp{
		cols: []string{"id", "name"},
		rows: [][]any{
			{int64(1), "a"},
			{int64(2), "b"},
			{int64(1), "c"},
		},
	}
	op := newFilterOp(child, &planner.WhereEq{Column: "id", Value: int64(1)})
	require.NoError(t, op.Init())

	rows := drainRows(t, op)
	require.Equal(t, [][]any{{int64(1), "a"}, {int64(1), "c"}}, rows)
}

func TestFilterOp_UnknownColumn(t *testing.T) {
	child := &fakeOp{cols: []string{"id"}, rows: [][]any{{int64(1)}}}
	op := newFilterOp(child, &planner.WhereEq{Column: "nope", Value: int64(1)})
	require.Error(t, op.Init())
}

func TestSortOp_Ascending(t *testing.T) {
	child := &fakeOp{
		cols: []string{"id"},
		rows: [][]any{{int64(3)}, {int64(1)}, {int64(2)}},
	}
	op := &sortOp{child: child, orderBy: []planner.OrderByItem{{Column: "id"}}}
	require.NoError(t, op.Init())

	rows := drainRows(t, op)
	require.Equal(t, [][]any{{int64(1)}, {int64(2)}, {int64(3)}}, rows)
}

func TestSortOp_DescendingMultiKey(t *testing.T) {
	child := &fakeOp{
		cols: []string{"a", "b"},
		rows: [][]any{
			{int64(1), int64(5)},
			{int64(1), int64(2)},
			{int64(0), int64(9)},
		},
	}
	op := &sortOp{child: child, orderBy: []planner.OrderByItem{
		{Column: "a", Desc: true},
		{Column: "b"},
	}}
	require.NoError(t, op.Init())

	rows := drainRows(t, op)
	require.Equal(t, [][]any{
		{int64(1), int64(2)},
		{int64(1), int64(5)},
		{int64(0), int64(9)},
	}, rows)
}

func TestSortOp_StableOnTies(t *testing.T) {
	type tagged struct {
		key int64
		tag string
	}
	input := []tagged{{1, "first"}, {1, "second"}, {0, "third"}}
	child := &fakeOp{cols: []string{"key", "tag"}}
	for _, r := range input {
		child.rows = append(child.rows, []any{r.key, r.tag})
	}

	op := &sortOp{child: child, orderBy: []planner.OrderByItem{{Column: "key"}}}
	require.NoError(t, op.Init())
	rows := drainRows(t, op)

	require.Equal(t, "third", rows[0][1])
	require.Equal(t, "first", rows[1][1])
	require.Equal(t, "second", rows[2][1])
}

func TestSortOp_UnknownOrderByColumn(t *testing.T) {
	child := &fakeOp{cols: []string{"id"}, rows: [][]any{{int64(1)}}}
	op := &sortOp{child: child, orderBy: []planner.OrderByItem{{Column: "nope"}}}
	require.Error(t, op.Init())
}

func TestTopNOp_KeepsBestNAscending(t *testing.T) {
	child := &fakeOp{
		cols: []string{"id"},
		rows: [][]any{{int64(5)}, {int64(1)}, {int64(9)}, {int64(2)}, {int64(7)}},
	}
	op := &topNOp{child: child, orderBy: []planner.OrderByItem{{Column: "id"}}, count: 3}
	require.NoError(t, op.Init())

	rows := drainRows(t, op)
	require.Equal(t, [][]any{{int64(1)}, {int64(2)}, {int64(5)}}, rows)
}

func TestTopNOp_MatchesSortThenLimit(t *testing.T) {
	data := [][]any{{int64(5)}, {int64(1)}, {int64(9)}, {int64(2)}, {int64(7)}, {int64(3)}}

	sortChild := &fakeOp{cols: []string{"id"}, rows: append([][]any{}, data...)}
	sorted := &sortOp{child: sortChild, orderBy: []planner.OrderByItem{{Column: "id", Desc: true}}}
	require.NoError(t, sorted.Init())
	lim := &limitOp{child: sorted, count: 3}
	require.NoError(t, lim.Init())
	wantRows := drainRows(t, lim)

	topChild := &fakeOp{cols: []string{"id"}, rows: append([][]any{}, data...)}
	topN := &topNOp{child: topChild, orderBy: []planner.OrderByItem{{Column: "id", Desc: true}}, count: 3}
	require.NoError(t, topN.Init())
	gotRows := drainRows(t, topN)

	require.Equal(t, wantRows, gotRows)
}

func TestTopNOp_ZeroCount(t *testing.T) {
	child := &fakeOp{cols: []string{"id"}, rows: [][]any{{int64(1)}, {int64(2)}}}
	op := &topNOp{child: child, orderBy: []planner.OrderByItem{{Column: "id"}}, count: 0}
	require.NoError(t, op.Init())
	require.Empty(t, drainRows(t, op))
}

func TestLimitOp(t *testing.T) {
	child := &fakeOp{cols: []string{"id"}, rows: [][]any{{int64(1)}, {int64(2)}, {int64(3)}}}
	op := &limitOp{child: child, count: 2}
	require.NoError(t, op.Init())

	rows := drainRows(t, op)
	require.Equal(t, [][]any{{int64(1)}, {int64(2)}}, rows)
}

func TestLimitOp_CountExceedsRows(t *testing.T) {
	child := &fakeOp{cols: []string{"id"}, rows: [][]any{{int64(1)}}}
	op := &limitOp{child: child, count: 5}
	require.NoError(t, op.Init())

	rows := drainRows(t, op)
	require.Equal(t, [][]any{{int64(1)}}, rows)
}
