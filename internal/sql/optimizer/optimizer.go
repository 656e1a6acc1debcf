// Package optimizer implements the C8 peephole rewrite rules: plan-tree
// transformations that preserve output but change the physical operator,
// applied bottom-up after planner.BuildPlan and before execution.
package optimizer

import "github.com/novasql/novasql/internal/sql/planner"

// Optimize rewrites p bottom-up. It is always safe to call on any plan:
// nodes with no applicable rule are returned unchanged.
func Optimize(p planner.Plan) planner.Plan {
	if p == nil {
		return p
	}
	switch n := p.(type) {
	case *planner.NestedLoopJoinPlan:
		n.Left = Optimize(n.Left)
		n.Right = Optimize(n.Right)
		return rewriteNLJToHashJoin(n)
	case *planner.HashJoinPlan:
		n.Left = Optimize(n.Left)
		n.Right = Optimize(n.Right)
		return n
	case *planner.FilterPlan:
		n.Child = Optimize(n.Child)
		return n
	case *planner.SortPlan:
		n.Child = Optimize(n.Child)
		return n
	case *planner.TopNPlan:
		n.Child = Optimize(n.Child)
		return n
	case *planner.LimitPlan:
		n.Child = Optimize(n.Child)
		return rewriteSortLimitToTopN(n)
	default:
		return p
	}
}

// rewriteNLJToHashJoin fires whenever the join predicate is a (possibly
// empty after the builder's own normalization) conjunction of equalities
// on column(t=0)=column(t=1): the planner already normalizes every
// Equality's Left operand to tuple index 0 and Right to tuple index 1, so
// this rule only needs to check that at least one equi-join key exists.
// A cross join (no ON equalities) has no hash key and is left as NLJ.
func rewriteNLJToHashJoin(n *planner.NestedLoopJoinPlan) planner.Plan {
	if len(n.On) == 0 {
		return n
	}
	leftKeys := make([]planner.ColumnRef, len(n.On))
	rightKeys := make([]planner.ColumnRef, len(n.On))
	for i, eq := range n.On {
		leftKeys[i] = eq.Left
		rightKeys[i] = eq.Right
	}
	return &planner.HashJoinPlan{
		Left:      n.Left,
		Right:     n.Right,
		LeftTable: n.LeftTable, RightTable: n.RightTable,
		Type:     n.Type,
		LeftKeys: leftKeys, RightKeys: rightKeys,
	}
}

// rewriteSortLimitToTopN fires when a Limit's sole child is a Sort,
// replacing both with a single bounded max-heap operator.
func rewriteSortLimitToTopN(n *planner.LimitPlan) planner.Plan {
	sortChild, ok := n.Child.(*planner.SortPlan)
	if !ok {
		return n
	}
	return &planner.TopNPlan{
		Child:   sortChild.Child,
		OrderBy: sortChild.OrderBy,
		Count:   n.Count,
	}
}
