package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEvict_PrefersTrueBackwardKDistanceOverRecency reproduces the
// interleaving where recency-of-touch and backward k-distance disagree:
// with k=2, X is touched at t={1,3,7}, Y at t={2,5}, Z at t={4,6}. At t=7
// the true distances are X=7-3=4, Z=7-4=3 (Y is excluded, non-evictable).
// A replacer ordering its cache list by recency of last touch would place
// Z ahead of X (Z was touched more recently, at t=6, than X's window start
// at t=3) and evict Z; the correct victim by backward k-distance is X.
func TestEvict_PrefersTrueBackwardKDistanceOverRecency(t *testing.T) {
	r := NewLRUKReplacer(10, 2)

	const x, y, z = 10, 20, 30

	r.RecordAccess(x) // t=1
	r.RecordAccess(y) // t=2
	r.RecordAccess(x) // t=3
	r.RecordAccess(z) // t=4
	r.RecordAccess(y) // t=5
	r.RecordAccess(z) // t=6
	r.RecordAccess(x) // t=7

	r.SetEvictable(x, true)
	r.SetEvictable(y, false)
	r.SetEvictable(z, true)

	require.Equal(t, int64(4), r.BackwardKDistance(x))
	require.Equal(t, int64(3), r.BackwardKDistance(z))

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, x, victim, "expected the largest true backward k-distance to be evicted, not the most recently touched")
}

func TestEvict_HistoryListIsFIFOByFirstAccessRegardlessOfRepeatTouches(t *testing.T) {
	r := NewLRUKReplacer(10, 2)

	const a, b = 1, 2

	r.RecordAccess(a) // a's only access so far; still below k=2
	r.RecordAccess(b) // b's only access so far; still below k=2
	r.RecordAccess(a) // a now has 2 accesses, promoted to cache list

	r.SetEvictable(a, true)
	r.SetEvictable(b, true)

	// a left the history list when it reached k; b is the sole remaining
	// history entry and should be evicted first (FIFO, below-k frames take
	// priority over the cache list).
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, b, victim)
}

func TestEvict_CacheListRepositionsOnRepeatedAccess(t *testing.T) {
	r := NewLRUKReplacer(10, 2)

	const x, y = 1, 2

	r.RecordAccess(x) // t=1
	r.RecordAccess(y) // t=2
	r.RecordAccess(x) // t=3, x reaches k=2, history=[1,3]
	r.RecordAccess(y) // t=4, y reaches k=2, history=[2,4]

	r.SetEvictable(x, true)
	r.SetEvictable(y, true)

	// Touch x again: its window shifts to [3,5], shrinking its distance
	// below y's ([2,4]), so y should now be the preferred victim even
	// though x was untouched first.
	r.RecordAccess(x) // t=5, history=[3,5]

	require.Equal(t, int64(2), r.BackwardKDistance(x)) // 5-3
	require.Equal(t, int64(3), r.BackwardKDistance(y)) // 5-2

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, y, victim)
}
