package bufferpool

import (
	"container/list"
	"math"
	"sync"

	"github.com/novasql/novasql/pkg/cache"
)

// AccessType distinguishes the kind of access recorded against a frame.
// Kept for parity with record_access(frame, type) in the spec even though
// the current replacer does not treat scan/lookup accesses differently.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessGet
	AccessScan
)

type lrukNode struct {
	frameID int

	// history holds up to k most recent access timestamps, oldest first.
	history []int64

	evictable bool
}

func (n *lrukNode) backwardKDistance(k int, now int64) int64 {
	if len(n.history) < k {
		return math.MaxInt64
	}
	return now - n.history[0]
}

// LRUKReplacer implements the C1 replacer: frames with fewer than k
// recorded accesses are tracked on a FIFO history list; frames with k or
// more accesses move to a cache list ordered by their backward k-distance
// (now - history[0], the oldest retained timestamp). Eviction prefers the
// oldest evictable entry in the history list (ties broken by earliest
// first access), falling back to the cache list entry with the largest
// backward k-distance.
type LRUKReplacer struct {
	mu sync.Mutex

	k        int
	nowTick  int64
	curSize  int // number of currently evictable frames
	capacity int

	nodes map[int]*lrukNode

	// history is FIFO by first access: a node is pushed once, on its first
	// ever touch, and never repositioned while it accumulates toward k.
	history     *cache.LRUManager
	historyElem map[int]*list.Element

	// cacheList holds nodes with >= k accesses, kept sorted front-to-back
	// by descending history[0] (front = most recently retained timestamp =
	// smallest backward k-distance, back = oldest retained timestamp =
	// largest distance, i.e. the next eviction candidate). Every
	// RecordAccess on a cache node recomputes its history[0] and
	// repositions it, since recency of touch does not track true
	// k-distance once more than one frame is live.
	cacheList *list.List
	cacheElem map[int]*list.Element
}

var _ Replacer = (*LRUKReplacer)(nil)

// NewLRUKReplacer creates a replacer tracking up to capacity frames, each
// needing k accesses to leave the history list for the cache list.
func NewLRUKReplacer(capacity, k int) *LRUKReplacer {
	if k < 1 {
		k = 2
	}
	return &LRUKReplacer{
		k:           k,
		capacity:    capacity,
		nodes:       make(map[int]*lrukNode, capacity),
		history:     cache.NewLRUManager(),
		historyElem: make(map[int]*list.Element, capacity),
		cacheList:   list.New(),
		cacheElem:   make(map[int]*list.Element, capacity),
	}
}

func (r *LRUKReplacer) tick() int64 {
	r.nowTick++
	return r.nowTick
}

// RecordAccess records a reference to frameID at the current logical
// timestamp, creating tracking state for it if this is its first access.
func (r *LRUKReplacer) RecordAccess(frameID int) {
	r.RecordAccessTyped(frameID, AccessUnknown)
}

func (r *LRUKReplacer) RecordAccessTyped(frameID int, _ AccessType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick()

	n, ok := r.nodes[frameID]
	isNew := !ok
	if !ok {
		n = &lrukNode{frameID: frameID}
		r.nodes[frameID] = n
	}

	n.history = append(n.history, now)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}

	if len(n.history) < r.k {
		// Still accumulating toward k: stays on the history FIFO at its
		// original position (earliest-first-access order), never moved.
		if isNew {
			r.historyElem[frameID] = r.history.PushFront(frameID)
		}
		return
	}

	// Reached k accesses (possibly just now, possibly again): leave the
	// history list if it was still there, then reposition in the cache
	// list by its freshly computed history[0].
	if e, ok := r.historyElem[frameID]; ok {
		r.history.Remove(e)
		delete(r.historyElem, frameID)
	}
	r.repositionCacheLocked(frameID, n)
}

// repositionCacheLocked removes frameID from the cache list if present and
// reinserts it in descending-history[0] order. Caller holds r.mu.
func (r *LRUKReplacer) repositionCacheLocked(frameID int, n *lrukNode) {
	if e, ok := r.cacheElem[frameID]; ok {
		r.cacheList.Remove(e)
		delete(r.cacheElem, frameID)
	}

	h0 := n.history[0]
	var mark *list.Element
	for cur := r.cacheList.Front(); cur != nil; cur = cur.Next() {
		other := r.nodes[cur.Value.(int)]
		if other != nil && other.history[0] <= h0 {
			mark = cur
			break
		}
	}

	var elem *list.Element
	if mark != nil {
		elem = r.cacheList.InsertBefore(frameID, mark)
	} else {
		elem = r.cacheList.PushBack(frameID)
	}
	r.cacheElem[frameID] = elem
}

// detachLocked removes frameID from whichever ordering list currently
// holds it, without touching curSize or n.evictable. Caller holds r.mu.
func (r *LRUKReplacer) detachLocked(frameID int) {
	if e, ok := r.historyElem[frameID]; ok {
		r.history.Remove(e)
		delete(r.historyElem, frameID)
	}
	if e, ok := r.cacheElem[frameID]; ok {
		r.cacheList.Remove(e)
		delete(r.cacheElem, frameID)
	}
}

// SetEvictable marks frameID as eligible (or not) for eviction.
func (r *LRUKReplacer) SetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.curSize++
	} else {
		r.curSize--
	}
}

// Remove drops all tracking state for frameID. The frame must currently be
// evictable (callers should unpin before removing); removing a frame that
// is not evictable is a no-op, mirroring the reference implementation.
func (r *LRUKReplacer) Remove(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if !n.evictable {
		return
	}
	r.detachLocked(frameID)
	delete(r.nodes, frameID)
	r.curSize--
}

// Evict selects and removes a victim frame: the oldest evictable entry in
// the history list (FIFO, ties by earliest first access) if any exists,
// else the cache list entry with the largest backward k-distance (the
// list is kept sorted by true distance, so this is always its back).
func (r *LRUKReplacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.curSize == 0 {
		return 0, false
	}

	if e := r.history.Back(); e != nil {
		for cur := e; cur != nil; cur = cur.Prev() {
			fid := cur.Value.(int)
			if n := r.nodes[fid]; n != nil && n.evictable {
				r.evictLocked(fid)
				return fid, true
			}
		}
	}

	for cur := r.cacheList.Back(); cur != nil; cur = cur.Prev() {
		fid := cur.Value.(int)
		if n := r.nodes[fid]; n != nil && n.evictable {
			r.evictLocked(fid)
			return fid, true
		}
	}

	return 0, false
}

func (r *LRUKReplacer) evictLocked(frameID int) {
	r.detachLocked(frameID)
	delete(r.nodes, frameID)
	r.curSize--
}

// Size returns the number of frames currently eligible for eviction.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.curSize
}

// BackwardKDistance is exposed for tests asserting the replacer picks the
// frame with the expected k-distance.
func (r *LRUKReplacer) BackwardKDistance(frameID int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[frameID]
	if !ok {
		return math.MaxInt64
	}
	return n.backwardKDistance(r.k, r.nowTick)
}
