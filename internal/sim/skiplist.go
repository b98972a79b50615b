// Span-augmented skip list keyed by agent id, ordered by score descending
// with id ascending as the tie-break. Span counts per forward pointer give
// O(log n) rank queries; a side map resolves ids to scores so ordered
// walks always know their target.
//
// Origin: Pugh (1990), "Skip Lists: A Probabilistic Alternative to
// Balanced Trees". Redis ZSET pairs this exact structure with a dict.
package sim

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

const (
	maxLevel         = 32   // Max skip list height (supports 2^32 elements)
	levelProbability = 0.25 // P=0.25 gives optimal balance
)

// rankedEntry is a scored entry in the ranking.
type rankedEntry struct {
	ID    int32   // Agent id
	Score float64 // Hauled units
}

// less orders entries: higher score first, lower id breaks ties.
func less(a, b rankedEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// rankNode is a node in the skip list
type rankNode struct {
	entry rankedEntry
	next  []*rankNode // Forward pointers (one per level)
	span  []int       // Distance to next node at each level
}

// rankList is a concurrent skip list with O(log n) insert, remove, and
// rank queries, sized for thousands of live agents.
type rankList struct {
	head   *rankNode
	byID   map[int32]float64
	level  int32 // Current max level (atomic for reads)
	length int32 // Number of elements (atomic)
	mu     sync.RWMutex
	rng    *rand.Rand
}

func newRankList() *rankList {
	head := &rankNode{
		next: make([]*rankNode, maxLevel),
		span: make([]int, maxLevel),
	}
	return &rankList{
		head:  head,
		byID:  make(map[int32]float64),
		level: 1,
		rng:   rand.New(rand.NewSource(rand.Int63())),
	}
}

// randomLevel returns a level in [1, maxLevel] with geometric distribution.
func (sl *rankList) randomLevel() int {
	level := 1
	for level < maxLevel && sl.rng.Float64() < levelProbability {
		level++
	}
	return level
}

// Insert adds or updates an entry. An existing id is removed first and
// reinserted at its new position.
// Time complexity: O(log n) average
func (sl *rankList) Insert(id int32, score float64) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if old, ok := sl.byID[id]; ok {
		if old == score {
			return
		}
		sl.removeLocked(rankedEntry{ID: id, Score: old})
	}

	entry := rankedEntry{ID: id, Score: score}
	update := make([]*rankNode, maxLevel)
	rank := make([]int, maxLevel)

	x := sl.head
	for i := int(sl.level) - 1; i >= 0; i-- {
		if i == int(sl.level)-1 {
			rank[i] = 0
		} else {
			rank[i] = rank[i+1]
		}
		for x.next[i] != nil && less(x.next[i].entry, entry) {
			rank[i] += x.span[i]
			x = x.next[i]
		}
		update[i] = x
	}

	newLevel := sl.randomLevel()
	if newLevel > int(sl.level) {
		for i := int(sl.level); i < newLevel; i++ {
			rank[i] = 0
			update[i] = sl.head
			update[i].span[i] = int(sl.length)
		}
		atomic.StoreInt32(&sl.level, int32(newLevel))
	}

	node := &rankNode{
		entry: entry,
		next:  make([]*rankNode, newLevel),
		span:  make([]int, newLevel),
	}
	for i := 0; i < newLevel; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
		node.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = (rank[0] - rank[i]) + 1
	}
	for i := newLevel; i < int(sl.level); i++ {
		update[i].span[i]++
	}

	sl.byID[id] = score
	atomic.AddInt32(&sl.length, 1)
}

// Remove deletes an entry by id.
// Time complexity: O(log n) average
func (sl *rankList) Remove(id int32) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	score, ok := sl.byID[id]
	if !ok {
		return false
	}
	sl.removeLocked(rankedEntry{ID: id, Score: score})
	return true
}

// removeLocked unlinks the node holding exactly this entry. The entry
// must exist; callers resolve it through byID first.
func (sl *rankList) removeLocked(entry rankedEntry) {
	update := make([]*rankNode, maxLevel)
	x := sl.head
	for i := int(sl.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && less(x.next[i].entry, entry) {
			x = x.next[i]
		}
		update[i] = x
	}

	target := x.next[0]
	if target == nil || target.entry != entry {
		return
	}

	for i := 0; i < int(sl.level); i++ {
		if update[i].next[i] == target {
			update[i].span[i] += target.span[i] - 1
			update[i].next[i] = target.next[i]
		} else {
			update[i].span[i]--
		}
	}
	for sl.level > 1 && sl.head.next[sl.level-1] == nil {
		atomic.AddInt32(&sl.level, -1)
	}
	delete(sl.byID, entry.ID)
	atomic.AddInt32(&sl.length, -1)
}

// Rank returns the 1-indexed rank of an id (1 = highest score), or 0 if
// absent.
// Time complexity: O(log n)
func (sl *rankList) Rank(id int32) int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	score, ok := sl.byID[id]
	if !ok {
		return 0
	}
	target := rankedEntry{ID: id, Score: score}

	rank := 0
	x := sl.head
	for i := int(sl.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && !less(target, x.next[i].entry) {
			rank += x.span[i]
			x = x.next[i]
			if x.entry.ID == id {
				return rank
			}
		}
	}
	return 0
}

// Score returns the score for an id.
func (sl *rankList) Score(id int32) (float64, bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	score, ok := sl.byID[id]
	return score, ok
}

// Range returns entries in rank range [start, end], 1-indexed inclusive.
// Time complexity: O(log n + k)
func (sl *rankList) Range(start, end int) []rankedEntry {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if start <= 0 {
		start = 1
	}
	if end > int(sl.length) {
		end = int(sl.length)
	}
	if start > end {
		return nil
	}

	result := make([]rankedEntry, 0, end-start+1)

	traversed := 0
	x := sl.head
	for i := int(sl.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] < start {
			traversed += x.span[i]
			x = x.next[i]
		}
	}

	x = x.next[0]
	for x != nil && traversed < end {
		traversed++
		if traversed >= start {
			result = append(result, x.entry)
		}
		x = x.next[0]
	}
	return result
}

// Length returns the number of entries.
func (sl *rankList) Length() int {
	return int(atomic.LoadInt32(&sl.length))
}

// Clear removes all entries.
func (sl *rankList) Clear() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	for i := range sl.head.next {
		sl.head.next[i] = nil
		sl.head.span[i] = 0
	}
	sl.byID = make(map[int32]float64)
	atomic.StoreInt32(&sl.level, 1)
	atomic.StoreInt32(&sl.length, 0)
}

// ForEach iterates entries in rank order (highest score first). Return
// false from the callback to stop.
func (sl *rankList) ForEach(fn func(rank int, entry rankedEntry) bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	rank := 0
	for x := sl.head.next[0]; x != nil; x = x.next[0] {
		rank++
		if !fn(rank, x.entry) {
			break
		}
	}
}
