package nav

import (
	"math"
	"time"
)

// Unreachable is the distance stored for tiles no source can reach.
const Unreachable float32 = math.MaxFloat32

// BuildStats aggregates one build from StartBuild to its publishing Step.
type BuildStats struct {
	NodesRelaxed int
	DirtySeeded  int
	HotStart     bool
	Elapsed      time.Duration
}

type fieldBuffer struct {
	dist []float32
	dir  []int8
}

func (b *fieldBuffer) reset() {
	for i := range b.dist {
		b.dist[i] = Unreachable
	}
	for i := range b.dir {
		b.dir[i] = DirNone
	}
}

type frontierNode struct {
	tile int32
	dist float32
}

// Field holds one goal's flow field: distance-to-goal and next-direction
// per tile, shared by every agent heading to that goal. One field build
// replaces per-agent searches with an O(1) lookup per agent.
//
// Origin: Emerson. "Crowd Pathfinding and Steering Using Flow Field
// Tiles." Game AI Pro, 2015.
//
// Two equally-sized buffers and a selector implement the publish
// discipline: readers only ever see the active buffer, a build mutates
// only the other one, and the swap on completion is the sole way the
// active buffer changes. A paused build therefore never leaks a
// half-updated field, no matter how many frames it spans.
type Field struct {
	tileCount int
	bufs      [2]fieldBuffer
	active    int
	stamp     uint32

	// Build state, owned by the in-progress build.
	building bool
	heap     []frontierNode
	snapshot []float32 // effective costs copied at StartBuild
	stats    BuildStats
}

// NewField allocates a field for tileCount tiles with both buffers marked
// unreachable, so reads before the first publish report nothing. Returns
// nil when tileCount is not positive.
func NewField(tileCount int) *Field {
	if tileCount <= 0 {
		return nil
	}
	f := &Field{
		tileCount: tileCount,
		snapshot:  make([]float32, tileCount),
		heap:      make([]frontierNode, 0, 256),
	}
	for i := range f.bufs {
		f.bufs[i] = fieldBuffer{
			dist: make([]float32, tileCount),
			dir:  make([]int8, tileCount),
		}
		f.bufs[i].reset()
	}
	return f
}

// TileCount returns the per-buffer tile count.
func (f *Field) TileCount() int {
	return f.tileCount
}

// StartBuild begins a build toward the given sources: the build buffer is
// reset to unreachable, every in-range source seeds the frontier at
// distance 0, and each dirty-batch tile additionally seeds at its
// previously published distance when that was finite (hot start). costs
// is copied, so the model may keep mutating while the build is paused.
//
// Returns false, with no state changed, when a build is already running,
// the graph or cost slice does not match this field, or no source is
// valid.
func (f *Field) StartBuild(g *Graph, sources []int32, costs []float32, batch []int32) bool {
	if f.building || g == nil || g.tileCount != f.tileCount || len(costs) != f.tileCount {
		return false
	}
	valid := 0
	for _, s := range sources {
		if s >= 0 && int(s) < f.tileCount {
			valid++
		}
	}
	if valid == 0 {
		return false
	}

	copy(f.snapshot, costs)
	build := &f.bufs[1-f.active]
	build.reset()
	f.heap = f.heap[:0]
	f.stats = BuildStats{HotStart: len(batch) > 0}

	for _, s := range sources {
		if s < 0 || int(s) >= f.tileCount {
			continue
		}
		if build.dist[s] == 0 {
			continue // duplicate source
		}
		build.dist[s] = 0
		build.dir[s] = DirNone
		f.heap = pushNode(f.heap, frontierNode{tile: s, dist: 0})
	}

	if len(batch) > 0 {
		prev := &f.bufs[f.active]
		for _, t := range batch {
			if t < 0 || int(t) >= f.tileCount {
				continue
			}
			pd := prev.dist[t]
			if pd >= Unreachable || pd >= build.dist[t] {
				continue
			}
			build.dist[t] = pd
			build.dir[t] = prev.dir[t]
			f.heap = pushNode(f.heap, frontierNode{tile: t, dist: pd})
			f.stats.DirtySeeded++
		}
	}

	f.building = true
	return true
}

// Step resumes the build, relaxing minimum-distance frontier nodes until
// the frontier empties, the elapsed time within this call exceeds budget
// (checked after each full node, so it can overshoot by one node), or,
// with a budget of exactly zero, after one node (cooperative single-step
// pacing). On completion the buffers swap, the stamp bumps, and the
// returned stats aggregate the whole build; otherwise they aggregate the
// build so far.
func (f *Field) Step(g *Graph, budget time.Duration) (BuildStats, bool) {
	if !f.building || g == nil || g.tileCount != f.tileCount {
		return f.stats, false
	}

	start := time.Now()
	singleStep := budget == 0
	build := &f.bufs[1-f.active]

	for len(f.heap) > 0 {
		var node frontierNode
		f.heap, node = popNode(f.heap)
		if node.dist > build.dist[node.tile] {
			continue // stale entry, already improved
		}

		base := int(node.tile) * NeighborCount
		for slot := 0; slot < NeighborCount; slot++ {
			n := g.neighbors[base+slot]
			if n < 0 {
				continue
			}
			c := f.snapshot[n]
			if c < 0 {
				c = 0
			}
			cand := node.dist + c
			if cand < build.dist[n] {
				build.dist[n] = cand
				build.dir[n] = opposites[slot]
				f.heap = pushNode(f.heap, frontierNode{tile: n, dist: cand})
			}
		}
		f.stats.NodesRelaxed++

		if singleStep {
			break
		}
		if budget > 0 && time.Since(start) >= budget {
			break
		}
	}

	f.stats.Elapsed += time.Since(start)

	if len(f.heap) > 0 {
		return f.stats, false
	}

	// Frontier exhausted: publish.
	f.active = 1 - f.active
	f.stamp++
	if f.stamp == 0 {
		f.stamp = 1
	}
	f.building = false
	done := f.stats
	f.stats = BuildStats{}
	return done, true
}

// IsBuilding reports whether a build is in progress.
func (f *Field) IsBuilding() bool {
	return f.building
}

// CancelBuild discards the in-progress build without touching the
// published buffer. No-op when idle.
func (f *Field) CancelBuild() {
	if !f.building {
		return
	}
	f.building = false
	f.heap = f.heap[:0]
	f.stats = BuildStats{}
}

// Distances returns the active buffer's distance array. Read-only;
// Unreachable marks tiles no source reaches.
func (f *Field) Distances() []float32 {
	return f.bufs[f.active].dist
}

// NextDirections returns the active buffer's direction array. Read-only;
// DirNone marks sources and unreachable tiles.
func (f *Field) NextDirections() []int8 {
	return f.bufs[f.active].dir
}

// Stamp returns the publish stamp: 0 before the first publish, then
// incremented once per completed build, wrapping past 0 back to 1.
func (f *Field) Stamp() uint32 {
	return f.stamp
}

// pushNode appends to the binary min-heap and sifts up.
func pushNode(h []frontierNode, n frontierNode) []frontierNode {
	h = append(h, n)
	i := len(h) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if h[parent].dist <= h[i].dist {
			break
		}
		h[parent], h[i] = h[i], h[parent]
		i = parent
	}
	return h
}

// popNode removes and returns the minimum-distance node.
func popNode(h []frontierNode) ([]frontierNode, frontierNode) {
	top := h[0]
	last := len(h) - 1
	h[0] = h[last]
	h = h[:last]

	i := 0
	for {
		left := 2*i + 1
		if left >= len(h) {
			break
		}
		least := left
		if right := left + 1; right < len(h) && h[right].dist < h[left].dist {
			least = right
		}
		if h[i].dist <= h[least].dist {
			break
		}
		h[i], h[least] = h[least], h[i]
		i = least
	}
	return h, top
}
