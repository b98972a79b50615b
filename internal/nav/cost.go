package nav

import (
	"math"
)

const (
	// CostMin and CostMax bound every effective cost. Impassable tiles are
	// pinned to CostMax; anything non-finite is clamped to CostMax too.
	CostMin float32 = 0.001
	CostMax float32 = 1e9

	// DefaultEmaLambda smooths crowd-density samples; 0 freezes density,
	// 1 replaces it outright with each sample.
	DefaultEmaLambda float32 = 0.2

	// DefaultDirtyEpsilon suppresses dirty marks for effective-cost changes
	// at or below this magnitude, so negligible jitter never floods the
	// rebuild pipeline.
	DefaultDirtyEpsilon float32 = 0.01

	// coeffEpsilon is the change in a global weight below which a
	// SetCoefficients call skips the full-grid recompute.
	coeffEpsilon float32 = 1e-6
)

// CostModel turns raw tile properties plus live signals (crowd density,
// hazards) into a per-tile traversal cost, and tracks which tiles changed
// enough to matter. It owns the dirty queue the scheduler drains.
//
// Effective cost per tile:
//
//	eff = clamp(base + cw*congestion + hw*hazard, CostMin, CostMax)
//
// where congestion is 0 while density/capacity <= 1 and
// (density/capacity - 1)^2 once a tile is oversubscribed.
type CostModel struct {
	tileCount int

	base     []float32
	capacity []float32
	density  []float32 // exponentially smoothed
	hazard   []float32
	eff      []float32 // derived, cached
	passable []bool

	congestionW float32
	hazardW     float32
	emaLambda   float32
	dirtyEps    float32

	// Dirty queue: fixed ring sized to tileCount. The dirty flag dedups,
	// so occupancy can never exceed capacity.
	dirty  []bool
	queue  []int32
	qhead  int
	qcount int
}

// NewCostModel returns an uninitialized model with default tuning.
// Init must succeed before any other operation does anything.
func NewCostModel() *CostModel {
	return &CostModel{
		congestionW: 1,
		hazardW:     1,
		emaLambda:   DefaultEmaLambda,
		dirtyEps:    DefaultDirtyEpsilon,
	}
}

// Init sizes every per-tile array from the geometry and computes the
// initial effective cost for all tiles. Returns false (leaving the model
// uninitialized) when the geometry is absent or degenerate.
func (c *CostModel) Init(geo Geometry) bool {
	if geo == nil {
		return false
	}
	count := geo.TileCount()
	if count <= 0 {
		return false
	}

	c.tileCount = count
	c.base = make([]float32, count)
	c.capacity = make([]float32, count)
	c.density = make([]float32, count)
	c.hazard = make([]float32, count)
	c.eff = make([]float32, count)
	c.passable = make([]bool, count)
	c.dirty = make([]bool, count)
	c.queue = make([]int32, count)
	c.qhead = 0
	c.qcount = 0

	for tile := int32(0); tile < int32(count); tile++ {
		c.passable[tile] = geo.Passable(tile)
		if c.passable[tile] {
			c.base[tile] = geo.BaseCost(tile)
		} else {
			c.base[tile] = CostMax
		}
		c.capacity[tile] = geo.FlowCapacity(tile)
		c.eff[tile] = c.compute(tile)
	}
	return true
}

// Initialized reports whether Init has completed.
func (c *CostModel) Initialized() bool {
	return c.tileCount > 0
}

// TileCount returns the number of tiles, 0 before Init.
func (c *CostModel) TileCount() int {
	return c.tileCount
}

// SetCoefficients updates the global congestion and hazard weights
// (clamped to >= 0). A change beyond a tiny epsilon in either weight
// recomputes every tile, marking the meaningfully-changed ones dirty.
func (c *CostModel) SetCoefficients(congestionW, hazardW float32) {
	congestionW = clampWeight(congestionW)
	hazardW = clampWeight(hazardW)

	changed := absDiff(congestionW, c.congestionW) > coeffEpsilon ||
		absDiff(hazardW, c.hazardW) > coeffEpsilon
	c.congestionW = congestionW
	c.hazardW = hazardW

	if !changed || c.tileCount == 0 {
		return
	}
	for tile := int32(0); tile < int32(c.tileCount); tile++ {
		c.refresh(tile)
	}
}

// SetEmaLambda sets the density smoothing factor, clamped to [0, 1].
func (c *CostModel) SetEmaLambda(lambda float32) {
	if math.IsNaN(float64(lambda)) || lambda < 0 {
		lambda = 0
	} else if lambda > 1 {
		lambda = 1
	}
	c.emaLambda = lambda
}

// SetDirtyThreshold sets the minimum effective-cost change that marks a
// tile dirty, clamped to >= 0.
func (c *CostModel) SetDirtyThreshold(eps float32) {
	if math.IsNaN(float64(eps)) || eps < 0 {
		eps = 0
	}
	c.dirtyEps = eps
}

// SetHazard stores a hazard penalty (clamped to >= 0) for a tile and
// refreshes its effective cost. Returns false for an out-of-range tile or
// an uninitialized model; nothing changes in that case.
func (c *CostModel) SetHazard(tile int32, penalty float32) bool {
	if !c.inRange(tile) {
		return false
	}
	if math.IsNaN(float64(penalty)) || penalty < 0 {
		penalty = 0
	}
	c.hazard[tile] = penalty
	c.refresh(tile)
	return true
}

// Hazard returns the stored hazard penalty for a tile, 0 if out of range.
func (c *CostModel) Hazard(tile int32) float32 {
	if !c.inRange(tile) {
		return 0
	}
	return c.hazard[tile]
}

// AddCrowdSamples folds one density sample per tile into the smoothed
// crowd signal: density += lambda*(rate - density). Pairs beyond the
// shorter slice are ignored, as are out-of-range tiles and non-finite
// rates. A lambda of 0 makes the whole call a no-op. Returns the number
// of tiles updated.
func (c *CostModel) AddCrowdSamples(tiles []int32, rates []float32) int {
	if c.emaLambda <= 0 || c.tileCount == 0 {
		return 0
	}
	n := len(tiles)
	if len(rates) < n {
		n = len(rates)
	}
	applied := 0
	for i := 0; i < n; i++ {
		tile := tiles[i]
		if !c.inRange(tile) {
			continue
		}
		rate := rates[i]
		if math.IsNaN(float64(rate)) || math.IsInf(float64(rate), 0) {
			continue
		}
		if rate < 0 {
			rate = 0
		}
		c.density[tile] += c.emaLambda * (rate - c.density[tile])
		c.refresh(tile)
		applied++
	}
	return applied
}

// Density returns the smoothed crowd density for a tile, 0 if out of range.
func (c *CostModel) Density(tile int32) float32 {
	if !c.inRange(tile) {
		return 0
	}
	return c.density[tile]
}

// EffectiveCost returns the cached effective cost, or CostMax for an
// out-of-range tile.
func (c *CostModel) EffectiveCost(tile int32) float32 {
	if !c.inRange(tile) {
		return CostMax
	}
	return c.eff[tile]
}

// EffectiveCosts exposes the cached effective-cost array. Callers must
// treat it as read-only; builds copy it into their own snapshot.
func (c *CostModel) EffectiveCosts() []float32 {
	return c.eff
}

// MarkDirty enqueues a tile unconditionally (idempotent: an already-dirty
// tile keeps its queue position). Returns false only for out-of-range.
func (c *CostModel) MarkDirty(tile int32) bool {
	if !c.inRange(tile) {
		return false
	}
	c.enqueue(tile)
	return true
}

// MarkManyDirty enqueues every in-range tile, returning how many were
// newly enqueued.
func (c *CostModel) MarkManyDirty(tiles []int32) int {
	added := 0
	for _, tile := range tiles {
		if !c.inRange(tile) {
			continue
		}
		if c.enqueue(tile) {
			added++
		}
	}
	return added
}

// ConsumeDirty dequeues up to max tile ids in FIFO order into out
// (reusing its backing storage), clearing their dirty flags. Whatever
// does not fit stays queued in original order.
func (c *CostModel) ConsumeDirty(max int, out []int32) []int32 {
	out = out[:0]
	if max <= 0 || c.qcount == 0 {
		return out
	}
	n := c.qcount
	if max < n {
		n = max
	}
	for i := 0; i < n; i++ {
		tile := c.queue[c.qhead]
		c.qhead++
		if c.qhead == c.tileCount {
			c.qhead = 0
		}
		c.qcount--
		c.dirty[tile] = false
		out = append(out, tile)
	}
	return out
}

// Requeue marks tiles dirty again, used to hand back a batch that was
// consumed but never successfully applied so the change is delayed, not
// lost.
func (c *CostModel) Requeue(tiles []int32) {
	for _, tile := range tiles {
		if c.inRange(tile) {
			c.enqueue(tile)
		}
	}
}

// DirtyLen returns the number of tiles currently queued.
func (c *CostModel) DirtyLen() int {
	return c.qcount
}

// IsDirty reports whether a tile is currently enqueued.
func (c *CostModel) IsDirty(tile int32) bool {
	return c.inRange(tile) && c.dirty[tile]
}

func (c *CostModel) inRange(tile int32) bool {
	return tile >= 0 && int(tile) < c.tileCount
}

// refresh recomputes one tile's effective cost and marks it dirty when the
// change exceeds the threshold.
func (c *CostModel) refresh(tile int32) {
	old := c.eff[tile]
	next := c.compute(tile)
	c.eff[tile] = next
	if absDiff(next, old) > c.dirtyEps {
		c.enqueue(tile)
	}
}

func (c *CostModel) compute(tile int32) float32 {
	if !c.passable[tile] {
		return CostMax
	}

	var congestion float32
	flowCap := c.capacity[tile]
	den := c.density[tile]
	if flowCap > 0 {
		if over := den/flowCap - 1; over > 0 {
			congestion = over * over
		}
	} else if den > 0 {
		// Zero capacity with any crowd at all saturates the tile.
		congestion = float32(math.Inf(1))
	}

	eff := c.base[tile] + c.congestionW*congestion + c.hazardW*c.hazard[tile]
	if math.IsNaN(float64(eff)) || math.IsInf(float64(eff), 0) {
		return CostMax
	}
	if eff < CostMin {
		return CostMin
	}
	if eff > CostMax {
		return CostMax
	}
	return eff
}

func (c *CostModel) enqueue(tile int32) bool {
	if c.dirty[tile] {
		return false
	}
	c.dirty[tile] = true
	tail := c.qhead + c.qcount
	if tail >= c.tileCount {
		tail -= c.tileCount
	}
	c.queue[tail] = tile
	c.qcount++
	return true
}

func clampWeight(w float32) float32 {
	if math.IsNaN(float64(w)) || w < 0 {
		return 0
	}
	return w
}

func absDiff(a, b float32) float32 {
	if a > b {
		return a - b
	}
	return b - a
}
