// Package nav is the incremental flow-field pathfinding engine: a dynamic
// per-tile cost model fed by live congestion and hazard signals, a
// time-sliced multi-source Dijkstra field builder with double-buffered
// publishing, and a scheduler that shares one per-frame time budget and
// one dirty-tile feed across independently-cadenced goals.
//
// Everything here is single-threaded and cooperative: the owner calls
// Update once per frame from its tick loop, reads never observe a build
// in progress, and no operation blocks or locks. Each Engine instance
// owns all of its state, so independent simulations can run side by
// side.
package nav

import (
	"fmt"
	"time"
)

// DefaultBudget is the per-frame pathfinding budget the engine starts
// with. Roughly one-tenth of a 60 Hz frame.
const DefaultBudget = 1500 * time.Microsecond

// Engine ties the neighbor graph, cost model, fields, and scheduler
// together behind the surface the simulation talks to.
type Engine struct {
	graph *Graph
	costs *CostModel
	sched *Scheduler
}

// NewEngine builds the full navigation stack for one world. The geometry
// is consulted once here; world regeneration means a new Engine.
func NewEngine(geo Geometry) (*Engine, error) {
	graph, err := BuildGraph(geo)
	if err != nil {
		return nil, err
	}
	costs := NewCostModel()
	if !costs.Init(geo) {
		return nil, fmt.Errorf("nav: cost model rejected geometry")
	}
	sched := NewScheduler(graph, costs)
	sched.SetBudget(DefaultBudget)
	return &Engine{graph: graph, costs: costs, sched: sched}, nil
}

// Graph returns the immutable neighbor graph.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// TileCount returns the world's tile count.
func (e *Engine) TileCount() int {
	return e.graph.tileCount
}

// BindGoal registers or rebinds a goal's source tiles. Rebinding cancels
// any in-progress build for that goal and forces a fresh one.
func (e *Engine) BindGoal(kind GoalKind, sources []int32) bool {
	return e.sched.Bind(kind, sources)
}

// Update runs one frame of field maintenance and returns the goals whose
// fields were published during this call. The returned slice is reused.
func (e *Engine) Update(dt time.Duration) []SwapEvent {
	return e.sched.Update(dt)
}

// SetBudget sets the shared per-frame time pool (0 = single-step pacing).
func (e *Engine) SetBudget(budget time.Duration) {
	e.sched.SetBudget(budget)
}

// Budget returns the shared per-frame time pool.
func (e *Engine) Budget() time.Duration {
	return e.sched.Budget()
}

// SetCadence sets a goal's rebuild rate in Hz and resets its timer.
func (e *Engine) SetCadence(kind GoalKind, hz float64) bool {
	return e.sched.SetCadence(kind, hz)
}

// ForceRebuild schedules a from-scratch rebuild of a goal's field.
func (e *Engine) ForceRebuild(kind GoalKind) bool {
	return e.sched.ForceRebuild(kind)
}

// SetCoefficients updates the congestion and hazard weights.
func (e *Engine) SetCoefficients(congestionW, hazardW float32) {
	e.costs.SetCoefficients(congestionW, hazardW)
}

// SetEmaLambda sets the crowd-density smoothing factor in [0, 1].
func (e *Engine) SetEmaLambda(lambda float32) {
	e.costs.SetEmaLambda(lambda)
}

// SetDirtyThreshold sets the effective-cost change below which a tile is
// not re-marked dirty.
func (e *Engine) SetDirtyThreshold(eps float32) {
	e.costs.SetDirtyThreshold(eps)
}

// SetHazard stores a hazard penalty for a tile.
func (e *Engine) SetHazard(tile int32, penalty float32) bool {
	return e.costs.SetHazard(tile, penalty)
}

// AddCrowdSamples feeds per-tile crowd rates into the density EMA.
// Returns how many tiles were updated.
func (e *Engine) AddCrowdSamples(tiles []int32, rates []float32) int {
	return e.costs.AddCrowdSamples(tiles, rates)
}

// EffectiveCost returns a tile's current effective traversal cost.
func (e *Engine) EffectiveCost(tile int32) float32 {
	return e.costs.EffectiveCost(tile)
}

// QueryDirection returns the unit world-space direction an agent on tile
// should move to approach the goal. ok is false when the goal is
// unknown, the tile is out of range, or the tile is a source or
// unreachable in the currently published field.
func (e *Engine) QueryDirection(kind GoalKind, tile int32) (dx, dy float32, ok bool) {
	field := e.sched.Field(kind)
	if field == nil || tile < 0 || int(tile) >= field.tileCount {
		return 0, 0, false
	}
	dir := field.NextDirections()[tile]
	if dir == DirNone {
		return 0, 0, false
	}
	dx, dy = e.graph.Direction(dir)
	return dx, dy, true
}

// Distance returns a tile's published distance to the goal's nearest
// source. ok is false for an unknown goal or out-of-range tile;
// Unreachable distances are returned as-is with ok true.
func (e *Engine) Distance(kind GoalKind, tile int32) (float32, bool) {
	field := e.sched.Field(kind)
	if field == nil || tile < 0 || int(tile) >= field.tileCount {
		return Unreachable, false
	}
	return field.Distances()[tile], true
}

// Distances returns a goal's published distance array, nil for an
// unknown goal. Read-only.
func (e *Engine) Distances(kind GoalKind) []float32 {
	field := e.sched.Field(kind)
	if field == nil {
		return nil
	}
	return field.Distances()
}

// NextDirections returns a goal's published direction array, nil for an
// unknown goal. Read-only.
func (e *Engine) NextDirections(kind GoalKind) []int8 {
	field := e.sched.Field(kind)
	if field == nil {
		return nil
	}
	return field.NextDirections()
}

// Stamp returns a goal's publish stamp, 0 for an unknown goal or before
// its first publish.
func (e *Engine) Stamp(kind GoalKind) uint32 {
	field := e.sched.Field(kind)
	if field == nil {
		return 0
	}
	return field.Stamp()
}

// IsBuilding reports whether a goal's field build is in progress.
func (e *Engine) IsBuilding(kind GoalKind) bool {
	field := e.sched.Field(kind)
	return field != nil && field.IsBuilding()
}

// LastStats returns the stats of a goal's last completed build.
func (e *Engine) LastStats(kind GoalKind) (BuildStats, bool) {
	return e.sched.LastStats(kind)
}

// Builds returns how many field builds a goal has published.
func (e *Engine) Builds(kind GoalKind) uint64 {
	return e.sched.Builds(kind)
}

// Goals returns the registered goal kinds in registration order.
func (e *Engine) Goals() []GoalKind {
	return e.sched.Goals()
}

// DirtyLen returns the number of tiles awaiting field recomputation.
func (e *Engine) DirtyLen() int {
	return e.costs.DirtyLen()
}

// OutstandingBatch returns the size of the shared dirty batch not yet
// consumed by every goal.
func (e *Engine) OutstandingBatch() int {
	return e.sched.OutstandingBatch()
}
