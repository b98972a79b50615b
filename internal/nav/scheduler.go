package nav

import (
	"time"
)

// GoalKind enumerates navigation target kinds. The application defines
// its own constants; the engine only uses the value as a key.
type GoalKind uint8

// SwapEvent reports one completed, published field build.
type SwapEvent struct {
	Kind  GoalKind
	Stamp uint32
	Stats BuildStats
}

// goalState is the scheduler's per-goal bookkeeping, kept in registration
// order.
type goalState struct {
	kind    GoalKind
	field   *Field
	sources []int32

	cadence time.Duration // 0 = as often as possible
	since   time.Duration // idle time since last build start
	force   bool

	// consumed marks that this goal already built against the currently
	// outstanding shared dirty batch.
	consumed bool
	// wasBuilding is the scheduler's belief after its last pass; a field
	// that stopped building outside Update was cancelled under us.
	wasBuilding bool

	lastStats BuildStats
	builds    uint64
}

// Scheduler multiplexes one per-frame time budget and one shared
// dirty-tile batch across independently-cadenced goals. Several goals
// typically need rebuilding for the same cost change, so the dirty queue
// is drained once per Update and the batch handed to every goal in turn;
// the single shared budget bounds total pathfinding cost per frame no
// matter how many goals come due at once.
type Scheduler struct {
	graph *Graph
	costs *CostModel

	budget time.Duration // 0 = single-step pacing
	goals  []*goalState
	index  map[GoalKind]int

	batch     []int32
	batchLive bool
	drained   bool // one drain attempt per Update

	swaps []SwapEvent
}

// NewScheduler wires a scheduler to the graph and cost model it serves.
func NewScheduler(g *Graph, costs *CostModel) *Scheduler {
	return &Scheduler{
		graph: g,
		costs: costs,
		index: make(map[GoalKind]int),
		batch: make([]int32, 0, 64),
	}
}

// Bind registers a goal with its source set, or rebinds an existing one.
// Rebinding cancels any in-progress build for that goal and forces a
// fresh one. Returns false when the scheduler has no graph to build
// against.
func (s *Scheduler) Bind(kind GoalKind, sources []int32) bool {
	if s.graph == nil || s.graph.tileCount <= 0 {
		return false
	}
	if i, ok := s.index[kind]; ok {
		st := s.goals[i]
		if st.field.IsBuilding() {
			st.field.CancelBuild()
		}
		st.sources = append(st.sources[:0], sources...)
		st.force = true
		return true
	}

	field := NewField(s.graph.tileCount)
	if field == nil {
		return false
	}
	st := &goalState{
		kind:    kind,
		field:   field,
		sources: append([]int32(nil), sources...),
		force:   true,
	}
	s.index[kind] = len(s.goals)
	s.goals = append(s.goals, st)
	return true
}

// SetBudget sets the shared per-Update time pool. Zero switches to
// single-step pacing: each Update relaxes exactly one node per building
// goal.
func (s *Scheduler) SetBudget(budget time.Duration) {
	if budget < 0 {
		budget = 0
	}
	s.budget = budget
}

// Budget returns the shared per-Update time pool.
func (s *Scheduler) Budget() time.Duration {
	return s.budget
}

// SetCadence sets a goal's rebuild rate in Hz (0 or less means "as often
// as possible") and resets its timer. Returns false for an unknown goal.
func (s *Scheduler) SetCadence(kind GoalKind, hz float64) bool {
	st := s.goal(kind)
	if st == nil {
		return false
	}
	if hz <= 0 {
		st.cadence = 0
	} else {
		st.cadence = time.Duration(float64(time.Second) / hz)
	}
	st.since = 0
	return true
}

// ForceRebuild marks a goal for a from-scratch rebuild at the next
// Update, ahead of dirty batches and cadence. Returns false for an
// unknown goal.
func (s *Scheduler) ForceRebuild(kind GoalKind) bool {
	st := s.goal(kind)
	if st == nil {
		return false
	}
	st.force = true
	return true
}

// Update runs one scheduling pass: timers advance, due goals start
// builds, and building goals step with whatever remains of the shared
// budget, in registration order. The returned slice (reused across
// calls) lists the goals whose fields were published during this pass.
func (s *Scheduler) Update(dt time.Duration) []SwapEvent {
	s.swaps = s.swaps[:0]
	if len(s.goals) == 0 {
		return s.swaps
	}
	s.drained = false

	for _, st := range s.goals {
		if !st.field.IsBuilding() {
			st.since += dt
		}
	}

	// A build cancelled out from under the scheduler (goal rebound
	// mid-build) counts as a failed step: partial stats are already gone,
	// the held batch goes back to the queue, the goal retries from
	// scratch.
	for _, st := range s.goals {
		if st.wasBuilding && !st.field.IsBuilding() {
			st.wasBuilding = false
			st.force = true
			if s.batchLive && st.consumed {
				s.failBatch()
			}
		}
	}

	remaining := s.budget
	for _, st := range s.goals {
		if !st.field.IsBuilding() {
			s.maybeStart(st)
		}
		if st.field.IsBuilding() {
			if s.budget > 0 && remaining <= 0 {
				st.wasBuilding = true
				continue
			}
			var stepBudget time.Duration
			if s.budget > 0 {
				stepBudget = remaining
			}
			before := time.Now()
			stats, done := st.field.Step(s.graph, stepBudget)
			if s.budget > 0 {
				remaining -= time.Since(before)
			}
			if done {
				st.lastStats = stats
				st.builds++
				s.swaps = append(s.swaps, SwapEvent{
					Kind:  st.kind,
					Stamp: st.field.Stamp(),
					Stats: stats,
				})
			}
		}
		st.wasBuilding = st.field.IsBuilding()
	}
	return s.swaps
}

// maybeStart decides whether an idle goal should begin a build this pass:
// force first, then an unconsumed shared dirty batch, then cadence
// expiry. Only dirty-triggered builds hot-start from the batch; force-
// and cadence-triggered builds start from scratch, which reflects every
// cost change anyway, so a successful start of any kind consumes an
// outstanding batch.
func (s *Scheduler) maybeStart(st *goalState) {
	withBatch := false
	switch {
	case st.force:
	case s.ensureBatch() && !st.consumed:
		withBatch = true
	case st.cadence == 0 || st.since >= st.cadence:
	default:
		return
	}

	var batch []int32
	if withBatch {
		batch = s.batch
	}
	if !st.field.StartBuild(s.graph, st.sources, s.costs.EffectiveCosts(), batch) {
		// Invalid configuration (typically an empty source set): retry
		// via force, and hand back any batch this attempt would have
		// applied rather than losing it.
		st.force = true
		if s.batchLive && !st.consumed {
			s.failBatch()
		}
		return
	}

	st.since = 0
	st.force = false
	if s.batchLive {
		st.consumed = true
		s.releaseBatchIfConsumed()
	}
}

// ensureBatch makes the shared dirty batch available, draining the cost
// model at most once per Update and only when no batch is already
// outstanding.
func (s *Scheduler) ensureBatch() bool {
	if s.batchLive {
		return true
	}
	if s.drained {
		return false
	}
	s.drained = true
	s.batch = s.costs.ConsumeDirty(s.graph.tileCount, s.batch)
	if len(s.batch) == 0 {
		return false
	}
	s.batchLive = true
	for _, st := range s.goals {
		st.consumed = false
	}
	return true
}

// releaseBatchIfConsumed retires the outstanding batch once every bound
// goal has built against it.
func (s *Scheduler) releaseBatchIfConsumed() {
	for _, st := range s.goals {
		if !st.consumed {
			return
		}
	}
	s.batchLive = false
	s.batch = s.batch[:0]
	for _, st := range s.goals {
		st.consumed = false
	}
}

// failBatch returns every batched tile to the dirty queue so the change
// is delayed, never dropped.
func (s *Scheduler) failBatch() {
	s.costs.Requeue(s.batch)
	s.batchLive = false
	s.batch = s.batch[:0]
	for _, st := range s.goals {
		st.consumed = false
	}
}

// OutstandingBatch returns the size of the shared batch still awaiting
// consumption by some goal, 0 when none is outstanding.
func (s *Scheduler) OutstandingBatch() int {
	if !s.batchLive {
		return 0
	}
	return len(s.batch)
}

// Goals returns the registered goal kinds in registration order.
func (s *Scheduler) Goals() []GoalKind {
	kinds := make([]GoalKind, len(s.goals))
	for i, st := range s.goals {
		kinds[i] = st.kind
	}
	return kinds
}

// Field returns a goal's field for reads, nil for an unknown goal.
func (s *Scheduler) Field(kind GoalKind) *Field {
	st := s.goal(kind)
	if st == nil {
		return nil
	}
	return st.field
}

// LastStats returns the stats of a goal's last completed build.
func (s *Scheduler) LastStats(kind GoalKind) (BuildStats, bool) {
	st := s.goal(kind)
	if st == nil {
		return BuildStats{}, false
	}
	return st.lastStats, true
}

// Builds returns how many builds a goal has published.
func (s *Scheduler) Builds(kind GoalKind) uint64 {
	st := s.goal(kind)
	if st == nil {
		return 0
	}
	return st.builds
}

func (s *Scheduler) goal(kind GoalKind) *goalState {
	i, ok := s.index[kind]
	if !ok {
		return nil
	}
	return s.goals[i]
}
