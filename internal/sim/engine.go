package sim

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"hexhaul/internal/config"
	"hexhaul/internal/nav"
	"hexhaul/internal/world"
)

// resourceRespawnSeconds is how long a drained resource site stays empty
// before restocking.
const resourceRespawnSeconds = 20.0

// TelemetrySink receives build and tick rows from the engine. The sink
// must not block; the engine calls it from inside the tick.
type TelemetrySink interface {
	RecordBuild(goal string, stamp uint32, stats nav.BuildStats, tick uint64)
	RecordTick(tick uint64, durationUs int64, agents, dirtyLen int)
}

// resourceSite is the live state of one resource site.
type resourceSite struct {
	tiles        []int32
	stock        int32
	maxStock     int32
	respawnTimer float64
	depleted     bool
}

// NavStats is the navigation health block served by the API.
type NavStats struct {
	BudgetUs         int64         `json:"budgetUs"`
	DirtyLen         int           `json:"dirtyLen"`
	OutstandingBatch int           `json:"outstandingBatch"`
	Goals            []FieldStatus `json:"goals"`
}

// Engine is the main simulation engine handling the tick loop.
type Engine struct {
	mu sync.RWMutex

	world *world.World
	nav   *nav.Engine

	agents    []Agent
	nextID    int32
	maxAgents int

	resources      []resourceSite
	resourceByTile map[int32]int // resource tile -> index into resources

	density     *DensityGrid
	commands    *CommandQueue
	cmdScratch  []Command
	leaderboard *Leaderboard

	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}

	// Stats
	tickCount   int64
	totalHauled int64
	lastTickUs  int64

	// Snapshot system for lock-free broadcast separation
	snapshotPool *SnapshotPool

	// Event sourcing for replay and debugging
	eventLog *EventLog

	// Telemetry sink, optional
	telemetry TelemetrySink

	// Deterministic RNG for replay consistency
	rng     *rand.Rand
	rngSeed int64
}

// NewEngine wires the simulation over a resolved world: navigation
// fields bound to the world's sites, startup hazards applied, and the
// initial agent population spawned at depot tiles.
func NewEngine(w *world.World, simCfg config.SimConfig, navCfg config.NavConfig) (*Engine, error) {
	navEngine, err := nav.NewEngine(w)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	seed := simCfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	limits := DefaultSnapshotLimits
	if simCfg.MaxAgents > 0 {
		limits.MaxAgents = simCfg.MaxAgents
	}

	e := &Engine{
		world:          w,
		nav:            navEngine,
		maxAgents:      simCfg.MaxAgents,
		resourceByTile: make(map[int32]int),
		density:        NewDensityGrid(w.TileCount(), simCfg.TickRate),
		commands:       NewCommandQueue(256),
		cmdScratch:     make([]Command, 64),
		leaderboard:    NewLeaderboard(),
		tickRate:       simCfg.TickRate,
		stopChan:       make(chan struct{}),
		snapshotPool:   NewSnapshotPool(limits),
		eventLog:       NewEventLog(),
		rng:            rand.New(rand.NewSource(seed)),
		rngSeed:        seed,
	}

	navEngine.SetBudget(time.Duration(navCfg.BudgetMicros) * time.Microsecond)
	navEngine.SetCoefficients(float32(navCfg.CongestionWeight), float32(navCfg.HazardWeight))
	navEngine.SetEmaLambda(float32(navCfg.EmaLambda))
	navEngine.SetDirtyThreshold(float32(navCfg.DirtyEpsilon))

	for _, s := range w.SitesOf(world.GoalResource) {
		idx := len(e.resources)
		e.resources = append(e.resources, resourceSite{
			tiles:    s.Tiles,
			stock:    int32(s.Stock),
			maxStock: int32(s.Stock),
		})
		for _, tile := range s.Tiles {
			e.resourceByTile[tile] = idx
		}
	}

	if !navEngine.BindGoal(world.GoalDepot, w.Sources(world.GoalDepot)) ||
		!navEngine.BindGoal(world.GoalRest, w.Sources(world.GoalRest)) ||
		!navEngine.BindGoal(world.GoalResource, e.liveResourceTiles()) {
		return nil, fmt.Errorf("sim: goal binding failed")
	}
	navEngine.SetCadence(world.GoalDepot, navCfg.DepotHz)
	navEngine.SetCadence(world.GoalRest, navCfg.RestHz)
	navEngine.SetCadence(world.GoalResource, navCfg.ResourceHz)

	for _, h := range w.StartupHazards() {
		navEngine.SetHazard(h.Tile, h.Penalty)
	}

	e.spawnAgents(simCfg.Agents)
	return e, nil
}

// Start begins the tick loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))

	go func() {
		for {
			select {
			case <-e.ticker.C:
				e.tick()
			case <-e.stopChan:
				return
			}
		}
	}()

	log.Printf("🚚 Sim engine started at %d TPS on %q (%dx%d, %d agents)",
		e.tickRate, e.world.Name(), e.world.Cols(), e.world.Rows(), len(e.agents))
}

// Stop stops the tick loop
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	e.running = false
	if e.ticker != nil {
		e.ticker.Stop()
	}
	close(e.stopChan)
	log.Println("🛑 Sim engine stopped")
}

// tick is called at tickRate times per second
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.tickCount++
	deltaTime := 1.0 / float64(e.tickRate)

	// Log tick event with RNG seed for deterministic replay
	e.eventLog.EmitSimple(EventTypeTick, uint64(e.tickCount), "sim",
		TickPayload{
			RNGSeed:     e.rngSeed,
			AgentCount:  len(e.agents),
			DeltaTimeNs: int64(deltaTime * 1e9),
		})

	// Advance RNG seed deterministically for next tick
	e.rngSeed = e.rng.Int63()
	e.rng.Seed(e.rngSeed)

	e.drainCommands()
	e.updateResources(deltaTime)

	for i := range e.agents {
		e.agents[i].Update(e, deltaTime)
		e.density.Observe(e.agents[i].Tile)
	}

	// Crowd pressure flows into the cost model once per window
	if e.density.Tick() {
		tiles, rates := e.density.Flush()
		e.nav.AddCrowdSamples(tiles, rates)
	}

	swaps := e.nav.Update(time.Duration(deltaTime * float64(time.Second)))
	for _, s := range swaps {
		goal := world.GoalName(s.Kind)
		e.eventLog.EmitSimple(EventTypeFieldSwap, uint64(e.tickCount), "nav",
			FieldSwapPayload{
				Goal:       goal,
				Stamp:      s.Stamp,
				Nodes:      s.Stats.NodesRelaxed,
				DurationUs: s.Stats.Elapsed.Microseconds(),
				DirtySeeds: s.Stats.DirtySeeded,
				HotStart:   s.Stats.HotStart,
			})
		if e.telemetry != nil {
			e.telemetry.RecordBuild(goal, s.Stamp, s.Stats, uint64(e.tickCount))
		}
	}

	e.lastTickUs = time.Since(start).Microseconds()
	if e.telemetry != nil {
		e.telemetry.RecordTick(uint64(e.tickCount), e.lastTickUs, len(e.agents), e.nav.DirtyLen())
	}

	// Produce immutable snapshot for lock-free broadcast access
	e.produceSnapshot()
}

// =============================================================================
// COMMANDS
// =============================================================================

// Submit queues an admin command for the next tick. Safe from any
// goroutine. Returns false when the queue is full.
func (e *Engine) Submit(cmd Command) bool {
	return e.commands.Submit(cmd)
}

// drainCommands applies queued admin commands inside the tick.
func (e *Engine) drainCommands() {
	n := e.commands.DrainTo(e.cmdScratch)
	for i := 0; i < n; i++ {
		cmd := e.cmdScratch[i]
		accepted := e.applyCommand(cmd)
		e.eventLog.EmitSimple(EventTypeCommand, uint64(e.tickCount), "admin",
			CommandPayload{Kind: cmd.Kind.String(), Accepted: accepted})
	}
}

func (e *Engine) applyCommand(cmd Command) bool {
	switch cmd.Kind {
	case CmdSpawnAgents:
		if cmd.Count <= 0 {
			return false
		}
		spawned := e.spawnAgents(cmd.Count)
		return spawned > 0

	case CmdSetHazard:
		if cmd.Value < 0 || !e.nav.SetHazard(cmd.Tile, float32(cmd.Value)) {
			return false
		}
		e.eventLog.EmitSimple(EventTypeHazardSet, uint64(e.tickCount), "admin",
			HazardPayload{Tile: cmd.Tile, Penalty: cmd.Value})
		log.Printf("☣️ Hazard set on tile %d (penalty %.1f)", cmd.Tile, cmd.Value)
		return true

	case CmdClearHazard:
		if !e.nav.SetHazard(cmd.Tile, 0) {
			return false
		}
		e.eventLog.EmitSimple(EventTypeHazardCleared, uint64(e.tickCount), "admin",
			HazardPayload{Tile: cmd.Tile})
		log.Printf("🧹 Hazard cleared on tile %d", cmd.Tile)
		return true

	case CmdSetBudget:
		if cmd.Value < 0 {
			return false
		}
		e.nav.SetBudget(time.Duration(cmd.Value) * time.Microsecond)
		log.Printf("⏱️ Pathfinding budget set to %.0fµs", cmd.Value)
		return true

	case CmdSetCadence:
		return e.nav.SetCadence(cmd.Goal, cmd.Value)

	case CmdForceRebuild:
		return e.nav.ForceRebuild(cmd.Goal)

	case CmdSetCoefficients:
		if cmd.Value < 0 || cmd.Aux < 0 {
			return false
		}
		e.nav.SetCoefficients(float32(cmd.Value), float32(cmd.Aux))
		log.Printf("⚖️ Cost coefficients set: congestion %.2f, hazard %.2f", cmd.Value, cmd.Aux)
		return true
	}
	return false
}

// =============================================================================
// AGENTS AND SITES
// =============================================================================

// spawnAgents adds up to count agents at depot tiles, honoring the hard
// cap. Returns how many actually spawned.
func (e *Engine) spawnAgents(count int) int {
	depots := e.world.Sources(world.GoalDepot)
	if len(depots) == 0 {
		return 0
	}

	spawned := 0
	for i := 0; i < count; i++ {
		// HARD CAP: prevent runaway spawn commands
		if e.maxAgents > 0 && len(e.agents) >= e.maxAgents {
			log.Printf("⚠️ Agent limit reached (%d), dropping %d spawns", e.maxAgents, count-i)
			break
		}
		id := e.nextID
		e.nextID++
		tile := depots[e.rng.Intn(len(depots))]
		a := NewAgent(id, tile, e.world, e.rng)
		e.agents = append(e.agents, a)
		e.leaderboard.RecordHauled(id, 0)
		spawned++

		e.eventLog.EmitSimple(EventTypeAgentSpawn, uint64(e.tickCount),
			fmt.Sprintf("agent_%d", id),
			AgentSpawnPayload{AgentID: id, Tile: tile, X: a.X, Y: a.Y})
	}
	return spawned
}

// withdrawStock takes up to want units from the resource site covering a
// tile. Returns 0 when the tile belongs to no site or the site is dry.
// Draining the last unit unbinds the site from the resource field.
func (e *Engine) withdrawStock(tile int32, want int) int {
	idx, ok := e.resourceByTile[tile]
	if !ok {
		return 0
	}
	site := &e.resources[idx]
	if site.stock <= 0 {
		return 0
	}

	take := int32(want)
	if take > site.stock {
		take = site.stock
	}
	site.stock -= take

	if site.stock == 0 {
		site.depleted = true
		site.respawnTimer = resourceRespawnSeconds
		e.eventLog.EmitSimple(EventTypeResourceDepleted, uint64(e.tickCount), "sim",
			ResourcePayload{SiteTile: site.tiles[0], Stock: 0})
		log.Printf("⛏️ Resource site at tile %d drained, respawn in %.0fs",
			site.tiles[0], resourceRespawnSeconds)
		e.rebindResourceField()
	}
	return int(take)
}

// deliverCargo credits an agent's load to the depot it stands on.
func (e *Engine) deliverCargo(a *Agent) {
	units := int(a.Carry)
	if units <= 0 {
		return
	}
	a.Carry = 0
	a.Hauled += int32(units)
	a.Trips++
	e.totalHauled += int64(units)
	e.leaderboard.RecordHauled(a.ID, int(a.Hauled))

	e.eventLog.EmitSimple(EventTypeDelivery, uint64(e.tickCount),
		fmt.Sprintf("agent_%d", a.ID),
		DeliveryPayload{AgentID: a.ID, DepotTile: a.Tile, Units: units, Total: int(a.Hauled)})
}

// updateResources restocks drained sites once their timers expire.
func (e *Engine) updateResources(dt float64) {
	restocked := false
	for i := range e.resources {
		site := &e.resources[i]
		if !site.depleted {
			continue
		}
		site.respawnTimer -= dt
		if site.respawnTimer > 0 {
			continue
		}
		site.depleted = false
		site.stock = site.maxStock
		restocked = true
		e.eventLog.EmitSimple(EventTypeResourceRespawn, uint64(e.tickCount), "sim",
			ResourcePayload{SiteTile: site.tiles[0], Stock: int(site.stock)})
		log.Printf("🌱 Resource site at tile %d restocked (%d units)", site.tiles[0], site.stock)
	}
	if restocked {
		e.rebindResourceField()
	}
}

// liveResourceTiles is the union of tiles of non-drained resource sites.
func (e *Engine) liveResourceTiles() []int32 {
	var out []int32
	for i := range e.resources {
		if !e.resources[i].depleted {
			out = append(out, e.resources[i].tiles...)
		}
	}
	return out
}

// rebindResourceField repoints the resource field at the sites that
// still have stock. With every site drained the field goes unreachable
// everywhere and agents idle until a restock.
func (e *Engine) rebindResourceField() {
	e.nav.BindGoal(world.GoalResource, e.liveResourceTiles())
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot returns the latest immutable snapshot for lock-free broadcast.
func (e *Engine) Snapshot() *WorldSnapshot {
	return e.snapshotPool.AcquireRead()
}

// produceSnapshot creates an immutable snapshot of the current sim state.
// Called at the end of each tick.
func (e *Engine) produceSnapshot() {
	limits := e.snapshotPool.Limits()
	snap := e.snapshotPool.AcquireWrite()
	snap.TickNumber = uint64(e.tickCount)
	snap.RNGSeed = e.rngSeed
	snap.AgentCount = len(e.agents)
	snap.TotalHauled = e.totalHauled
	snap.DirtyBacklog = e.nav.DirtyLen()
	snap.TickUs = e.lastTickUs
	snap.EventsTotal = e.eventLog.GetTotalCount()

	for i := range e.agents {
		if len(snap.Agents) >= limits.MaxAgents {
			break
		}
		a := &e.agents[i]
		snap.Agents = append(snap.Agents, AgentSnapshot{
			ID:      a.ID,
			X:       float32(a.X),
			Y:       float32(a.Y),
			VX:      float32(a.VX),
			VY:      float32(a.VY),
			Tile:    a.Tile,
			State:   a.State.String(),
			Carry:   a.Carry,
			Hauled:  a.Hauled,
			Fatigue: float32(a.Fatigue),
		})
	}

	resourceIdx := 0
	for _, s := range e.world.Sites() {
		if len(snap.Sites) >= limits.MaxSites {
			break
		}
		stock := int32(0)
		if s.Kind == world.GoalResource && resourceIdx < len(e.resources) {
			stock = e.resources[resourceIdx].stock
			resourceIdx++
		}
		snap.Sites = append(snap.Sites, SiteSnapshot{
			Kind:  world.GoalName(s.Kind),
			Tile:  s.Center,
			Stock: stock,
		})
	}

	for _, kind := range e.nav.Goals() {
		if len(snap.Goals) >= limits.MaxGoals {
			break
		}
		snap.Goals = append(snap.Goals, e.fieldStatus(kind))
	}

	for _, entry := range e.leaderboard.Top(limits.MaxStandings) {
		snap.Standings = append(snap.Standings, entry)
	}

	e.snapshotPool.PublishWrite()
}

func (e *Engine) fieldStatus(kind nav.GoalKind) FieldStatus {
	st := FieldStatus{
		Goal:       world.GoalName(kind),
		Stamp:      e.nav.Stamp(kind),
		Builds:     e.nav.Builds(kind),
		Rebuilding: e.nav.IsBuilding(kind),
	}
	if stats, ok := e.nav.LastStats(kind); ok {
		st.LastNodes = stats.NodesRelaxed
		st.LastDurationUs = stats.Elapsed.Microseconds()
		st.LastHotStart = stats.HotStart
	}
	return st
}

// =============================================================================
// ACCESSORS
// =============================================================================

// World returns the immutable playfield.
func (e *Engine) World() *world.World {
	return e.world
}

// TickCount returns the number of completed ticks.
func (e *Engine) TickCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tickCount
}

// AgentCount returns the live agent count.
func (e *Engine) AgentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.agents)
}

// TotalHauled returns the units delivered across all agents.
func (e *Engine) TotalHauled() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalHauled
}

// NavStats reports navigation health for the API.
func (e *Engine) NavStats() NavStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := NavStats{
		BudgetUs:         e.nav.Budget().Microseconds(),
		DirtyLen:         e.nav.DirtyLen(),
		OutstandingBatch: e.nav.OutstandingBatch(),
	}
	for _, kind := range e.nav.Goals() {
		stats.Goals = append(stats.Goals, e.fieldStatus(kind))
	}
	return stats
}

// FieldCopy copies a goal's published field for debug surfaces. The
// returned slices are owned by the caller.
func (e *Engine) FieldCopy(kind nav.GoalKind) (dist []float32, dirs []int8, stamp uint32, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	src := e.nav.Distances(kind)
	if src == nil {
		return nil, nil, 0, false
	}
	dist = append(dist, src...)
	dirs = append(dirs, e.nav.NextDirections(kind)...)
	return dist, dirs, e.nav.Stamp(kind), true
}

// Leaderboard returns the live standings. Internally synchronized.
func (e *Engine) Leaderboard() *Leaderboard {
	return e.leaderboard
}

// SetTelemetry attaches a telemetry sink. Call before Start.
func (e *Engine) SetTelemetry(sink TelemetrySink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.telemetry = sink
}

// StartEventLog initializes the event logging system
func (e *Engine) StartEventLog(dir string) error {
	return e.eventLog.Start(dir)
}

// StopEventLog gracefully stops the event logging system
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}

// EventLogStats returns event log statistics for monitoring
func (e *Engine) EventLogStats() map[string]interface{} {
	return e.eventLog.GetStats()
}

// CommandDrops returns how many admin commands the ring rejected.
func (e *Engine) CommandDrops() uint64 {
	return e.commands.Dropped()
}
