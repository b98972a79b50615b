package sim

import (
	"sync/atomic"
	"time"
)

// SnapshotLimits defines hard caps on snapshot payloads so a runaway
// spawn command cannot balloon every broadcast frame.
type SnapshotLimits struct {
	MaxAgents    int // Hard cap on agents included per snapshot
	MaxSites     int // Site rows per snapshot
	MaxGoals     int // Goal field status rows
	MaxStandings int // Leaderboard rows
}

// DefaultSnapshotLimits provides production-safe default limits
var DefaultSnapshotLimits = SnapshotLimits{
	MaxAgents:    2000,
	MaxSites:     64,
	MaxGoals:     8,
	MaxStandings: 10,
}

// AgentSnapshot is an immutable copy of agent state for broadcast.
// Uses value types (not pointers) to ensure immutability.
type AgentSnapshot struct {
	ID      int32   `json:"id"`
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	VX      float32 `json:"vx"`
	VY      float32 `json:"vy"`
	Tile    int32   `json:"tile"`
	State   string  `json:"state"`
	Carry   int16   `json:"carry"`
	Hauled  int32   `json:"hauled"`
	Fatigue float32 `json:"fatigue"`
}

// SiteSnapshot is an immutable site row.
type SiteSnapshot struct {
	Kind  string `json:"kind"`
	Tile  int32  `json:"tile"`
	Stock int32  `json:"stock"`
}

// FieldStatus reports one goal's flow field health.
type FieldStatus struct {
	Goal           string `json:"goal"`
	Stamp          uint32 `json:"stamp"`
	Builds         uint64 `json:"builds"`
	LastNodes      int    `json:"lastNodes"`
	LastDurationUs int64  `json:"lastDurationUs"`
	LastHotStart   bool   `json:"lastHotStart"`
	Rebuilding     bool   `json:"rebuilding"`
}

// WorldSnapshot is a complete immutable world state for broadcast.
// All slices are pre-allocated and capped.
type WorldSnapshot struct {
	Sequence   uint64    `json:"sequence"`   // Monotonic sequence for ordering
	Timestamp  time.Time `json:"timestamp"`  // When snapshot was created
	TickNumber uint64    `json:"tickNumber"` // Sim tick this represents
	RNGSeed    int64     `json:"rngSeed"`    // Seed for deterministic replay

	Agents    []AgentSnapshot `json:"agents"`
	Sites     []SiteSnapshot  `json:"sites"`
	Goals     []FieldStatus   `json:"goals"`
	Standings []HaulerEntry   `json:"standings"`

	// Aggregate stats
	AgentCount   int    `json:"agentCount"`
	TotalHauled  int64  `json:"totalHauled"`
	DirtyBacklog int    `json:"dirtyBacklog"`
	TickUs       int64  `json:"tickUs"`
	EventsTotal  uint64 `json:"eventsTotal"`
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Uses triple buffering for lock-free producer/consumer.
type SnapshotPool struct {
	snapshots [3]WorldSnapshot
	limits    SnapshotLimits
	writeIdx  uint32 // atomic - producer index
	readIdx   uint32 // atomic - consumer index
	sequence  uint64 // atomic - monotonic sequence
}

// NewSnapshotPool creates a pool with pre-allocated slices
func NewSnapshotPool(limits SnapshotLimits) *SnapshotPool {
	pool := &SnapshotPool{limits: limits}

	for i := 0; i < 3; i++ {
		pool.snapshots[i] = WorldSnapshot{
			Agents:    make([]AgentSnapshot, 0, limits.MaxAgents),
			Sites:     make([]SiteSnapshot, 0, limits.MaxSites),
			Goals:     make([]FieldStatus, 0, limits.MaxGoals),
			Standings: make([]HaulerEntry, 0, limits.MaxStandings),
		}
	}
	return pool
}

// AcquireWrite gets the next write slot (producer only, called from sim tick).
// Returns a snapshot with reset slices but preserved capacity.
func (p *SnapshotPool) AcquireWrite() *WorldSnapshot {
	idx := atomic.AddUint32(&p.writeIdx, 1) % 3
	snap := &p.snapshots[idx]

	// Reset ALL slices but keep capacity (zero allocation)
	snap.Agents = snap.Agents[:0]
	snap.Sites = snap.Sites[:0]
	snap.Goals = snap.Goals[:0]
	snap.Standings = snap.Standings[:0]

	snap.AgentCount = 0
	snap.TotalHauled = 0
	snap.DirtyBacklog = 0
	snap.TickUs = 0
	snap.EventsTotal = 0

	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = time.Now()
	return snap
}

// PublishWrite marks write complete and advances read pointer.
// Called after snapshot is fully populated.
func (p *SnapshotPool) PublishWrite() {
	atomic.StoreUint32(&p.readIdx, atomic.LoadUint32(&p.writeIdx))
}

// AcquireRead gets the latest complete snapshot (consumer only).
// The pointed-to snapshot stays valid until the producer laps the
// triple buffer, so consumers should copy out what they need promptly.
func (p *SnapshotPool) AcquireRead() *WorldSnapshot {
	idx := atomic.LoadUint32(&p.readIdx) % 3
	return &p.snapshots[idx]
}

// Limits returns the configured caps.
func (p *SnapshotPool) Limits() SnapshotLimits {
	return p.limits
}
