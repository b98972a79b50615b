package sim

import (
	"math"
	"math/rand"

	"hexhaul/internal/nav"
	"hexhaul/internal/world"
)

// AgentState is the hauler's lifecycle state
type AgentState int

const (
	StateToResource AgentState = iota // Walking the resource field
	StateLoading                      // Drawing stock at a resource site
	StateToDepot                      // Hauling cargo along the depot field
	StateUnloading                    // Dropping cargo at a depot
	StateToRest                       // Walking the rest field
	StateResting                      // Recovering at a rest site
)

var stateNames = [...]string{
	"to_resource", "loading", "to_depot", "unloading", "to_rest", "resting",
}

func (s AgentState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Movement and work tuning. Velocities are world units per tick after
// clamping, positions are world units.
const (
	agentMoveSpeed = 3.0  // Steering force base
	agentMaxSpeed  = 4.0  // Per tick velocity clamp
	agentFriction  = 0.85 // Velocity decay per tick

	carryCapacity = 12 // Units per load

	loadSeconds   = 0.8
	unloadSeconds = 1.2
	restSeconds   = 6.0

	fatigueWalkRate  = 0.004 // Per second, walking empty
	fatigueHaulRate  = 0.010 // Per second, walking loaded
	fatigueRestRate  = 0.25  // Per second recovery while resting
	fatigueThreshold = 0.85  // Go rest after unloading past this
	restResumeBelow  = 0.15  // Leave the rest site under this
	fatigueSlowdown  = 0.5   // Max speed loss at full fatigue
)

// Agent is one hauler. Agents live in a flat slice on the engine and are
// updated in place; everything cross-agent goes through the engine.
type Agent struct {
	ID      int32
	X, Y    float64
	VX, VY  float64
	Tile    int32
	State   AgentState
	Carry   int16
	Hauled  int32
	Trips   int32
	Fatigue float64
	Haste   float64 // Per-agent speed personality, 0.75 to 1.25

	timer float64 // Countdown for loading/unloading/resting
}

// NewAgent spawns a hauler at a tile center with a randomized gait.
func NewAgent(id int32, tile int32, w *world.World, rng *rand.Rand) Agent {
	x, y := w.TileCenter(tile)
	return Agent{
		ID:    id,
		X:     x,
		Y:     y,
		Tile:  tile,
		State: StateToResource,
		Haste: 0.75 + rng.Float64()*0.5,
	}
}

// Update advances the agent one tick.
func (a *Agent) Update(e *Engine, dt float64) {
	switch a.State {
	case StateToResource, StateToDepot, StateToRest:
		rate := fatigueWalkRate
		if a.Carry > 0 {
			rate = fatigueHaulRate
		}
		a.Fatigue = math.Min(1, a.Fatigue+rate*dt)
	}

	switch a.State {
	case StateToResource:
		if a.travel(e, world.GoalResource, dt) {
			a.State = StateLoading
			a.timer = loadSeconds
		}

	case StateLoading:
		a.timer -= dt
		if a.timer <= 0 {
			got := e.withdrawStock(a.Tile, carryCapacity)
			if got == 0 {
				// Site ran dry under us. Head back out; the resource
				// field rebinds away from empty sites.
				a.State = StateToResource
				return
			}
			a.Carry = int16(got)
			a.State = StateToDepot
		}

	case StateToDepot:
		if a.travel(e, world.GoalDepot, dt) {
			a.State = StateUnloading
			a.timer = unloadSeconds
		}

	case StateUnloading:
		a.timer -= dt
		if a.timer <= 0 {
			e.deliverCargo(a)
			if a.Fatigue >= fatigueThreshold {
				a.State = StateToRest
			} else {
				a.State = StateToResource
			}
		}

	case StateToRest:
		if a.travel(e, world.GoalRest, dt) {
			a.State = StateResting
			a.timer = restSeconds
		}

	case StateResting:
		a.timer -= dt
		a.Fatigue = math.Max(0, a.Fatigue-fatigueRestRate*dt)
		if a.timer <= 0 && a.Fatigue <= restResumeBelow {
			a.State = StateToResource
		}
	}
}

// travel steers along a goal's flow field and reports arrival. Arrival
// means standing on one of the goal's source tiles.
func (a *Agent) travel(e *Engine, goal nav.GoalKind, dt float64) bool {
	if dist, ok := e.nav.Distance(goal, a.Tile); ok && dist == 0 {
		a.VX *= 0.5
		a.VY *= 0.5
		return true
	}

	dx, dy, ok := e.nav.QueryDirection(goal, a.Tile)
	if ok {
		speed := agentMoveSpeed * a.Haste * (1 - fatigueSlowdown*a.Fatigue)
		a.VX += float64(dx) * speed * dt * 60
		a.VY += float64(dy) * speed * dt * 60
	} else {
		// No published direction yet (startup, or cut off by hazards).
		// Jitter in place so a later field pulls us out naturally.
		a.drift(e)
	}

	a.integrate(e)
	return false
}

// drift applies a small random kick, used when no field direction exists.
func (a *Agent) drift(e *Engine) {
	if e.rng.Float64() < 0.05 {
		angle := e.rng.Float64() * math.Pi * 2
		a.VX += math.Cos(angle) * 1.0
		a.VY += math.Sin(angle) * 1.0
	}
}

// integrate applies velocity with speed limit, friction, and a wall bump
// that keeps agents out of blocked tiles.
func (a *Agent) integrate(e *Engine) {
	speed := math.Sqrt(a.VX*a.VX + a.VY*a.VY)
	if speed > agentMaxSpeed {
		a.VX = (a.VX / speed) * agentMaxSpeed
		a.VY = (a.VY / speed) * agentMaxSpeed
	}

	nx := a.X + a.VX
	ny := a.Y + a.VY

	a.VX *= agentFriction
	a.VY *= agentFriction

	next := e.world.PosToTile(nx, ny)
	if next < 0 || !e.world.Passable(next) {
		// Wall bump: stay put, shed velocity
		a.VX = 0
		a.VY = 0
		return
	}
	a.X, a.Y = nx, ny
	a.Tile = next
}
