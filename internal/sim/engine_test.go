package sim

import (
	"testing"
	"time"

	"hexhaul/internal/config"
	"hexhaul/internal/world"
)

// testWorld builds a small basin with one site of each kind.
func testWorld(t *testing.T, stock int) *world.World {
	t.Helper()
	w, err := world.New(config.Scenario{
		Name:     "test-basin",
		Cols:     12,
		Rows:     10,
		TileSize: 10,
		Sites: []config.GoalSite{
			{Kind: "depot", Q: 2, R: 2, Radius: 1},
			{Kind: "rest", Q: 9, R: 2, Radius: 1},
			{Kind: "resource", Q: 5, R: 7, Radius: 1, Stock: stock},
		},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	return w
}

func testEngine(t *testing.T, agents int) *Engine {
	t.Helper()
	simCfg := config.DefaultSim()
	simCfg.Agents = agents
	simCfg.MaxAgents = 50
	simCfg.Seed = 42

	e, err := NewEngine(testWorld(t, 600), simCfg, config.DefaultNav())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

// TestNewEngine verifies construction binds all goals and spawns the
// initial population.
func TestNewEngine(t *testing.T) {
	e := testEngine(t, 5)

	if got := e.AgentCount(); got != 5 {
		t.Errorf("Expected 5 agents, got %d", got)
	}
	stats := e.NavStats()
	if len(stats.Goals) != 3 {
		t.Fatalf("Expected 3 bound goals, got %d", len(stats.Goals))
	}
	if stats.BudgetUs != int64(config.DefaultNav().BudgetMicros) {
		t.Errorf("Expected budget %dµs, got %d", config.DefaultNav().BudgetMicros, stats.BudgetUs)
	}
}

// TestEngineStartStop verifies the loop starts and stops without panics
func TestEngineStartStop(t *testing.T) {
	e := testEngine(t, 3)

	e.Start()
	time.Sleep(100 * time.Millisecond)

	e.Stop()

	// Should not panic on double stop
	e.Stop()
}

// TestFieldsPublishWithinTicks verifies every goal's field builds and
// publishes under the default budget.
func TestFieldsPublishWithinTicks(t *testing.T) {
	e := testEngine(t, 0)

	for i := 0; i < 20; i++ {
		e.tick()
	}

	for _, g := range e.NavStats().Goals {
		if g.Builds < 1 {
			t.Errorf("Goal %s never published (builds=0)", g.Goal)
		}
		if g.Stamp == 0 {
			t.Errorf("Goal %s has zero stamp after publish", g.Goal)
		}
	}
}

// TestAgentsHaulToDepot runs the sim until cargo lands at a depot.
func TestAgentsHaulToDepot(t *testing.T) {
	e := testEngine(t, 4)

	for i := 0; i < 6000; i++ {
		e.tick()
		if e.totalHauled > 0 {
			break
		}
	}

	if e.totalHauled == 0 {
		t.Fatal("No cargo delivered after 6000 ticks")
	}
	top := e.Leaderboard().Top(5)
	if len(top) == 0 || top[0].Hauled == 0 {
		t.Error("Leaderboard should credit the hauling agent")
	}
	for i := range e.agents {
		if e.agents[i].Hauled > 0 {
			return
		}
	}
	t.Error("No agent carries a lifetime hauled total")
}

// TestWithdrawStockDrainsAndRebinds verifies depletion empties the
// resource field's source set and a respawn restores it.
func TestWithdrawStockDrainsAndRebinds(t *testing.T) {
	simCfg := config.DefaultSim()
	simCfg.Agents = 0
	simCfg.Seed = 1

	e, err := NewEngine(testWorld(t, 30), simCfg, config.DefaultNav())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	site := e.world.SitesOf(world.GoalResource)[0]
	tile := site.Tiles[0]

	total := 0
	for i := 0; i < 10; i++ {
		got := e.withdrawStock(tile, carryCapacity)
		if got == 0 {
			break
		}
		total += got
	}
	if total != 30 {
		t.Errorf("Expected 30 units withdrawn, got %d", total)
	}
	if !e.resources[0].depleted {
		t.Fatal("Site should be depleted after draining")
	}
	if tiles := e.liveResourceTiles(); len(tiles) != 0 {
		t.Errorf("Expected no live resource tiles, got %d", len(tiles))
	}

	// One update past the respawn window restocks and rebinds
	e.updateResources(resourceRespawnSeconds + 1)
	if e.resources[0].depleted {
		t.Fatal("Site should restock after the respawn window")
	}
	if e.resources[0].stock != 30 {
		t.Errorf("Expected stock 30 after restock, got %d", e.resources[0].stock)
	}
	if tiles := e.liveResourceTiles(); len(tiles) != len(site.Tiles) {
		t.Errorf("Expected %d live resource tiles, got %d", len(site.Tiles), len(tiles))
	}
}

// TestWithdrawStockUnknownTile verifies tiles outside any resource site
// yield nothing.
func TestWithdrawStockUnknownTile(t *testing.T) {
	e := testEngine(t, 0)

	if got := e.withdrawStock(0, carryCapacity); got != 0 {
		t.Errorf("Expected 0 from a non-resource tile, got %d", got)
	}
}

// TestSpawnRespectsHardCap verifies the agent limit holds under spawn
// commands.
func TestSpawnRespectsHardCap(t *testing.T) {
	e := testEngine(t, 0)

	if spawned := e.spawnAgents(100); spawned != 50 {
		t.Errorf("Expected 50 spawns under the cap, got %d", spawned)
	}
	if got := e.AgentCount(); got != 50 {
		t.Errorf("Expected 50 agents, got %d", got)
	}
	if spawned := e.spawnAgents(1); spawned != 0 {
		t.Errorf("Expected 0 spawns at the cap, got %d", spawned)
	}
}

// TestCommandsApplyOnTick verifies queued admin commands land inside the
// next tick.
func TestCommandsApplyOnTick(t *testing.T) {
	e := testEngine(t, 0)
	if err := e.StartEventLog(""); err != nil {
		t.Fatalf("StartEventLog failed: %v", err)
	}
	defer e.StopEventLog()

	if !e.Submit(Command{Kind: CmdSetBudget, Value: 900}) {
		t.Fatal("Submit should accept while the ring has room")
	}
	if !e.Submit(Command{Kind: CmdSetHazard, Tile: 40, Value: 7.5}) {
		t.Fatal("Submit should accept a hazard command")
	}
	if !e.Submit(Command{Kind: CmdSpawnAgents, Count: 3}) {
		t.Fatal("Submit should accept a spawn command")
	}

	e.tick()

	if got := e.NavStats().BudgetUs; got != 900 {
		t.Errorf("Expected budget 900µs after command, got %d", got)
	}
	base := e.nav.EffectiveCost(41)
	if hazarded := e.nav.EffectiveCost(40); hazarded <= base {
		t.Errorf("Expected hazard to raise tile cost: %f vs %f", hazarded, base)
	}
	if got := e.AgentCount(); got != 3 {
		t.Errorf("Expected 3 agents after spawn command, got %d", got)
	}
	if e.eventLog.GetTotalCount() == 0 {
		t.Error("Command application should emit events")
	}
}

// TestCommandRejected verifies invalid commands are refused, not applied.
func TestCommandRejected(t *testing.T) {
	e := testEngine(t, 0)

	before := e.NavStats().BudgetUs
	e.Submit(Command{Kind: CmdSetBudget, Value: -5})
	e.Submit(Command{Kind: CmdSpawnAgents, Count: 0})
	e.tick()

	if got := e.NavStats().BudgetUs; got != before {
		t.Errorf("Rejected budget command changed budget: %d -> %d", before, got)
	}
	if got := e.AgentCount(); got != 0 {
		t.Errorf("Rejected spawn command added agents: %d", got)
	}
}

// TestSnapshotProduction verifies the per-tick snapshot carries world
// state with a monotonic sequence.
func TestSnapshotProduction(t *testing.T) {
	e := testEngine(t, 6)

	e.tick()
	first := e.Snapshot()
	if first.TickNumber != 1 {
		t.Errorf("Expected tick 1, got %d", first.TickNumber)
	}
	if len(first.Agents) != 6 {
		t.Errorf("Expected 6 agent rows, got %d", len(first.Agents))
	}
	if len(first.Sites) != 3 {
		t.Errorf("Expected 3 site rows, got %d", len(first.Sites))
	}
	if len(first.Goals) != 3 {
		t.Errorf("Expected 3 goal rows, got %d", len(first.Goals))
	}
	seq := first.Sequence

	e.tick()
	second := e.Snapshot()
	if second.Sequence <= seq {
		t.Errorf("Sequence should advance: %d then %d", seq, second.Sequence)
	}
	if second.TickNumber != 2 {
		t.Errorf("Expected tick 2, got %d", second.TickNumber)
	}
}

// TestSnapshotAgentStates verifies agent rows carry readable state names.
func TestSnapshotAgentStates(t *testing.T) {
	e := testEngine(t, 2)
	e.tick()

	for _, a := range e.Snapshot().Agents {
		if a.State == "unknown" || a.State == "" {
			t.Errorf("Agent %d has unreadable state %q", a.ID, a.State)
		}
	}
}

// TestConcurrentAccess exercises API reads against a running loop.
func TestConcurrentAccess(t *testing.T) {
	e := testEngine(t, 10)
	e.Start()
	defer e.Stop()

	done := make(chan bool)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 200; j++ {
				e.Snapshot()
				e.NavStats()
				e.AgentCount()
				e.TotalHauled()
				e.Submit(Command{Kind: CmdSetBudget, Value: 1500})
				e.FieldCopy(world.GoalDepot)
			}
			done <- true
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
