package nav

import (
	"math"
	"testing"
	"time"
)

// TestNewEngineRejectsBadGeometry verifies engine construction fails for
// nil or empty geometry
func TestNewEngineRejectsBadGeometry(t *testing.T) {
	if _, err := NewEngine(nil); err == nil {
		t.Error("Expected error for nil geometry")
	}
	if _, err := NewEngine(newHexGeo(0, 4)); err == nil {
		t.Error("Expected error for empty geometry")
	}
}

// TestEngineDefaults verifies a fresh engine carries the default budget
func TestEngineDefaults(t *testing.T) {
	e, err := NewEngine(newHexGeo(3, 3))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if e.Budget() != DefaultBudget {
		t.Errorf("Expected default budget %v, got %v", DefaultBudget, e.Budget())
	}
	if e.TileCount() != 9 {
		t.Errorf("Expected 9 tiles, got %d", e.TileCount())
	}
}

// TestQueryDirectionContract verifies every "none" case and that valid
// queries return a unit vector toward a strictly closer tile
func TestQueryDirectionContract(t *testing.T) {
	geo := newHexGeo(5, 1)
	geo.blocked[2] = true
	e, err := NewEngine(geo)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.SetBudget(unbounded)
	e.BindGoal(goalA, []int32{0})
	if swaps := e.Update(time.Millisecond); len(swaps) != 1 {
		t.Fatal("Initial build should publish")
	}

	cases := []struct {
		name string
		kind GoalKind
		tile int32
	}{
		{"unknown goal", goalB, 1},
		{"negative tile", goalA, -1},
		{"tile past end", goalA, 50},
		{"source tile", goalA, 0},
		{"unreachable tile", goalA, 4},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, ok := e.QueryDirection(tt.kind, tt.tile); ok {
				t.Error("Expected no direction")
			}
		})
	}

	dx, dy, ok := e.QueryDirection(goalA, 1)
	if !ok {
		t.Fatal("Tile 1 should have a direction toward the source")
	}
	if length := math.Sqrt(float64(dx*dx + dy*dy)); math.Abs(length-1) > 1e-5 {
		t.Errorf("Direction should be unit length, got %f", length)
	}
	// On this west-east line, tile 1 must head west.
	if dx >= 0 {
		t.Errorf("Tile 1 should head toward negative x, got dx=%f", dx)
	}
}

// TestEngineFieldMaintenance verifies live signals flow through to
// republished fields
func TestEngineFieldMaintenance(t *testing.T) {
	geo := newHexGeo(6, 6)
	e, err := NewEngine(geo)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.SetBudget(unbounded)
	e.SetCoefficients(1, 1)
	e.BindGoal(goalA, []int32{0})
	e.BindGoal(goalB, []int32{35})
	e.SetCadence(goalA, 0.001)
	e.SetCadence(goalB, 0.001)
	e.Update(time.Millisecond)

	if e.Stamp(goalA) != 1 || e.Stamp(goalB) != 1 {
		t.Fatalf("Both goals should publish once, got %d and %d",
			e.Stamp(goalA), e.Stamp(goalB))
	}

	// A hazard dirties one tile; the next update rebuilds both fields.
	if !e.SetHazard(14, 25) {
		t.Fatal("SetHazard failed")
	}
	if e.DirtyLen() != 1 {
		t.Fatalf("Expected 1 dirty tile, got %d", e.DirtyLen())
	}
	swaps := e.Update(time.Millisecond)
	if len(swaps) != 2 {
		t.Fatalf("Expected both fields to republish, got %d", len(swaps))
	}
	if e.Stamp(goalA) != 2 || e.Stamp(goalB) != 2 {
		t.Errorf("Stamps should be 2 and 2, got %d and %d", e.Stamp(goalA), e.Stamp(goalB))
	}

	// Distances through the hazard tile went up for the goal next to it.
	if d, ok := e.Distance(goalA, 14); !ok || d <= 2 {
		t.Errorf("Hazard tile should be expensive to reach, got %f", d)
	}

	// Crowd load marks tiles dirty once it exceeds capacity.
	e.SetEmaLambda(1)
	n := e.AddCrowdSamples([]int32{7, 8}, []float32{50, 50})
	if n != 2 {
		t.Fatalf("Expected 2 applied samples, got %d", n)
	}
	if e.DirtyLen() == 0 {
		t.Fatal("Oversubscribed tiles should be dirty")
	}
	swaps = e.Update(time.Millisecond)
	if len(swaps) != 2 {
		t.Errorf("Crowd dirt should republish both fields, got %d", len(swaps))
	}

	stats, ok := e.LastStats(goalA)
	if !ok || stats.NodesRelaxed == 0 {
		t.Errorf("LastStats should report work done, got %+v", stats)
	}
	if e.Builds(goalA) != 3 {
		t.Errorf("Expected 3 builds for goal A, got %d", e.Builds(goalA))
	}
}

// TestEngineIndependentInstances verifies two engines over the same
// geometry share nothing
func TestEngineIndependentInstances(t *testing.T) {
	geo := newHexGeo(4, 4)
	e1, err := NewEngine(geo)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e2, err := NewEngine(geo)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e1.SetBudget(unbounded)
	e2.SetBudget(unbounded)
	e1.BindGoal(goalA, []int32{0})
	e2.BindGoal(goalA, []int32{0})
	e1.Update(time.Millisecond)
	e2.Update(time.Millisecond)

	e1.SetHazard(5, 50)
	e1.Update(time.Millisecond)

	if e1.Stamp(goalA) != 2 {
		t.Errorf("Engine 1 should have rebuilt, stamp %d", e1.Stamp(goalA))
	}
	if e2.Stamp(goalA) != 1 {
		t.Errorf("Engine 2 must be untouched by engine 1's hazard, stamp %d", e2.Stamp(goalA))
	}
	if e2.DirtyLen() != 0 {
		t.Errorf("Engine 2 dirty queue should be empty, got %d", e2.DirtyLen())
	}
}

// TestQueryDirectionDescends verifies following directions strictly
// decreases distance until a source is reached
func TestQueryDirectionDescends(t *testing.T) {
	geo := newHexGeo(6, 6)
	jitterCosts(geo)
	e, err := NewEngine(geo)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.SetBudget(unbounded)
	e.BindGoal(goalA, []int32{8})
	e.Update(time.Millisecond)

	dist := e.Distances(goalA)
	dirs := e.NextDirections(goalA)
	g := e.Graph()
	for tile := int32(0); tile < int32(e.TileCount()); tile++ {
		d := dirs[tile]
		if d == DirNone {
			continue
		}
		next := g.Neighbor(tile, int(d))
		if next < 0 {
			t.Fatalf("Tile %d direction leads off the map", tile)
		}
		if dist[next] >= dist[tile] {
			t.Errorf("Tile %d direction does not descend: %f -> %f",
				tile, dist[tile], dist[next])
		}
	}
}
