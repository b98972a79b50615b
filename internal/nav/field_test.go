package nav

import (
	"math"
	"testing"
	"time"
)

// unbounded is a budget large enough to finish any test build in one Step.
const unbounded = time.Hour

// buildWorld constructs a graph and cost model over the given geometry,
// failing the test on any setup error.
func buildWorld(t *testing.T, geo *hexGeo) (*Graph, *CostModel) {
	t.Helper()
	g, err := BuildGraph(geo)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	c := NewCostModel()
	if !c.Init(geo) {
		t.Fatal("CostModel.Init failed")
	}
	return g, c
}

// jitterCosts gives every tile a distinct base cost so no two paths tie
// and direction arrays compare deterministically.
func jitterCosts(geo *hexGeo) {
	for tile := 0; tile < geo.TileCount(); tile++ {
		geo.baseCost[int32(tile)] = 1 + 0.017*float32(tile)
	}
}

// TestNewFieldInvalid verifies a non-positive tile count yields nil
func TestNewFieldInvalid(t *testing.T) {
	if NewField(0) != nil {
		t.Error("NewField(0) should return nil")
	}
	if NewField(-3) != nil {
		t.Error("NewField(-3) should return nil")
	}
}

// TestBasicField verifies the canonical scenario: open grid, uniform
// cost 1, single source; neighbors sit at distance 1 pointing at it
func TestBasicField(t *testing.T) {
	geo := newHexGeo(5, 5)
	g, c := buildWorld(t, geo)
	source := int32(12) // center

	f := NewField(g.TileCount())
	if !f.StartBuild(g, []int32{source}, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	stats, done := f.Step(g, unbounded)
	if !done {
		t.Fatal("Unbounded Step should finish the build")
	}
	if stats.NodesRelaxed == 0 {
		t.Error("Expected nonzero relaxed nodes")
	}
	if f.Stamp() != 1 {
		t.Errorf("First publish should stamp 1, got %d", f.Stamp())
	}

	dist := f.Distances()
	dirs := f.NextDirections()
	if dist[source] != 0 {
		t.Errorf("Source distance should be 0, got %f", dist[source])
	}
	if dirs[source] != DirNone {
		t.Errorf("Source direction should be DirNone, got %d", dirs[source])
	}
	for slot := 0; slot < NeighborCount; slot++ {
		n := g.Neighbor(source, slot)
		if n < 0 {
			t.Fatalf("Center tile should have all neighbors, slot %d missing", slot)
		}
		if dist[n] != 1 {
			t.Errorf("Neighbor %d distance = %f, want 1", n, dist[n])
		}
		if back := g.Neighbor(n, int(dirs[n])); back != source {
			t.Errorf("Neighbor %d direction leads to %d, want source %d", n, back, source)
		}
	}
}

// TestObstacleUnreachable verifies a blocked tile on the only route
// leaves the far side at the unreachable sentinel
func TestObstacleUnreachable(t *testing.T) {
	geo := newHexGeo(5, 1) // a line: only E/W neighbors exist
	geo.blocked[2] = true
	g, c := buildWorld(t, geo)

	f := NewField(g.TileCount())
	if !f.StartBuild(g, []int32{0}, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	if _, done := f.Step(g, unbounded); !done {
		t.Fatal("Build did not finish")
	}

	dist := f.Distances()
	dirs := f.NextDirections()
	if dist[1] != 1 {
		t.Errorf("Tile 1 should be reachable at distance 1, got %f", dist[1])
	}
	for _, tile := range []int32{3, 4} {
		if dist[tile] != Unreachable {
			t.Errorf("Tile %d behind obstacle should be Unreachable, got %f", tile, dist[tile])
		}
		if dirs[tile] != DirNone {
			t.Errorf("Tile %d behind obstacle should have DirNone, got %d", tile, dirs[tile])
		}
	}
}

// TestObstacleAlternateRoute verifies the field routes around a blocked
// tile when a detour exists, never stepping through it
func TestObstacleAlternateRoute(t *testing.T) {
	geo := newHexGeo(5, 2)
	blocked := int32(2)
	geo.blocked[blocked] = true
	g, c := buildWorld(t, geo)
	source := int32(0)

	f := NewField(g.TileCount())
	if !f.StartBuild(g, []int32{source}, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	if _, done := f.Step(g, unbounded); !done {
		t.Fatal("Build did not finish")
	}

	dist := f.Distances()
	dirs := f.NextDirections()
	if dist[4] >= Unreachable {
		t.Fatal("Tile 4 should be reachable via the second row")
	}

	// Follow directions from tile 4; they must chain to the source.
	cur := int32(4)
	for hops := 0; cur != source; hops++ {
		if hops > g.TileCount() {
			t.Fatal("Direction chain does not terminate at the source")
		}
		d := dirs[cur]
		if d == DirNone {
			t.Fatalf("Chain hit DirNone at tile %d before the source", cur)
		}
		cur = g.Neighbor(cur, int(d))
		if cur == blocked {
			t.Fatal("Direction chain routed through the blocked tile")
		}
		if cur < 0 {
			t.Fatal("Direction chain left the map")
		}
	}
}

// TestFieldDeterminism verifies identical inputs produce identical
// distance and direction arrays across independent builds
func TestFieldDeterminism(t *testing.T) {
	geo := newHexGeo(6, 6)
	jitterCosts(geo)
	g, c := buildWorld(t, geo)
	sources := []int32{0, 7}

	build := func() ([]float32, []int8) {
		f := NewField(g.TileCount())
		if !f.StartBuild(g, sources, c.EffectiveCosts(), nil) {
			t.Fatal("StartBuild failed")
		}
		if _, done := f.Step(g, unbounded); !done {
			t.Fatal("Build did not finish")
		}
		return f.Distances(), f.NextDirections()
	}

	d1, n1 := build()
	d2, n2 := build()
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Errorf("Distance mismatch at tile %d: %f vs %f", i, d1[i], d2[i])
		}
		if n1[i] != n2[i] {
			t.Errorf("Direction mismatch at tile %d: %d vs %d", i, n1[i], n2[i])
		}
	}
}

// TestTimeSlicingEquivalence verifies many single-step calls produce the
// same field as one unbounded call
func TestTimeSlicingEquivalence(t *testing.T) {
	geo := newHexGeo(6, 6)
	jitterCosts(geo)
	g, c := buildWorld(t, geo)
	sources := []int32{3, 31}

	whole := NewField(g.TileCount())
	if !whole.StartBuild(g, sources, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	if _, done := whole.Step(g, unbounded); !done {
		t.Fatal("Unbounded build did not finish")
	}

	sliced := NewField(g.TileCount())
	if !sliced.StartBuild(g, sources, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	done := false
	for i := 0; !done; i++ {
		if i > 10*g.TileCount() {
			t.Fatal("Single-step build did not converge")
		}
		_, done = sliced.Step(g, 0)
	}

	wd, sd := whole.Distances(), sliced.Distances()
	wn, sn := whole.NextDirections(), sliced.NextDirections()
	for i := range wd {
		if wd[i] != sd[i] {
			t.Errorf("Distance mismatch at tile %d: whole %f, sliced %f", i, wd[i], sd[i])
		}
		if wn[i] != sn[i] {
			t.Errorf("Direction mismatch at tile %d: whole %d, sliced %d", i, wn[i], sn[i])
		}
	}
}

// TestHotStartEquivalence verifies a hot-started rebuild after a hazard
// drop matches a from-scratch build over the same costs
func TestHotStartEquivalence(t *testing.T) {
	geo := newHexGeo(6, 6)
	jitterCosts(geo)
	g, c := buildWorld(t, geo)
	c.SetCoefficients(1, 1)
	c.SetDirtyThreshold(0.001)
	sources := []int32{0}
	hazardTile := int32(21)

	c.SetHazard(hazardTile, 3)
	c.ConsumeDirty(c.TileCount(), nil)

	f := NewField(g.TileCount())
	if !f.StartBuild(g, sources, c.EffectiveCosts(), nil) {
		t.Fatal("Initial StartBuild failed")
	}
	if _, done := f.Step(g, unbounded); !done {
		t.Fatal("Initial build did not finish")
	}

	// Drop the hazard and rebuild hot from the dirty batch.
	c.SetHazard(hazardTile, 0.5)
	batch := c.ConsumeDirty(c.TileCount(), nil)
	if len(batch) != 1 || batch[0] != hazardTile {
		t.Fatalf("Expected dirty batch [%d], got %v", hazardTile, batch)
	}
	if !f.StartBuild(g, sources, c.EffectiveCosts(), batch) {
		t.Fatal("Hot StartBuild failed")
	}
	stats, done := f.Step(g, unbounded)
	if !done {
		t.Fatal("Hot build did not finish")
	}
	if !stats.HotStart || stats.DirtySeeded != 1 {
		t.Errorf("Expected hot start with 1 seeded tile, got %+v", stats)
	}

	scratch := NewField(g.TileCount())
	if !scratch.StartBuild(g, sources, c.EffectiveCosts(), nil) {
		t.Fatal("Scratch StartBuild failed")
	}
	if _, done := scratch.Step(g, unbounded); !done {
		t.Fatal("Scratch build did not finish")
	}

	hd, cd := f.Distances(), scratch.Distances()
	hn, cn := f.NextDirections(), scratch.NextDirections()
	for i := range hd {
		if hd[i] != cd[i] {
			t.Errorf("Distance mismatch at tile %d: hot %f, scratch %f", i, hd[i], cd[i])
		}
		if hn[i] != cn[i] {
			t.Errorf("Direction mismatch at tile %d: hot %d, scratch %d", i, hn[i], cn[i])
		}
	}
}

// TestZeroBudgetSingleStep verifies budget 0 relaxes exactly one node
// per call
func TestZeroBudgetSingleStep(t *testing.T) {
	geo := newHexGeo(3, 3)
	g, c := buildWorld(t, geo)

	f := NewField(g.TileCount())
	if !f.StartBuild(g, []int32{4}, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}

	calls := 0
	done := false
	for !done {
		if calls > 10*g.TileCount() {
			t.Fatal("Single-step build did not converge")
		}
		var stats BuildStats
		stats, done = f.Step(g, 0)
		calls++
		if !done && stats.NodesRelaxed != calls {
			t.Fatalf("After %d calls expected %d relaxed nodes, got %d",
				calls, calls, stats.NodesRelaxed)
		}
	}
	if calls != g.TileCount() {
		t.Errorf("Uniform single-source build should take %d single steps, took %d",
			g.TileCount(), calls)
	}
}

// TestBufferIsolation verifies a paused build never leaks into the
// published field until the swap
func TestBufferIsolation(t *testing.T) {
	geo := newHexGeo(4, 4)
	g, c := buildWorld(t, geo)
	sources := []int32{0}

	f := NewField(g.TileCount())
	if !f.StartBuild(g, sources, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	if _, done := f.Step(g, unbounded); !done {
		t.Fatal("Build did not finish")
	}
	published := append([]float32(nil), f.Distances()...)

	c.SetHazard(5, 100)
	if !f.StartBuild(g, sources, c.EffectiveCosts(), nil) {
		t.Fatal("Second StartBuild failed")
	}
	for i := 0; i < 3; i++ {
		if _, done := f.Step(g, 0); done {
			t.Fatal("Build finished too early for this test")
		}
	}

	if f.Stamp() != 1 {
		t.Errorf("Stamp should still be 1 mid-build, got %d", f.Stamp())
	}
	for i, d := range f.Distances() {
		if d != published[i] {
			t.Fatalf("Published distances changed mid-build at tile %d", i)
		}
	}

	for {
		if _, done := f.Step(g, unbounded); done {
			break
		}
	}
	if f.Stamp() != 2 {
		t.Errorf("Stamp should be 2 after second publish, got %d", f.Stamp())
	}
}

// TestCancelBuild verifies cancellation discards the build without
// touching the published result
func TestCancelBuild(t *testing.T) {
	geo := newHexGeo(4, 4)
	g, c := buildWorld(t, geo)

	f := NewField(g.TileCount())
	if !f.StartBuild(g, []int32{0}, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	if _, done := f.Step(g, unbounded); !done {
		t.Fatal("Build did not finish")
	}
	published := append([]float32(nil), f.Distances()...)

	if !f.StartBuild(g, []int32{15}, c.EffectiveCosts(), nil) {
		t.Fatal("Second StartBuild failed")
	}
	f.Step(g, 0)
	f.CancelBuild()

	if f.IsBuilding() {
		t.Error("CancelBuild should clear the building flag")
	}
	if f.Stamp() != 1 {
		t.Errorf("Cancel must not bump the stamp, got %d", f.Stamp())
	}
	for i, d := range f.Distances() {
		if d != published[i] {
			t.Fatalf("Cancel must not touch the published field, tile %d changed", i)
		}
	}

	// The field is reusable after a cancel.
	if !f.StartBuild(g, []int32{15}, c.EffectiveCosts(), nil) {
		t.Error("StartBuild after cancel failed")
	}
}

// TestStartBuildFailures verifies every failure mode returns false with
// no visible state change
func TestStartBuildFailures(t *testing.T) {
	geo := newHexGeo(3, 3)
	g, c := buildWorld(t, geo)
	f := NewField(g.TileCount())

	cases := []struct {
		name    string
		run     func() bool
	}{
		{"no sources", func() bool { return f.StartBuild(g, nil, c.EffectiveCosts(), nil) }},
		{"all sources invalid", func() bool { return f.StartBuild(g, []int32{-1, 99}, c.EffectiveCosts(), nil) }},
		{"nil graph", func() bool { return f.StartBuild(nil, []int32{0}, c.EffectiveCosts(), nil) }},
		{"mismatched costs", func() bool { return f.StartBuild(g, []int32{0}, make([]float32, 4), nil) }},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if tt.run() {
				t.Error("Expected StartBuild to fail")
			}
			if f.IsBuilding() {
				t.Error("Failed StartBuild must not leave a build in progress")
			}
			if f.Stamp() != 0 {
				t.Errorf("Failed StartBuild must not publish, stamp %d", f.Stamp())
			}
		})
	}

	// Starting over a running build fails without disturbing it.
	if !f.StartBuild(g, []int32{0}, c.EffectiveCosts(), nil) {
		t.Fatal("Valid StartBuild failed")
	}
	if f.StartBuild(g, []int32{1}, c.EffectiveCosts(), nil) {
		t.Error("StartBuild during a build should fail")
	}
	if !f.IsBuilding() {
		t.Error("Original build should still be in progress")
	}
}

// TestPublishStampWrap verifies the stamp skips 0 when it wraps
func TestPublishStampWrap(t *testing.T) {
	geo := newHexGeo(3, 3)
	g, c := buildWorld(t, geo)

	f := NewField(g.TileCount())
	f.stamp = math.MaxUint32
	if !f.StartBuild(g, []int32{0}, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	if _, done := f.Step(g, unbounded); !done {
		t.Fatal("Build did not finish")
	}
	if f.Stamp() != 1 {
		t.Errorf("Wrapped stamp should be 1, got %d", f.Stamp())
	}
}

// TestShortestPathConsistency verifies the relaxation invariant on every
// edge after a completed build
func TestShortestPathConsistency(t *testing.T) {
	geo := newHexGeo(6, 6)
	jitterCosts(geo)
	geo.blocked[14] = true
	geo.blocked[15] = true
	g, c := buildWorld(t, geo)
	c.SetCoefficients(1, 1)
	c.SetHazard(8, 2.5)
	c.SetHazard(27, 7)

	f := NewField(g.TileCount())
	if !f.StartBuild(g, []int32{0, 35}, c.EffectiveCosts(), nil) {
		t.Fatal("StartBuild failed")
	}
	if _, done := f.Step(g, unbounded); !done {
		t.Fatal("Build did not finish")
	}

	dist := f.Distances()
	for u := int32(0); u < int32(g.TileCount()); u++ {
		if dist[u] >= Unreachable {
			continue
		}
		for slot := 0; slot < NeighborCount; slot++ {
			v := g.Neighbor(u, slot)
			if v < 0 {
				continue
			}
			bound := dist[u] + c.EffectiveCost(v)
			if dist[v] > bound {
				t.Errorf("Edge %d->%d violates consistency: dist[v]=%f > %f",
					u, v, dist[v], bound)
			}
		}
	}
}
