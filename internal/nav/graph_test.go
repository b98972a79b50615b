package nav

import (
	"math"
	"testing"
)

// hexGeo is a minimal axial hex map for tests: a cols×rows parallelogram
// of pointy-top hexes with id = r*cols + q and optional per-tile
// overrides.
type hexGeo struct {
	cols, rows int
	blocked    map[int32]bool
	baseCost   map[int32]float32
	capacity   map[int32]float32
}

// hexOffsets is the canonical slot order: E, NE, NW, W, SW, SE in axial
// (dq, dr) coordinates.
var hexOffsets = [NeighborCount][2]int32{
	{1, 0}, {1, -1}, {0, -1}, {-1, 0}, {-1, 1}, {0, 1},
}

func newHexGeo(cols, rows int) *hexGeo {
	return &hexGeo{
		cols:     cols,
		rows:     rows,
		blocked:  make(map[int32]bool),
		baseCost: make(map[int32]float32),
		capacity: make(map[int32]float32),
	}
}

func (h *hexGeo) TileCount() int { return h.cols * h.rows }

func (h *hexGeo) Passable(tile int32) bool { return !h.blocked[tile] }

func (h *hexGeo) BaseCost(tile int32) float32 {
	if c, ok := h.baseCost[tile]; ok {
		return c
	}
	return 1
}

func (h *hexGeo) FlowCapacity(tile int32) float32 {
	if c, ok := h.capacity[tile]; ok {
		return c
	}
	return 4
}

func (h *hexGeo) Neighbor(tile int32, slot int) int32 {
	q := tile % int32(h.cols)
	r := tile / int32(h.cols)
	nq := q + hexOffsets[slot][0]
	nr := r + hexOffsets[slot][1]
	if nq < 0 || nq >= int32(h.cols) || nr < 0 || nr >= int32(h.rows) {
		return -1
	}
	return nr*int32(h.cols) + nq
}

func (h *hexGeo) DirectionVector(slot int) (float32, float32) {
	dq := float64(hexOffsets[slot][0])
	dr := float64(hexOffsets[slot][1])
	// Pointy-top axial to world.
	return float32(math.Sqrt(3) * (dq + dr/2)), float32(1.5 * dr)
}

// TestBuildGraphRejectsBadGeometry verifies nil and empty geometries fail
func TestBuildGraphRejectsBadGeometry(t *testing.T) {
	if _, err := BuildGraph(nil); err == nil {
		t.Error("Expected error for nil geometry, got nil")
	}
	if _, err := BuildGraph(newHexGeo(0, 0)); err == nil {
		t.Error("Expected error for empty geometry, got nil")
	}
}

// TestGraphNeighborSymmetry verifies every edge is mirrored: if slot s
// leads from a to b, the opposite slot leads from b back to a
func TestGraphNeighborSymmetry(t *testing.T) {
	geo := newHexGeo(6, 5)
	g, err := BuildGraph(geo)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	for tile := int32(0); tile < int32(g.TileCount()); tile++ {
		for slot := 0; slot < NeighborCount; slot++ {
			n := g.Neighbor(tile, slot)
			if n < 0 {
				continue
			}
			back := g.Neighbor(n, int(Opposite(int8(slot))))
			if back != tile {
				t.Errorf("Tile %d slot %d leads to %d, but opposite slot leads to %d",
					tile, slot, n, back)
			}
		}
	}
}

// TestGraphBlockedTiles verifies impassable tiles have no edges in either
// direction
func TestGraphBlockedTiles(t *testing.T) {
	geo := newHexGeo(4, 4)
	blocked := int32(5)
	geo.blocked[blocked] = true

	g, err := BuildGraph(geo)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	for slot := 0; slot < NeighborCount; slot++ {
		if n := g.Neighbor(blocked, slot); n != -1 {
			t.Errorf("Blocked tile slot %d should be -1, got %d", slot, n)
		}
	}
	for tile := int32(0); tile < int32(g.TileCount()); tile++ {
		for slot := 0; slot < NeighborCount; slot++ {
			if g.Neighbor(tile, slot) == blocked {
				t.Errorf("Tile %d slot %d still links to blocked tile", tile, slot)
			}
		}
	}
}

// TestGraphDirectionVectorsUnit verifies every direction vector is unit
// length
func TestGraphDirectionVectorsUnit(t *testing.T) {
	g, err := BuildGraph(newHexGeo(3, 3))
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	for slot := int8(0); slot < NeighborCount; slot++ {
		dx, dy := g.Direction(slot)
		length := math.Sqrt(float64(dx*dx + dy*dy))
		if math.Abs(length-1) > 1e-5 {
			t.Errorf("Slot %d vector (%f, %f) has length %f, want 1", slot, dx, dy, length)
		}
	}

	if dx, dy := g.Direction(DirNone); dx != 0 || dy != 0 {
		t.Errorf("DirNone should map to (0, 0), got (%f, %f)", dx, dy)
	}
}

// TestOppositePermutation verifies the fixed opposite mapping and its
// involution property
func TestOppositePermutation(t *testing.T) {
	want := [NeighborCount]int8{3, 4, 5, 0, 1, 2}
	for slot := int8(0); slot < NeighborCount; slot++ {
		if got := Opposite(slot); got != want[slot] {
			t.Errorf("Opposite(%d) = %d, want %d", slot, got, want[slot])
		}
		if got := Opposite(Opposite(slot)); got != slot {
			t.Errorf("Opposite(Opposite(%d)) = %d, want %d", slot, got, slot)
		}
	}
	if got := Opposite(DirNone); got != DirNone {
		t.Errorf("Opposite(DirNone) = %d, want DirNone", got)
	}
}

// TestGraphOutOfRange verifies out-of-range lookups return the sentinel
func TestGraphOutOfRange(t *testing.T) {
	g, err := BuildGraph(newHexGeo(3, 3))
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	cases := []struct {
		name string
		tile int32
		slot int
	}{
		{"negative tile", -1, 0},
		{"tile past end", 9, 0},
		{"negative slot", 0, -1},
		{"slot past end", 0, 6},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if n := g.Neighbor(tt.tile, tt.slot); n != -1 {
				t.Errorf("Expected -1, got %d", n)
			}
		})
	}
}
