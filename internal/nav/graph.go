package nav

import (
	"fmt"
	"math"
)

// NeighborCount is the fixed connectivity of the hex grid: every tile has
// up to six neighbors in a canonical slot order defined by the geometry.
const NeighborCount = 6

// DirNone marks a tile with no next direction: sources and unreachable tiles.
const DirNone int8 = -1

// opposites maps a direction slot to the slot pointing the other way.
// Fixed permutation, independent of any tile.
var opposites = [NeighborCount]int8{3, 4, 5, 0, 1, 2}

// Geometry is the contract the world collaborator implements. The engine
// consults it once at construction; everything after that runs off the
// arrays built here.
type Geometry interface {
	TileCount() int
	Passable(tile int32) bool
	BaseCost(tile int32) float32
	FlowCapacity(tile int32) float32
	// Neighbor returns the adjacent tile id for one of the six canonical
	// slots, or -1 when the slot leaves the map.
	Neighbor(tile int32, slot int) int32
	// DirectionVector returns the world-space direction of travel for a
	// slot. Need not be normalized; the graph normalizes once.
	DirectionVector(slot int) (dx, dy float32)
}

// Graph is the immutable adjacency arena for one world: a flat array of
// neighbor ids (6 per tile, -1 for "no neighbor") plus the six unit
// direction vectors shared by every tile. Built once, read-only afterward.
type Graph struct {
	tileCount int
	neighbors []int32 // len = 6 * tileCount
	dirX      [NeighborCount]float32
	dirY      [NeighborCount]float32
}

// BuildGraph constructs the neighbor table from the geometry. A neighbor
// slot is -1 when it leaves the map or lands on an impassable tile, and
// impassable tiles get no outgoing slots at all, so the search can never
// enter or leave them.
func BuildGraph(geo Geometry) (*Graph, error) {
	if geo == nil {
		return nil, fmt.Errorf("nav: nil geometry")
	}
	count := geo.TileCount()
	if count <= 0 {
		return nil, fmt.Errorf("nav: geometry has %d tiles", count)
	}

	g := &Graph{
		tileCount: count,
		neighbors: make([]int32, count*NeighborCount),
	}

	for slot := 0; slot < NeighborCount; slot++ {
		dx, dy := geo.DirectionVector(slot)
		length := float32(math.Sqrt(float64(dx*dx + dy*dy)))
		if length <= 0 || math.IsNaN(float64(length)) {
			return nil, fmt.Errorf("nav: degenerate direction vector for slot %d", slot)
		}
		g.dirX[slot] = dx / length
		g.dirY[slot] = dy / length
	}

	for tile := int32(0); tile < int32(count); tile++ {
		base := int(tile) * NeighborCount
		if !geo.Passable(tile) {
			for slot := 0; slot < NeighborCount; slot++ {
				g.neighbors[base+slot] = -1
			}
			continue
		}
		for slot := 0; slot < NeighborCount; slot++ {
			n := geo.Neighbor(tile, slot)
			if n < 0 || n >= int32(count) || !geo.Passable(n) {
				n = -1
			}
			g.neighbors[base+slot] = n
		}
	}

	return g, nil
}

// TileCount returns the number of tiles the graph was built for.
func (g *Graph) TileCount() int {
	return g.tileCount
}

// Neighbor returns the tile adjacent to tile in the given slot, or -1.
func (g *Graph) Neighbor(tile int32, slot int) int32 {
	if tile < 0 || int(tile) >= g.tileCount || slot < 0 || slot >= NeighborCount {
		return -1
	}
	return g.neighbors[int(tile)*NeighborCount+slot]
}

// Direction returns the unit world-space vector for a direction slot.
// Returns (0, 0) for DirNone or an out-of-range slot.
func (g *Graph) Direction(slot int8) (dx, dy float32) {
	if slot < 0 || slot >= NeighborCount {
		return 0, 0
	}
	return g.dirX[slot], g.dirY[slot]
}

// Opposite returns the slot pointing the other way: traversing slot s from
// tile A to tile B, Opposite(s) seen from B points back at A.
func Opposite(slot int8) int8 {
	if slot < 0 || slot >= NeighborCount {
		return DirNone
	}
	return opposites[slot]
}
