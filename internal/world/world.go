// Package world builds the immutable hex map the simulation runs on.
// Tiles use axial coordinates (q, r) on a cols×rows parallelogram with
// id = r*cols + q; hexes are pointy-top, so world positions come from
// x = size·√3·(q + r/2), y = size·3/2·r.
package world

import (
	"fmt"
	"math"

	"hexhaul/internal/config"
	"hexhaul/internal/nav"
)

// Goal kinds bound to navigation fields. Values are stable across the
// API, IPC frames, and telemetry rows.
const (
	GoalDepot    nav.GoalKind = 0
	GoalRest     nav.GoalKind = 1
	GoalResource nav.GoalKind = 2
)

var goalNames = map[nav.GoalKind]string{
	GoalDepot:    "depot",
	GoalRest:     "rest",
	GoalResource: "resource",
}

// GoalName returns the wire name for a goal kind, or "unknown".
func GoalName(kind nav.GoalKind) string {
	if n, ok := goalNames[kind]; ok {
		return n
	}
	return "unknown"
}

// GoalByName resolves a wire name back to a goal kind.
func GoalByName(name string) (nav.GoalKind, bool) {
	for k, n := range goalNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// GoalKinds lists every goal kind in binding order.
func GoalKinds() []nav.GoalKind {
	return []nav.GoalKind{GoalDepot, GoalRest, GoalResource}
}

// hexOffsets is the canonical neighbor order: E, NE, NW, W, SW, SE in
// axial (dq, dr).
var hexOffsets = [nav.NeighborCount][2]int{
	{1, 0}, {1, -1}, {0, -1}, {-1, 0}, {-1, 1}, {0, 1},
}

// Site is a goal site resolved to concrete tiles. Tiles holds the
// passable tiles within the site radius, center first when passable.
type Site struct {
	Kind   nav.GoalKind
	Center int32
	Tiles  []int32
	Stock  int
}

// Hazard is a startup hazard resolved to one tile.
type Hazard struct {
	Tile    int32
	Penalty float32
}

// World is the immutable playfield. It implements nav.Geometry and is
// safe for concurrent reads; regeneration means building a new World.
type World struct {
	name     string
	cols     int
	rows     int
	tileSize float64

	passable []bool
	baseCost []float32
	capacity []float32

	sites   []Site
	hazards []Hazard
}

// New resolves a scenario into tile arrays and goal sites.
func New(sc config.Scenario) (*World, error) {
	sc.Normalize()
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	n := sc.Cols * sc.Rows
	w := &World{
		name:     sc.Name,
		cols:     sc.Cols,
		rows:     sc.Rows,
		tileSize: sc.TileSize,
		passable: make([]bool, n),
		baseCost: make([]float32, n),
		capacity: make([]float32, n),
	}
	for i := 0; i < n; i++ {
		w.passable[i] = true
		w.baseCost[i] = float32(sc.DefaultBaseCost)
		w.capacity[i] = float32(sc.DefaultCapacity)
	}
	for _, p := range sc.Patches {
		for r := p.R; r < p.R+p.H; r++ {
			for q := p.Q; q < p.Q+p.W; q++ {
				id := r*sc.Cols + q
				if p.BaseCost > 0 {
					w.baseCost[id] = float32(p.BaseCost)
				}
				if p.Capacity > 0 {
					w.capacity[id] = float32(p.Capacity)
				}
			}
		}
	}
	for _, o := range sc.Obstacles {
		w.passable[o.R*sc.Cols+o.Q] = false
	}

	for _, h := range sc.Hazards {
		for _, tile := range w.tilesWithin(h.Q, h.R, h.Radius) {
			if w.passable[tile] {
				w.hazards = append(w.hazards, Hazard{Tile: tile, Penalty: float32(h.Penalty)})
			}
		}
	}

	for i, s := range sc.Sites {
		kind, ok := GoalByName(s.Kind)
		if !ok {
			return nil, fmt.Errorf("sites[%d]: unknown kind %q", i, s.Kind)
		}
		site := Site{
			Kind:   kind,
			Center: int32(s.R*sc.Cols + s.Q),
			Stock:  s.Stock,
		}
		for _, tile := range w.tilesWithin(s.Q, s.R, s.Radius) {
			if w.passable[tile] {
				site.Tiles = append(site.Tiles, tile)
			}
		}
		if len(site.Tiles) == 0 {
			return nil, fmt.Errorf("sites[%d] (%s at %d,%d): every tile in radius %d is blocked",
				i, s.Kind, s.Q, s.R, s.Radius)
		}
		w.sites = append(w.sites, site)
	}

	return w, nil
}

// tilesWithin returns all in-bounds tiles at hex distance <= radius from
// (q, r), center first.
func (w *World) tilesWithin(q, r, radius int) []int32 {
	out := make([]int32, 0, 1+3*radius*(radius+1))
	if id := w.TileID(q, r); id >= 0 {
		out = append(out, id)
	}
	for dq := -radius; dq <= radius; dq++ {
		lo := -radius
		if -dq-radius > lo {
			lo = -dq - radius
		}
		hi := radius
		if -dq+radius < hi {
			hi = -dq + radius
		}
		for dr := lo; dr <= hi; dr++ {
			if dq == 0 && dr == 0 {
				continue
			}
			if id := w.TileID(q+dq, r+dr); id >= 0 {
				out = append(out, id)
			}
		}
	}
	return out
}

// =============================================================================
// nav.Geometry IMPLEMENTATION
// =============================================================================

// TileCount returns the number of tiles in the map.
func (w *World) TileCount() int { return w.cols * w.rows }

// Passable reports whether a tile can be traversed.
func (w *World) Passable(tile int32) bool {
	if tile < 0 || int(tile) >= len(w.passable) {
		return false
	}
	return w.passable[tile]
}

// BaseCost returns the terrain traversal cost of a tile.
func (w *World) BaseCost(tile int32) float32 {
	if tile < 0 || int(tile) >= len(w.baseCost) {
		return 0
	}
	return w.baseCost[tile]
}

// FlowCapacity returns the agent throughput a tile sustains before
// congestion costs kick in.
func (w *World) FlowCapacity(tile int32) float32 {
	if tile < 0 || int(tile) >= len(w.capacity) {
		return 0
	}
	return w.capacity[tile]
}

// Neighbor returns the tile adjacent in the given slot, or -1 at the
// map edge.
func (w *World) Neighbor(tile int32, slot int) int32 {
	if tile < 0 || int(tile) >= w.cols*w.rows || slot < 0 || slot >= nav.NeighborCount {
		return -1
	}
	q := int(tile) % w.cols
	r := int(tile) / w.cols
	return w.TileID(q+hexOffsets[slot][0], r+hexOffsets[slot][1])
}

// DirectionVector returns the unnormalized world-space direction of a
// neighbor slot under the pointy-top transform.
func (w *World) DirectionVector(slot int) (dx, dy float32) {
	if slot < 0 || slot >= nav.NeighborCount {
		return 0, 0
	}
	dq := float64(hexOffsets[slot][0])
	dr := float64(hexOffsets[slot][1])
	return float32(math.Sqrt(3) * (dq + dr/2)), float32(1.5 * dr)
}

// =============================================================================
// COORDINATES AND LOOKUPS
// =============================================================================

// TileID maps axial coordinates to a tile id, or -1 outside the map.
func (w *World) TileID(q, r int) int32 {
	if q < 0 || q >= w.cols || r < 0 || r >= w.rows {
		return -1
	}
	return int32(r*w.cols + q)
}

// TileQR splits a tile id into axial coordinates.
func (w *World) TileQR(tile int32) (q, r int) {
	return int(tile) % w.cols, int(tile) / w.cols
}

// TileCenter returns the world-space center of a tile.
func (w *World) TileCenter(tile int32) (x, y float64) {
	q, r := w.TileQR(tile)
	x = w.tileSize * math.Sqrt(3) * (float64(q) + float64(r)/2)
	y = w.tileSize * 1.5 * float64(r)
	return x, y
}

// PosToTile maps a world position to the containing tile, or -1 outside
// the map. Fractional axial coordinates are rounded in cube space.
func (w *World) PosToTile(x, y float64) int32 {
	fq := (math.Sqrt(3)/3*x - y/3) / w.tileSize
	fr := (2.0 / 3.0 * y) / w.tileSize

	// Cube rounding: recompute the axis with the largest rounding error.
	fs := -fq - fr
	q := math.Round(fq)
	r := math.Round(fr)
	s := math.Round(fs)
	dq := math.Abs(q - fq)
	dr := math.Abs(r - fr)
	ds := math.Abs(s - fs)
	if dq > dr && dq > ds {
		q = -r - s
	} else if dr > ds {
		r = -q - s
	}
	return w.TileID(int(q), int(r))
}

// HexDistance returns the hex-step distance between two tiles.
func (w *World) HexDistance(a, b int32) int {
	aq, ar := w.TileQR(a)
	bq, br := w.TileQR(b)
	dq := aq - bq
	dr := ar - br
	ds := (-aq - ar) - (-bq - br)
	if dq < 0 {
		dq = -dq
	}
	if dr < 0 {
		dr = -dr
	}
	if ds < 0 {
		ds = -ds
	}
	max := dq
	if dr > max {
		max = dr
	}
	if ds > max {
		max = ds
	}
	return max
}

// =============================================================================
// SITES AND SOURCES
// =============================================================================

// Name returns the scenario name.
func (w *World) Name() string { return w.name }

// Cols returns the map width in tiles.
func (w *World) Cols() int { return w.cols }

// Rows returns the map height in tiles.
func (w *World) Rows() int { return w.rows }

// TileSize returns the hex size in world units.
func (w *World) TileSize() float64 { return w.tileSize }

// Sites returns every resolved goal site in scenario order.
func (w *World) Sites() []Site { return w.sites }

// SitesOf returns the sites of one kind in scenario order.
func (w *World) SitesOf(kind nav.GoalKind) []Site {
	var out []Site
	for _, s := range w.sites {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Sources returns the union of site tiles for a goal kind, deduplicated,
// in scenario order. The result backs a navigation field's source set.
func (w *World) Sources(kind nav.GoalKind) []int32 {
	seen := make(map[int32]bool)
	var out []int32
	for _, s := range w.sites {
		if s.Kind != kind {
			continue
		}
		for _, tile := range s.Tiles {
			if !seen[tile] {
				seen[tile] = true
				out = append(out, tile)
			}
		}
	}
	return out
}

// StartupHazards returns the hazards the scenario applies at boot.
func (w *World) StartupHazards() []Hazard { return w.hazards }
