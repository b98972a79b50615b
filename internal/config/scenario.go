package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario describes the hex map the server runs: dimensions, terrain,
// and the goal sites agents haul between. Loaded once at startup; the
// world built from it is immutable.
type Scenario struct {
	Name            string  `yaml:"name"`
	Cols            int     `yaml:"cols"`
	Rows            int     `yaml:"rows"`
	TileSize        float64 `yaml:"tile_size"`
	DefaultBaseCost float64 `yaml:"default_base_cost"`
	DefaultCapacity float64 `yaml:"default_capacity"`

	Obstacles []TileRef      `yaml:"obstacles,omitempty"`
	Patches   []TerrainPatch `yaml:"patches,omitempty"`
	Hazards   []HazardPreset `yaml:"hazards,omitempty"`
	Sites     []GoalSite     `yaml:"sites"`
}

// TileRef addresses one tile in axial coordinates.
type TileRef struct {
	Q int `yaml:"q"`
	R int `yaml:"r"`
}

// TerrainPatch overrides base cost and/or flow capacity over an axial
// rectangle (q..q+w-1, r..r+h-1). Zero values leave the map default.
type TerrainPatch struct {
	Q        int     `yaml:"q"`
	R        int     `yaml:"r"`
	W        int     `yaml:"w"`
	H        int     `yaml:"h"`
	BaseCost float64 `yaml:"base_cost,omitempty"`
	Capacity float64 `yaml:"capacity,omitempty"`
}

// HazardPreset applies a hazard penalty to every tile within Radius hex
// steps of (Q, R) at startup.
type HazardPreset struct {
	Q       int     `yaml:"q"`
	R       int     `yaml:"r"`
	Radius  int     `yaml:"radius"`
	Penalty float64 `yaml:"penalty"`
}

// GoalSite declares a depot, rest area, or resource node. Tiles within
// Radius hex steps of (Q, R) act as goal sources for the matching field.
type GoalSite struct {
	Kind   string `yaml:"kind"` // depot | rest | resource
	Q      int    `yaml:"q"`
	R      int    `yaml:"r"`
	Radius int    `yaml:"radius"`
	Stock  int    `yaml:"stock,omitempty"` // resource sites: units before depletion
}

// SiteKinds lists the accepted goal site kinds.
var SiteKinds = []string{"depot", "rest", "resource"}

// LoadScenario reads a scenario YAML file. An empty path yields the
// built-in default map. File maps start from zero, not from the default
// map, so a small scenario never inherits the valley's terrain.
func LoadScenario(path string) (Scenario, error) {
	if strings.TrimSpace(path) == "" {
		sc := defaultScenario()
		sc.Normalize()
		return sc, nil
	}
	var sc Scenario
	b, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return sc, fmt.Errorf("scenario: %w", err)
	}
	sc.Normalize()
	if err := sc.Validate(); err != nil {
		return sc, fmt.Errorf("scenario: %w", err)
	}
	return sc, nil
}

// defaultScenario is a 32x24 valley: open ground, a rough band through
// the middle, one depot, one rest camp, two resource nodes.
func defaultScenario() Scenario {
	return Scenario{
		Name:            "valley",
		Cols:            32,
		Rows:            24,
		TileSize:        24,
		DefaultBaseCost: 1,
		DefaultCapacity: 4,
		Patches: []TerrainPatch{
			{Q: 0, R: 10, W: 32, H: 4, BaseCost: 2.5}, // rough band
		},
		Obstacles: []TileRef{
			{Q: 14, R: 11}, {Q: 15, R: 11}, {Q: 16, R: 11},
			{Q: 14, R: 12}, {Q: 15, R: 12},
		},
		Sites: []GoalSite{
			{Kind: "depot", Q: 6, R: 4, Radius: 1},
			{Kind: "rest", Q: 24, R: 5, Radius: 1},
			{Kind: "resource", Q: 8, R: 19, Radius: 1, Stock: 600},
			{Kind: "resource", Q: 23, R: 18, Radius: 1, Stock: 600},
		},
	}
}

// Normalize fills in zero-valued tuning so a sparse YAML file still
// yields a usable scenario.
func (s *Scenario) Normalize() {
	if s == nil {
		return
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = "unnamed"
	}
	if s.TileSize <= 0 {
		s.TileSize = 24
	}
	if s.DefaultBaseCost <= 0 {
		s.DefaultBaseCost = 1
	}
	if s.DefaultCapacity <= 0 {
		s.DefaultCapacity = 4
	}
	for i := range s.Sites {
		s.Sites[i].Kind = strings.ToLower(strings.TrimSpace(s.Sites[i].Kind))
		if s.Sites[i].Radius < 0 {
			s.Sites[i].Radius = 0
		}
		if s.Sites[i].Kind == "resource" && s.Sites[i].Stock <= 0 {
			s.Sites[i].Stock = 500
		}
	}
	for i := range s.Hazards {
		if s.Hazards[i].Radius < 0 {
			s.Hazards[i].Radius = 0
		}
	}
}

// Validate rejects maps the world builder cannot represent.
func (s Scenario) Validate() error {
	if s.Cols <= 0 || s.Rows <= 0 {
		return fmt.Errorf("cols and rows must be > 0 (got %dx%d)", s.Cols, s.Rows)
	}
	inBounds := func(q, r int) bool {
		return q >= 0 && q < s.Cols && r >= 0 && r < s.Rows
	}
	for i, o := range s.Obstacles {
		if !inBounds(o.Q, o.R) {
			return fmt.Errorf("obstacles[%d] (%d,%d) outside %dx%d map", i, o.Q, o.R, s.Cols, s.Rows)
		}
	}
	for i, p := range s.Patches {
		if p.W <= 0 || p.H <= 0 {
			return fmt.Errorf("patches[%d] w/h must be > 0", i)
		}
		if !inBounds(p.Q, p.R) || !inBounds(p.Q+p.W-1, p.R+p.H-1) {
			return fmt.Errorf("patches[%d] extends outside %dx%d map", i, s.Cols, s.Rows)
		}
		if p.BaseCost < 0 || p.Capacity < 0 {
			return fmt.Errorf("patches[%d] base_cost/capacity must be >= 0", i)
		}
	}
	for i, h := range s.Hazards {
		if !inBounds(h.Q, h.R) {
			return fmt.Errorf("hazards[%d] (%d,%d) outside %dx%d map", i, h.Q, h.R, s.Cols, s.Rows)
		}
		if h.Penalty < 0 {
			return fmt.Errorf("hazards[%d] penalty must be >= 0", i)
		}
	}
	if len(s.Sites) == 0 {
		return fmt.Errorf("sites must not be empty")
	}
	kindSeen := map[string]bool{}
	for i, site := range s.Sites {
		valid := false
		for _, k := range SiteKinds {
			if site.Kind == k {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("sites[%d] kind %q must be one of %v", i, site.Kind, SiteKinds)
		}
		if !inBounds(site.Q, site.R) {
			return fmt.Errorf("sites[%d] (%d,%d) outside %dx%d map", i, site.Q, site.R, s.Cols, s.Rows)
		}
		kindSeen[site.Kind] = true
	}
	for _, k := range SiteKinds {
		if !kindSeen[k] {
			return fmt.Errorf("scenario needs at least one %s site", k)
		}
	}
	return nil
}
