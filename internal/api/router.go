package api

import (
	"net/http"

	"hexhaul/internal/nav"
	"hexhaul/internal/sim"
	"hexhaul/internal/telemetry"
	"hexhaul/internal/world"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface is the slice of the sim engine the API layer calls.
// Keeping it an interface lets handler tests run against a mock without
// spinning up the tick loop.
type EngineInterface interface {
	// Snapshot returns the latest published world snapshot
	Snapshot() *sim.WorldSnapshot
	// NavStats returns the navigation health block
	NavStats() sim.NavStats
	// Leaderboard returns the live hauling standings
	Leaderboard() *sim.Leaderboard
	// FieldCopy returns a stable copy of one goal's published field
	FieldCopy(kind nav.GoalKind) (dist []float32, dirs []int8, stamp uint32, ok bool)
	// EventLogStats returns event ring counters
	EventLogStats() map[string]interface{}
	// CommandDrops returns how many admin commands the queue rejected
	CommandDrops() uint64
	// Submit enqueues an admin command for the next tick
	Submit(cmd sim.Command) bool
	// World returns the immutable playfield
	World() *world.World
}

// TelemetryInterface is the query side of the build history store. A nil
// telemetry dependency turns the /api/telemetry routes into 503s.
type TelemetryInterface interface {
	RecentBuilds(goal string, limit int) ([]telemetry.BuildRecord, error)
	Summary() ([]telemetry.BuildSummary, error)
	Totals() (telemetry.Totals, error)
}

// RouterConfig carries the router's dependencies. Designed for
// injection: tests pass mocks and a permissive rate limit.
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	}
//	ts := httptest.NewServer(api.NewRouter(cfg))
type RouterConfig struct {
	// Engine is the simulation engine (required)
	Engine EngineInterface

	// Telemetry is the build history store (optional)
	Telemetry TelemetryInterface

	// AdminToken guards /api/admin/*. Empty leaves admin routes unmounted.
	AdminToken string

	// DebugField exposes raw field dumps and field PNGs. Off by default;
	// a full distance dump of a big map is not something to serve the
	// open internet.
	DebugField bool

	// RateLimiter is an optional pre-built limiter. When nil one is
	// created from RateLimitConfig (or the defaults).
	RateLimiter *IPRateLimiter

	// RateLimitConfig tunes the limiter created when RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins overrides the default allowed origins.
	CORSOrigins []string

	// DisableLogging drops the request logger middleware (benchmarks).
	DisableLogging bool
}

// routerHandlers bundles the dependencies handler methods need.
type routerHandlers struct {
	engine     EngineInterface
	telemetry  TelemetryInterface
	debugField bool
}

// NewRouter builds the HTTP router with all middleware and routes.
//
// No listeners or simulation state are started here. The only background
// work is the eviction loop of a rate limiter created when RateLimiter is
// left nil. Safe to hand straight to httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS so floods are rejected early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		engine:     cfg.Engine,
		telemetry:  cfg.Telemetry,
		debugField: cfg.DebugField,
	}

	r.Route("/api", func(r chi.Router) {
		// World and navigation state
		r.Get("/state", h.handleGetState)
		r.Get("/nav/stats", h.handleNavStats)
		r.Get("/nav/field/{goal}", h.handleFieldDump)
		r.Get("/leaderboard", h.handleLeaderboard)
		r.Get("/events/stats", h.handleEventStats)

		// Build history
		r.Get("/telemetry/builds", h.handleTelemetryBuilds)
		r.Get("/telemetry/summary", h.handleTelemetrySummary)
		r.Get("/telemetry/totals", h.handleTelemetryTotals)

		// Field heatmaps
		r.Get("/debug/field/{goal}.png", h.handleFieldPNG)

		// Admin control plane, bearer-gated. No token, no routes.
		if cfg.AdminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireBearer(cfg.AdminToken))
				r.Post("/hazard", h.handleAdminHazard)
				r.Post("/spawn", h.handleAdminSpawn)
				r.Post("/budget", h.handleAdminBudget)
				r.Post("/cadence", h.handleAdminCadence)
				r.Post("/rebuild", h.handleAdminRebuild)
				r.Post("/coefficients", h.handleAdminCoefficients)
			})
		}
	})

	// Service identity at the root
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"service": "hexhaul",
			"state":   "/api/state",
			"ws":      "/ws",
		})
	})

	return r
}
