// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all server and simulation settings.
//
// IMPORTANT: When changing defaults, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       int    // Public API/WebSocket port
	AdminToken string // Bearer token for /api/admin/*; empty disables admin routes
	DebugAddr  string // Loopback-only listener for pprof/metrics/health
	DebugField bool   // Expose raw field dumps and field PNGs over HTTP
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:       3000,
		AdminToken: "",
		DebugAddr:  "127.0.0.1:6060",
		DebugField: false,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
// Environment variables take precedence over defaults.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("HEXHAUL_PORT", 0); p > 0 {
		cfg.Port = p
	}
	if t := os.Getenv("HEXHAUL_ADMIN_TOKEN"); t != "" {
		cfg.AdminToken = t
	}
	if addr := os.Getenv("HEXHAUL_DEBUG_ADDR"); addr != "" {
		cfg.DebugAddr = addr
	}
	if getEnvBool("HEXHAUL_DEBUG_FIELD", false) {
		cfg.DebugField = true
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig holds tick-loop and population settings.
type SimConfig struct {
	TickRate  int   // Simulation ticks per second
	Agents    int   // Agents spawned at startup
	MaxAgents int   // Hard cap on live agents (admin spawns clamp here)
	Seed      int64 // RNG seed; 0 seeds from wall clock
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:  30,
		Agents:    150,
		MaxAgents: 2000,
		Seed:      0,
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if tr := getEnvInt("HEXHAUL_TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if a := getEnvInt("HEXHAUL_AGENTS", -1); a >= 0 {
		cfg.Agents = a
	}
	if m := getEnvInt("HEXHAUL_MAX_AGENTS", 0); m > 0 {
		cfg.MaxAgents = m
	}
	if s := getEnvInt64("HEXHAUL_SEED", 0); s != 0 {
		cfg.Seed = s
	}
	if cfg.Agents > cfg.MaxAgents {
		cfg.Agents = cfg.MaxAgents
	}

	return cfg
}

// =============================================================================
// NAVIGATION CONFIGURATION
// =============================================================================

// NavConfig holds field-maintenance tuning. Weights and smoothing map
// directly onto the nav engine's cost model; cadences are per-goal refresh
// rates in rebuilds per second (0 = rebuild whenever dirty work exists).
type NavConfig struct {
	BudgetMicros     int     // Per-update rebuild budget shared by all goals
	CongestionWeight float64 // Cost weight for oversubscribed tiles
	HazardWeight     float64 // Cost weight for hazard penalties
	EmaLambda        float64 // Crowd-density smoothing factor (0..1)
	DirtyEpsilon     float64 // Minimum cost change that marks a tile dirty
	DepotHz          float64 // Depot field refresh cadence
	RestHz           float64 // Rest-site field refresh cadence
	ResourceHz       float64 // Resource field refresh cadence
}

// DefaultNav returns the default navigation configuration.
// Budget and weights match the nav engine's own defaults.
func DefaultNav() NavConfig {
	return NavConfig{
		BudgetMicros:     1500,
		CongestionWeight: 1.0,
		HazardWeight:     1.0,
		EmaLambda:        0.2,
		DirtyEpsilon:     0.01,
		DepotHz:          10,
		RestHz:           5,
		ResourceHz:       3,
	}
}

// NavFromEnv returns navigation configuration with environment variable overrides.
func NavFromEnv() NavConfig {
	cfg := DefaultNav()

	if b := getEnvInt("HEXHAUL_NAV_BUDGET_US", 0); b > 0 {
		cfg.BudgetMicros = b
	}
	if w := getEnvFloat("HEXHAUL_CONGESTION_WEIGHT", -1); w >= 0 {
		cfg.CongestionWeight = w
	}
	if w := getEnvFloat("HEXHAUL_HAZARD_WEIGHT", -1); w >= 0 {
		cfg.HazardWeight = w
	}
	if l := getEnvFloat("HEXHAUL_EMA_LAMBDA", -1); l >= 0 && l <= 1 {
		cfg.EmaLambda = l
	}
	if e := getEnvFloat("HEXHAUL_DIRTY_EPSILON", -1); e >= 0 {
		cfg.DirtyEpsilon = e
	}
	if hz := getEnvFloat("HEXHAUL_DEPOT_HZ", -1); hz >= 0 {
		cfg.DepotHz = hz
	}
	if hz := getEnvFloat("HEXHAUL_REST_HZ", -1); hz >= 0 {
		cfg.RestHz = hz
	}
	if hz := getEnvFloat("HEXHAUL_RESOURCE_HZ", -1); hz >= 0 {
		cfg.ResourceHz = hz
	}

	return cfg
}

// =============================================================================
// STREAMING CONFIGURATION (WEBSOCKET + RENDERER FEED)
// =============================================================================

// StreamConfig holds spectator fan-out settings shared by the WebSocket
// hub and the renderer IPC feed.
type StreamConfig struct {
	SnapshotHz  int    // Snapshot broadcast rate to WS clients and IPC
	MaxClients  int    // Hard cap on concurrent WS clients
	MaxPerIP    int    // Per-IP WS connection cap
	IPCSocket   string // Unix socket path for the renderer feed
	FieldEveryN int    // Publish field frames every N snapshots (0 disables)
}

// DefaultStream returns the default streaming configuration.
func DefaultStream() StreamConfig {
	return StreamConfig{
		SnapshotHz:  10,
		MaxClients:  200,
		MaxPerIP:    4,
		IPCSocket:   "/tmp/hexhaul-feed.sock",
		FieldEveryN: 10,
	}
}

// StreamFromEnv returns streaming configuration with environment variable overrides.
func StreamFromEnv() StreamConfig {
	cfg := DefaultStream()

	if hz := getEnvInt("HEXHAUL_SNAPSHOT_HZ", 0); hz > 0 {
		cfg.SnapshotHz = hz
	}
	if m := getEnvInt("HEXHAUL_MAX_CLIENTS", 0); m > 0 {
		cfg.MaxClients = m
	}
	if m := getEnvInt("HEXHAUL_MAX_PER_IP", 0); m > 0 {
		cfg.MaxPerIP = m
	}
	if s := os.Getenv("HEXHAUL_IPC_SOCKET"); s != "" {
		cfg.IPCSocket = s
	}
	if n := getEnvInt("HEXHAUL_FIELD_EVERY", -1); n >= 0 {
		cfg.FieldEveryN = n
	}

	return cfg
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig holds persistence paths. Empty values disable the
// corresponding sink.
type StorageConfig struct {
	EventDir   string // Directory for compressed event logs
	SQLitePath string // Telemetry database file
}

// DefaultStorage returns the default storage configuration.
func DefaultStorage() StorageConfig {
	return StorageConfig{
		EventDir:   "data/events",
		SQLitePath: "data/telemetry.db",
	}
}

// StorageFromEnv returns storage configuration with environment variable overrides.
func StorageFromEnv() StorageConfig {
	cfg := DefaultStorage()

	if d := os.Getenv("HEXHAUL_EVENT_DIR"); d != "" {
		cfg.EventDir = d
	}
	if p := os.Getenv("HEXHAUL_SQLITE_PATH"); p != "" {
		cfg.SQLitePath = p
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server  ServerConfig
	Sim     SimConfig
	Nav     NavConfig
	Stream  StreamConfig
	Storage StorageConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:  ServerFromEnv(),
		Sim:     SimFromEnv(),
		Nav:     NavFromEnv(),
		Stream:  StreamFromEnv(),
		Storage: StorageFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
