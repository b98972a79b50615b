package config

import (
	"testing"
)

// TestLoadDefaults verifies the aggregate loader returns sane values
// when no environment overrides are present.
func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != 3000 {
		t.Errorf("Expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Server.DebugField {
		t.Error("Expected field debugging off by default")
	}
	if cfg.Sim.TickRate != 30 {
		t.Errorf("Expected default tick rate 30, got %d", cfg.Sim.TickRate)
	}
	if cfg.Nav.BudgetMicros != 1500 {
		t.Errorf("Expected default nav budget 1500us, got %d", cfg.Nav.BudgetMicros)
	}
	if cfg.Nav.DepotHz != 10 || cfg.Nav.RestHz != 5 || cfg.Nav.ResourceHz != 3 {
		t.Errorf("Unexpected default cadences: depot=%v rest=%v resource=%v",
			cfg.Nav.DepotHz, cfg.Nav.RestHz, cfg.Nav.ResourceHz)
	}
	if cfg.Stream.SnapshotHz != 10 {
		t.Errorf("Expected default snapshot rate 10, got %d", cfg.Stream.SnapshotHz)
	}
	if cfg.Storage.EventDir == "" || cfg.Storage.SQLitePath == "" {
		t.Error("Expected non-empty default storage paths")
	}
}

// TestEnvOverrides verifies environment variables take precedence over
// defaults and that malformed values fall back cleanly.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("HEXHAUL_PORT", "8080")
	t.Setenv("HEXHAUL_ADMIN_TOKEN", "s3cret")
	t.Setenv("HEXHAUL_TICK_RATE", "60")
	t.Setenv("HEXHAUL_NAV_BUDGET_US", "500")
	t.Setenv("HEXHAUL_DEPOT_HZ", "2.5")
	t.Setenv("HEXHAUL_DEBUG_FIELD", "true")
	t.Setenv("HEXHAUL_SEED", "42")
	t.Setenv("HEXHAUL_MAX_CLIENTS", "not-a-number")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080 from env, got %d", cfg.Server.Port)
	}
	if cfg.Server.AdminToken != "s3cret" {
		t.Errorf("Expected admin token from env, got %q", cfg.Server.AdminToken)
	}
	if !cfg.Server.DebugField {
		t.Error("Expected HEXHAUL_DEBUG_FIELD=true to enable field debugging")
	}
	if cfg.Sim.TickRate != 60 {
		t.Errorf("Expected tick rate 60 from env, got %d", cfg.Sim.TickRate)
	}
	if cfg.Sim.Seed != 42 {
		t.Errorf("Expected seed 42 from env, got %d", cfg.Sim.Seed)
	}
	if cfg.Nav.BudgetMicros != 500 {
		t.Errorf("Expected nav budget 500us from env, got %d", cfg.Nav.BudgetMicros)
	}
	if cfg.Nav.DepotHz != 2.5 {
		t.Errorf("Expected depot cadence 2.5 from env, got %v", cfg.Nav.DepotHz)
	}
	if cfg.Stream.MaxClients != DefaultStream().MaxClients {
		t.Errorf("Malformed env value should keep default, got %d", cfg.Stream.MaxClients)
	}
}

// TestAgentsClampedToMax verifies the initial population never exceeds
// the agent cap.
func TestAgentsClampedToMax(t *testing.T) {
	t.Setenv("HEXHAUL_AGENTS", "5000")
	t.Setenv("HEXHAUL_MAX_AGENTS", "100")

	cfg := SimFromEnv()
	if cfg.Agents != 100 {
		t.Errorf("Expected agents clamped to 100, got %d", cfg.Agents)
	}
}
