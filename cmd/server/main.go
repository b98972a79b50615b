package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hexhaul/internal/api"
	"hexhaul/internal/config"
	"hexhaul/internal/ipc"
	"hexhaul/internal/nav"
	"hexhaul/internal/sim"
	"hexhaul/internal/telemetry"
	"hexhaul/internal/world"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🧭 ================================")
	log.Println("🧭  HEXHAUL - FLOW FIELD ENGINE")
	log.Println("🧭  Incremental nav + hauling sim")
	log.Println("🧭 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	cfg := config.Load()

	scenarioPath := os.Getenv("HEXHAUL_SCENARIO")
	sc, err := config.LoadScenario(scenarioPath)
	if err != nil {
		log.Fatalf("❌ Scenario: %v", err)
	}
	w, err := world.New(sc)
	if err != nil {
		log.Fatalf("❌ World: %v", err)
	}
	log.Printf("🗺️ Map %q: %dx%d tiles, %d sites", sc.Name, w.Cols(), w.Rows(), len(sc.Sites))

	engine, err := sim.NewEngine(w, cfg.Sim, cfg.Nav)
	if err != nil {
		log.Fatalf("❌ Engine: %v", err)
	}
	log.Printf("🎮 Config: %d TPS, %d agents (cap %d), nav budget %dµs",
		cfg.Sim.TickRate, cfg.Sim.Agents, cfg.Sim.MaxAgents, cfg.Nav.BudgetMicros)

	// Start event log
	if cfg.Storage.EventDir != "" {
		if err := engine.StartEventLog(cfg.Storage.EventDir); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		} else {
			log.Printf("📝 Event log: %s", cfg.Storage.EventDir)
		}
	}

	// Telemetry fans out to the SQLite store and the Prometheus metrics.
	// Losing the store does not take the metrics down with it.
	var store *telemetry.Store
	if cfg.Storage.SQLitePath != "" {
		store, err = telemetry.Open(cfg.Storage.SQLitePath)
		if err != nil {
			log.Printf("⚠️ Telemetry store disabled: %v", err)
			store = nil
		} else {
			log.Printf("📊 Telemetry store: %s", cfg.Storage.SQLitePath)
		}
	}
	sinks := multiSink{api.MetricsSink{}}
	if store != nil {
		sinks = append(sinks, store)
	}
	engine.SetTelemetry(sinks)

	// Start debug server (pprof + Prometheus, loopback only)
	debugCfg := api.DefaultObservabilityConfig()
	debugCfg.ListenAddr = cfg.Server.DebugAddr
	debugCfg.BasicAuthUser = os.Getenv("HEXHAUL_DEBUG_USER")
	debugCfg.BasicAuthPass = os.Getenv("HEXHAUL_DEBUG_PASS")
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(debugCfg); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	// Renderer feed over the local socket
	publisher := ipc.NewPublisher(cfg.Stream.IPCSocket)
	publisher.SetHello(ipc.HelloFrame{
		Scenario:    sc,
		SnapshotHz:  cfg.Stream.SnapshotHz,
		FieldEveryN: cfg.Stream.FieldEveryN,
	})
	if err := publisher.Start(); err != nil {
		log.Printf("⚠️ Renderer feed disabled: %v", err)
		publisher = nil
	} else {
		log.Printf("📺 Renderer feed: %s", ipc.GetPlatformAddress(cfg.Stream.IPCSocket))
	}

	// API server; nil telemetry turns the /api/telemetry routes into 503s
	var telemQueries api.TelemetryInterface
	if store != nil {
		telemQueries = store
	}
	server := api.NewServer(engine, telemQueries, cfg.Server, cfg.Stream)

	// Start simulation engine
	engine.Start()
	log.Println("✅ Simulation engine started")

	feedStop := make(chan struct{})
	feedDone := make(chan struct{})
	if publisher != nil {
		go runFeed(engine, publisher, cfg.Stream, feedStop, feedDone)
	} else {
		close(feedDone)
	}

	// Start API server in goroutine
	go func() {
		addr := ":" + strconv.Itoa(cfg.Server.Port)
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("🔌 WebSocket: ws://localhost%s/ws", addr)
		if cfg.Server.AdminToken != "" {
			log.Println("🔐 Admin routes enabled at /api/admin")
		} else {
			log.Println("⚠️ HEXHAUL_ADMIN_TOKEN not set - admin routes disabled")
		}
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	close(feedStop)
	<-feedDone
	if publisher != nil {
		publisher.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	engine.StopEventLog()
	engine.Stop()
	if store != nil {
		if err := store.Close(); err != nil {
			log.Printf("⚠️ Telemetry close: %v", err)
		}
	}
	log.Println("👋 Goodbye!")
}

// runFeed pushes snapshots and flow fields to the renderer feed until
// stop closes. Field frames go out every FieldEveryN snapshots and only
// when the stamp moved, so idle fields cost nothing on the wire.
func runFeed(engine *sim.Engine, pub *ipc.Publisher, cfg config.StreamConfig, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	hz := cfg.SnapshotHz
	if hz <= 0 {
		hz = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	w := engine.World()
	lastStamp := make(map[nav.GoalKind]uint32)
	frame := 0

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame++

			snap := engine.Snapshot()
			if snap == nil {
				continue
			}
			pub.PublishSnapshot(ipc.FromWorldSnapshot(snap))

			if cfg.FieldEveryN <= 0 || frame%cfg.FieldEveryN != 0 {
				continue
			}
			for _, kind := range world.GoalKinds() {
				dist, dirs, stamp, ok := engine.FieldCopy(kind)
				if !ok || stamp == lastStamp[kind] {
					continue
				}
				lastStamp[kind] = stamp
				pub.PublishField(ipc.FieldFrameFor(world.GoalName(kind), w.Cols(), w.Rows(), dist, dirs, stamp))
			}
		}
	}
}

// multiSink fans tick-loop telemetry out to every registered sink.
type multiSink []sim.TelemetrySink

func (m multiSink) RecordBuild(goal string, stamp uint32, stats nav.BuildStats, tick uint64) {
	for _, s := range m {
		s.RecordBuild(goal, stamp, stats, tick)
	}
}

func (m multiSink) RecordTick(tick uint64, durationUs int64, agents, dirtyLen int) {
	for _, s := range m {
		s.RecordTick(tick, durationUs, agents, dirtyLen)
	}
}
