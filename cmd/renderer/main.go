// =============================================================================
// HEXHAUL - RENDERER
// =============================================================================
// This standalone process handles ONLY rendering:
// - Receives world snapshots and flow field frames via IPC from the server
// - Rasterizes each field into a PNG heatmap on disk
//
// This separation keeps rasterization cost out of the tick loop and off
// the API process entirely.
//
// USAGE:
//   1. Start the server first: go run ./cmd/server
//   2. Then start this renderer: go run ./cmd/renderer
// =============================================================================
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"hexhaul/internal/config"
	"hexhaul/internal/ipc"
	"hexhaul/internal/render"
	"hexhaul/internal/world"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env file found, using environment variables")
		}
	}

	log.Println("================================")
	log.Println("  HEXHAUL - RENDERER")
	log.Println("  Flow field heatmaps")
	log.Println("================================")

	socketPath := getEnvWithDefault("HEXHAUL_IPC_SOCKET", ipc.DefaultSocketPath)
	frameDir := getEnvWithDefault("HEXHAUL_FRAME_DIR", "data/frames")

	if err := os.MkdirAll(frameDir, 0755); err != nil {
		log.Fatalf("Cannot create frame dir %s: %v", frameDir, err)
	}

	log.Printf("IPC Socket: %s", socketPath)
	log.Printf("Frame dir: %s", frameDir)

	subscriber := ipc.NewSubscriber(socketPath)

	// World geometry arrives with the hello frame. A reconnect after a
	// server restart may carry a different scenario, so the world is
	// rebuilt on every hello.
	var mu sync.Mutex
	var wld *world.World

	rebuild := func(sc config.Scenario) {
		w, err := world.New(sc)
		if err != nil {
			log.Printf("Bad scenario %q from server: %v", sc.Name, err)
			return
		}
		mu.Lock()
		wld = w
		mu.Unlock()
		log.Printf("Map %q: %dx%d tiles", sc.Name, w.Cols(), w.Rows())
	}

	subscriber.OnConnect(func() { log.Println("Connected to server") })
	subscriber.OnDisconnect(func() { log.Println("Disconnected from server") })
	subscriber.OnHello(func(h *ipc.HelloFrame) { rebuild(h.Scenario) })

	subscriber.OnField(func(f *ipc.FieldFrame) {
		mu.Lock()
		w := wld
		mu.Unlock()
		if w == nil {
			return
		}
		if f.Cols != w.Cols() || f.Rows != w.Rows() {
			log.Printf("Field %s is %dx%d but map is %dx%d, skipping",
				f.Goal, f.Cols, f.Rows, w.Cols(), w.Rows())
			return
		}

		opts := render.DefaultOptions()
		if kind, ok := world.GoalByName(f.Goal); ok {
			opts.Sources = w.Sources(kind)
		}
		img := render.RenderField(w, f.ExpandDistances(), f.Dirs, opts)

		path := filepath.Join(frameDir, fmt.Sprintf("field-%s-%06d.png", f.Goal, f.Stamp))
		if err := render.SavePNG(path, img); err != nil {
			log.Printf("Save %s: %v", path, err)
			return
		}
		log.Printf("Rendered %s", path)
	})

	byeCh := make(chan struct{}, 1)
	subscriber.OnBye(func() {
		select {
		case byeCh <- struct{}{}:
		default:
		}
	})

	// Start IPC subscriber
	log.Println("Connecting to server...")
	if err := subscriber.Start(); err != nil {
		log.Fatalf("Failed to start IPC subscriber: %v", err)
	}

	log.Println("Waiting for server hello...")
	if hello := subscriber.WaitForHello(30 * time.Second); hello == nil {
		log.Println("WARNING: No hello from server yet")
		log.Println("Make sure the server is running: go run ./cmd/server")
		log.Println("Continuing anyway (will retry connection)...")
	}

	// Stats logging goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			received, reconnects, errors := subscriber.GetStats()
			line := fmt.Sprintf("Feed: frames=%d, reconnects=%d, errors=%d",
				received, reconnects, errors)
			if snap := subscriber.GetLatestSnapshot(); snap != nil {
				line += fmt.Sprintf(", tick=%d, agents=%d", snap.Tick, snap.AgentCount)
			}
			log.Println(line)
		}
	}()

	// Wait for shutdown signal or a server goodbye
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("")
	log.Println("Renderer ready! Press Ctrl+C to stop.")
	log.Println("")

	select {
	case <-quit:
		log.Println("Shutting down renderer...")
	case <-byeCh:
		log.Println("Server closed the feed, shutting down...")
	}

	subscriber.Stop()
	log.Println("Renderer stopped!")
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
