package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hexhaul/internal/config"
	"hexhaul/internal/sim"
)

// Server is the HTTP API server with WebSocket support.
// It combines the REST router with the WebSocket hub for live snapshots.
type Server struct {
	engine      *sim.Engine
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	snapshotHz  int
}

// NewServer creates an API server from config.
//
// IMPORTANT: the hub and broadcast loop do NOT start until Start() is
// called; construction only spins up the rate limiter's eviction loop.
// Tests can build a server and exercise Router() without a listener.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter()
// directly.
func NewServer(engine *sim.Engine, telem TelemetryInterface, serverCfg config.ServerConfig, streamCfg config.StreamConfig) *Server {
	s := &Server{
		engine:     engine,
		wsHub:      NewWebSocketHub(streamCfg.MaxClients, streamCfg.MaxPerIP),
		snapshotHz: streamCfg.SnapshotHz,
	}

	s.rateLimiter = NewIPRateLimiter(DefaultRateLimitConfig)

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Telemetry:   telem,
		AdminToken:  serverCfg.AdminToken,
		DebugField:  serverCfg.DebugField,
		RateLimiter: s.rateLimiter,
	})

	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds WebSocket routes to the router. These need
// the wsHub instance, so they live outside the NewRouter factory.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws", s.handleWS)
	s.router.Get("/socket.io/", s.handleSocketIO)
}

// Start begins serving and spins up the hub and broadcast loop. It
// blocks until the listener fails or Stop() shuts it down, mirroring
// http.ListenAndServe.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.engine, s.snapshotHz)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("   - state:  http://localhost%s/api/state", addr)
	log.Printf("   - ws:     ws://localhost%s/ws", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Router returns the HTTP handler for use with httptest.
//
// Example:
//
//	srv := api.NewServer(engine, telem, serverCfg, streamCfg)
//	ts := httptest.NewServer(srv.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop drains in-flight requests, then tears down the hub and the rate
// limiter. Safe to call when Start was never invoked.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("http shutdown: %w", shutdownErr)
		}
	}

	s.wsHub.Stop()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// handleSocketIO keeps the Socket.IO path working for dashboard builds
// that still use it. Only the WebSocket transport is supported.
func (s *Server) handleSocketIO(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Upgrade") == "websocket" {
		s.wsHub.HandleWebSocket(w, r)
		return
	}
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"use websocket"}`))
}
