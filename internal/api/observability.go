package api

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hexhaul/internal/nav"
)

// Metrics with bounded cardinality. The only label values are the three
// goal names and a fixed set of rejection reasons; nothing client-supplied
// ever becomes a label.
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})

	buildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nav_build_duration_seconds",
		Help:    "Time spent in one flow field build slice",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	}, []string{"goal"}) // Bounded: "depot", "rest", "resource"

	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nav_builds_total",
		Help: "Completed field builds",
	}, []string{"goal"})

	hotStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nav_hot_starts_total",
		Help: "Builds seeded from the dirty queue instead of a full reset",
	}, []string{"goal"})

	nodesRelaxedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nav_nodes_relaxed_total",
		Help: "Dijkstra nodes relaxed across all builds",
	}, []string{"goal"})

	dirtyQueueLen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nav_dirty_queue_length",
		Help: "Tiles waiting to be reseeded into field builds",
	})

	agentCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_agent_count",
		Help: "Current number of live agents",
	})

	eventLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_accepted",
		Help: "Events accepted by the event log since start",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_dropped",
		Help: "Events dropped by rate limiting or ring overflow since start",
	})

	commandDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_commands_dropped",
		Help: "Commands rejected because the inbox was full",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected before reaching a handler",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "auth", "ws_total_limit", "ws_ip_limit"

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// MetricsSink feeds engine instrumentation into Prometheus. All methods
// only touch in-memory counters, so the tick loop can call them inline.
type MetricsSink struct{}

// RecordBuild records one completed field build.
func (MetricsSink) RecordBuild(goal string, stamp uint32, stats nav.BuildStats, tick uint64) {
	buildDuration.WithLabelValues(goal).Observe(stats.Elapsed.Seconds())
	buildsTotal.WithLabelValues(goal).Inc()
	nodesRelaxedTotal.WithLabelValues(goal).Add(float64(stats.NodesRelaxed))
	if stats.HotStart {
		hotStartsTotal.WithLabelValues(goal).Inc()
	}
}

// RecordTick records one completed simulation tick.
func (MetricsSink) RecordTick(tick uint64, durationUs int64, agents, dirtyLen int) {
	tickDuration.Observe(float64(durationUs) / 1e6)
	agentCount.Set(float64(agents))
	dirtyQueueLen.Set(float64(dirtyLen))
}

// UpdateEventLogStats refreshes the event log gauges. Called periodically
// from the broadcast loop rather than per event.
func UpdateEventLogStats(total, dropped uint64) {
	eventLogTotal.Set(float64(total))
	eventLogDropped.Set(float64(dropped))
}

// UpdateCommandDrops refreshes the command rejection gauge.
func UpdateCommandDrops(drops uint64) {
	commandDropped.Set(float64(drops))
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "auth",
// "ws_total_limit", "ws_ip_limit".
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections updates the WebSocket connection gauge.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments the WebSocket message counter.
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST stay on loopback in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// StartDebugServer starts the internal observability server with pprof,
// Prometheus metrics and a health check.
// CRITICAL: this binds to localhost only; pprof on a public interface is
// an easy DoS vector.
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !isLoopbackAddr(cfg.ListenAddr) {
		if os.Getenv("HEXHAUL_ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("⚠️ Debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// isLoopbackAddr reports whether addr binds a loopback host.
func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware adds basic authentication to the handler.
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
