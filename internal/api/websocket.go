package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hexhaul/internal/protocol"
)

const (
	// DefaultMaxWSConnections caps concurrent spectator connections.
	DefaultMaxWSConnections = 200

	// DefaultMaxWSPerIP caps concurrent connections from one address.
	DefaultMaxWSPerIP = 4

	// wsWriteTimeout bounds a single frame write. A client that cannot
	// drain within this window is dropped rather than stalling the hub.
	wsWriteTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header means a non-browser client; the header only
		// exists to stop cross-site hijacking from browser pages.
		if origin == "" {
			return true
		}
		if IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsClient tracks a WebSocket connection with its source IP.
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// WebSocketHub fans snapshot frames out to spectator connections.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	maxClients int
	wsLimiter  *WebSocketRateLimiter

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a hub with total and per-IP connection caps.
// Non-positive caps fall back to the defaults.
func NewWebSocketHub(maxClients, maxPerIP int) *WebSocketHub {
	if maxClients <= 0 {
		maxClients = DefaultMaxWSConnections
	}
	if maxPerIP <= 0 {
		maxPerIP = DefaultMaxWSPerIP
	}
	return &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		maxClients: maxClients,
		wsLimiter:  NewWebSocketRateLimiter(maxPerIP),
		stopChan:   make(chan struct{}),
	}
}

// Run drives the hub until Stop is called.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.stopChan:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				h.wsLimiter.Release(client.ip)
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client disconnected (%d remaining)", count)
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.writeToAll(message)
			IncrementWSMessages()
		}
	}
}

// Stop shuts the hub down and closes every connection.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

// writeToAll delivers one frame to every client, dropping any that
// cannot accept the write in time.
func (h *WebSocketHub) writeToAll(message []byte) {
	var dead []*websocket.Conn

	h.mu.RLock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			dead = append(dead, conn)
		}
	}
	h.mu.RUnlock()

	if len(dead) == 0 {
		return
	}

	h.mu.Lock()
	for _, conn := range dead {
		if client, ok := h.clients[conn]; ok {
			h.wsLimiter.Release(client.ip)
			delete(h.clients, conn)
			conn.Close()
		}
	}
	count := len(h.clients)
	h.mu.Unlock()
	UpdateWSConnections(count)
}

// closeAll tears down every connection during shutdown.
func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	for conn, client := range h.clients {
		h.wsLimiter.Release(client.ip)
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	UpdateWSConnections(0)
}

// Broadcast queues a message for all connected clients. Full queue
// drops the frame; the next snapshot supersedes it anyway.
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	msg := map[string]interface{}{
		"event": event,
		"data":  data,
	}

	jsonBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case h.broadcast <- jsonBytes:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes world snapshots to clients at hz frames per
// second, and refreshes the slow-moving gauges once a second.
func (h *WebSocketHub) StartBroadcastLoop(engine EngineInterface, hz int) {
	if hz <= 0 {
		hz = 10
	}
	interval := time.Second / time.Duration(hz)
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		frame := 0
		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
			}

			frame++
			if frame%hz == 0 {
				h.refreshGauges(engine)
			}

			if h.ClientCount() == 0 {
				continue
			}

			snap := engine.Snapshot()
			if snap == nil {
				continue
			}
			h.Broadcast(protocol.EventSnapshot, snap)

			if frame%hz == 0 {
				h.Broadcast(protocol.EventNavStats, engine.NavStats())
			}
		}
	}()
}

// refreshGauges copies engine counters into the Prometheus gauges that
// have no natural per-event hook.
func (h *WebSocketHub) refreshGauges(engine EngineInterface) {
	stats := engine.EventLogStats()
	total, _ := stats["total"].(uint64)
	dropped, _ := stats["dropped"].(uint64)
	UpdateEventLogStats(total, dropped)
	UpdateCommandDrops(engine.CommandDrops())
}

// HandleWebSocket upgrades a spectator connection, enforcing the total
// and per-IP caps before the upgrade.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	h.mu.RLock()
	totalConnections := len(h.clients)
	h.mu.RUnlock()

	if totalConnections >= h.maxClients {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", totalConnections)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	client := &wsClient{conn: conn, ip: ip}
	select {
	case h.register <- client:
	case <-h.stopChan:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	// Spectators are read-only. The read loop exists to detect closes;
	// inbound frames are discarded.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.stopChan:
			}
		}()

		conn.SetReadLimit(4096)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
