package ipc

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher serves the renderer feed. It owns the listener, greets new
// subscribers with a hello frame, and fans out snapshot and field
// frames without ever blocking the caller.
type Publisher struct {
	socketPath string
	listener   net.Listener

	clients   map[net.Conn]struct{}
	clientsMu sync.RWMutex

	// Drop-oldest buffers: a stalled renderer loses frames, not the sim.
	snapshotCh chan *SnapshotFrame
	fieldCh    chan *FieldFrame

	hello   HelloFrame
	helloMu sync.RWMutex

	clientCount   int32 // atomic
	framesSent    int64 // atomic
	droppedFrames int64 // atomic

	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a publisher for the given socket path.
func NewPublisher(socketPath string) *Publisher {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Publisher{
		socketPath: socketPath,
		clients:    make(map[net.Conn]struct{}),
		snapshotCh: make(chan *SnapshotFrame, 8),
		fieldCh:    make(chan *FieldFrame, 4),
		stopCh:     make(chan struct{}),
	}
}

// SetHello sets the greeting sent to each new subscriber. Call before
// Start so early subscribers see the scenario.
func (p *Publisher) SetHello(hello HelloFrame) {
	p.helloMu.Lock()
	p.hello = hello
	p.helloMu.Unlock()
}

// Start opens the listener and begins accepting subscribers.
func (p *Publisher) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil
	}

	listener, err := CreatePlatformListener(p.socketPath)
	if err != nil {
		atomic.StoreInt32(&p.running, 0)
		return err
	}
	p.listener = listener

	p.wg.Add(1)
	go p.acceptLoop()

	p.wg.Add(1)
	go p.broadcastLoop()

	log.Printf("📡 Renderer feed listening on %s", GetPlatformAddress(p.socketPath))
	return nil
}

// Stop sends bye to every subscriber, then closes the listener and all
// connections.
func (p *Publisher) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}

	close(p.stopCh)

	if p.listener != nil {
		p.listener.Close()
	}

	p.clientsMu.Lock()
	for conn := range p.clients {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		WriteFrame(conn, MsgTypeBye, nil)
		conn.Close()
	}
	p.clients = make(map[net.Conn]struct{})
	p.clientsMu.Unlock()

	p.wg.Wait()

	CleanupSocket(p.socketPath)
	log.Println("📡 Renderer feed stopped")
}

// PublishSnapshot queues a snapshot frame, dropping the oldest queued
// frame when the renderer lags.
func (p *Publisher) PublishSnapshot(frame *SnapshotFrame) {
	if atomic.LoadInt32(&p.running) == 0 {
		return
	}

	select {
	case p.snapshotCh <- frame:
	default:
		select {
		case <-p.snapshotCh:
			atomic.AddInt64(&p.droppedFrames, 1)
		default:
		}
		select {
		case p.snapshotCh <- frame:
		default:
		}
	}
}

// PublishField queues a field frame with the same drop-oldest policy.
func (p *Publisher) PublishField(frame *FieldFrame) {
	if atomic.LoadInt32(&p.running) == 0 {
		return
	}

	select {
	case p.fieldCh <- frame:
	default:
		select {
		case <-p.fieldCh:
			atomic.AddInt64(&p.droppedFrames, 1)
		default:
		}
		select {
		case p.fieldCh <- frame:
		default:
		}
	}
}

// GetStats returns subscriber count, frames sent and frames dropped.
func (p *Publisher) GetStats() (clients int, sent int64, dropped int64) {
	return int(atomic.LoadInt32(&p.clientCount)),
		atomic.LoadInt64(&p.framesSent),
		atomic.LoadInt64(&p.droppedFrames)
}

func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for atomic.LoadInt32(&p.running) == 1 {
		conn, err := p.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&p.running) == 0 {
				return
			}
			log.Printf("⚠️ Feed accept error: %v", err)
			continue
		}

		p.addClient(conn)
	}
}

func (p *Publisher) addClient(conn net.Conn) {
	p.clientsMu.Lock()
	p.clients[conn] = struct{}{}
	p.clientsMu.Unlock()

	count := atomic.AddInt32(&p.clientCount, 1)
	log.Printf("✅ Renderer connected: %s (total: %d)", conn.RemoteAddr(), count)

	p.helloMu.RLock()
	hello := p.hello
	p.helloMu.RUnlock()

	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := WriteFrame(conn, MsgTypeHello, hello); err != nil {
		log.Printf("⚠️ Failed to greet renderer: %v", err)
		p.removeClient(conn)
	}
}

func (p *Publisher) removeClient(conn net.Conn) {
	p.clientsMu.Lock()
	_, ok := p.clients[conn]
	if ok {
		delete(p.clients, conn)
	}
	p.clientsMu.Unlock()

	if ok {
		conn.Close()
		count := atomic.AddInt32(&p.clientCount, -1)
		log.Printf("🔌 Renderer disconnected (remaining: %d)", count)
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return

		case frame := <-p.snapshotCh:
			p.broadcast(MsgTypeSnapshot, frame)

		case frame := <-p.fieldCh:
			p.broadcast(MsgTypeField, frame)
		}
	}
}

// broadcast writes one frame to every subscriber, dropping those that
// cannot keep up with the write deadline.
func (p *Publisher) broadcast(msgType byte, payload interface{}) {
	p.clientsMu.RLock()
	clients := make([]net.Conn, 0, len(p.clients))
	for conn := range p.clients {
		clients = append(clients, conn)
	}
	p.clientsMu.RUnlock()

	if len(clients) == 0 {
		return
	}

	var failed []net.Conn
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := WriteFrame(conn, msgType, payload); err != nil {
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		p.removeClient(conn)
	}

	if len(failed) < len(clients) {
		atomic.AddInt64(&p.framesSent, 1)
	}
}
