package ipc

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber consumes the renderer feed, reconnecting until the
// publisher says bye.
type Subscriber struct {
	socketPath string
	conn       net.Conn
	connMu     sync.Mutex

	// Latest snapshot (lock-free access)
	latestSnapshot atomic.Value // *SnapshotFrame

	hello   HelloFrame
	helloMu sync.RWMutex
	helloCh chan HelloFrame

	framesReceived int64 // atomic
	reconnects     int64 // atomic
	errors         int64 // atomic

	running int32 // atomic
	sawBye  int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup

	onSnapshot   func(*SnapshotFrame)
	onField      func(*FieldFrame)
	onHello      func(*HelloFrame)
	onBye        func()
	onConnect    func()
	onDisconnect func()
}

// NewSubscriber creates a subscriber for the given socket path.
func NewSubscriber(socketPath string) *Subscriber {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Subscriber{
		socketPath: socketPath,
		helloCh:    make(chan HelloFrame, 1),
		stopCh:     make(chan struct{}),
	}
}

// OnSnapshot sets the snapshot frame callback.
func (s *Subscriber) OnSnapshot(fn func(*SnapshotFrame)) { s.onSnapshot = fn }

// OnField sets the field frame callback.
func (s *Subscriber) OnField(fn func(*FieldFrame)) { s.onField = fn }

// OnHello sets the hello frame callback.
func (s *Subscriber) OnHello(fn func(*HelloFrame)) { s.onHello = fn }

// OnBye sets the callback for a clean publisher shutdown. After bye the
// subscriber stops reconnecting.
func (s *Subscriber) OnBye(fn func()) { s.onBye = fn }

// OnConnect sets the connection-established callback.
func (s *Subscriber) OnConnect(fn func()) { s.onConnect = fn }

// OnDisconnect sets the connection-lost callback.
func (s *Subscriber) OnDisconnect(fn func()) { s.onDisconnect = fn }

// Start begins connecting to the feed. Callbacks must be set first.
func (s *Subscriber) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil
	}

	s.wg.Add(1)
	go s.connectionLoop()

	log.Printf("📡 Feed subscriber connecting to %s", GetPlatformAddress(s.socketPath))
	return nil
}

// Stop disconnects and halts reconnect attempts.
func (s *Subscriber) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	log.Println("📡 Feed subscriber stopped")
}

// GetLatestSnapshot returns the most recent snapshot frame, or nil.
func (s *Subscriber) GetLatestSnapshot() *SnapshotFrame {
	if val := s.latestSnapshot.Load(); val != nil {
		return val.(*SnapshotFrame)
	}
	return nil
}

// GetHello returns the greeting received from the publisher.
func (s *Subscriber) GetHello() HelloFrame {
	s.helloMu.RLock()
	defer s.helloMu.RUnlock()
	return s.hello
}

// WaitForHello blocks until the publisher greets us or the timeout
// passes. The renderer needs the scenario before it can draw anything.
func (s *Subscriber) WaitForHello(timeout time.Duration) *HelloFrame {
	select {
	case hello := <-s.helloCh:
		return &hello
	case <-time.After(timeout):
		return nil
	case <-s.stopCh:
		return nil
	}
}

// SawBye reports whether the publisher announced a clean shutdown.
func (s *Subscriber) SawBye() bool {
	return atomic.LoadInt32(&s.sawBye) == 1
}

// GetStats returns frames received, reconnects and errors.
func (s *Subscriber) GetStats() (received int64, reconnects int64, errors int64) {
	return atomic.LoadInt64(&s.framesReceived),
		atomic.LoadInt64(&s.reconnects),
		atomic.LoadInt64(&s.errors)
}

// IsConnected reports whether a connection is live.
func (s *Subscriber) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *Subscriber) connectionLoop() {
	defer s.wg.Done()

	for atomic.LoadInt32(&s.running) == 1 && atomic.LoadInt32(&s.sawBye) == 0 {
		conn, err := ConnectPlatform(s.socketPath)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(ReconnectDelay):
				continue
			}
		}

		log.Printf("✅ Connected to feed at %s", GetPlatformAddress(s.socketPath))

		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()

		if s.onConnect != nil {
			s.onConnect()
		}

		s.readLoop(conn)

		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()

		if s.onDisconnect != nil {
			s.onDisconnect()
		}

		if atomic.LoadInt32(&s.sawBye) == 1 {
			return
		}
		atomic.AddInt64(&s.reconnects, 1)

		select {
		case <-s.stopCh:
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

// readLoop drains frames until the connection drops, the publisher
// says bye, or Stop is called.
func (s *Subscriber) readLoop(conn net.Conn) {
	for atomic.LoadInt32(&s.running) == 1 {
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))

		msgType, data, err := ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Println("🔌 Feed closed by publisher")
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			log.Printf("⚠️ Feed read error: %v", err)
			atomic.AddInt64(&s.errors, 1)
			return
		}

		switch msgType {
		case MsgTypeHello:
			s.handleHello(data)

		case MsgTypeSnapshot:
			s.handleSnapshot(data)

		case MsgTypeField:
			s.handleField(data)

		case MsgTypeBye:
			atomic.StoreInt32(&s.sawBye, 1)
			if s.onBye != nil {
				s.onBye()
			}
			return
		}
	}
}

func (s *Subscriber) handleHello(data []byte) {
	hello, err := DecodeHello(data)
	if err != nil {
		log.Printf("⚠️ Bad hello frame: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	s.helloMu.Lock()
	s.hello = *hello
	s.helloMu.Unlock()

	log.Printf("📺 Feed scenario %q: %dx%d, %d Hz",
		hello.Scenario.Name, hello.Scenario.Cols, hello.Scenario.Rows, hello.SnapshotHz)

	select {
	case s.helloCh <- *hello:
	default:
	}

	if s.onHello != nil {
		s.onHello(hello)
	}
}

func (s *Subscriber) handleSnapshot(data []byte) {
	frame, err := DecodeSnapshot(data)
	if err != nil {
		log.Printf("⚠️ Bad snapshot frame: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	s.latestSnapshot.Store(frame)
	atomic.AddInt64(&s.framesReceived, 1)

	if s.onSnapshot != nil {
		s.onSnapshot(frame)
	}
}

func (s *Subscriber) handleField(data []byte) {
	frame, err := DecodeField(data)
	if err != nil {
		log.Printf("⚠️ Bad field frame: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	atomic.AddInt64(&s.framesReceived, 1)

	if s.onField != nil {
		s.onField(frame)
	}
}
