// Package ipc feeds world snapshots and flow field frames from the
// server to the renderer process over a local socket.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"time"

	"hexhaul/internal/config"
)

const (
	// DefaultSocketPath is the Unix socket path for the renderer feed.
	DefaultSocketPath = "/tmp/hexhaul-feed.sock"

	// DefaultTCPPort backs the feed on platforms without Unix sockets.
	DefaultTCPPort = "127.0.0.1:7421"

	// Magic marks the start of every frame header ("HX" little-endian).
	Magic uint16 = 0x5848

	// ProtocolVersion for compatibility checking.
	ProtocolVersion uint8 = 1

	// Frame types
	MsgTypeHello    byte = 0x01
	MsgTypeSnapshot byte = 0x02
	MsgTypeField    byte = 0x03
	MsgTypeBye      byte = 0x04

	// MaxFrameSize bounds one frame body. Field frames dominate; a
	// 256x256 map quantizes to well under this.
	MaxFrameSize = 4 << 20

	// maxResyncBytes bounds the scan for a magic marker after a
	// corrupt header before the connection is declared lost.
	maxResyncBytes = 1 << 16

	// Connection settings
	WriteTimeout   = 50 * time.Millisecond
	ReadTimeout    = 500 * time.Millisecond
	ReconnectDelay = 500 * time.Millisecond
	MaxReconnects  = 20

	// UnreachableQ is the quantized distance for unreachable tiles.
	UnreachableQ uint16 = math.MaxUint16
)

// ErrLostSync reports that no frame boundary was found within the
// resync window.
var ErrLostSync = errors.New("ipc: lost frame sync")

// HelloFrame is sent to each subscriber on connect. It carries the
// scenario so the renderer can rebuild world geometry without sharing
// files with the server.
type HelloFrame struct {
	Scenario    config.Scenario `json:"scenario"`
	SnapshotHz  int             `json:"snapshotHz"`
	FieldEveryN int             `json:"fieldEveryN"`
}

// AgentPoint is one agent's renderable state on the wire.
type AgentPoint struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	State string  `json:"state"`
	Carry int16   `json:"carry"`
}

// SnapshotFrame is the wire form of a world snapshot, trimmed to what
// the renderer overlays on heatmaps.
type SnapshotFrame struct {
	Sequence    uint64       `json:"sequence"`
	Tick        uint64       `json:"tick"`
	Timestamp   int64        `json:"timestamp"` // Unix nano
	Agents      []AgentPoint `json:"agents"`
	AgentCount  int          `json:"agentCount"`
	TotalHauled int64        `json:"totalHauled"`
}

// FieldFrame is one goal's flow field with distances quantized to
// uint16. Dequantize with Scale; UnreachableQ marks unreachable tiles.
type FieldFrame struct {
	Goal      string   `json:"goal"`
	Stamp     uint32   `json:"stamp"`
	Cols      int      `json:"cols"`
	Rows      int      `json:"rows"`
	Scale     float32  `json:"scale"`
	Distances []uint16 `json:"distances"`
	Dirs      []int8   `json:"dirs"`
}

// Header layout: magic(2) version(1) type(1) length(4), little-endian.
const HeaderSize = 8

// WriteFrame writes one length-prefixed JSON frame.
func WriteFrame(w io.Writer, msgType byte, payload interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d > %d", len(body), MaxFrameSize)
	}

	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:2], Magic)
	hdr[2] = ProtocolVersion
	hdr[3] = msgType
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(body)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one frame, scanning forward to the next magic marker
// if the stream is mid-frame (a subscriber that connected late, or a
// short write from a dying publisher).
func ReadFrame(r io.Reader) (byte, []byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}

	skipped := 0
	for binary.LittleEndian.Uint16(hdr[0:2]) != Magic {
		if skipped >= maxResyncBytes {
			return 0, nil, ErrLostSync
		}
		copy(hdr[:], hdr[1:])
		if _, err := io.ReadFull(r, hdr[HeaderSize-1:]); err != nil {
			return 0, nil, err
		}
		skipped++
	}

	if hdr[2] != ProtocolVersion {
		return 0, nil, fmt.Errorf("version mismatch: got %d, want %d", hdr[2], ProtocolVersion)
	}
	length := binary.LittleEndian.Uint32(hdr[4:8])
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("frame too large: %d > %d", length, MaxFrameSize)
	}

	var body []byte
	if length > 0 {
		body = make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}
	return hdr[3], body, nil
}

// QuantizeDistances maps float32 distances onto uint16 with a shared
// scale. Values at or above unreachable become UnreachableQ.
func QuantizeDistances(dists []float32, unreachable float32) ([]uint16, float32) {
	var max float32
	for _, d := range dists {
		if d < unreachable && d > max {
			max = d
		}
	}

	scale := float32(1)
	if max > 0 {
		scale = max / float32(UnreachableQ-1)
	}

	out := make([]uint16, len(dists))
	for i, d := range dists {
		if d >= unreachable {
			out[i] = UnreachableQ
			continue
		}
		q := d / scale
		if q > float32(UnreachableQ-1) {
			q = float32(UnreachableQ - 1)
		}
		out[i] = uint16(q + 0.5)
	}
	return out, scale
}

// DequantizeDistances expands a quantized field back to float32.
// Unreachable tiles come back as the caller's unreachable sentinel.
func DequantizeDistances(qs []uint16, scale float32, unreachable float32) []float32 {
	out := make([]float32, len(qs))
	for i, q := range qs {
		if q == UnreachableQ {
			out[i] = unreachable
			continue
		}
		out[i] = float32(q) * scale
	}
	return out
}

// DecodeHello decodes a hello frame body.
func DecodeHello(data []byte) (*HelloFrame, error) {
	var msg HelloFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	return &msg, nil
}

// DecodeSnapshot decodes a snapshot frame body.
func DecodeSnapshot(data []byte) (*SnapshotFrame, error) {
	var msg SnapshotFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &msg, nil
}

// DecodeField decodes a field frame body.
func DecodeField(data []byte) (*FieldFrame, error) {
	var msg FieldFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode field: %w", err)
	}
	if len(msg.Dirs) != len(msg.Distances) {
		return nil, fmt.Errorf("field frame mismatch: %d dirs for %d distances", len(msg.Dirs), len(msg.Distances))
	}
	return &msg, nil
}

// CleanupSocket removes the socket file if it exists.
func CleanupSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}

// Connect dials the feed with retries so the renderer can start before
// the server.
func Connect(path string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < MaxReconnects; i++ {
		conn, err := ConnectPlatform(path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(ReconnectDelay)
	}
	return nil, fmt.Errorf("connect failed after %d attempts: %w", MaxReconnects, lastErr)
}
