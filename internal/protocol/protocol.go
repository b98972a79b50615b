// Package protocol pins the wire names shared by the HTTP API, the
// websocket stream, and the renderer feed. The JSON Schemas under
// schemas/ describe the payloads; the tests here hold both the golden
// samples and the Go types to them.
package protocol

import "encoding/json"

// Websocket event names.
const (
	EventSnapshot = "snapshot"
	EventNavStats = "nav:stats"
)

// Envelope frames every websocket broadcast.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeEnvelope splits a broadcast into event name and raw payload so
// clients can route before decoding the body.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(b, &e)
	return e, err
}
