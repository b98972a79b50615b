package sim

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeTick              // Tick boundary with RNG seed
	EventTypeAgentSpawn
	EventTypeDelivery
	EventTypeFieldSwap
	EventTypeHazardSet
	EventTypeHazardCleared
	EventTypeResourceDepleted
	EventTypeResourceRespawn
	EventTypeCommand
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8     `json:"version"`   // Schema version
	Type      EventType `json:"type"`      // Event type
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // Monotonic sequence
	TickNum   uint64    `json:"tickNum"`   // Sim tick this occurred in
	Source    string    `json:"source"`    // Originator (agent id, "admin", "sim")
	Payload   []byte    `json:"payload"`   // JSON-encoded payload
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypeAgentSpawn:
		return "agent_spawn"
	case EventTypeDelivery:
		return "delivery"
	case EventTypeFieldSwap:
		return "field_swap"
	case EventTypeHazardSet:
		return "hazard_set"
	case EventTypeHazardCleared:
		return "hazard_cleared"
	case EventTypeResourceDepleted:
		return "resource_depleted"
	case EventTypeResourceRespawn:
		return "resource_respawn"
	case EventTypeCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Typed payloads for different event types

// TickPayload contains tick boundary information for replay
type TickPayload struct {
	RNGSeed     int64 `json:"rngSeed"`
	AgentCount  int   `json:"agentCount"`
	DeltaTimeNs int64 `json:"deltaTimeNs"`
}

// AgentSpawnPayload contains agent spawn details
type AgentSpawnPayload struct {
	AgentID int32   `json:"agentId"`
	Tile    int32   `json:"tile"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// DeliveryPayload contains one completed haul
type DeliveryPayload struct {
	AgentID   int32 `json:"agentId"`
	DepotTile int32 `json:"depotTile"`
	Units     int   `json:"units"`
	Total     int   `json:"total"` // Agent lifetime hauled units
}

// FieldSwapPayload records a published field rebuild
type FieldSwapPayload struct {
	Goal       string `json:"goal"`
	Stamp      uint32 `json:"stamp"`
	Nodes      int    `json:"nodes"`
	DurationUs int64  `json:"durationUs"`
	DirtySeeds int    `json:"dirtySeeds"`
	HotStart   bool   `json:"hotStart"`
}

// HazardPayload contains hazard placement details
type HazardPayload struct {
	Tile    int32   `json:"tile"`
	Penalty float64 `json:"penalty"`
}

// ResourcePayload contains resource site state changes
type ResourcePayload struct {
	SiteTile int32 `json:"siteTile"`
	Stock    int   `json:"stock"`
}

// CommandPayload records an admin command outcome
type CommandPayload struct {
	Kind     string `json:"kind"`
	Accepted bool   `json:"accepted"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, source string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		Source:    source,
		Payload:   EncodePayload(payload),
	}
}
