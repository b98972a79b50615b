package ipc

import (
	"hexhaul/internal/nav"
	"hexhaul/internal/sim"
)

// FromWorldSnapshot trims an engine snapshot down to the wire frame.
// The renderer only needs positions and carry state for its overlay;
// standings and per-goal detail stay on the HTTP API.
func FromWorldSnapshot(snap *sim.WorldSnapshot) *SnapshotFrame {
	frame := &SnapshotFrame{
		Sequence:    snap.Sequence,
		Tick:        snap.TickNumber,
		Timestamp:   snap.Timestamp.UnixNano(),
		AgentCount:  snap.AgentCount,
		TotalHauled: snap.TotalHauled,
	}

	frame.Agents = make([]AgentPoint, len(snap.Agents))
	for i, a := range snap.Agents {
		frame.Agents[i] = AgentPoint{
			X:     a.X,
			Y:     a.Y,
			State: a.State,
			Carry: a.Carry,
		}
	}
	return frame
}

// FieldFrameFor quantizes one goal's flow field for transmission.
func FieldFrameFor(goal string, cols, rows int, dist []float32, dirs []int8, stamp uint32) *FieldFrame {
	qs, scale := QuantizeDistances(dist, nav.Unreachable)

	dirCopy := make([]int8, len(dirs))
	copy(dirCopy, dirs)

	return &FieldFrame{
		Goal:      goal,
		Stamp:     stamp,
		Cols:      cols,
		Rows:      rows,
		Scale:     scale,
		Distances: qs,
		Dirs:      dirCopy,
	}
}

// ExpandDistances restores a field frame to engine distance units.
func (f *FieldFrame) ExpandDistances() []float32 {
	return DequantizeDistances(f.Distances, f.Scale, nav.Unreachable)
}
