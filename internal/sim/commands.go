// Admin command queue: a bounded lock-free MPSC ring buffer carrying
// control-plane requests from API handler goroutines into the tick loop,
// which drains it once per tick.
//
// Origin: LMAX Disruptor (2011), Vyukov bounded queue with per-slot
// sequence numbers, single consumer. Cache-line padding keeps the
// producer and consumer cursors off the same line.
package sim

import (
	"runtime"
	"sync/atomic"

	"hexhaul/internal/nav"
)

// CommandKind enumerates admin commands the tick loop accepts.
type CommandKind uint8

const (
	CmdSpawnAgents CommandKind = iota
	CmdSetHazard
	CmdClearHazard
	CmdSetBudget
	CmdSetCadence
	CmdForceRebuild
	CmdSetCoefficients
)

// String returns the wire name of a command kind.
func (k CommandKind) String() string {
	switch k {
	case CmdSpawnAgents:
		return "spawn_agents"
	case CmdSetHazard:
		return "set_hazard"
	case CmdClearHazard:
		return "clear_hazard"
	case CmdSetBudget:
		return "set_budget"
	case CmdSetCadence:
		return "set_cadence"
	case CmdForceRebuild:
		return "force_rebuild"
	case CmdSetCoefficients:
		return "set_coefficients"
	default:
		return "unknown"
	}
}

// Command is one control-plane request. Fields are a union across kinds;
// each kind reads only a subset.
type Command struct {
	Kind  CommandKind
	Tile  int32        // SetHazard, ClearHazard
	Goal  nav.GoalKind // SetCadence, ForceRebuild
	Count int          // SpawnAgents
	Value float64      // SetHazard penalty, SetBudget µs, SetCadence Hz, congestion weight
	Aux   float64      // SetCoefficients hazard weight
}

const cacheLineSize = 64

// linePad keeps adjacent cursors on separate cache lines.
type linePad [cacheLineSize]byte

// slot pairs a command with its publication sequence. A producer claims
// a ticket by advancing head, fills the slot, then publishes by bumping
// seq; the consumer never reads a slot whose seq lags its ticket.
type slot struct {
	seq uint64
	cmd Command
}

// CommandQueue is a bounded MPSC ring: many API goroutines push, the
// tick loop alone pops. Capacity rounds up to a power of 2.
type CommandQueue struct {
	_pad0 linePad

	head uint64 // write position (producers)
	_pad1 linePad

	tail uint64 // read position (consumer)
	_pad2 linePad

	mask uint64
	_pad3 linePad

	data []slot

	dropped uint64 // atomic - rejected submissions
}

// NewCommandQueue creates a queue holding at least capacity commands.
func NewCommandQueue(capacity int) *CommandQueue {
	c := 1
	for c < capacity {
		c <<= 1
	}
	q := &CommandQueue{
		mask: uint64(c - 1),
		data: make([]slot, c),
	}
	for i := range q.data {
		q.data[i].seq = uint64(i)
	}
	return q
}

// Submit attempts to enqueue a command. Returns false when the ring is
// full; the counters record the rejection.
func (q *CommandQueue) Submit(cmd Command) bool {
	head := atomic.LoadUint64(&q.head)
	for {
		s := &q.data[head&q.mask]
		diff := int64(atomic.LoadUint64(&s.seq)) - int64(head)

		if diff < 0 {
			// Slot still holds an unconsumed command from a lap ago
			atomic.AddUint64(&q.dropped, 1)
			return false
		}
		if diff == 0 && atomic.CompareAndSwapUint64(&q.head, head, head+1) {
			s.cmd = cmd
			atomic.StoreUint64(&s.seq, head+1)
			return true
		}

		// Another producer won the ticket, retry on a fresh cursor
		runtime.Gosched()
		head = atomic.LoadUint64(&q.head)
	}
}

// DrainTo pops published commands into buf (consumer only). Returns the
// number of commands written. A slot that is claimed but not yet
// published ends the drain; it surfaces on the next call.
func (q *CommandQueue) DrainTo(buf []Command) int {
	count := 0
	tail := atomic.LoadUint64(&q.tail)
	for count < len(buf) {
		s := &q.data[tail&q.mask]
		if int64(atomic.LoadUint64(&s.seq))-int64(tail+1) < 0 {
			break
		}
		buf[count] = s.cmd
		atomic.StoreUint64(&s.seq, tail+q.mask+1)
		tail++
		atomic.StoreUint64(&q.tail, tail)
		count++
	}
	return count
}

// Len returns the approximate number of queued commands.
func (q *CommandQueue) Len() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the ring capacity.
func (q *CommandQueue) Cap() int {
	return int(q.mask + 1)
}

// Dropped returns the number of rejected submissions.
func (q *CommandQueue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}
