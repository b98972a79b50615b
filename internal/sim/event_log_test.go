package sim

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// TestEventLogRingCollects verifies ring-only mode counts accepted events.
func TestEventLogRingCollects(t *testing.T) {
	el := NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer el.Stop()

	for i := 0; i < 5; i++ {
		if !el.EmitSimple(EventTypeTick, uint64(i), "sim", nil) {
			t.Fatalf("Emit %d rejected", i)
		}
	}
	if !el.EmitSimple(EventTypeDelivery, 5, "agent_7", DeliveryPayload{AgentID: 7, Units: 12, Total: 12}) {
		t.Fatal("Delivery emit rejected")
	}

	if got := el.GetTotalCount(); got != 6 {
		t.Errorf("Expected 6 total events, got %d", got)
	}
	if got := el.GetDroppedCount(); got != 0 {
		t.Errorf("Expected 0 drops, got %d", got)
	}

	// Start is idempotent while running
	if err := el.Start(""); err != nil {
		t.Errorf("Second Start returned %v", err)
	}
}

// TestEventLogDropsBeforeStart verifies emits are rejected until Start.
func TestEventLogDropsBeforeStart(t *testing.T) {
	el := NewEventLog()

	if el.EmitSimple(EventTypeTick, 1, "sim", nil) {
		t.Error("Emit before Start should be rejected")
	}
	if got := el.GetTotalCount(); got != 0 {
		t.Errorf("Expected 0 total before Start, got %d", got)
	}
}

// TestEventLogAccounting verifies every emit lands in exactly one
// counter: accepted events in total, limiter and ring-full rejections in
// dropped.
func TestEventLogAccounting(t *testing.T) {
	el := NewEventLog()
	el.Start("")
	defer el.Stop()

	const n = 1500
	accepted := uint64(0)
	for i := 0; i < n; i++ {
		if el.EmitSimple(EventTypeTick, uint64(i), "", nil) {
			accepted++
		}
	}

	if got := el.GetTotalCount(); got != accepted {
		t.Errorf("Expected total %d to match accepted emits, got %d", accepted, got)
	}
	if total, dropped := el.GetTotalCount(), el.GetDroppedCount(); total+dropped < n {
		t.Errorf("Expected total+dropped >= %d, got %d+%d", n, total, dropped)
	}

	stats := el.GetStats()
	if stats["running"] != true {
		t.Error("Expected running=true in stats")
	}
}

// TestEventLogPerSourceLimit verifies one chatty source gets throttled
// without tripping the global limiter.
func TestEventLogPerSourceLimit(t *testing.T) {
	el := NewEventLog()
	el.Start("")
	defer el.Stop()

	accepted := 0
	for i := 0; i < 250; i++ {
		if el.EmitSimple(EventTypeHazardSet, uint64(i), "chatty", nil) {
			accepted++
		}
	}
	if accepted == 0 {
		t.Fatal("Burst allowance should admit at least one event")
	}
	if accepted == 250 {
		t.Error("Expected the per-source limiter to throttle a 250-event burst")
	}
	if el.GetDroppedCount() == 0 {
		t.Error("Expected throttled events to be counted as drops")
	}
}

// TestEventLogWritesCompressedFiles verifies the file sink produces
// readable zstd JSONL with one line per event.
func TestEventLogWritesCompressedFiles(t *testing.T) {
	dir := t.TempDir()

	el := NewEventLog()
	if err := el.Start(dir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	const n = 10
	for i := 0; i < n; i++ {
		if !el.EmitSimple(EventTypeTick, uint64(i), "sim", nil) {
			t.Fatalf("Emit %d rejected", i)
		}
	}
	el.Stop()
	el.Stop() // tolerated

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	lines := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "events-") || !strings.HasSuffix(name, ".jsonl.zst") {
			t.Errorf("Unexpected file in log dir: %s", name)
			continue
		}
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Open %s failed: %v", name, err)
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			t.Fatalf("zstd reader for %s failed: %v", name, err)
		}
		data, err := io.ReadAll(dec)
		dec.Close()
		f.Close()
		if err != nil {
			t.Fatalf("Decompress %s failed: %v", name, err)
		}
		lines += strings.Count(string(data), "\n")
	}

	if lines != n {
		t.Errorf("Expected %d JSONL lines across log files, got %d", n, lines)
	}
}
