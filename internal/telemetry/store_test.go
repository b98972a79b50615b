package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"hexhaul/internal/nav"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestStoreRecordsAndQueries verifies the async write path lands rows
// that the query side can read back.
func TestStoreRecordsAndQueries(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 5; i++ {
		s.RecordBuild("depot", uint32(i+1), nav.BuildStats{
			NodesRelaxed: 100 + i,
			DirtySeeded:  i,
			HotStart:     i%2 == 0,
			Elapsed:      time.Duration(200+i) * time.Microsecond,
		}, uint64(i*10))
	}
	s.RecordBuild("resource", 1, nav.BuildStats{NodesRelaxed: 40, Elapsed: 90 * time.Microsecond}, 50)
	s.RecordTick(1, 800, 150, 3)
	s.RecordTick(2, 900, 150, 0)
	s.Flush()

	all, err := s.RecentBuilds("", 10)
	if err != nil {
		t.Fatalf("RecentBuilds failed: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("Expected 6 build rows, got %d", len(all))
	}
	if all[0].Goal != "resource" {
		t.Errorf("Expected newest row first, got goal %q", all[0].Goal)
	}
	if all[1].Stamp != 5 || all[1].Nodes != 104 || !all[1].HotStart {
		t.Errorf("Row fields mangled: %+v", all[1])
	}
	if all[1].DurationUs != 204 {
		t.Errorf("Expected 204µs duration, got %d", all[1].DurationUs)
	}

	depot, err := s.RecentBuilds("depot", 3)
	if err != nil {
		t.Fatalf("RecentBuilds(depot) failed: %v", err)
	}
	if len(depot) != 3 {
		t.Fatalf("Expected limit 3, got %d rows", len(depot))
	}
	for _, r := range depot {
		if r.Goal != "depot" {
			t.Errorf("Goal filter leaked row for %q", r.Goal)
		}
	}

	totals, err := s.Totals()
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Builds != 6 || totals.Ticks != 2 {
		t.Errorf("Expected 6 builds / 2 ticks, got %d / %d", totals.Builds, totals.Ticks)
	}
	if totals.NodesRelaxed != 100+101+102+103+104+40 {
		t.Errorf("Unexpected node total %d", totals.NodesRelaxed)
	}
	if totals.Dropped != 0 {
		t.Errorf("Expected no drops, got %d", totals.Dropped)
	}
}

// TestStoreSummaryPercentiles verifies nearest-rank p50/p95 on a known
// duration ladder.
func TestStoreSummaryPercentiles(t *testing.T) {
	s := testStore(t)

	for i := 1; i <= 10; i++ {
		s.RecordBuild("depot", uint32(i), nav.BuildStats{
			NodesRelaxed: 10,
			HotStart:     i <= 5,
			Elapsed:      time.Duration(i*10) * time.Microsecond,
		}, uint64(i))
	}
	s.Flush()

	sums, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("Expected one goal in summary, got %d", len(sums))
	}
	sum := sums[0]
	if sum.Goal != "depot" || sum.Builds != 10 || sum.NodesTotal != 100 {
		t.Errorf("Summary counts wrong: %+v", sum)
	}
	if sum.P50Us != 50 {
		t.Errorf("Expected p50 50µs, got %d", sum.P50Us)
	}
	if sum.P95Us != 90 {
		t.Errorf("Expected p95 90µs, got %d", sum.P95Us)
	}
	if sum.HotShare != 0.5 {
		t.Errorf("Expected hot share 0.5, got %v", sum.HotShare)
	}
}

// TestStoreEmptyQueries verifies queries behave on a fresh database.
func TestStoreEmptyQueries(t *testing.T) {
	s := testStore(t)

	rows, err := s.RecentBuilds("", 10)
	if err != nil {
		t.Fatalf("RecentBuilds failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}

	sums, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(sums) != 0 {
		t.Errorf("Expected empty summary, got %d goals", len(sums))
	}

	totals, err := s.Totals()
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Builds != 0 || totals.Ticks != 0 {
		t.Errorf("Expected zero totals, got %+v", totals)
	}
}

// TestStoreOpenRejectsEmptyPath verifies the path guard.
func TestStoreOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Expected error for empty path")
	}
}

// TestStoreCloseIdempotent verifies double close and post-close records
// are harmless.
func TestStoreCloseIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	s.RecordTick(1, 500, 10, 0)
	if err := s.Close(); err != nil {
		t.Errorf("Close returned %v", err)
	}
	s.Close()

	// Records after close are no-ops, not panics
	s.RecordTick(2, 500, 10, 0)
	s.RecordBuild("depot", 1, nav.BuildStats{}, 1)
	s.Flush()
}
