// Package telemetry persists navigation build history and tick timings
// to SQLite so operators can answer "how expensive are rebuilds" after
// the fact. Writes are funneled through a single async goroutine; the
// engine's tick loop never touches the database directly.
package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"hexhaul/internal/nav"
)

const writeQueueSize = 4096

type reqKind int

const (
	reqBuild reqKind = iota + 1
	reqTickStat
	reqFlush
)

type req struct {
	kind reqKind

	build buildRow
	tick  tickRow
	done  chan struct{}
}

type buildRow struct {
	Goal       string
	Stamp      uint32
	Nodes      int
	DurationUs int64
	DirtySeeds int
	HotStart   bool
	Tick       uint64
	RecordedAt string
}

type tickRow struct {
	Tick       uint64
	DurationUs int64
	Agents     int
	DirtyLen   int
	RecordedAt string
}

// Store is the telemetry database. It satisfies the engine's sink
// interface: Record* calls enqueue and return immediately, dropping
// (and counting) rows if the writer falls behind.
type Store struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped uint64 // atomic
}

// Open creates or opens the telemetry database and starts the writer.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("telemetry: empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection. SQLite serializes writers anyway; this keeps the
	// driver from queueing a second conn that would just block.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		ch: make(chan req, writeQueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-heavy build log; NORMAL is enough durability
	// for an observability side channel.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS builds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			goal TEXT NOT NULL,
			stamp INTEGER NOT NULL,
			nodes INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			dirty_seeds INTEGER NOT NULL,
			hot INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_goal_id ON builds(goal, id);`,
		`CREATE TABLE IF NOT EXISTS tick_stats (
			tick INTEGER PRIMARY KEY,
			duration_us INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			dirty_len INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close drains pending writes and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordBuild enqueues one field rebuild row. Never blocks.
func (s *Store) RecordBuild(goal string, stamp uint32, stats nav.BuildStats, tick uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	r := req{kind: reqBuild, build: buildRow{
		Goal:       goal,
		Stamp:      stamp,
		Nodes:      stats.NodesRelaxed,
		DurationUs: stats.Elapsed.Microseconds(),
		DirtySeeds: stats.DirtySeeded,
		HotStart:   stats.HotStart,
		Tick:       tick,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}}
	select {
	case s.ch <- r:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
}

// RecordTick enqueues one tick timing row. Never blocks.
func (s *Store) RecordTick(tick uint64, durationUs int64, agents, dirtyLen int) {
	if s == nil || s.closed.Load() {
		return
	}
	r := req{kind: reqTickStat, tick: tickRow{
		Tick:       tick,
		DurationUs: durationUs,
		Agents:     agents,
		DirtyLen:   dirtyLen,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}}
	select {
	case s.ch <- r:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
}

// Flush blocks until every row enqueued before the call is committed.
// Intended for tests and shutdown paths, not the hot loop.
func (s *Store) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		<-done
	default:
		// Queue full of real work; the ordinary commit path will land it.
	}
}

// Dropped returns how many rows were discarded because the write queue
// was full.
func (s *Store) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

func (s *Store) loop() {
	insertBuild, _ := s.db.Prepare(`INSERT INTO builds
		(goal, stamp, nodes, duration_us, dirty_seeds, hot, tick, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO tick_stats
		(tick, duration_us, agents, dirty_len, recorded_at)
		VALUES (?, ?, ?, ?, ?)`)
	defer func() {
		if insertBuild != nil {
			_ = insertBuild.Close()
		}
		if insertTick != nil {
			_ = insertTick.Close()
		}
	}()

	const commitEvery = 512

	var tx *sql.Tx
	ops := 0

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.Begin()
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		ops = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		ops = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		ops = 0
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}

		begin()
		if tx == nil {
			atomic.AddUint64(&s.dropped, 1)
			continue
		}

		switch r.kind {
		case reqBuild:
			b := r.build
			if insertBuild != nil {
				hot := 0
				if b.HotStart {
					hot = 1
				}
				if _, err := tx.Stmt(insertBuild).Exec(
					b.Goal, int64(b.Stamp), b.Nodes, b.DurationUs,
					b.DirtySeeds, hot, int64(b.Tick), b.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				ops++
			}

		case reqTickStat:
			t := r.tick
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					int64(t.Tick), t.DurationUs, t.Agents, t.DirtyLen, t.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				ops++
			}
		}

		// Commit when the queue drains so readers see fresh rows, or at
		// the batch cap so a sustained burst cannot hold the lock.
		if ops >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
