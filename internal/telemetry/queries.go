package telemetry

import "database/sql"

// BuildRecord is one persisted field rebuild, as served by the API.
type BuildRecord struct {
	ID         int64  `json:"id"`
	Goal       string `json:"goal"`
	Stamp      uint32 `json:"stamp"`
	Nodes      int    `json:"nodes"`
	DurationUs int64  `json:"durationUs"`
	DirtySeeds int    `json:"dirtySeeds"`
	HotStart   bool   `json:"hotStart"`
	Tick       uint64 `json:"tick"`
	RecordedAt string `json:"recordedAt"`
}

// BuildSummary aggregates one goal's rebuild history.
type BuildSummary struct {
	Goal       string  `json:"goal"`
	Builds     int64   `json:"builds"`
	NodesTotal int64   `json:"nodesTotal"`
	P50Us      int64   `json:"p50Us"`
	P95Us      int64   `json:"p95Us"`
	HotShare   float64 `json:"hotShare"`
}

// Totals is the store-wide accounting block.
type Totals struct {
	Builds       int64  `json:"builds"`
	Ticks        int64  `json:"ticks"`
	NodesRelaxed int64  `json:"nodesRelaxed"`
	Dropped      uint64 `json:"dropped"`
}

// RecentBuilds returns the newest rows, newest first. An empty goal
// matches all goals. Non-positive limits fall back to 50, capped at 1000.
func (s *Store) RecentBuilds(goal string, limit int) ([]BuildRecord, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	var rows *sql.Rows
	var err error
	if goal == "" {
		rows, err = s.db.Query(`SELECT id, goal, stamp, nodes, duration_us, dirty_seeds, hot, tick, recorded_at
			FROM builds ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT id, goal, stamp, nodes, duration_us, dirty_seeds, hot, tick, recorded_at
			FROM builds WHERE goal = ? ORDER BY id DESC LIMIT ?`, goal, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]BuildRecord, 0, limit)
	for rows.Next() {
		var r BuildRecord
		var stamp, tick int64
		var hot int
		if err := rows.Scan(&r.ID, &r.Goal, &stamp, &r.Nodes, &r.DurationUs,
			&r.DirtySeeds, &hot, &tick, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Stamp = uint32(stamp)
		r.Tick = uint64(tick)
		r.HotStart = hot != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary returns per-goal build aggregates with duration percentiles.
func (s *Store) Summary() ([]BuildSummary, error) {
	goals, err := s.goalList()
	if err != nil {
		return nil, err
	}

	out := make([]BuildSummary, 0, len(goals))
	for _, goal := range goals {
		var sum BuildSummary
		sum.Goal = goal

		var hot int64
		err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(nodes), 0), COALESCE(SUM(hot), 0)
			FROM builds WHERE goal = ?`, goal).Scan(&sum.Builds, &sum.NodesTotal, &hot)
		if err != nil {
			return nil, err
		}
		if sum.Builds > 0 {
			sum.HotShare = float64(hot) / float64(sum.Builds)
			if sum.P50Us, err = s.durationPercentile(goal, 50); err != nil {
				return nil, err
			}
			if sum.P95Us, err = s.durationPercentile(goal, 95); err != nil {
				return nil, err
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// Totals returns store-wide counts plus dropped-row accounting.
func (s *Store) Totals() (Totals, error) {
	var t Totals
	if err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(nodes), 0) FROM builds`).
		Scan(&t.Builds, &t.NodesRelaxed); err != nil {
		return t, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tick_stats`).Scan(&t.Ticks); err != nil {
		return t, err
	}
	t.Dropped = s.Dropped()
	return t, nil
}

func (s *Store) goalList() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT goal FROM builds ORDER BY goal`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// durationPercentile computes the pth percentile by offsetting into the
// sorted durations. Nearest-rank on (n-1)*p/100, which matches how the
// dashboards read it.
func (s *Store) durationPercentile(goal string, p int64) (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM builds WHERE goal = ?`, goal).Scan(&n); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	offset := (n - 1) * p / 100

	var v int64
	err := s.db.QueryRow(`SELECT duration_us FROM builds WHERE goal = ?
		ORDER BY duration_us LIMIT 1 OFFSET ?`, goal, offset).Scan(&v)
	if err != nil {
		return 0, err
	}
	return v, nil
}
