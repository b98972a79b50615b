package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"hexhaul/internal/nav"
	"hexhaul/internal/render"
	"hexhaul/internal/sim"
	"hexhaul/internal/world"

	"github.com/go-chi/chi/v5"
)

// Handler methods for routerHandlers. Used by both the standalone
// router (tests) and the full Server.

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Snapshot())
}

func (h *routerHandlers) handleNavStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.NavStats())
}

func (h *routerHandlers) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb := h.engine.Leaderboard()

	if aroundStr := r.URL.Query().Get("around"); aroundStr != "" {
		agentID, err := strconv.ParseInt(aroundStr, 10, 32)
		if err != nil {
			writeError(w, "Invalid agent id", http.StatusBadRequest)
			return
		}
		span := queryInt(r, "span", 2, 1, 10)
		rows := lb.Around(int32(agentID), span, span)
		if rows == nil {
			writeError(w, "Agent not ranked", http.StatusNotFound)
			return
		}
		writeJSON(w, rows)
		return
	}

	limit := queryInt(r, "limit", 10, 1, 100)
	writeJSON(w, lb.Top(limit))
}

func (h *routerHandlers) handleEventStats(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.EventLogStats()
	stats["commandDrops"] = h.engine.CommandDrops()
	writeJSON(w, stats)
}

func (h *routerHandlers) handleFieldDump(w http.ResponseWriter, r *http.Request) {
	if !h.debugField {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}
	kind, ok := world.GoalByName(chi.URLParam(r, "goal"))
	if !ok {
		writeError(w, "Unknown goal", http.StatusNotFound)
		return
	}

	dist, dirs, stamp, ok := h.engine.FieldCopy(kind)
	if !ok {
		writeError(w, "Field not built yet", http.StatusServiceUnavailable)
		return
	}

	wld := h.engine.World()
	writeJSON(w, map[string]interface{}{
		"goal":        world.GoalName(kind),
		"stamp":       stamp,
		"cols":        wld.Cols(),
		"rows":        wld.Rows(),
		"unreachable": nav.Unreachable,
		"distances":   dist,
		"directions":  dirs,
	})
}

func (h *routerHandlers) handleFieldPNG(w http.ResponseWriter, r *http.Request) {
	if !h.debugField {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}
	kind, ok := world.GoalByName(chi.URLParam(r, "goal"))
	if !ok {
		writeError(w, "Unknown goal", http.StatusNotFound)
		return
	}

	dist, dirs, _, ok := h.engine.FieldCopy(kind)
	if !ok {
		writeError(w, "Field not built yet", http.StatusServiceUnavailable)
		return
	}

	wld := h.engine.World()
	opts := render.DefaultOptions()
	opts.Sources = wld.Sources(kind)
	data, err := render.EncodePNG(render.RenderField(wld, dist, dirs, opts))
	if err != nil {
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// Telemetry handlers. A nil store means the feature is disabled by
// configuration, which is a 503, not a 404.

func (h *routerHandlers) handleTelemetryBuilds(w http.ResponseWriter, r *http.Request) {
	if h.telemetry == nil {
		writeError(w, "Telemetry disabled", http.StatusServiceUnavailable)
		return
	}

	goal := r.URL.Query().Get("goal")
	if goal != "" {
		if _, ok := world.GoalByName(goal); !ok {
			writeError(w, "Unknown goal", http.StatusBadRequest)
			return
		}
	}
	limit := queryInt(r, "limit", 50, 1, 1000)

	rows, err := h.telemetry.RecentBuilds(goal, limit)
	if err != nil {
		writeError(w, "Query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (h *routerHandlers) handleTelemetrySummary(w http.ResponseWriter, r *http.Request) {
	if h.telemetry == nil {
		writeError(w, "Telemetry disabled", http.StatusServiceUnavailable)
		return
	}
	sums, err := h.telemetry.Summary()
	if err != nil {
		writeError(w, "Query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sums)
}

func (h *routerHandlers) handleTelemetryTotals(w http.ResponseWriter, r *http.Request) {
	if h.telemetry == nil {
		writeError(w, "Telemetry disabled", http.StatusServiceUnavailable)
		return
	}
	totals, err := h.telemetry.Totals()
	if err != nil {
		writeError(w, "Query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, totals)
}

// Admin handlers translate JSON bodies into tick-loop commands. Submit
// only queues; rejection here means the ring was full, not that the
// command was invalid. Invalid commands are caught before submission.

func (h *routerHandlers) handleAdminHazard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tile    int32   `json:"tile"`
		Penalty float64 `json:"penalty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Tile < 0 || int(req.Tile) >= h.engine.World().TileCount() {
		writeError(w, "Tile out of range", http.StatusBadRequest)
		return
	}
	if req.Penalty < 0 {
		writeError(w, "Penalty must be >= 0", http.StatusBadRequest)
		return
	}

	cmd := sim.Command{Kind: sim.CmdSetHazard, Tile: req.Tile, Value: req.Penalty}
	if req.Penalty == 0 {
		cmd = sim.Command{Kind: sim.CmdClearHazard, Tile: req.Tile}
	}
	h.submit(w, cmd)
}

func (h *routerHandlers) handleAdminSpawn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Count <= 0 || req.Count > 1000 {
		writeError(w, "Count must be in 1..1000", http.StatusBadRequest)
		return
	}
	h.submit(w, sim.Command{Kind: sim.CmdSpawnAgents, Count: req.Count})
}

func (h *routerHandlers) handleAdminBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Micros float64 `json:"micros"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Micros < 0 {
		writeError(w, "Budget must be >= 0", http.StatusBadRequest)
		return
	}
	h.submit(w, sim.Command{Kind: sim.CmdSetBudget, Value: req.Micros})
}

func (h *routerHandlers) handleAdminCadence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal string  `json:"goal"`
		Hz   float64 `json:"hz"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	kind, ok := world.GoalByName(req.Goal)
	if !ok {
		writeError(w, "Unknown goal", http.StatusBadRequest)
		return
	}
	if req.Hz < 0 {
		writeError(w, "Cadence must be >= 0", http.StatusBadRequest)
		return
	}
	h.submit(w, sim.Command{Kind: sim.CmdSetCadence, Goal: kind, Value: req.Hz})
}

func (h *routerHandlers) handleAdminRebuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal string `json:"goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	kind, ok := world.GoalByName(req.Goal)
	if !ok {
		writeError(w, "Unknown goal", http.StatusBadRequest)
		return
	}
	h.submit(w, sim.Command{Kind: sim.CmdForceRebuild, Goal: kind})
}

func (h *routerHandlers) handleAdminCoefficients(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Congestion float64 `json:"congestion"`
		Hazard     float64 `json:"hazard"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Congestion < 0 || req.Hazard < 0 {
		writeError(w, "Weights must be >= 0", http.StatusBadRequest)
		return
	}
	h.submit(w, sim.Command{Kind: sim.CmdSetCoefficients, Value: req.Congestion, Aux: req.Hazard})
}

// submit queues a validated command and reports backpressure.
func (h *routerHandlers) submit(w http.ResponseWriter, cmd sim.Command) {
	if !h.engine.Submit(cmd) {
		writeError(w, "Command queue full", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]interface{}{
		"accepted": true,
		"command":  cmd.Kind.String(),
	})
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// queryInt parses an integer query parameter with a default and clamp.
func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return n
}
