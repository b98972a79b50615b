package sim

// Leaderboard ranks agents by lifetime hauled units with O(log n)
// updates and rank queries.
//
// Operations:
//   - RecordHauled: O(log n)
//   - Rank: O(log n)
//   - Top: O(log n + k)
//   - Around: O(log n + k)
type Leaderboard struct {
	ranks *rankList
}

// HaulerEntry is one agent's row in the standings.
type HaulerEntry struct {
	AgentID int32 `json:"agentId"`
	Hauled  int   `json:"hauled"`
	Rank    int   `json:"rank"`
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{ranks: newRankList()}
}

// RecordHauled sets an agent's lifetime hauled total. Totals only grow,
// so ranks never regress for a live agent.
func (lb *Leaderboard) RecordHauled(agentID int32, total int) {
	lb.ranks.Insert(agentID, float64(total))
}

// Remove drops an agent from the standings.
func (lb *Leaderboard) Remove(agentID int32) {
	lb.ranks.Remove(agentID)
}

// Rank returns an agent's rank (1-indexed, 1 = most hauled), 0 if absent.
func (lb *Leaderboard) Rank(agentID int32) int {
	return lb.ranks.Rank(agentID)
}

// Hauled returns an agent's recorded total.
func (lb *Leaderboard) Hauled(agentID int32) (int, bool) {
	score, ok := lb.ranks.Score(agentID)
	return int(score), ok
}

// Top returns the n best haulers.
func (lb *Leaderboard) Top(n int) []HaulerEntry {
	entries := lb.ranks.Range(1, n)
	result := make([]HaulerEntry, len(entries))
	for i, e := range entries {
		result[i] = HaulerEntry{
			AgentID: e.ID,
			Hauled:  int(e.Score),
			Rank:    i + 1,
		}
	}
	return result
}

// Around returns the neighborhood of an agent in the standings: up to
// `above` better-ranked rows, the agent itself, and up to `below` worse.
func (lb *Leaderboard) Around(agentID int32, above, below int) []HaulerEntry {
	rank := lb.ranks.Rank(agentID)
	if rank == 0 {
		return nil
	}

	start := rank - above
	if start < 1 {
		start = 1
	}
	entries := lb.ranks.Range(start, rank+below)
	result := make([]HaulerEntry, len(entries))
	for i, e := range entries {
		result[i] = HaulerEntry{
			AgentID: e.ID,
			Hauled:  int(e.Score),
			Rank:    start + i,
		}
	}
	return result
}

// Length returns the number of ranked agents.
func (lb *Leaderboard) Length() int {
	return lb.ranks.Length()
}

// Clear removes all standings.
func (lb *Leaderboard) Clear() {
	lb.ranks.Clear()
}

// ForEach walks the standings best-first. Return false to stop.
func (lb *Leaderboard) ForEach(fn func(entry HaulerEntry) bool) {
	lb.ranks.ForEach(func(rank int, e rankedEntry) bool {
		return fn(HaulerEntry{AgentID: e.ID, Hauled: int(e.Score), Rank: rank})
	})
}
