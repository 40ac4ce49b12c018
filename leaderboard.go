package main

import (
	"context"
	"math"
	"sort"
)

type leaderboardEntry struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
	Marked      int    `json:"marked"`
	Points      int    `json:"points"`
	Percent     int    `json:"percent"`
}

// placeholderName stands in for sessions that contributed marks but
// have no stored display name, so no contributor is silently dropped.
func placeholderName(sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Player " + short
}

// aggregator derives standings on demand by folding raw mark counts.
// No caching: every call reads the store, so a caller always sees its
// own just-recorded mark.
type aggregator struct {
	store *Store
}

func newAggregator(store *Store) *aggregator {
	return &aggregator{store: store}
}

func (a *aggregator) compute(ctx context.Context, game *Game) ([]leaderboardEntry, error) {
	counts, err := a.store.MarkCounts(ctx, game.ID)
	if err != nil {
		return nil, err
	}

	totalMarkable := game.GridSize*game.GridSize - 1

	entries := make([]leaderboardEntry, 0, len(counts))
	for _, mc := range counts {
		name := mc.DisplayName
		if name == "" {
			name = placeholderName(mc.SessionID)
		}

		entries = append(entries, leaderboardEntry{
			SessionID:   mc.SessionID,
			DisplayName: name,
			Marked:      mc.Count,
			Points:      mc.Count * 10,
			Percent:     int(math.Round(float64(mc.Count) / float64(totalMarkable) * 100)),
		})
	}

	// Total order: deterministic for equal inputs.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		if entries[i].Percent != entries[j].Percent {
			return entries[i].Percent > entries[j].Percent
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	return entries, nil
}
