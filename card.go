package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// freeSpace is the reserved marker placed at the center cell of every
// card. It can never be marked explicitly and always counts as marked
// during win checks.
const freeSpace = "FREE"

type Card struct {
	SessionID string
	GameID    string
	Layout    [][]string
	CreatedAt time.Time
}

type WinRecord struct {
	SessionID    string
	GameID       string
	CompletedAt  time.Time
	PatternType  string
	PatternWords []string
	SecretWord   string
	Verified     bool
}

type winPattern struct {
	Type  string
	Words []string
}

type winnerSummary struct {
	DisplayName string   `json:"displayName"`
	SessionID   string   `json:"sessionId"`
	PatternType string   `json:"patternType"`
	Points      int      `json:"points"`
	PrizePhrase string   `json:"prizePhrase"`
	WinningRow  []string `json:"patternWords"`
}

// shuffle is a Fisher-Yates shuffle driven by crypto/rand, safe to use
// from concurrently started workers.
func shuffle(words []string) {
	for i := len(words) - 1; i > 0; i-- {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		j := int(b[0]) % (i + 1)
		words[i], words[j] = words[j], words[i]
	}
}

// generateLayout picks gridSize²-1 words from the pool and places the
// free marker at the center cell. Only odd grid sizes have a
// well-defined center.
func generateLayout(pool []string, gridSize int) ([][]string, error) {
	if gridSize < 3 || gridSize%2 == 0 {
		return nil, fmt.Errorf("grid size must be an odd number of at least 3, got %d: %w", gridSize, errValidation)
	}

	needed := gridSize*gridSize - 1
	if len(pool) < needed {
		return nil, fmt.Errorf("word pool has %d words, need %d: %w", len(pool), needed, errValidation)
	}

	words := make([]string, len(pool))
	copy(words, pool)
	shuffle(words)
	words = words[:needed]

	center := gridSize / 2
	layout := make([][]string, gridSize)
	next := 0
	for r := range layout {
		layout[r] = make([]string, gridSize)
		for c := range layout[r] {
			if r == center && c == center {
				layout[r][c] = freeSpace
				continue
			}
			layout[r][c] = words[next]
			next++
		}
	}
	return layout, nil
}

// checkWin reports whether the marked set completes any row, column, or
// either full diagonal of the grid. The free marker always counts as
// marked. The returned pattern labels are 1-based for display.
func checkWin(marked map[string]bool, grid [][]string) (*winPattern, bool) {
	size := len(grid)
	if size == 0 {
		return nil, false
	}

	isMarked := func(word string) bool {
		return word == freeSpace || marked[word]
	}

	line := func(cells []string) (*winPattern, bool) {
		words := make([]string, 0, len(cells))
		for _, w := range cells {
			if !isMarked(w) {
				return nil, false
			}
			words = append(words, w)
		}
		return &winPattern{Words: words}, true
	}

	for r := 0; r < size; r++ {
		if p, ok := line(grid[r]); ok {
			p.Type = fmt.Sprintf("Row %d", r+1)
			return p, true
		}
	}

	for c := 0; c < size; c++ {
		cells := make([]string, size)
		for r := 0; r < size; r++ {
			cells[r] = grid[r][c]
		}
		if p, ok := line(cells); ok {
			p.Type = fmt.Sprintf("Column %d", c+1)
			return p, true
		}
	}

	down := make([]string, size)
	up := make([]string, size)
	for i := 0; i < size; i++ {
		down[i] = grid[i][i]
		up[i] = grid[i][size-1-i]
	}
	if p, ok := line(down); ok {
		p.Type = "Diagonal ↘"
		return p, true
	}
	if p, ok := line(up); ok {
		p.Type = "Diagonal ↙"
		return p, true
	}

	return nil, false
}

// cardEngine generates cards, records marks, and validates win claims.
type cardEngine struct {
	store     *Store
	lifecycle *lifecycle
}

func newCardEngine(store *Store, lc *lifecycle) *cardEngine {
	return &cardEngine{store: store, lifecycle: lc}
}

// cardFor lazily generates and persists the participant's card on
// first request. Once written the layout never regenerates: a lost
// insert race falls through to reading whichever layout won.
func (e *cardEngine) cardFor(ctx context.Context, sessionID string, game *Game) ([][]string, []string, error) {
	layout, err := e.store.CardLayout(ctx, sessionID, game.ID)
	if err != nil {
		layout, err = generateLayout(game.WordPool, game.GridSize)
		if err != nil {
			return nil, nil, err
		}
		if err := e.store.SaveCard(ctx, sessionID, game.ID, layout, time.Now()); err != nil {
			return nil, nil, err
		}
		layout, err = e.store.CardLayout(ctx, sessionID, game.ID)
		if err != nil {
			return nil, nil, err
		}
	}

	marks, err := e.store.SessionMarks(ctx, sessionID, game.ID)
	if err != nil {
		return nil, nil, err
	}
	return layout, marks, nil
}

// recordMark upserts a mark. Marking the same word twice is a no-op in
// effect.
func (e *cardEngine) recordMark(ctx context.Context, sessionID string, game *Game, word string) (time.Time, error) {
	if strings.TrimSpace(word) == "" {
		return time.Time{}, fmt.Errorf("word must be a non-empty string: %w", errValidation)
	}
	if word == freeSpace {
		return time.Time{}, fmt.Errorf("the free space cannot be marked: %w", errValidation)
	}
	if isTerminal(game.Status) {
		return time.Time{}, fmt.Errorf("game %s is %s: %w", game.ID, game.Status, errValidation)
	}

	now := time.Now()
	if err := e.store.UpsertMark(ctx, sessionID, game.ID, word, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// claimWin re-derives the caller's card and marks, validates the
// claimed pattern, and on success transitions the game to winClaimed
// and stores an unverified win record. A second claim while the game is
// already winClaimed fails in the lifecycle table, not here.
func (e *cardEngine) claimWin(ctx context.Context, sessionID string, game *Game) (*WinRecord, error) {
	if game.Status != statusStarted {
		return nil, fmt.Errorf("wins can only be claimed while the game is started, not %s: %w", game.Status, errValidation)
	}

	layout, err := e.store.CardLayout(ctx, sessionID, game.ID)
	if err != nil {
		return nil, err
	}

	words, err := e.store.SessionMarks(ctx, sessionID, game.ID)
	if err != nil {
		return nil, err
	}

	marked := make(map[string]bool, len(words))
	for _, w := range words {
		marked[w] = true
	}

	pattern, ok := checkWin(marked, layout)
	if !ok {
		return nil, fmt.Errorf("no completed row, column, or diagonal: %w", errValidation)
	}

	if _, err := e.lifecycle.requestTransition(ctx, game.ID, statusWinClaimed, "win claimed by "+sessionID); err != nil {
		return nil, err
	}

	record := &WinRecord{
		SessionID:    sessionID,
		GameID:       game.ID,
		CompletedAt:  time.Now(),
		PatternType:  pattern.Type,
		PatternWords: pattern.Words,
		SecretWord:   prizePhrase(),
		Verified:     false,
	}

	if err := e.store.SaveWinRecord(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// verifyWin flips the most recent win record for the game to verified
// and returns the winner summary for broadcast. Points are the count of
// that session's marks in that game.
func (e *cardEngine) verifyWin(ctx context.Context, gameID string) (*winnerSummary, error) {
	record, err := e.store.LatestWinRecord(ctx, gameID)
	if err != nil {
		return nil, err
	}

	if err := e.store.MarkWinVerified(ctx, record.SessionID, record.GameID); err != nil {
		return nil, err
	}

	points, err := e.store.MarkCount(ctx, record.SessionID, gameID)
	if err != nil {
		return nil, err
	}

	name := placeholderName(record.SessionID)
	if sess, err := e.store.SessionByID(ctx, record.SessionID); err == nil {
		name = sess.DisplayName
	}

	return &winnerSummary{
		DisplayName: name,
		SessionID:   record.SessionID,
		PatternType: record.PatternType,
		Points:      points,
		PrizePhrase: record.SecretWord,
		WinningRow:  record.PatternWords,
	}, nil
}
