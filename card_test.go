package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fixedLayout is a 5x5 grid with the free marker in the center,
// matching what generateLayout produces.
func fixedLayout() [][]string {
	return [][]string{
		{"A", "B", "C", "D", "E"},
		{"F", "G", "H", "I", "J"},
		{"K", "L", freeSpace, "M", "N"},
		{"O", "P", "Q", "R", "S"},
		{"T", "U", "V", "W", "X"},
	}
}

func markedSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func TestGenerateLayout(t *testing.T) {
	pool := staticCatalog{}.Words([]string{"conference", "sports"})

	for _, size := range []int{3, 5, 7} {
		layout, err := generateLayout(pool, size)
		if err != nil {
			t.Fatalf("generateLayout(%d): %v", size, err)
		}

		if len(layout) != size {
			t.Fatalf("layout has %d rows, want %d", len(layout), size)
		}

		seen := make(map[string]bool)
		for r, row := range layout {
			if len(row) != size {
				t.Fatalf("row %d has %d cells, want %d", r, len(row), size)
			}
			for c, word := range row {
				if r == size/2 && c == size/2 {
					if word != freeSpace {
						t.Fatalf("center cell = %q, want free marker", word)
					}
					continue
				}
				if word == freeSpace {
					t.Fatalf("free marker found outside center at (%d,%d)", r, c)
				}
				if seen[word] {
					t.Fatalf("duplicate word %q in layout", word)
				}
				seen[word] = true
			}
		}
		if len(seen) != size*size-1 {
			t.Fatalf("layout holds %d words, want %d", len(seen), size*size-1)
		}
	}
}

func TestGenerateLayoutRejections(t *testing.T) {
	pool := staticCatalog{}.Words([]string{"conference"})

	tests := []struct {
		name     string
		pool     []string
		gridSize int
	}{
		{"even grid", pool, 4},
		{"grid too small", pool, 1},
		{"pool too small", pool[:10], 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := generateLayout(tt.pool, tt.gridSize); !errors.Is(err, errValidation) {
				t.Fatalf("err = %v, want errValidation", err)
			}
		})
	}
}

func TestCheckWin(t *testing.T) {
	tests := []struct {
		name    string
		marked  map[string]bool
		wantOK  bool
		pattern string
	}{
		{"row without free cell", markedSet("A", "B", "C", "D", "E"), true, "Row 1"},
		{"row through free cell", markedSet("K", "L", "M", "N"), true, "Row 3"},
		{"column", markedSet("E", "J", "N", "S", "X"), true, "Column 5"},
		{"column through free cell", markedSet("C", "H", "Q", "V"), true, "Column 3"},
		{"down diagonal", markedSet("A", "G", "R", "X"), true, "Diagonal ↘"},
		{"up diagonal", markedSet("E", "I", "P", "T"), true, "Diagonal ↙"},
		{"nothing marked", markedSet(), false, ""},
		{"four of five in a row", markedSet("A", "B", "C", "D"), false, ""},
		{"scattered marks", markedSet("A", "J", "L", "R", "T", "W"), false, ""},
		{"words not on the card", markedSet("Z", "Y", "ZZ", "YY", "XX"), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern, ok := checkWin(tt.marked, fixedLayout())
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if pattern.Type != tt.pattern {
				t.Fatalf("pattern = %q, want %q", pattern.Type, tt.pattern)
			}
			if len(pattern.Words) != 5 {
				t.Fatalf("pattern has %d words, want 5", len(pattern.Words))
			}
		})
	}
}

func TestCheckWinSmallGrid(t *testing.T) {
	grid := [][]string{
		{"A", "B", "C"},
		{"D", freeSpace, "E"},
		{"F", "G", "H"},
	}

	if pattern, ok := checkWin(markedSet("A", "H"), grid); !ok || pattern.Type != "Diagonal ↘" {
		t.Fatalf("3x3 diagonal: ok = %v, pattern = %+v", ok, pattern)
	}
	if _, ok := checkWin(markedSet("A", "B"), grid); ok {
		t.Fatal("incomplete 3x3 row reported as a win")
	}
}

func TestCardForIsStable(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)
	mustCreateSession(t, a.store, "s1", "Ada")

	first, _, err := a.cards.cardFor(ctx, "s1", game)
	if err != nil {
		t.Fatalf("cardFor: %v", err)
	}

	second, _, err := a.cards.cardFor(ctx, "s1", game)
	if err != nil {
		t.Fatalf("cardFor (second): %v", err)
	}

	for r := range first {
		for c := range first[r] {
			if first[r][c] != second[r][c] {
				t.Fatalf("layout changed between requests at (%d,%d): %q -> %q", r, c, first[r][c], second[r][c])
			}
		}
	}
}

func TestRecordMarkIdempotent(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)
	forceStatus(t, a.store, game.ID, statusStarted)
	game.Status = statusStarted
	mustCreateSession(t, a.store, "s1", "Ada")

	if _, err := a.cards.recordMark(ctx, "s1", game, "synergy"); err != nil {
		t.Fatalf("recordMark: %v", err)
	}
	if _, err := a.cards.recordMark(ctx, "s1", game, "synergy"); err != nil {
		t.Fatalf("recordMark (second): %v", err)
	}

	count, err := a.store.MarkCount(ctx, "s1", game.ID)
	if err != nil {
		t.Fatalf("MarkCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("mark count = %d, want 1", count)
	}
}

func TestRecordMarkRejections(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)
	forceStatus(t, a.store, game.ID, statusStarted)
	game.Status = statusStarted

	ended := mustCreateGame(t, a)
	forceStatus(t, a.store, ended.ID, statusEnded)
	ended.Status = statusEnded

	tests := []struct {
		name string
		game *Game
		word string
	}{
		{"empty word", game, ""},
		{"whitespace word", game, "   "},
		{"free marker", game, freeSpace},
		{"terminal game", ended, "synergy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.cards.recordMark(ctx, "s1", tt.game, tt.word); !errors.Is(err, errValidation) {
				t.Fatalf("err = %v, want errValidation", err)
			}
		})
	}
}

func TestClaimWin(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)
	forceStatus(t, a.store, game.ID, statusStarted)
	game.Status = statusStarted
	mustCreateSession(t, a.store, "s1", "Ada")

	if err := a.store.SaveCard(ctx, "s1", game.ID, fixedLayout(), time.Now()); err != nil {
		t.Fatalf("SaveCard: %v", err)
	}

	// No completed line yet.
	if _, err := a.cards.claimWin(ctx, "s1", game); !errors.Is(err, errValidation) {
		t.Fatalf("premature claim: err = %v, want errValidation", err)
	}

	for _, word := range []string{"A", "B", "C", "D", "E"} {
		if _, err := a.cards.recordMark(ctx, "s1", game, word); err != nil {
			t.Fatalf("recordMark(%s): %v", word, err)
		}
	}

	record, err := a.cards.claimWin(ctx, "s1", game)
	if err != nil {
		t.Fatalf("claimWin: %v", err)
	}
	if record.PatternType != "Row 1" {
		t.Fatalf("patternType = %q, want Row 1", record.PatternType)
	}
	if record.Verified {
		t.Fatal("fresh win record should be unverified")
	}
	if record.SecretWord == "" {
		t.Fatal("win record has no prize phrase")
	}

	stored, err := a.store.GameByID(ctx, game.ID)
	if err != nil {
		t.Fatalf("GameByID: %v", err)
	}
	if stored.Status != statusWinClaimed {
		t.Fatalf("game status = %s, want winClaimed", stored.Status)
	}

	// A second claim is rejected now that the game is no longer started.
	if _, err := a.cards.claimWin(ctx, "s1", stored); !errors.Is(err, errValidation) {
		t.Fatalf("second claim: err = %v, want errValidation", err)
	}
}

func TestVerifyWin(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)
	forceStatus(t, a.store, game.ID, statusStarted)
	game.Status = statusStarted
	mustCreateSession(t, a.store, "s1", "Ada")

	if err := a.store.SaveCard(ctx, "s1", game.ID, fixedLayout(), time.Now()); err != nil {
		t.Fatalf("SaveCard: %v", err)
	}

	marked := []string{"A", "B", "C", "D", "E", "K"}
	for _, word := range marked {
		if _, err := a.cards.recordMark(ctx, "s1", game, word); err != nil {
			t.Fatalf("recordMark(%s): %v", word, err)
		}
	}

	record, err := a.cards.claimWin(ctx, "s1", game)
	if err != nil {
		t.Fatalf("claimWin: %v", err)
	}

	summary, err := a.cards.verifyWin(ctx, game.ID)
	if err != nil {
		t.Fatalf("verifyWin: %v", err)
	}

	if summary.DisplayName != "Ada" {
		t.Fatalf("displayName = %q, want Ada", summary.DisplayName)
	}
	if summary.Points != len(marked) {
		t.Fatalf("points = %d, want %d", summary.Points, len(marked))
	}
	if summary.PrizePhrase != record.SecretWord {
		t.Fatalf("prizePhrase = %q, want %q", summary.PrizePhrase, record.SecretWord)
	}

	stored, err := a.store.LatestWinRecord(ctx, game.ID)
	if err != nil {
		t.Fatalf("LatestWinRecord: %v", err)
	}
	if !stored.Verified {
		t.Fatal("win record not marked verified")
	}
}

func TestVerifyWinWithoutRecord(t *testing.T) {
	a := newTestApp(t)
	game := mustCreateGame(t, a)

	if _, err := a.cards.verifyWin(context.Background(), game.ID); !errors.Is(err, errNotFound) {
		t.Fatalf("err = %v, want errNotFound", err)
	}
}
