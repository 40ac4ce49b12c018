package main

import (
	"context"
	"strings"
	"testing"
	"time"
)

func seedMarks(t *testing.T, store *Store, sessionID, gameID string, words ...string) {
	t.Helper()

	for _, word := range words {
		if err := store.UpsertMark(context.Background(), sessionID, gameID, word, time.Now()); err != nil {
			t.Fatalf("UpsertMark(%s, %s): %v", sessionID, word, err)
		}
	}
}

func TestComputeOrdering(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)

	mustCreateSession(t, a.store, "s-bea", "Bea")
	mustCreateSession(t, a.store, "s-ada", "Ada")
	mustCreateSession(t, a.store, "s-cyd", "Cyd")

	seedMarks(t, a.store, "s-bea", game.ID, "synergy", "pivot", "roadmap")
	seedMarks(t, a.store, "s-ada", game.ID, "deck", "offline", "leverage")
	seedMarks(t, a.store, "s-cyd", game.ID, "alignment", "stakeholder", "deliverable", "takeaway", "ideate")

	entries, err := a.agg.compute(ctx, game)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Cyd leads on points; Ada and Bea tie and fall back to name order.
	wantNames := []string{"Cyd", "Ada", "Bea"}
	for i, want := range wantNames {
		if entries[i].DisplayName != want {
			t.Fatalf("entries[%d] = %q, want %q", i, entries[i].DisplayName, want)
		}
	}

	if entries[0].Points != 50 || entries[0].Marked != 5 {
		t.Fatalf("leader = %+v, want 5 marks / 50 points", entries[0])
	}

	// 5 of 24 markable cells, rounded.
	if entries[0].Percent != 21 {
		t.Fatalf("percent = %d, want 21", entries[0].Percent)
	}
}

// Sessions that contributed marks but have no stored display name get a
// placeholder instead of being dropped.
func TestComputeSynthesizesNames(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)

	seedMarks(t, a.store, "orphan-session-id", game.ID, "synergy", "pivot")

	entries, err := a.agg.compute(ctx, game)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !strings.HasPrefix(entries[0].DisplayName, "Player ") {
		t.Fatalf("displayName = %q, want placeholder", entries[0].DisplayName)
	}
}

// A new game starts with an empty leaderboard regardless of history in
// earlier games.
func TestComputeIgnoresOtherGames(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	g1 := mustCreateGame(t, a)
	mustCreateSession(t, a.store, "s1", "Ada")
	seedMarks(t, a.store, "s1", g1.ID, "synergy", "pivot", "roadmap", "deck", "offline")

	g2, err := a.lifecycle.createGame(ctx, a.cfg, a.cfg.wordCategories, "fresh round")
	if err != nil {
		t.Fatalf("createGame: %v", err)
	}

	entries, err := a.agg.compute(ctx, g2)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh game has %d entries, want 0", len(entries))
	}
}

func TestComputeGridSizeAwarePercent(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	game := &Game{
		ID: "small-grid", Status: statusStarted,
		WordPool: staticCatalog{}.Words([]string{"conference"}),
		GridSize: 3, CreatedAt: time.Now(),
	}
	if err := a.store.CreateGame(ctx, game); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	seedMarks(t, a.store, "s1", game.ID, "synergy", "pivot")

	entries, err := a.agg.compute(ctx, game)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	// 2 of 8 markable cells on a 3x3 card.
	if entries[0].Percent != 25 {
		t.Fatalf("percent = %d, want 25", entries[0].Percent)
	}
}
