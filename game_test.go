package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

var allStatuses = []gameStatus{
	statusOpen, statusStarted, statusPaused, statusWinClaimed, statusEnded, statusCancelled,
}

// Every (state, target) pair outside the transition table must fail
// with a validation error and leave the stored state untouched.
func TestTransitionTableExhaustive(t *testing.T) {
	ctx := context.Background()

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				a := newTestApp(t)
				game := mustCreateGame(t, a)
				forceStatus(t, a.store, game.ID, from)

				result, err := a.lifecycle.requestTransition(ctx, game.ID, to, "test")

				if canTransition(from, to) {
					if err != nil {
						t.Fatalf("legal transition %s -> %s failed: %v", from, to, err)
					}
					if result.PreviousState != from || result.NewState != to {
						t.Fatalf("result = %+v, want %s -> %s", result, from, to)
					}
					return
				}

				if !errors.Is(err, errValidation) {
					t.Fatalf("illegal transition %s -> %s: err = %v, want errValidation", from, to, err)
				}

				stored, lookupErr := a.store.GameByID(ctx, game.ID)
				if lookupErr != nil {
					t.Fatalf("GameByID: %v", lookupErr)
				}
				if stored.Status != from {
					t.Fatalf("stored status = %s, want unchanged %s", stored.Status, from)
				}
			})
		}
	}
}

func TestTransitionUnknownGame(t *testing.T) {
	a := newTestApp(t)

	_, err := a.lifecycle.requestTransition(context.Background(), "no-such-game", statusStarted, "test")
	if !errors.Is(err, errNotFound) {
		t.Fatalf("err = %v, want errNotFound", err)
	}
}

func TestTransitionUnknownTarget(t *testing.T) {
	a := newTestApp(t)
	game := mustCreateGame(t, a)

	_, err := a.lifecycle.requestTransition(context.Background(), game.ID, gameStatus("exploded"), "test")
	if !errors.Is(err, errValidation) {
		t.Fatalf("err = %v, want errValidation", err)
	}
}

func TestTransitionRecordsHistoryAndLegalNext(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)

	result, err := a.lifecycle.requestTransition(ctx, game.ID, statusStarted, "doors opened")
	if err != nil {
		t.Fatalf("requestTransition: %v", err)
	}

	want := map[gameStatus]bool{statusPaused: true, statusWinClaimed: true, statusEnded: true, statusCancelled: true}
	if len(result.LegalNext) != len(want) {
		t.Fatalf("legalNext = %v", result.LegalNext)
	}
	for _, s := range result.LegalNext {
		if !want[s] {
			t.Fatalf("unexpected legal next state %s", s)
		}
	}

	history, err := a.store.Transitions(ctx, game.ID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	if history[0].From != "open" || history[0].To != "started" || history[0].Reason != "doors opened" {
		t.Fatalf("history[0] = %+v", history[0])
	}
}

// A stale expected status must surface as a conflict, not a silent
// last-write-wins.
func TestStatusUpdateConflict(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	game := mustCreateGame(t, a)

	forceStatus(t, a.store, game.ID, statusStarted)

	err := a.store.UpdateGameStatus(ctx, game.ID, statusOpen, statusPaused, nil)
	if !errors.Is(err, errConflict) {
		t.Fatalf("err = %v, want errConflict", err)
	}

	stored, err := a.store.GameByID(ctx, game.ID)
	if err != nil {
		t.Fatalf("GameByID: %v", err)
	}
	if stored.Status != statusStarted {
		t.Fatalf("status = %s, want started", stored.Status)
	}
}

func TestCreateGameRetiresPredecessors(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	g1 := mustCreateGame(t, a)
	forceStatus(t, a.store, g1.ID, statusStarted)

	mustCreateSession(t, a.store, "s1", "Ada")
	for _, word := range []string{"synergy", "pivot", "roadmap", "bandwidth", "deck"} {
		if err := a.store.UpsertMark(ctx, "s1", g1.ID, word, time.Now()); err != nil {
			t.Fatalf("UpsertMark: %v", err)
		}
	}

	g2, err := a.lifecycle.createGame(ctx, a.cfg, a.cfg.wordCategories, "next round")
	if err != nil {
		t.Fatalf("createGame: %v", err)
	}

	old, err := a.store.GameByID(ctx, g1.ID)
	if err != nil {
		t.Fatalf("GameByID: %v", err)
	}
	if old.Status != statusEnded {
		t.Fatalf("g1 status = %s, want ended", old.Status)
	}
	if old.EndedAt == nil {
		t.Fatal("g1 endedAt not set")
	}

	active, err := a.store.ActiveGame(ctx)
	if err != nil {
		t.Fatalf("ActiveGame: %v", err)
	}
	if active.ID != g2.ID || active.Status != statusOpen {
		t.Fatalf("active = %s (%s), want %s (open)", active.ID, active.Status, g2.ID)
	}

	// The new round starts with a clean leaderboard.
	entries, err := a.agg.compute(ctx, g2)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("g2 leaderboard has %d entries, want 0", len(entries))
	}
}

// An open predecessor cannot reach ended directly; creation falls back
// to cancelling it.
func TestCreateGameCancelsOpenPredecessor(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	g1 := mustCreateGame(t, a)

	if _, err := a.lifecycle.createGame(ctx, a.cfg, a.cfg.wordCategories, "restart"); err != nil {
		t.Fatalf("createGame: %v", err)
	}

	old, err := a.store.GameByID(ctx, g1.ID)
	if err != nil {
		t.Fatalf("GameByID: %v", err)
	}
	if old.Status != statusCancelled {
		t.Fatalf("g1 status = %s, want cancelled", old.Status)
	}
}

// When a partial rollout leaves two non-terminal games, the most
// recently created one is the active game.
func TestActiveGamePrefersNewest(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	older := &Game{
		ID: "game-old", Status: statusStarted,
		WordPool: staticCatalog{}.Words([]string{"conference"}),
		GridSize: 5, CreatedAt: time.Now().Add(-time.Hour),
	}
	newer := &Game{
		ID: "game-new", Status: statusOpen,
		WordPool: staticCatalog{}.Words([]string{"conference"}),
		GridSize: 5, CreatedAt: time.Now(),
	}

	for _, g := range []*Game{older, newer} {
		if err := a.store.CreateGame(ctx, g); err != nil {
			t.Fatalf("CreateGame: %v", err)
		}
	}

	active, err := a.store.ActiveGame(ctx)
	if err != nil {
		t.Fatalf("ActiveGame: %v", err)
	}
	if active.ID != "game-new" {
		t.Fatalf("active = %s, want game-new", active.ID)
	}
}
