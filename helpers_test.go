package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestConfig() *Config {
	return &Config{
		adminKey:       "test-admin-key",
		bind:           "127.0.0.1",
		connTimeout:    time.Minute,
		gridSize:       5,
		port:           8080,
		sessionSecret:  "participant-test-secret",
		viewerSecret:   "viewer-test-secret",
		wordCategories: []string{"conference"},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := openStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newTestApp(t *testing.T) *app {
	t.Helper()

	cfg := newTestConfig()
	store := newTestStore(t)
	lc := newLifecycle(store, staticCatalog{})
	reg := newRegistry(cfg)
	agg := newAggregator(store)

	return &app{
		cfg:        cfg,
		store:      store,
		tokens:     newTokenService(cfg),
		lifecycle:  lc,
		cards:      newCardEngine(store, lc),
		registry:   reg,
		agg:        agg,
		publisher:  newPublisher(cfg, store, reg, agg),
		moderation: approveAllModeration{},
	}
}

func mustCreateGame(t *testing.T, a *app) *Game {
	t.Helper()

	game, err := a.lifecycle.createGame(context.Background(), a.cfg, a.cfg.wordCategories, "test game")
	if err != nil {
		t.Fatalf("createGame: %v", err)
	}
	return game
}

func forceStatus(t *testing.T, store *Store, gameID string, status gameStatus) {
	t.Helper()

	if _, err := store.db.Exec(`UPDATE games SET status = ? WHERE id = ?`, string(status), gameID); err != nil {
		t.Fatalf("forcing status %s: %v", status, err)
	}
}

func mustCreateSession(t *testing.T, store *Store, id, name string) {
	t.Helper()

	if err := store.CreateSession(context.Background(), Session{
		ID:          id,
		DisplayName: name,
		CreatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("CreateSession(%s): %v", name, err)
	}
}
