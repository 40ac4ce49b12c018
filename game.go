package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type gameStatus string

const (
	statusOpen       gameStatus = "open"
	statusStarted    gameStatus = "started"
	statusPaused     gameStatus = "paused"
	statusWinClaimed gameStatus = "winClaimed"
	statusEnded      gameStatus = "ended"
	statusCancelled  gameStatus = "cancelled"
)

type Game struct {
	ID        string
	Status    gameStatus
	WordPool  []string
	GridSize  int
	CreatedAt time.Time
	EndedAt   *time.Time
}

// allowedTransitions is the full lifecycle table. Terminal states have
// no outgoing edges.
var allowedTransitions = map[gameStatus][]gameStatus{
	statusOpen:       {statusStarted, statusPaused, statusCancelled},
	statusStarted:    {statusPaused, statusWinClaimed, statusEnded, statusCancelled},
	statusPaused:     {statusStarted, statusCancelled},
	statusWinClaimed: {statusEnded, statusStarted, statusCancelled},
	statusEnded:      {},
	statusCancelled:  {},
}

func isValidStatus(s gameStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func isTerminal(s gameStatus) bool {
	return s == statusEnded || s == statusCancelled
}

func legalNext(s gameStatus) []gameStatus {
	next := allowedTransitions[s]
	out := make([]gameStatus, len(next))
	copy(out, next)
	return out
}

func canTransition(from, to gameStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type transitionResult struct {
	GameID        string       `json:"gameId"`
	PreviousState gameStatus   `json:"previousState"`
	NewState      gameStatus   `json:"newState"`
	LegalNext     []gameStatus `json:"legalNextStates"`
}

// lifecycle owns the game aggregate and enforces legal transitions.
type lifecycle struct {
	store   *Store
	catalog WordCatalog
}

func newLifecycle(store *Store, catalog WordCatalog) *lifecycle {
	return &lifecycle{store: store, catalog: catalog}
}

func (l *lifecycle) requestTransition(ctx context.Context, gameID string, target gameStatus, reason string) (*transitionResult, error) {
	if !isValidStatus(target) {
		return nil, fmt.Errorf("unknown game status %q: %w", target, errValidation)
	}

	game, err := l.store.GameByID(ctx, gameID)
	if err != nil {
		return nil, err
	}

	if !canTransition(game.Status, target) {
		return nil, fmt.Errorf("invalid transition %s -> %s: %w", game.Status, target, errValidation)
	}

	now := time.Now()
	var endedAt *time.Time
	if isTerminal(target) {
		endedAt = &now
	}

	if err := l.store.UpdateGameStatus(ctx, gameID, game.Status, target, endedAt); err != nil {
		return nil, err
	}

	if err := l.store.AppendTransition(ctx, gameID, Transition{
		From:   string(game.Status),
		To:     string(target),
		At:     now,
		Reason: reason,
	}); err != nil {
		return nil, err
	}

	return &transitionResult{
		GameID:        gameID,
		PreviousState: game.Status,
		NewState:      target,
		LegalNext:     legalNext(target),
	}, nil
}

// createGame is a two-phase workflow: force every non-terminal game to
// ended, then insert the new game in open. The phases are not atomic; a
// failure in between can leave extra non-terminal games, which
// ActiveGame tolerates by preferring the newest. Each phase is
// idempotent, so the whole action can simply be retried.
func (l *lifecycle) createGame(ctx context.Context, cfg *Config, categories []string, reason string) (*Game, error) {
	stale, err := l.store.NonTerminalGames(ctx)
	if err != nil {
		return nil, err
	}

	for _, g := range stale {
		if canTransition(g.Status, statusEnded) {
			_, err = l.requestTransition(ctx, g.ID, statusEnded, reason)
		} else {
			_, err = l.requestTransition(ctx, g.ID, statusCancelled, reason)
		}
		if err != nil {
			logf(cfg, "GAMES: Failed to retire game %s: %v", g.ID, err)
		}
	}

	pool := l.catalog.Words(categories)
	if len(pool) < cfg.gridSize*cfg.gridSize-1 {
		return nil, fmt.Errorf("word pool has %d words, need at least %d: %w",
			len(pool), cfg.gridSize*cfg.gridSize-1, errValidation)
	}

	game := &Game{
		ID:        uuid.NewString(),
		Status:    statusOpen,
		WordPool:  pool,
		GridSize:  cfg.gridSize,
		CreatedAt: time.Now(),
	}

	if err := l.store.CreateGame(ctx, game); err != nil {
		return nil, err
	}

	logf(cfg, "GAMES: Created game %s (%dx%d, %d words)", game.ID, game.GridSize, game.GridSize, len(pool))

	return game, nil
}
