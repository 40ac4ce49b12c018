package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type eventType string

const (
	eventParticipantJoined eventType = "participant_joined"
	eventMarkRecorded      eventType = "mark_recorded"
	eventWinClaimed        eventType = "win_claimed"
	eventWinVerified       eventType = "win_verified"
	eventGameStateChanged  eventType = "game_state_changed"
)

// pushEnvelope is the tagged wire format for every server-pushed
// message.
type pushEnvelope struct {
	Type        string             `json:"type"`
	GameID      string             `json:"gameId,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	Event       *eventBody         `json:"event,omitempty"`
	Leaderboard []leaderboardEntry `json:"leaderboard,omitempty"`
	Message     string             `json:"message,omitempty"`
}

type eventBody struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// leaderboardEvents lists the event types that additionally trigger a
// leaderboard recomputation and push.
var leaderboardEvents = map[eventType]bool{
	eventParticipantJoined: true,
	eventMarkRecorded:      true,
	eventWinVerified:       true,
}

// publisher is the single fan-in between mutations and the push
// channel: it appends an activity record, broadcasts the envelope, and
// for a fixed set of event types also recomputes and broadcasts the
// leaderboard. Nothing here ever fails the triggering mutation;
// delivery problems are logged and swallowed.
type publisher struct {
	cfg      *Config
	store    *Store
	registry *registry
	agg      *aggregator
}

func newPublisher(cfg *Config, store *Store, reg *registry, agg *aggregator) *publisher {
	return &publisher{cfg: cfg, store: store, registry: reg, agg: agg}
}

func (p *publisher) publish(ctx context.Context, game *Game, typ eventType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logf(p.cfg, "EVENTS: Failed to encode %s payload: %v", typ, err)
		raw = json.RawMessage(`{}`)
	}

	now := time.Now()

	if err := p.store.AppendActivity(ctx, ActivityEvent{
		ID:      uuid.NewString(),
		GameID:  game.ID,
		Type:    string(typ),
		Payload: raw,
		At:      now,
	}); err != nil {
		logf(p.cfg, "EVENTS: Failed to append %s activity record: %v", typ, err)
	}

	envelopeType := "activity_event"
	if typ == eventGameStateChanged {
		envelopeType = "game_state_changed"
	}

	p.registry.broadcast(pushEnvelope{
		Type:      envelopeType,
		GameID:    game.ID,
		Timestamp: now,
		Event: &eventBody{
			Type:    string(typ),
			Payload: raw,
			At:      now,
		},
	})

	if !leaderboardEvents[typ] {
		return
	}

	entries, err := p.agg.compute(ctx, game)
	if err != nil {
		logf(p.cfg, "EVENTS: Failed to compute leaderboard for %s: %v", game.ID, err)
		return
	}

	p.registry.broadcast(pushEnvelope{
		Type:        "leaderboard_update",
		GameID:      game.ID,
		Timestamp:   time.Now(),
		Leaderboard: entries,
	})
}
