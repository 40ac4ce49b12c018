package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is anything a connected client may send after the
// handshake.
type clientMessage struct {
	Action string `json:"action"` // "subscribe", "unsubscribe", "requestLeaderboard"
	GameID string `json:"gameId"`
}

// handleWS upgrades the push channel. The handshake carries the token
// as a query parameter and is validated exactly like a bearer token;
// the resulting connection is registered under the resolved identity.
func (a *app) handleWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		kind, participant, viewer := a.tokens.verify(r.URL.Query().Get("token"))

		var idType identityType
		var identity string
		switch kind {
		case tokenParticipant:
			idType, identity = identityUser, participant.SessionID
		case tokenViewer:
			idType, identity = identityViewer, viewer.DeviceID
		default:
			http.Error(w, "missing or invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(a.cfg, "WS: Upgrade failed: %v", err)
			return
		}

		connID := uuid.NewString()
		c := a.registry.register(connID, idType, identity, conn)

		go c.writePump()
		a.readPump(connID, conn)
	}
}

func (a *app) readPump(connID string, conn *websocket.Conn) {
	defer a.registry.unregister(connID)

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		a.registry.touch(connID)

		switch msg.Action {
		case "subscribe":
			a.registry.subscribe(connID, msg.GameID, true)
			a.registry.send(connID, pushEnvelope{
				Type:      "subscribed",
				GameID:    msg.GameID,
				Timestamp: time.Now(),
			})

		case "unsubscribe":
			a.registry.subscribe(connID, msg.GameID, false)
			a.registry.send(connID, pushEnvelope{
				Type:      "unsubscribed",
				GameID:    msg.GameID,
				Timestamp: time.Now(),
			})

		case "requestLeaderboard":
			a.sendLeaderboard(connID, msg.GameID)

		default:
			a.registry.send(connID, pushEnvelope{
				Type:      "error",
				Timestamp: time.Now(),
				Message:   "unknown action: " + msg.Action,
			})
		}
	}
}

func (a *app) sendLeaderboard(connID, gameID string) {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	var game *Game
	var err error
	if gameID == "" {
		game, err = a.store.ActiveGame(ctx)
	} else {
		game, err = a.store.GameByID(ctx, gameID)
	}
	if err != nil {
		a.registry.send(connID, pushEnvelope{
			Type:      "error",
			GameID:    gameID,
			Timestamp: time.Now(),
			Message:   "unknown game",
		})
		return
	}

	entries, err := a.agg.compute(ctx, game)
	if err != nil {
		logf(a.cfg, "WS: Leaderboard compute failed for %s: %v", game.ID, err)
		a.registry.send(connID, pushEnvelope{
			Type:      "error",
			GameID:    game.ID,
			Timestamp: time.Now(),
			Message:   "leaderboard unavailable",
		})
		return
	}

	a.registry.send(connID, pushEnvelope{
		Type:        "leaderboard_update",
		GameID:      game.ID,
		Timestamp:   time.Now(),
		Leaderboard: entries,
	})
}
