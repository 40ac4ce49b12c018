package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// app is the per-process service object: one store handle, one token
// service, one connection registry. Handlers receive it explicitly
// rather than reaching for globals.
type app struct {
	cfg        *Config
	store      *Store
	tokens     *tokenService
	lifecycle  *lifecycle
	cards      *cardEngine
	registry   *registry
	agg        *aggregator
	publisher  *publisher
	moderation ModerationService
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpError maps the error taxonomy onto status codes. Unclassified
// errors are logged and reported generically.
func (a *app) httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, errAuth):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, errNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, errConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		logf(a.cfg, "ERROR: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "an unexpected error occurred"})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return r.URL.Query().Get("token")
}

func (a *app) participant(r *http.Request) (*participantClaims, error) {
	kind, claims, _ := a.tokens.verify(bearerToken(r))
	if kind != tokenParticipant {
		return nil, fmt.Errorf("missing or invalid participant token: %w", errAuth)
	}
	return claims, nil
}

func (a *app) anyIdentity(r *http.Request) error {
	if kind, _, _ := a.tokens.verify(bearerToken(r)); kind == tokenInvalid {
		return fmt.Errorf("missing or invalid token: %w", errAuth)
	}
	return nil
}

func (a *app) admin(r *http.Request) error {
	if a.cfg.adminKey == "" || r.Header.Get("X-Admin-Key") != a.cfg.adminKey {
		return fmt.Errorf("missing or invalid admin key: %w", errAuth)
	}
	return nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("malformed request body: %w", errValidation)
	}
	return nil
}

// reviewName runs the display name past moderation. The moderation
// service being unreachable does not block joins.
func (a *app) reviewName(r *http.Request, name string) (moderationResult, error) {
	result, err := a.moderation.Review(r.Context(), name)
	if err != nil {
		logf(a.cfg, "SERVE: Moderation unavailable, approving %q: %v", name, err)
		return moderationResult{Approved: true}, nil
	}
	return result, nil
}

func (a *app) handleJoin() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			DisplayName string `json:"displayName"`
		}
		if err := decodeBody(r, &body); err != nil {
			a.httpError(w, err)
			return
		}

		name := strings.TrimSpace(body.DisplayName)
		if name == "" {
			a.httpError(w, fmt.Errorf("displayName must be a non-empty string: %w", errValidation))
			return
		}

		review, err := a.reviewName(r, name)
		if err != nil {
			a.httpError(w, err)
			return
		}
		if !review.Approved {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":     "display name was rejected: " + review.Reason,
				"alternate": review.Alternate,
			})
			return
		}

		sess := Session{
			ID:          uuid.NewString(),
			DisplayName: name,
			CreatedAt:   time.Now(),
		}
		if err := a.store.CreateSession(r.Context(), sess); err != nil {
			a.httpError(w, err)
			return
		}

		token, err := a.tokens.issueParticipant(participantClaims{
			SessionID:   sess.ID,
			DisplayName: sess.DisplayName,
			CreatedAt:   sess.CreatedAt,
		})
		if err != nil {
			a.httpError(w, err)
			return
		}

		currentGameID := ""
		if game, err := a.store.ActiveGame(r.Context()); err == nil {
			currentGameID = game.ID
			a.publisher.publish(r.Context(), game, eventParticipantJoined, map[string]string{
				"sessionId":   sess.ID,
				"displayName": sess.DisplayName,
			})
		}

		logf(a.cfg, "GAMES: Participant %q joined as session %s", name, sess.ID)

		writeJSON(w, http.StatusCreated, map[string]string{
			"sessionId":     sess.ID,
			"displayName":   sess.DisplayName,
			"token":         token,
			"currentGameId": currentGameID,
		})
	}
}

func (a *app) handleRename() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		claims, err := a.participant(r)
		if err != nil {
			a.httpError(w, err)
			return
		}

		var body struct {
			DisplayName string `json:"displayName"`
		}
		if err := decodeBody(r, &body); err != nil {
			a.httpError(w, err)
			return
		}

		name := strings.TrimSpace(body.DisplayName)
		if name == "" {
			a.httpError(w, fmt.Errorf("displayName must be a non-empty string: %w", errValidation))
			return
		}

		review, err := a.reviewName(r, name)
		if err != nil {
			a.httpError(w, err)
			return
		}
		if !review.Approved {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":     "display name was rejected: " + review.Reason,
				"alternate": review.Alternate,
			})
			return
		}

		if err := a.store.RenameSession(r.Context(), claims.SessionID, name); err != nil {
			a.httpError(w, err)
			return
		}

		// Renames re-issue the token with the new name baked in.
		token, err := a.tokens.issueParticipant(participantClaims{
			SessionID:   claims.SessionID,
			DisplayName: name,
			CreatedAt:   claims.CreatedAt,
		})
		if err != nil {
			a.httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"sessionId":   claims.SessionID,
			"displayName": name,
			"token":       token,
		})
	}
}

func (a *app) handleViewerToken() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			DeviceID string `json:"deviceId"`
		}
		// Body is optional for viewer tokens.
		_ = json.NewDecoder(r.Body).Decode(&body)

		deviceID := strings.TrimSpace(body.DeviceID)
		if deviceID == "" {
			deviceID = uuid.NewString()
		}

		claims := viewerClaims{
			DeviceID:    deviceID,
			Permissions: []string{"read"},
			CreatedAt:   time.Now(),
		}

		token, err := a.tokens.issueViewer(claims)
		if err != nil {
			a.httpError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"deviceId":    deviceID,
			"token":       token,
			"permissions": claims.Permissions,
		})
	}
}

func (a *app) handleActiveGame() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		game, err := a.store.ActiveGame(r.Context())
		if err != nil {
			a.httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"gameId":    game.ID,
			"status":    game.Status,
			"gridSize":  game.GridSize,
			"createdAt": game.CreatedAt,
		})
	}
}

func (a *app) handleGame() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if err := a.anyIdentity(r); err != nil {
			a.httpError(w, err)
			return
		}

		game, err := a.store.GameByID(r.Context(), p.ByName("gameid"))
		if err != nil {
			a.httpError(w, err)
			return
		}

		history, err := a.store.Transitions(r.Context(), game.ID)
		if err != nil {
			a.httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"gameId":            game.ID,
			"status":            game.Status,
			"gridSize":          game.GridSize,
			"createdAt":         game.CreatedAt,
			"endedAt":           game.EndedAt,
			"legalNextStates":   legalNext(game.Status),
			"transitionHistory": history,
		})
	}
}

func (a *app) handleGetCard() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		claims, err := a.participant(r)
		if err != nil {
			a.httpError(w, err)
			return
		}

		game, err := a.store.GameByID(r.Context(), p.ByName("gameid"))
		if err != nil {
			a.httpError(w, err)
			return
		}

		layout, marked, err := a.cards.cardFor(r.Context(), claims.SessionID, game)
		if err != nil {
			a.httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"gameId":      game.ID,
			"layout":      layout,
			"markedWords": marked,
		})
	}
}

func (a *app) handleMark() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		claims, err := a.participant(r)
		if err != nil {
			a.httpError(w, err)
			return
		}

		var body struct {
			Word string `json:"word"`
		}
		if err := decodeBody(r, &body); err != nil {
			a.httpError(w, err)
			return
		}

		game, err := a.store.GameByID(r.Context(), p.ByName("gameid"))
		if err != nil {
			a.httpError(w, err)
			return
		}

		markedAt, err := a.cards.recordMark(r.Context(), claims.SessionID, game, body.Word)
		if err != nil {
			a.httpError(w, err)
			return
		}

		a.publisher.publish(r.Context(), game, eventMarkRecorded, map[string]string{
			"sessionId":   claims.SessionID,
			"displayName": claims.DisplayName,
			"word":        body.Word,
		})

		writeJSON(w, http.StatusOK, map[string]any{
			"word":     body.Word,
			"markedAt": markedAt,
		})
	}
}

func (a *app) handleClaimWin() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		claims, err := a.participant(r)
		if err != nil {
			a.httpError(w, err)
			return
		}

		game, err := a.store.GameByID(r.Context(), p.ByName("gameid"))
		if err != nil {
			a.httpError(w, err)
			return
		}

		record, err := a.cards.claimWin(r.Context(), claims.SessionID, game)
		if err != nil {
			a.httpError(w, err)
			return
		}

		logf(a.cfg, "GAMES: %q claimed a win in %s (%s)", claims.DisplayName, game.ID, record.PatternType)

		a.publisher.publish(r.Context(), game, eventWinClaimed, map[string]any{
			"sessionId":   claims.SessionID,
			"displayName": claims.DisplayName,
			"patternType": record.PatternType,
		})
		a.publisher.publish(r.Context(), game, eventGameStateChanged, map[string]any{
			"previousState": statusStarted,
			"newState":      statusWinClaimed,
			"reason":        "win claimed by " + claims.DisplayName,
		})

		writeJSON(w, http.StatusOK, map[string]any{
			"patternType":  record.PatternType,
			"patternWords": record.PatternWords,
			"prizePhrase":  record.SecretWord,
			"verified":     false,
		})
	}
}

func (a *app) handleCreateGame() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := a.admin(r); err != nil {
			a.httpError(w, err)
			return
		}

		var body struct {
			Categories []string `json:"categories"`
			Reason     string   `json:"reason"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		if len(body.Categories) == 0 {
			body.Categories = a.cfg.wordCategories
		}
		if body.Reason == "" {
			body.Reason = "new game created"
		}

		game, err := a.lifecycle.createGame(r.Context(), a.cfg, body.Categories, body.Reason)
		if err != nil {
			a.httpError(w, err)
			return
		}

		a.publisher.publish(r.Context(), game, eventGameStateChanged, map[string]any{
			"newState": statusOpen,
			"reason":   body.Reason,
		})

		writeJSON(w, http.StatusCreated, map[string]any{
			"gameId":          game.ID,
			"status":          game.Status,
			"gridSize":        game.GridSize,
			"legalNextStates": legalNext(game.Status),
		})
	}
}

func (a *app) handleTransition() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if err := a.admin(r); err != nil {
			a.httpError(w, err)
			return
		}

		var body struct {
			TargetState string `json:"targetState"`
			Reason      string `json:"reason"`
			Action      string `json:"action"`
		}
		if err := decodeBody(r, &body); err != nil {
			a.httpError(w, err)
			return
		}

		game, err := a.store.GameByID(r.Context(), p.ByName("gameid"))
		if err != nil {
			a.httpError(w, err)
			return
		}

		result, err := a.lifecycle.requestTransition(r.Context(), game.ID, gameStatus(body.TargetState), body.Reason)
		if err != nil {
			a.httpError(w, err)
			return
		}

		statePayload := map[string]any{
			"previousState": result.PreviousState,
			"newState":      result.NewState,
			"reason":        body.Reason,
		}

		// A verify-win transition out of winClaimed also settles the
		// pending win record and announces the winner.
		if body.Action == "verify-win" && result.PreviousState == statusWinClaimed && result.NewState == statusEnded {
			summary, err := a.cards.verifyWin(r.Context(), game.ID)
			if err != nil {
				a.httpError(w, err)
				return
			}
			statePayload["winner"] = summary
			a.publisher.publish(r.Context(), game, eventWinVerified, summary)
		}

		a.publisher.publish(r.Context(), game, eventGameStateChanged, statePayload)

		writeJSON(w, http.StatusOK, result)
	}
}

func (a *app) handleLeaderboard() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if err := a.anyIdentity(r); err != nil {
			a.httpError(w, err)
			return
		}

		game, err := a.store.GameByID(r.Context(), p.ByName("gameid"))
		if err != nil {
			a.httpError(w, err)
			return
		}

		entries, err := a.agg.compute(r.Context(), game)
		if err != nil {
			a.httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"gameId":  game.ID,
			"entries": entries,
		})
	}
}

func (a *app) handleActivity() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if err := a.anyIdentity(r); err != nil {
			a.httpError(w, err)
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}

		events, err := a.store.Activity(r.Context(), p.ByName("gameid"), limit)
		if err != nil {
			a.httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"gameId": p.ByName("gameid"),
			"events": events,
		})
	}
}

// handleQR renders a QR code pointing at the join page for a game, for
// sharing on the venue projector.
func (a *app) handleQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		gameID := p.ByName("gameid")

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + a.cfg.prefix + "/?game=" + gameID

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			a.httpError(w, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}
