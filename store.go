package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store holds all cross-request state. Every inbound action is an
// independent unit of work; nothing is cached in process memory apart
// from live push connections.
type Store struct {
	db *sql.DB
}

type Session struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

type Transition struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

type ActivityEvent struct {
	ID      string          `json:"id"`
	GameID  string          `json:"gameId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

type markCount struct {
	SessionID   string
	DisplayName string
	Count       int
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS games (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	word_pool TEXT NOT NULL,
	grid_size INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS game_transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS cards (
	session_id TEXT NOT NULL,
	game_id TEXT NOT NULL,
	layout TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, game_id)
);
CREATE TABLE IF NOT EXISTS marks (
	session_id TEXT NOT NULL,
	word TEXT NOT NULL,
	game_id TEXT NOT NULL,
	marked_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, word)
);
CREATE INDEX IF NOT EXISTS idx_marks_game ON marks (game_id);
CREATE TABLE IF NOT EXISTS win_records (
	session_id TEXT NOT NULL,
	game_id TEXT NOT NULL,
	completed_at TIMESTAMP NOT NULL,
	pattern_type TEXT NOT NULL,
	pattern_words TEXT NOT NULL,
	secret_word TEXT NOT NULL,
	verified INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, game_id)
);
CREATE TABLE IF NOT EXISTS activity_events (
	id TEXT PRIMARY KEY,
	game_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_game ON activity_events (game_id, at);
`

func openStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---- Sessions ----

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	existing, err := s.sessionByName(ctx, sess.DisplayName)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	if existing != nil {
		return fmt.Errorf("display name %q is already taken: %w", sess.DisplayName, errConflict)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, display_name, created_at) VALUES (?, ?, ?)`,
		sess.ID, sess.DisplayName, sess.CreatedAt,
	)
	if err != nil {
		// The UNIQUE constraint also covers the lookup/insert race.
		return fmt.Errorf("display name %q is already taken: %w", sess.DisplayName, errConflict)
	}
	return nil
}

func (s *Store) SessionByID(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.DisplayName, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, errNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) sessionByName(ctx context.Context, name string) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM sessions WHERE display_name = ?`, name,
	).Scan(&sess.ID, &sess.DisplayName, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session named %q: %w", name, errNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	existing, err := s.sessionByName(ctx, name)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	if existing != nil && existing.ID != id {
		return fmt.Errorf("display name %q is already taken: %w", name, errConflict)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET display_name = ? WHERE id = ?`, name, id,
	)
	if err != nil {
		return fmt.Errorf("display name %q is already taken: %w", name, errConflict)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, errNotFound)
	}
	return nil
}

// ---- Games ----

func (s *Store) CreateGame(ctx context.Context, g *Game) error {
	pool, err := json.Marshal(g.WordPool)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (id, status, word_pool, grid_size, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, string(g.Status), string(pool), g.GridSize, g.CreatedAt,
	)
	return err
}

func (s *Store) scanGame(row *sql.Row) (*Game, error) {
	g := &Game{}
	var pool string
	var endedAt sql.NullTime

	err := row.Scan(&g.ID, &g.Status, &pool, &g.GridSize, &g.CreatedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(pool), &g.WordPool); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		g.EndedAt = &endedAt.Time
	}
	return g, nil
}

func (s *Store) GameByID(ctx context.Context, id string) (*Game, error) {
	g, err := s.scanGame(s.db.QueryRowContext(ctx,
		`SELECT id, status, word_pool, grid_size, created_at, ended_at FROM games WHERE id = ?`, id,
	))
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("game %s: %w", id, errNotFound)
	}
	return g, err
}

// ActiveGame returns the most recently created non-terminal game. More
// than one non-terminal game can exist after a partial new-game rollout;
// the newest one wins.
func (s *Store) ActiveGame(ctx context.Context) (*Game, error) {
	g, err := s.scanGame(s.db.QueryRowContext(ctx,
		`SELECT id, status, word_pool, grid_size, created_at, ended_at FROM games
		 WHERE status NOT IN (?, ?) ORDER BY created_at DESC, id DESC LIMIT 1`,
		string(statusEnded), string(statusCancelled),
	))
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("no active game: %w", errNotFound)
	}
	return g, err
}

func (s *Store) NonTerminalGames(ctx context.Context) ([]*Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, word_pool, grid_size, created_at, ended_at FROM games
		 WHERE status NOT IN (?, ?) ORDER BY created_at ASC`,
		string(statusEnded), string(statusCancelled),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*Game
	for rows.Next() {
		g := &Game{}
		var pool string
		var endedAt sql.NullTime
		if err := rows.Scan(&g.ID, &g.Status, &pool, &g.GridSize, &g.CreatedAt, &endedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pool), &g.WordPool); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			g.EndedAt = &endedAt.Time
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// UpdateGameStatus performs a compare-and-swap on the stored status so
// a concurrent writer surfaces as a conflict instead of a silent
// last-write-wins.
func (s *Store) UpdateGameStatus(ctx context.Context, id string, from, to gameStatus, endedAt *time.Time) error {
	var res sql.Result
	var err error

	if endedAt != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE games SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
			string(to), *endedAt, id, string(from),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE games SET status = ? WHERE id = ? AND status = ?`,
			string(to), id, string(from),
		)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GameByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("game %s no longer in status %s: %w", id, from, errConflict)
	}
	return nil
}

func (s *Store) AppendTransition(ctx context.Context, gameID string, t Transition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO game_transitions (game_id, from_status, to_status, reason, at) VALUES (?, ?, ?, ?, ?)`,
		gameID, t.From, t.To, t.Reason, t.At,
	)
	return err
}

func (s *Store) Transitions(ctx context.Context, gameID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_status, to_status, reason, at FROM game_transitions WHERE game_id = ? ORDER BY id ASC`,
		gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.From, &t.To, &t.Reason, &t.At); err != nil {
			return nil, err
		}
		history = append(history, t)
	}
	return history, rows.Err()
}

// ---- Cards ----

// SaveCard never overwrites: a card layout is immutable once written,
// since marks reference it by word value. Losing the insert race to a
// concurrent request for the same card is fine.
func (s *Store) SaveCard(ctx context.Context, sessionID, gameID string, layout [][]string, createdAt time.Time) error {
	data, err := json.Marshal(layout)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cards (session_id, game_id, layout, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, game_id) DO NOTHING`,
		sessionID, gameID, string(data), createdAt,
	)
	return err
}

func (s *Store) CardLayout(ctx context.Context, sessionID, gameID string) ([][]string, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT layout FROM cards WHERE session_id = ? AND game_id = ?`,
		sessionID, gameID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card for session %s in game %s: %w", sessionID, gameID, errNotFound)
	}
	if err != nil {
		return nil, err
	}

	var layout [][]string
	if err := json.Unmarshal([]byte(data), &layout); err != nil {
		return nil, err
	}
	return layout, nil
}

// ---- Marks ----

func (s *Store) UpsertMark(ctx context.Context, sessionID, gameID, word string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO marks (session_id, word, game_id, marked_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, word) DO UPDATE SET game_id = excluded.game_id, marked_at = excluded.marked_at`,
		sessionID, word, gameID, at,
	)
	return err
}

func (s *Store) SessionMarks(ctx context.Context, sessionID, gameID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word FROM marks WHERE session_id = ? AND game_id = ? ORDER BY marked_at ASC`,
		sessionID, gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

func (s *Store) MarkCount(ctx context.Context, sessionID, gameID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM marks WHERE session_id = ? AND game_id = ?`,
		sessionID, gameID,
	).Scan(&n)
	return n, err
}

// MarkCounts folds all marks for a game, grouped per session, with the
// display name joined in where one exists.
func (s *Store) MarkCounts(ctx context.Context, gameID string) ([]markCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.session_id, COALESCE(s.display_name, ''), COUNT(*)
		 FROM marks m LEFT JOIN sessions s ON s.id = m.session_id
		 WHERE m.game_id = ? GROUP BY m.session_id`,
		gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []markCount
	for rows.Next() {
		var mc markCount
		if err := rows.Scan(&mc.SessionID, &mc.DisplayName, &mc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, mc)
	}
	return counts, rows.Err()
}

// ---- Win records ----

func (s *Store) SaveWinRecord(ctx context.Context, w *WinRecord) error {
	words, err := json.Marshal(w.PatternWords)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO win_records (session_id, game_id, completed_at, pattern_type, pattern_words, secret_word, verified)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, game_id) DO UPDATE SET
			completed_at = excluded.completed_at,
			pattern_type = excluded.pattern_type,
			pattern_words = excluded.pattern_words,
			secret_word = excluded.secret_word,
			verified = excluded.verified`,
		w.SessionID, w.GameID, w.CompletedAt, w.PatternType, string(words), w.SecretWord, boolToInt(w.Verified),
	)
	return err
}

func (s *Store) LatestWinRecord(ctx context.Context, gameID string) (*WinRecord, error) {
	w := &WinRecord{}
	var words string
	var verified int

	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, game_id, completed_at, pattern_type, pattern_words, secret_word, verified
		 FROM win_records WHERE game_id = ? ORDER BY completed_at DESC LIMIT 1`,
		gameID,
	).Scan(&w.SessionID, &w.GameID, &w.CompletedAt, &w.PatternType, &words, &w.SecretWord, &verified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("win record for game %s: %w", gameID, errNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(words), &w.PatternWords); err != nil {
		return nil, err
	}
	w.Verified = verified != 0
	return w, nil
}

func (s *Store) MarkWinVerified(ctx context.Context, sessionID, gameID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE win_records SET verified = 1 WHERE session_id = ? AND game_id = ?`,
		sessionID, gameID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("win record for game %s: %w", gameID, errNotFound)
	}
	return nil
}

// ---- Activity feed ----

func (s *Store) AppendActivity(ctx context.Context, ev ActivityEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_events (id, game_id, event_type, payload, at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.GameID, ev.Type, string(ev.Payload), ev.At,
	)
	return err
}

func (s *Store) Activity(ctx context.Context, gameID string, limit int) ([]ActivityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, event_type, payload, at FROM activity_events
		 WHERE game_id = ? ORDER BY at DESC, id DESC LIMIT ?`,
		gameID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ActivityEvent
	for rows.Next() {
		var ev ActivityEvent
		var payload string
		if err := rows.Scan(&ev.ID, &ev.GameID, &ev.Type, &payload, &ev.At); err != nil {
			return nil, err
		}
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
