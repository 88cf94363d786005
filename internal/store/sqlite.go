// Package store persists the session locally: an append-only action
// log plus a single snapshot slot, in one sqlite file. A snapshot is
// written after every applied state-changing action, so recovery
// loads the snapshot and never replays the log; the log is the
// ordered audit trail for inspecting a session after the fact.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"triwhist/internal/engine"
	"triwhist/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id INTEGER NOT NULL,
	type      TEXT    NOT NULL,
	payload   BLOB,
	timestamp INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	phase INTEGER NOT NULL,
	state BLOB    NOT NULL
);
`

// SQLite implements game.Store on a local database file.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the store at path and ensures the schema.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// The store is only touched from the controller's single logical
	// thread; one connection avoids sqlite write contention entirely.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// AppendAction adds one action to the log.
func (s *SQLite) AppendAction(a game.Action) error {
	_, err := s.db.Exec(
		`INSERT INTO actions (player_id, type, payload, timestamp) VALUES (?, ?, ?, ?)`,
		int(a.PlayerID), string(a.Type), []byte(a.Payload), a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// Actions returns the full log in append order.
func (s *SQLite) Actions() ([]game.Action, error) {
	rows, err := s.db.Query(`SELECT player_id, type, payload, timestamp FROM actions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read action log: %w", err)
	}
	defer rows.Close()
	var out []game.Action
	for rows.Next() {
		var a game.Action
		var player int
		var typ string
		var payload []byte
		if err := rows.Scan(&player, &typ, &payload, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.PlayerID = engine.Seat(player)
		a.Type = game.ActionType(typ)
		a.Payload = payload
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveSnapshot overwrites the single snapshot slot.
func (s *SQLite) SaveSnapshot(snap game.Snapshot) error {
	blob, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO snapshot (id, phase, state) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET phase = excluded.phase, state = excluded.state`,
		int(snap.Phase), blob,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the saved snapshot, or nil when none exists.
func (s *SQLite) LoadSnapshot() (*game.Snapshot, error) {
	var phase int
	var blob []byte
	err := s.db.QueryRow(`SELECT phase, state FROM snapshot WHERE id = 1`).Scan(&phase, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap := &game.Snapshot{Phase: game.Phase(phase)}
	if err := json.Unmarshal(blob, &snap.State); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Clear wipes both the log and the snapshot.
func (s *SQLite) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM actions`); err != nil {
		return fmt.Errorf("clear action log: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM snapshot`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
