// Package persist is a scoped key/value store backed by SQLite. Values
// survive process restarts and are read once at startup to seed live
// state; afterwards the live value is authoritative and writes flow
// back here. Read or write failures degrade silently to in-memory
// defaults; persistence is never fatal to the engine.
package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store manages the SQLite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	ready  chan struct{}
}

// Open opens (or creates) the database, runs migrations, and closes the
// Ready gate.
func Open(dbPath string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "persist").Logger(),
		ready:  make(chan struct{}),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	close(s.ready)
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		directory  TEXT NOT NULL DEFAULT '',
		session    TEXT NOT NULL DEFAULT '',
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (directory, session, key)
	)`)
	return err
}

// Ready is closed once initial hydration (open + migrate) completed.
func (s *Store) Ready() <-chan struct{} { return s.ready }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PruneSessionData deletes session-scoped rows not written since
// cutoff. Workspace and global rows are never touched. Returns the
// number of rows removed.
func (s *Store) PruneSessionData(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM kv WHERE session != '' AND updated_at < ?`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Global returns the cross-workspace scope.
func (s *Store) Global() Scope {
	return Scope{store: s}
}

// Workspace returns a per-workspace scope.
func (s *Store) Workspace(directory string) Scope {
	return Scope{store: s, directory: directory}
}

// Session returns a per-(workspace, session) scope.
func (s *Store) Session(directory, sessionID string) Scope {
	return Scope{store: s, directory: directory, session: sessionID}
}

// Scope addresses one of the three storage scopes. Values are JSON
// encoded.
type Scope struct {
	store     *Store
	directory string
	session   string
}

// Get reads a key into out. Returns false if the key is absent or on
// any failure (logged, never surfaced).
func (sc Scope) Get(key string, out any) bool {
	var raw string
	err := sc.store.db.QueryRow(
		`SELECT value FROM kv WHERE directory = ? AND session = ? AND key = ?`,
		sc.directory, sc.session, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		sc.store.logger.Warn().Err(err).Str("key", key).Msg("persist read failed")
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		sc.store.logger.Warn().Err(err).Str("key", key).Msg("persist decode failed")
		return false
	}
	return true
}

// GetWithFallback tries keys in order, returning true for the first
// hit. Callers list the current versioned key first and legacy names
// after it, so old persisted values keep working across migrations.
func (sc Scope) GetWithFallback(out any, keys ...string) bool {
	for _, key := range keys {
		if sc.Get(key, out) {
			return true
		}
	}
	return false
}

// Put writes a key. Failures are logged and swallowed.
func (sc Scope) Put(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		sc.store.logger.Warn().Err(err).Str("key", key).Msg("persist encode failed")
		return
	}
	_, err = sc.store.db.Exec(
		`INSERT OR REPLACE INTO kv (directory, session, key, value, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sc.directory, sc.session, key, string(raw), time.Now().UnixMilli(),
	)
	if err != nil {
		sc.store.logger.Warn().Err(err).Str("key", key).Msg("persist write failed")
	}
}

// Delete removes a key. Failures are logged and swallowed.
func (sc Scope) Delete(key string) {
	_, err := sc.store.db.Exec(
		`DELETE FROM kv WHERE directory = ? AND session = ? AND key = ?`,
		sc.directory, sc.session, key,
	)
	if err != nil {
		sc.store.logger.Warn().Err(err).Str("key", key).Msg("persist delete failed")
	}
}
