// Package store is the relational record store for users, instances,
// integrations, and web UI sessions. It is deliberately passive: simple
// key-based reads and writes, no business logic. The qBittorrent core only
// ever reads instance records from here.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record does not exist or is not owned by
// the requesting user.
var ErrNotFound = errors.New("record not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS instances (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id                INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	label                  TEXT NOT NULL,
	url                    TEXT NOT NULL,
	qbt_username           TEXT,
	qbt_password_encrypted TEXT,
	skip_auth              INTEGER NOT NULL DEFAULT 0,
	created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS integrations (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	type              TEXT NOT NULL,
	label             TEXT NOT NULL,
	url               TEXT NOT NULL,
	api_key_encrypted TEXT NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS web_sessions (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instances_user ON instances(user_id);
CREATE INDEX IF NOT EXISTS idx_integrations_user ON integrations(user_id);
CREATE INDEX IF NOT EXISTS idx_web_sessions_expires ON web_sessions(expires_at);
`

// Open opens (creating if necessary) the database at path and applies the
// schema. Foreign keys are enforced.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
