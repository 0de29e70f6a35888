package verified

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/kickguard/dbopen"
)

// Schema is the key/value table used by the SQLite backend.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (unixepoch('subsec') * 1000)
);`

// SQLite stores entries in the kv table of a database opened with dbopen.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates the table if needed and returns the backend.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := dbopen.Exec(ctx, db, Schema); err != nil {
		return nil, fmt.Errorf("verified: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("verified: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, unixepoch('subsec') * 1000)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("verified: set %s: %w", key, err)
	}
	return nil
}
