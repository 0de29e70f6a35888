package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/kickguard/dbopen"
	"github.com/hazyhaar/kickguard/watch"
)

// Schema for the guard_pages table.
const Schema = `
CREATE TABLE IF NOT EXISTS guard_pages (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	status     TEXT DEFAULT 'active',
	updated_at INTEGER NOT NULL
);
`

// InitDB creates the guard_pages table.
func InitDB(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("config: create guard_pages: %w", err)
	}
	return nil
}

// LoadPages reads all active pages from the database.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url FROM guard_pages
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load pages: %w", err)
	}
	defer rows.Close()

	var pages []PageConfig
	for rows.Next() {
		var p PageConfig
		if err := rows.Scan(&p.ID, &p.URL); err != nil {
			return nil, fmt.Errorf("config: scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// UpsertPage adds or re-activates a guarded page.
func UpsertPage(ctx context.Context, db *sql.DB, p PageConfig) error {
	_, err := dbopen.Exec(ctx, db, `
		INSERT INTO guard_pages (id, url, status, updated_at)
		VALUES (?, ?, 'active', ?)
		ON CONFLICT(id) DO UPDATE SET url = excluded.url, status = 'active', updated_at = excluded.updated_at
	`, p.ID, p.URL, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("config: upsert page %s: %w", p.ID, err)
	}
	return nil
}

// DisablePage stops guarding a page without deleting its row.
func DisablePage(ctx context.Context, db *sql.DB, id string) error {
	_, err := dbopen.Exec(ctx, db,
		`UPDATE guard_pages SET status = 'disabled', updated_at = ? WHERE id = ?`,
		time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("config: disable page %s: %w", id, err)
	}
	return nil
}

// WatchPages creates a watch.Watcher that detects changes to guard_pages.
func WatchPages(db *sql.DB, logger *slog.Logger) *watch.Watcher {
	return watch.New(db, watch.Options{
		Interval: 200 * time.Millisecond,
		Debounce: 500 * time.Millisecond,
		Detector: watch.MaxColumnDetector("guard_pages", "updated_at"),
		Logger:   logger,
	})
}
