// Package verified keeps the list of pages the user marked as verified.
//
// The list lives under a single named entry holding a JSON array of URL
// strings. Where that entry is stored is a Backend concern: the page's own
// localStorage (the layout the browser extension uses), a SQLite table, or
// memory. Reads never fail and writes never propagate errors; a storage
// problem degrades to "no verified links" rather than breaking a page.
package verified

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/samber/lo"
)

// DefaultKey names the entry holding the list.
const DefaultKey = "kick_verified_links"

// Backend reads and writes one named string entry.
type Backend interface {
	// Get returns ok=false when the entry does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Store is the verified-link collection. Every operation re-reads the
// backend, so concurrent writers (other tabs, other processes) are picked
// up; the last writer wins.
type Store struct {
	backend Backend
	key     string
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for swallowed storage errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store over b.
func New(b Backend, opts ...Option) *Store {
	s := &Store{backend: b, key: DefaultKey, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the entry name.
func (s *Store) Key() string { return s.key }

// List returns the stored URLs in insertion order. A missing, unparsable or
// non-array entry reads as empty; non-string elements are dropped.
func (s *Store) List(ctx context.Context) []string {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.logger.Debug("verified: read failed", "key", s.key, "error", err)
		return []string{}
	}
	if !ok {
		return []string{}
	}
	return decode(raw)
}

// Contains reports whether url is stored. Comparison is exact: no
// normalisation of scheme, trailing slash or query.
func (s *Store) Contains(ctx context.Context, url string) bool {
	return lo.Contains(s.List(ctx), url)
}

// Save appends url when absent and writes the whole list back. It reports
// whether the URL was added. A failed write is logged and otherwise
// ignored.
func (s *Store) Save(ctx context.Context, url string) bool {
	links := s.List(ctx)
	if lo.Contains(links, url) {
		return false
	}
	links = append(links, url)
	data, err := json.Marshal(links)
	if err != nil {
		s.logger.Warn("verified: encode failed", "error", err)
		return false
	}
	if err := s.backend.Set(ctx, s.key, string(data)); err != nil {
		s.logger.Warn("verified: write failed", "key", s.key, "error", err)
		return false
	}
	return true
}

func decode(raw string) []string {
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []string{}
	}
	return lo.FilterMap(items, func(v any, _ int) (string, bool) {
		s, ok := v.(string)
		return s, ok
	})
}
