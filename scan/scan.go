// Package scan harvests e-mail addresses and outbound links from a page.
//
// A Scanner fetches the page through a Fetcher (plain HTTP, a browser tab,
// or HTTP escalating to the browser for client-rendered shells), then
// extracts from the resulting HTML. Every failure maps to one of a small
// set of user-readable messages through Message.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
)

// DefaultTimeout bounds a whole scan, fetch included.
const DefaultTimeout = 8 * time.Second

var (
	ErrRestricted = errors.New("scan: restricted page")
	ErrTimeout    = errors.New("scan: page took too long")
	ErrUnreadable = errors.New("scan: page could not be read")
	ErrNoTab      = errors.New("scan: no active page")
)

var restrictedPrefixes = []string{"chrome:", "chrome-extension:", "edge:", "about:", "file:"}

// Restricted reports whether url must not be scanned: empty, or a browser
// internal or local-file address.
func Restricted(url string) bool {
	if url == "" {
		return true
	}
	return lo.SomeBy(restrictedPrefixes, func(p string) bool {
		return strings.HasPrefix(url, p)
	})
}

// Result is what a scan found. Both lists are de-duplicated and keep
// first-seen order.
type Result struct {
	URL    string   `json:"url"`
	Emails []string `json:"emails"`
	Links  []string `json:"links"`
}

// External returns the links whose text does not contain host,
// case-insensitively. The popup uses it to hide the property's own links.
func (r Result) External(host string) []string {
	if host == "" {
		return r.Links
	}
	host = strings.ToLower(host)
	return lo.Filter(r.Links, func(l string, _ int) bool {
		return !strings.Contains(strings.ToLower(l), host)
	})
}

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

// Scanner runs scans.
type Scanner struct {
	fetcher Fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scanner over f.
func New(f Fetcher, opts ...Option) *Scanner {
	s := &Scanner{fetcher: f, timeout: DefaultTimeout, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan fetches url and extracts from it. Restricted URLs fail with
// ErrRestricted before any fetch.
func (s *Scanner) Scan(ctx context.Context, url string) (*Result, error) {
	if Restricted(url) {
		return nil, ErrRestricted
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type fetched struct {
		html string
		err  error
	}
	done := make(chan fetched, 1)
	go func() {
		h, err := s.fetcher.Fetch(ctx, url)
		done <- fetched{h, err}
	}()

	var f fetched
	select {
	case f = <-done:
	case <-ctx.Done():
		f.err = ctx.Err()
	}

	if f.err != nil {
		if errors.Is(f.err, context.DeadlineExceeded) {
			s.logger.Debug("scan: timed out", "url", url, "timeout", s.timeout)
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("scan: fetch %s: %w", url, f.err)
	}
	if strings.TrimSpace(f.html) == "" {
		return nil, ErrUnreadable
	}

	res, err := Extract(f.html, url)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("scan: done", "url", url, "emails", len(res.Emails), "links", len(res.Links))
	return res, nil
}

// Message turns a scan error into the text shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRestricted):
		return "Cannot read this page. Open a normal website first."
	case errors.Is(err, ErrTimeout):
		return "Page took too long to respond. Try refreshing the tab."
	case errors.Is(err, ErrUnreadable):
		return "Could not read page."
	case errors.Is(err, ErrNoTab):
		return "No active tab."
	case err.Error() != "":
		return err.Error()
	}
	return "Something went wrong."
}
