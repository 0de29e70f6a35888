package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPFetcher reads pages with a single GET. No script runs, so it only
// sees what the server renders.
type HTTPFetcher struct {
	client *http.Client
	ua     string
	logger *slog.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.ua = ua
		}
	}
}

// WithHTTPLogger sets a custom logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(f *HTTPFetcher) { f.logger = l }
}

// NewHTTPFetcher creates an HTTPFetcher with sensible defaults.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (compatible; kickguard/1.0)",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs pageURL. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("scan: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scan: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("scan: %s returned %s", pageURL, resp.Status)
	}

	// Cap read to 10MB to prevent runaway downloads.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("scan: read body: %w", err)
	}

	f.logger.Debug("scan: fetched", "url", pageURL, "status", resp.StatusCode, "size", len(body))
	return string(body), nil
}

// Renderer loads a page in a browser and returns its serialised DOM.
type Renderer interface {
	RenderHTML(ctx context.Context, url string) (string, error)
}

// BrowserFetcher reads the rendered DOM, after scripts ran.
type BrowserFetcher struct {
	r Renderer
}

// NewBrowserFetcher wraps r.
func NewBrowserFetcher(r Renderer) *BrowserFetcher {
	return &BrowserFetcher{r: r}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return b.r.RenderHTML(ctx, url)
}

// AutoFetcher tries HTTP first and escalates to the browser when the
// response looks like a client-rendered shell or the GET fails.
type AutoFetcher struct {
	http    Fetcher
	browser Fetcher
	logger  *slog.Logger
}

// NewAutoFetcher combines the two paths. A nil browser disables escalation.
func NewAutoFetcher(httpF, browser Fetcher, logger *slog.Logger) *AutoFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoFetcher{http: httpF, browser: browser, logger: logger}
}

func (a *AutoFetcher) Fetch(ctx context.Context, url string) (string, error) {
	doc, err := a.http.Fetch(ctx, url)
	if a.browser == nil {
		return doc, err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	switch {
	case err != nil:
		a.logger.Debug("scan: http failed, escalating", "url", url, "error", err)
	case NeedsBrowser([]byte(doc)):
		a.logger.Debug("scan: thin html, escalating", "url", url, "size", len(doc))
	default:
		return doc, nil
	}
	return a.browser.Fetch(ctx, url)
}
