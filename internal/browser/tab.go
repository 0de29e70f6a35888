package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is an open page.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string
}

// NewPage creates a blank page, through go-rod/stealth unless disabled.
// Callers that must install hooks before the first document loads use it
// instead of OpenTab.
func (m *Manager) NewPage() (*rod.Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	var page *rod.Page
	var err error
	if *m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	return page, nil
}

// Navigate loads pageURL in page and waits for the load event. A load that
// times out is logged, not returned: single-page apps often never settle.
func (m *Manager) Navigate(ctx context.Context, page *rod.Page, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return nil
}

// OpenTab creates a page and navigates it to pageURL.
func (m *Manager) OpenTab(ctx context.Context, pageURL, pageID string) (*Tab, error) {
	page, err := m.NewPage()
	if err != nil {
		return nil, err
	}
	if err := m.Navigate(ctx, page, pageURL); err != nil {
		page.Close()
		return nil, err
	}
	return &Tab{Page: page, PageURL: pageURL, PageID: pageID}, nil
}

// HTML serialises the current DOM.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement ? document.documentElement.outerHTML : ""`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// RenderHTML opens a throwaway tab on pageURL and returns its rendered DOM.
func (m *Manager) RenderHTML(ctx context.Context, pageURL string) (string, error) {
	tab, err := m.OpenTab(ctx, pageURL, "")
	if err != nil {
		return "", err
	}
	defer tab.Close()
	return tab.HTML(ctx)
}
