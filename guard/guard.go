// Package guard keeps media and channel chrome suppressed on kick.com tabs.
// It orchestrates Chrome as a disposable component: one suppression engine
// per guarded tab, a shared verified-link store, a page scanner and report
// sinks.
package guard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/kickguard/dbopen"
	"github.com/hazyhaar/kickguard/idgen"
	"github.com/hazyhaar/kickguard/internal/browser"
	"github.com/hazyhaar/kickguard/internal/cdpdom"
	"github.com/hazyhaar/kickguard/internal/config"
	"github.com/hazyhaar/kickguard/internal/sink"
	"github.com/hazyhaar/kickguard/report"
	"github.com/hazyhaar/kickguard/scan"
	"github.com/hazyhaar/kickguard/suppress"
	"github.com/hazyhaar/kickguard/verified"
)

// ErrNoPage is returned when the verified list lives in page storage and
// no page is guarded.
var ErrNoPage = errors.New("guard: no guarded page")

// Guard is the top-level orchestrator. Create one per kickguard instance.
type Guard struct {
	cfg     *config.Config
	mgr     *browser.Manager
	sinkR   *sink.Router
	scanner *scan.Scanner
	logger  *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	pages  map[string]*guardedPage
	store  *verified.Store // shared store; nil for the page backend
	db     *sql.DB
	closed bool
}

type guardedPage struct {
	cfg    config.PageConfig
	fromDB bool
	page   *rod.Page
	dom    *cdpdom.Page
	engine *suppress.Engine
	links  *verified.Store
	cancel context.CancelFunc
}

// New creates a Guard from configuration. A nil cfg uses config.Default.
func New(cfg *config.Config, logger *slog.Logger, sinks ...sink.Sink) *Guard {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Headful:         cfg.Browser.Headful,
		Stealth:         cfg.Browser.Stealth,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
		Logger:          logger,
	})

	g := &Guard{
		cfg:    cfg,
		mgr:    mgr,
		sinkR:  sink.NewRouter(logger, sinks...),
		logger: logger,
		ctx:    context.Background(),
		pages:  make(map[string]*guardedPage),
	}
	g.scanner = scan.New(g.fetcher(),
		scan.WithTimeout(cfg.Scan.Timeout),
		scan.WithLogger(logger))
	if cfg.Store.Backend == "memory" {
		g.store = verified.New(verified.NewMemory(),
			verified.WithKey(cfg.Store.Key), verified.WithLogger(logger))
	}
	return g
}

// Open prepares the verified store without starting the browser. The
// scan-only and API-only modes stop here.
func (g *Guard) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openLocked(ctx)
}

func (g *Guard) openLocked(ctx context.Context) error {
	if g.cfg.Store.Backend != "sqlite" || g.db != nil {
		return nil
	}
	db, err := dbopen.Open(g.cfg.Store.Path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(verified.Schema),
		dbopen.WithSchema(config.Schema))
	if err != nil {
		return fmt.Errorf("guard: open store: %w", err)
	}
	backend, err := verified.NewSQLite(ctx, db)
	if err != nil {
		db.Close()
		return fmt.Errorf("guard: sqlite backend: %w", err)
	}
	g.db = db
	g.store = verified.New(backend, verified.WithKey(g.cfg.Store.Key), verified.WithLogger(g.logger))
	return nil
}

// Start launches the browser and begins guarding all configured pages.
func (g *Guard) Start(ctx context.Context) error {
	if err := g.Open(ctx); err != nil {
		return err
	}
	if _, err := g.mgr.Start(ctx); err != nil {
		return fmt.Errorf("guard: start browser: %w", err)
	}

	g.mu.Lock()
	g.ctx = ctx
	g.mu.Unlock()

	g.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: g.detachAll,
		AfterRecycle:  func(*rod.Browser) { g.reattachAll(ctx) },
	})

	for _, pc := range g.cfg.Pages {
		if err := g.GuardPage(ctx, pc); err != nil {
			g.logger.Error("guard: failed to guard page", "url", pc.URL, "error", err)
		}
	}

	if g.cfg.Store.WatchPages && g.db != nil {
		if err := g.syncFromDB(ctx); err != nil {
			g.logger.Error("guard: load guard_pages failed", "error", err)
		}
		go config.WatchPages(g.db, g.logger).OnChange(ctx, func() error {
			return g.syncFromDB(ctx)
		})
	}
	return nil
}

// GuardPage opens a tab on pc.URL and keeps it suppressed until ctx is done
// or the page is released. Guarding an ID that is already guarded replaces
// the previous tab.
func (g *Guard) GuardPage(ctx context.Context, pc config.PageConfig) error {
	return g.guard(ctx, pc, false)
}

func (g *Guard) guard(ctx context.Context, pc config.PageConfig, fromDB bool) error {
	if pc.URL == "" {
		return fmt.Errorf("guard: page %q has no url", pc.ID)
	}
	if pc.ID == "" {
		pc.ID = idgen.PageID()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("guard: closed")
	}
	if old, ok := g.pages[pc.ID]; ok {
		g.detachLocked(old)
		delete(g.pages, pc.ID)
	}

	gp, err := g.attach(ctx, pc)
	if err != nil {
		return err
	}
	gp.fromDB = fromDB
	g.pages[pc.ID] = gp
	g.logger.Info("guard: guarding page", "id", pc.ID, "url", pc.URL)
	return nil
}

// attach opens the tab and wires the engine before the first navigation so
// the stylesheet and bindings are in place for the initial document.
func (g *Guard) attach(ctx context.Context, pc config.PageConfig) (*guardedPage, error) {
	page, err := g.mgr.NewPage()
	if err != nil {
		return nil, fmt.Errorf("guard: open tab: %w", err)
	}
	pctx, cancel := context.WithCancel(ctx)
	fail := func(err error) (*guardedPage, error) {
		cancel()
		page.Close()
		return nil, err
	}

	logger := g.logger.With("page", pc.ID)
	dom := cdpdom.New(page, logger)
	frames := cdpdom.NewFrames(dom, g.cfg.Engine.FrameFallback)
	gp := &guardedPage{cfg: pc, page: page, dom: dom, cancel: cancel}
	gp.links = g.store
	if gp.links == nil {
		gp.links = verified.New(cdpdom.NewLocalStorage(dom),
			verified.WithKey(g.cfg.Store.Key), verified.WithLogger(logger))
	}

	gp.engine = suppress.New(suppress.Config{
		PageID:         pc.ID,
		DOM:            dom,
		Surface:        dom,
		Links:          gp.links,
		Sink:           g.sinkR,
		Frames:         frames,
		ContainerIDs:   g.cfg.Engine.ContainerIDs,
		Synchronous:    g.cfg.Engine.Synchronous,
		ReinjectDelays: g.cfg.Engine.ReinjectDelays,
		ButtonFlash:    g.cfg.Engine.ButtonFlash,
		Logger:         logger,
	})

	css := suppress.Stylesheet(g.cfg.Engine.ContainerIDs, g.cfg.Engine.HideVideo)
	if err := dom.InstallStylesheet(pctx, css); err != nil {
		return fail(err)
	}
	if err := dom.Bind(pctx, frames, func(string) { g.verify(pctx, gp) }); err != nil {
		return fail(err)
	}
	if err := g.mgr.Navigate(pctx, page, pc.URL); err != nil {
		return fail(err)
	}
	if err := dom.Init(pctx); err != nil {
		return fail(err)
	}
	dom.Observe(pctx, cdpdom.Handlers{
		Mutations:     gp.engine.OnMutations,
		DocumentReset: gp.engine.Reload,
	})
	if err := gp.engine.Start(pctx); err != nil {
		return fail(err)
	}
	return gp, nil
}

// verify handles a click on the page's action button.
func (g *Guard) verify(ctx context.Context, gp *guardedPage) {
	url, added, err := gp.engine.Verify(ctx)
	if err != nil {
		g.logger.Warn("guard: verify failed", "page", gp.cfg.ID, "error", err)
		return
	}
	ev := report.VerifyEvent{
		ID:        idgen.EventID(),
		PageID:    gp.cfg.ID,
		URL:       url,
		Added:     added,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := g.sinkR.SendVerify(ctx, ev); err != nil {
		g.logger.Warn("guard: send verify event failed", "error", err)
	}
}

// Unguard stops guarding a page and closes its tab.
func (g *Guard) Unguard(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	gp, ok := g.pages[id]
	if !ok {
		return fmt.Errorf("guard: page %q is not guarded", id)
	}
	g.detachLocked(gp)
	delete(g.pages, id)
	g.logger.Info("guard: page released", "id", id)
	return nil
}

// Pages returns the guarded page configurations sorted by ID.
func (g *Guard) Pages() []config.PageConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]config.PageConfig, 0, len(g.pages))
	for _, gp := range g.pages {
		out = append(out, gp.cfg)
	}
	slices.SortFunc(out, func(a, b config.PageConfig) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Sweep runs an immediate sweep on a guarded page.
func (g *Guard) Sweep(ctx context.Context, id string) (suppress.Tally, error) {
	g.mu.Lock()
	gp, ok := g.pages[id]
	g.mu.Unlock()
	if !ok {
		return suppress.Tally{}, fmt.Errorf("guard: page %q is not guarded", id)
	}
	return gp.engine.Sweep(ctx), nil
}

// Scan harvests e-mails and links from url.
func (g *Guard) Scan(ctx context.Context, url string) (*scan.Result, error) {
	return g.scanner.Scan(ctx, url)
}

// Verified returns the verified-link store. With the page backend the list
// lives in the localStorage of kick.com, read through the first guarded
// tab.
func (g *Guard) Verified() (*verified.Store, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.store != nil {
		return g.store, nil
	}
	if g.cfg.Store.Backend == "sqlite" {
		return nil, fmt.Errorf("guard: store not opened")
	}
	ids := make([]string, 0, len(g.pages))
	for id := range g.pages {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoPage
	}
	slices.Sort(ids)
	return g.pages[ids[0]].links, nil
}

// ExcludeHost is the host whose links scans report as internal.
func (g *Guard) ExcludeHost() string { return g.cfg.Scan.ExcludeHost }

// DB returns the sqlite store, nil unless the sqlite backend is open.
func (g *Guard) DB() *sql.DB {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.db
}

// Stop shuts down all engines, the browser and the sinks.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true

	for id, gp := range g.pages {
		g.detachLocked(gp)
		g.logger.Info("guard: stopped page", "id", id)
	}
	g.pages = make(map[string]*guardedPage)

	g.sinkR.Close()
	g.mgr.Close()
	if g.db != nil {
		g.db.Close()
		g.db = nil
	}
}

// syncFromDB guards every active guard_pages row and releases pages whose
// row was disabled or deleted. Pages from the config file are left alone.
func (g *Guard) syncFromDB(ctx context.Context) error {
	g.mu.Lock()
	db := g.db
	g.mu.Unlock()
	if db == nil {
		return nil
	}
	rows, err := config.LoadPages(ctx, db)
	if err != nil {
		return err
	}

	want := make(map[string]config.PageConfig, len(rows))
	for _, pc := range rows {
		want[pc.ID] = pc
	}

	g.mu.Lock()
	var drop []string
	var add []config.PageConfig
	for id, gp := range g.pages {
		if _, ok := want[id]; gp.fromDB && !ok {
			drop = append(drop, id)
		}
	}
	for id, pc := range want {
		gp, ok := g.pages[id]
		if !ok || (gp.fromDB && gp.cfg.URL != pc.URL) {
			add = append(add, pc)
		}
	}
	g.mu.Unlock()

	for _, id := range drop {
		if err := g.Unguard(id); err != nil {
			g.logger.Debug("guard: release page", "id", id, "error", err)
		}
	}
	for _, pc := range add {
		if err := g.guard(ctx, pc, true); err != nil {
			g.logger.Error("guard: failed to guard page", "url", pc.URL, "error", err)
		}
	}
	return nil
}

func (g *Guard) detachLocked(gp *guardedPage) {
	gp.engine.Stop()
	gp.cancel()
	if err := gp.page.Close(); err != nil {
		g.logger.Debug("guard: close tab", "id", gp.cfg.ID, "error", err)
	}
}

func (g *Guard) detachAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, gp := range g.pages {
		gp.engine.Stop()
		gp.cancel()
	}
}

// reattachAll reopens every guarded page on the recycled browser.
func (g *Guard) reattachAll(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.pages
	g.pages = make(map[string]*guardedPage)
	for id, prev := range old {
		gp, err := g.attach(ctx, prev.cfg)
		if err != nil {
			g.logger.Error("guard: reattach failed", "id", id, "url", prev.cfg.URL, "error", err)
			continue
		}
		gp.fromDB = prev.fromDB
		g.pages[id] = gp
	}
}

// fetcher builds the scan fetch path from the scan config.
func (g *Guard) fetcher() scan.Fetcher {
	httpF := scan.NewHTTPFetcher(
		scan.WithUserAgent(g.cfg.Scan.UserAgent),
		scan.WithHTTPLogger(g.logger))
	browserF := scan.NewBrowserFetcher(lazyRenderer{g})
	switch g.cfg.Scan.Fetch {
	case "http":
		return httpF
	case "browser":
		return browserF
	}
	return scan.NewAutoFetcher(httpF, browserF, g.logger)
}

// lazyRenderer starts the browser on first use so HTTP-only scans never
// launch Chrome.
type lazyRenderer struct{ g *Guard }

func (r lazyRenderer) RenderHTML(ctx context.Context, url string) (string, error) {
	r.g.mu.Lock()
	runCtx := r.g.ctx
	r.g.mu.Unlock()
	if _, err := r.g.mgr.Start(runCtx); err != nil {
		return "", fmt.Errorf("guard: start browser: %w", err)
	}
	return r.g.mgr.RenderHTML(ctx, url)
}
