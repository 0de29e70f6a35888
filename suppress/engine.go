package suppress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/kickguard/idgen"
	"github.com/hazyhaar/kickguard/report"
)

// Sink receives sweep reports.
type Sink interface {
	Send(ctx context.Context, r report.SweepReport) error
}

// Config for creating an Engine.
type Config struct {
	PageID string
	DOM    DOM

	// Surface, Links and Sink are optional. Without a Surface no affordances
	// are injected; without Links there is no banner, no card highlight and
	// Verify fails.
	Surface Surface
	Links   LinkStore
	Sink    Sink

	// Frames defaults to TickerFrames{}.
	Frames       FrameSource
	ContainerIDs []string

	// Synchronous sweeps on every mutation batch instead of coalescing on
	// frames. Only suitable for small documents.
	Synchronous bool

	// ReinjectDelays are the fixed delays after Start at which the action
	// button is checked again. Default: 500ms and 2s.
	ReinjectDelays []time.Duration
	// ButtonFlash is how long the button shows its saved state. Default: 1.5s.
	ButtonFlash time.Duration

	// Logger is used as given by the engine and its listener; callers
	// scope it to the page.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Frames == nil {
		c.Frames = TickerFrames{}
	}
	if c.ReinjectDelays == nil {
		c.ReinjectDelays = []time.Duration{500 * time.Millisecond, 2 * time.Second}
	}
	if c.ButtonFlash <= 0 {
		c.ButtonFlash = 1500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine keeps one document suppressed. Mutation handling, sweeps and UI
// injection are serialised by a single mutex, the engine's equivalent of
// the page's main thread.
type Engine struct {
	cfg      Config
	dom      DOM
	ui       Surface
	links    LinkStore
	sink     Sink
	frames   FrameSource
	logger   *slog.Logger
	actions  *Actions
	listener *Listener
	sched    *Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	bannerDone bool
	unreported Tally
	seq        uint64
	timers     []*time.Timer
}

// New creates an Engine. Call Start to begin.
func New(cfg Config) *Engine {
	cfg.defaults()
	cls := NewClassifier(cfg.ContainerIDs...)
	actions := NewActions(cfg.DOM, cls)

	e := &Engine{
		cfg:      cfg,
		dom:      cfg.DOM,
		ui:       cfg.Surface,
		links:    cfg.Links,
		sink:     cfg.Sink,
		frames:   cfg.Frames,
		logger:   cfg.Logger,
		actions:  actions,
		listener: NewListener(actions, cfg.Logger),
		ctx:      context.Background(),
		cancel:   func() {},
	}
	e.sched = NewScheduler(cfg.Frames, e.scheduledSweep)
	return e
}

// Start waits for the document body, shows the verified banner when the
// page is verified, injects the action button and runs the initial sweep.
// Later changes arrive through OnMutations.
func (e *Engine) Start(ctx context.Context) error {
	if e.dom == nil {
		return fmt.Errorf("suppress: engine has no DOM")
	}
	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.whenBodyReady(e.boot)
	return nil
}

// Reload resets per-load state after the host navigated to a new document.
// The banner may be shown again for the new load.
func (e *Engine) Reload() {
	e.mu.Lock()
	e.bannerDone = false
	e.mu.Unlock()
	e.whenBodyReady(e.boot)
}

// Stop cancels pending work. Frames already requested run as no-ops.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel()
	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = nil
}

// OnMutations handles one batch of change records, then requests a sweep.
func (e *Engine) OnMutations(records []Record) {
	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	t := e.listener.Handle(e.ctx, records)
	e.unreported.add(t)
	e.mu.Unlock()

	if e.cfg.Synchronous {
		e.scheduledSweep()
		return
	}
	e.sched.Request()
}

// Sweep suppresses everything currently in the tree and makes sure the
// affordances exist. It runs immediately, bypassing the scheduler.
func (e *Engine) Sweep(ctx context.Context) Tally {
	e.mu.Lock()
	t := e.sweepLocked(ctx)
	r := e.reportLocked(t)
	e.mu.Unlock()
	e.emit(ctx, r)
	return t
}

// Stats returns the scheduler counters.
func (e *Engine) Stats() SchedulerStats {
	return e.sched.Stats()
}

// Verify saves the current page to the verified list and flashes the
// button. It reports whether the URL was newly added.
func (e *Engine) Verify(ctx context.Context) (string, bool, error) {
	if e.links == nil || e.ui == nil {
		return "", false, fmt.Errorf("suppress: verify needs a link store and a surface")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pageURL, err := e.ui.Location(ctx)
	if err != nil {
		return "", false, fmt.Errorf("suppress: location: %w", err)
	}
	added := e.links.Save(ctx, pageURL)

	if err := e.ui.SetButtonState(ctx, ButtonID, ButtonSavedLabel, ButtonSavedColor); err != nil {
		e.logger.Debug("suppress: flash button", "error", err)
	}
	e.after(e.cfg.ButtonFlash, func() {
		if err := e.ui.SetButtonState(e.ctx, ButtonID, ButtonLabel, ButtonColor); err != nil {
			e.logger.Debug("suppress: restore button", "error", err)
		}
	})
	e.logger.Info("suppress: page verified", "url", pageURL, "added", added)
	return pageURL, added, nil
}

func (e *Engine) boot() {
	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.showBannerLocked()
	e.ensureButtonLocked()
	t := e.sweepLocked(e.ctx)
	r := e.reportLocked(t)
	for _, d := range e.cfg.ReinjectDelays {
		e.after(d, e.ensureButtonLocked)
	}
	e.mu.Unlock()

	e.emit(e.ctx, r)
	e.logger.Info("suppress: initial sweep done",
		"images", t.Images, "videos", t.Videos, "errors", t.Errors)
}

// scheduledSweep is the body run by the scheduler on a frame.
func (e *Engine) scheduledSweep() {
	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	t := e.sweepLocked(e.ctx)
	r := e.reportLocked(t)
	e.mu.Unlock()
	e.emit(e.ctx, r)
}

func (e *Engine) sweepLocked(ctx context.Context) Tally {
	t := suppressDescendants(ctx, e.actions, Document, e.listener.guard)
	if e.ui != nil {
		if pageURL, err := e.ui.Location(ctx); err == nil {
			e.highlightCards(ctx, pageURL, &t)
		}
	}
	e.ensureButtonLocked()
	return t
}

// ensureButtonLocked re-creates the action button when the host wiped it.
func (e *Engine) ensureButtonLocked() {
	if e.ui == nil || e.ctx.Err() != nil {
		return
	}
	ok, err := e.ui.HasElement(e.ctx, ButtonID)
	if err != nil {
		e.logger.Debug("suppress: check button", "error", err)
		return
	}
	if ok {
		return
	}
	err = e.ui.InjectButton(e.ctx, defaultButton())
	switch {
	case errors.Is(err, ErrNoBody):
		e.frames.RequestFrame(e.lockedCall(e.ensureButtonLocked))
	case err != nil:
		e.logger.Debug("suppress: inject button", "error", err)
	}
}

// showBannerLocked shows the verified warning at most once per load.
func (e *Engine) showBannerLocked() {
	if e.bannerDone || e.ui == nil {
		return
	}
	if e.links == nil {
		e.bannerDone = true
		return
	}
	pageURL, err := e.ui.Location(e.ctx)
	if err != nil {
		e.logger.Debug("suppress: banner location", "error", err)
		return
	}
	if !e.links.Contains(e.ctx, pageURL) {
		e.bannerDone = true
		return
	}
	if ok, _ := e.ui.HasElement(e.ctx, BannerID); ok {
		e.bannerDone = true
		return
	}
	err = e.ui.InjectBanner(e.ctx, defaultBanner())
	if errors.Is(err, ErrNoBody) {
		e.frames.RequestFrame(e.lockedCall(e.showBannerLocked))
		return
	}
	if err != nil {
		e.logger.Debug("suppress: inject banner", "error", err)
	}
	e.bannerDone = true
}

func (e *Engine) whenBodyReady(fn func()) {
	ctx := e.runCtx()
	if ctx.Err() != nil {
		return
	}
	if e.ui == nil {
		fn()
		return
	}
	ready, err := e.ui.BodyReady(ctx)
	if err != nil {
		e.logger.Debug("suppress: body check", "error", err)
	}
	if ready {
		fn()
		return
	}
	e.frames.RequestFrame(func() { e.whenBodyReady(fn) })
}

func (e *Engine) runCtx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// after schedules fn under the engine lock. Must be called with mu held.
func (e *Engine) after(d time.Duration, fn func()) {
	e.timers = append(e.timers, time.AfterFunc(d, e.lockedCall(fn)))
}

func (e *Engine) lockedCall(fn func()) func() {
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.ctx.Err() != nil {
			return
		}
		fn()
	}
}

func (e *Engine) reportLocked(t Tally) *report.SweepReport {
	t.add(e.unreported)
	e.unreported = Tally{}
	if t == (Tally{}) && e.seq > 0 {
		return nil
	}
	e.seq++

	pageURL := ""
	if e.ui != nil {
		pageURL, _ = e.ui.Location(e.ctx)
	}
	st := e.sched.Stats()
	return &report.SweepReport{
		ID:        idgen.ReportID(),
		PageID:    e.cfg.PageID,
		PageURL:   pageURL,
		Seq:       e.seq,
		Images:    t.Images,
		Videos:    t.Videos,
		Reblocked: t.Reblocked,
		Errors:    t.Errors,
		Requested: st.Requested,
		Dropped:   st.Dropped,
		Executed:  st.Executed,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (e *Engine) emit(ctx context.Context, r *report.SweepReport) {
	if r == nil || e.sink == nil {
		return
	}
	if err := e.sink.Send(ctx, *r); err != nil {
		e.logger.Warn("suppress: send report failed", "error", err)
	}
}
