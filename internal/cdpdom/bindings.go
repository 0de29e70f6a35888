package cdpdom

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// Binding names exposed on the page's window.
const (
	frameBinding  = "__kickguard_frame"
	verifyBinding = "__kickguard_verify"
)

// Frames is a suppress.FrameSource backed by the page's
// requestAnimationFrame. Background tabs may not paint, so a timer fires
// the frame when the page has not within Fallback.
type Frames struct {
	ask      func() // requests one animation frame from the page
	fallback time.Duration

	mu        sync.Mutex
	queue     []func()
	requested bool
	gen       uint64
}

// NewFrames creates a frame source. fallback <= 0 means 100ms.
func NewFrames(p *Page, fallback time.Duration) *Frames {
	if fallback <= 0 {
		fallback = 100 * time.Millisecond
	}
	ask := func() {
		_, err := p.page.Eval(fmt.Sprintf(
			`() => requestAnimationFrame(() => { if (window.%[1]s) window.%[1]s(""); })`, frameBinding))
		if err != nil {
			p.logger.Debug("cdpdom: requestAnimationFrame failed", "error", err)
		}
	}
	return &Frames{ask: ask, fallback: fallback}
}

// RequestFrame queues fn and asks the page for one animation frame on
// behalf of every queued callback.
func (f *Frames) RequestFrame(fn func()) {
	f.mu.Lock()
	f.queue = append(f.queue, fn)
	if f.requested {
		f.mu.Unlock()
		return
	}
	f.requested = true
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	go f.ask()
	time.AfterFunc(f.fallback, func() { f.fireGen(gen) })
}

// fireGen is the fallback path: it only fires the request it was armed
// for, not a later one.
func (f *Frames) fireGen(gen uint64) {
	f.mu.Lock()
	if !f.requested || f.gen != gen {
		f.mu.Unlock()
		return
	}
	run := f.queue
	f.queue = nil
	f.requested = false
	f.mu.Unlock()

	for _, fn := range run {
		fn()
	}
}

// fire runs the callbacks queued so far.
func (f *Frames) fire() {
	f.mu.Lock()
	run := f.queue
	f.queue = nil
	f.requested = false
	f.mu.Unlock()

	for _, fn := range run {
		fn()
	}
}

// Bind installs the frame and verify bindings and dispatches their calls
// until ctx is done. onVerify receives the page URL the button was
// clicked on.
func (p *Page) Bind(ctx context.Context, frames *Frames, onVerify func(url string)) error {
	pg := p.page.Context(ctx)
	for _, name := range []string{frameBinding, verifyBinding} {
		if err := (proto.RuntimeAddBinding{Name: name}).Call(pg); err != nil {
			return fmt.Errorf("cdpdom: add binding %s: %w", name, err)
		}
	}

	go pg.EachEvent(func(e *proto.RuntimeBindingCalled) {
		switch e.Name {
		case frameBinding:
			if frames != nil {
				go frames.fire()
			}
		case verifyBinding:
			if onVerify != nil {
				go onVerify(e.Payload)
			}
		}
	})()
	return nil
}
