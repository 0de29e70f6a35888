package suppress

import (
	"sync"
	"time"
)

// ManualFrames is a FrameSource advanced explicitly. It stands in for the
// browser's animation frames in tests and in one-shot processing.
type ManualFrames struct {
	mu    sync.Mutex
	queue []func()
}

// RequestFrame queues fn for the next Advance.
func (m *ManualFrames) RequestFrame(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

// Waiting returns the number of callbacks queued for the next frame.
func (m *ManualFrames) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Advance runs the callbacks queued before the call. Callbacks requested
// while advancing wait for the following frame. It returns how many ran.
func (m *ManualFrames) Advance() int {
	m.mu.Lock()
	run := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, fn := range run {
		fn()
	}
	return len(run)
}

// TickerFrames approximates animation frames with a fixed delay.
type TickerFrames struct {
	Interval time.Duration
}

// RequestFrame runs fn after Interval (16ms when unset).
func (t TickerFrames) RequestFrame(fn func()) {
	d := t.Interval
	if d <= 0 {
		d = 16 * time.Millisecond
	}
	time.AfterFunc(d, fn)
}
