package suppress

import "sync"

// FrameSource defers work to the next rendering opportunity. fn runs once.
type FrameSource interface {
	RequestFrame(fn func())
}

// SchedulerStats are cumulative counters.
type SchedulerStats struct {
	Requested uint64
	Dropped   uint64
	Executed  uint64
}

// Scheduler coalesces sweep requests: at most one sweep is pending at a
// time, and a request made while one is pending is dropped. The pending
// flag is cleared before the sweep runs so that a mutation observed during
// the sweep schedules the next one instead of being lost.
//
// States: idle → (Request) → pending → (frame) → idle.
type Scheduler struct {
	frames FrameSource
	sweep  func()

	mu      sync.Mutex
	pending bool
	stats   SchedulerStats
}

// NewScheduler creates a Scheduler that runs sweep on frames from fs.
func NewScheduler(fs FrameSource, sweep func()) *Scheduler {
	return &Scheduler{frames: fs, sweep: sweep}
}

// Request asks for a sweep on the next frame. It returns false when the
// request was dropped because a sweep is already pending.
func (s *Scheduler) Request() bool {
	s.mu.Lock()
	s.stats.Requested++
	if s.pending {
		s.stats.Dropped++
		s.mu.Unlock()
		return false
	}
	s.pending = true
	s.mu.Unlock()

	s.frames.RequestFrame(s.fire)
	return true
}

// Pending reports whether a sweep is waiting for its frame.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.pending = false
	s.stats.Executed++
	s.mu.Unlock()

	s.sweep()
}
