package suppress

import "testing"

func TestSchedulerCoalesces(t *testing.T) {
	var frames ManualFrames
	runs := 0
	s := NewScheduler(&frames, func() { runs++ })

	if !s.Request() {
		t.Fatal("first request should schedule")
	}
	for range 9 {
		if s.Request() {
			t.Fatal("request while pending should be dropped")
		}
	}
	if !s.Pending() {
		t.Fatal("scheduler should be pending")
	}
	if n := frames.Waiting(); n != 1 {
		t.Fatalf("frames requested: got %d, want 1", n)
	}

	frames.Advance()
	if runs != 1 {
		t.Fatalf("sweeps: got %d, want 1", runs)
	}
	if s.Pending() {
		t.Fatal("scheduler should be idle after the frame")
	}

	st := s.Stats()
	if st.Requested != 10 || st.Dropped != 9 || st.Executed != 1 {
		t.Errorf("stats: got %+v", st)
	}
}

func TestSchedulerRequestDuringSweep(t *testing.T) {
	var frames ManualFrames
	var s *Scheduler
	runs := 0
	s = NewScheduler(&frames, func() {
		runs++
		if runs == 1 {
			if !s.Request() {
				t.Error("request during sweep should schedule a new one")
			}
		}
	})

	s.Request()
	frames.Advance()
	if runs != 1 {
		t.Fatalf("first frame: got %d sweeps", runs)
	}
	if frames.Waiting() != 1 {
		t.Fatalf("follow-up frame not requested")
	}
	frames.Advance()
	if runs != 2 {
		t.Fatalf("second frame: got %d sweeps", runs)
	}
}

func TestSchedulerIdleWithoutRequests(t *testing.T) {
	var frames ManualFrames
	s := NewScheduler(&frames, func() { t.Error("sweep without request") })
	if frames.Advance() != 0 {
		t.Error("no frame should be queued")
	}
	if st := s.Stats(); st != (SchedulerStats{}) {
		t.Errorf("stats: %+v", st)
	}
}
