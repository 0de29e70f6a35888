package cdpdom

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func stubFrames(fallback time.Duration) (*Frames, *atomic.Int32) {
	var asks atomic.Int32
	return &Frames{ask: func() { asks.Add(1) }, fallback: fallback}, &asks
}

func TestFramesCoalesceRequests(t *testing.T) {
	f, asks := stubFrames(time.Hour)

	var ran atomic.Int32
	for range 5 {
		f.RequestFrame(func() { ran.Add(1) })
	}
	time.Sleep(20 * time.Millisecond)
	if got := asks.Load(); got != 1 {
		t.Fatalf("asked for %d frames, want 1", got)
	}

	f.fire()
	if got := ran.Load(); got != 5 {
		t.Errorf("ran %d callbacks, want 5", got)
	}

	f.RequestFrame(func() {})
	time.Sleep(20 * time.Millisecond)
	if got := asks.Load(); got != 2 {
		t.Errorf("asked for %d frames after fire, want 2", got)
	}
}

func TestFramesFallback(t *testing.T) {
	f, _ := stubFrames(10 * time.Millisecond)

	done := make(chan struct{})
	f.RequestFrame(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fallback timer never fired the frame")
	}
}

func TestFramesStaleFallbackIgnored(t *testing.T) {
	f, _ := stubFrames(30 * time.Millisecond)

	f.RequestFrame(func() {})
	f.fire()

	var mu sync.Mutex
	var fired []string
	f.RequestFrame(func() {
		mu.Lock()
		fired = append(fired, "second")
		mu.Unlock()
	})
	// The first request's timer must not fire the second request early.
	f.fireGen(1)

	mu.Lock()
	n := len(fired)
	mu.Unlock()
	if n != 0 {
		t.Fatal("stale fallback fired a newer request")
	}
	f.fireGen(2)
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(fired, ",") != "second" {
		t.Errorf("fired = %v", fired)
	}
}

func TestStylesheetScriptQuotesCSS(t *testing.T) {
	src, err := stylesheetScript("#a { content: \"x\" }\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, `"#a { content: \"x\" }\n"`) {
		t.Errorf("css not JSON-quoted in script:\n%s", src)
	}
	if !strings.Contains(src, `"kickguard-style"`) {
		t.Error("style element id missing")
	}
}
