package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/kickguard/report"
)

func TestStdoutJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	ctx := context.Background()

	if err := s.Send(ctx, report.SweepReport{ID: "r1", PageID: "p", Images: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.SendVerify(ctx, report.VerifyEvent{URL: "https://kick.com/a", Added: true}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first struct {
		Type string             `json:"type"`
		Data report.SweepReport `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "sweep" || first.Data.Images != 2 {
		t.Errorf("first line = %+v", first)
	}
	if !strings.Contains(lines[1], `"type":"verify"`) {
		t.Errorf("second line = %s", lines[1])
	}
}

type failing struct{ Callback }

func (failing) Send(context.Context, report.SweepReport) error { return errors.New("down") }

func TestRouterFanOut(t *testing.T) {
	var got []string
	cb := NewCallback(
		func(_ context.Context, r report.SweepReport) error { got = append(got, "sweep:"+r.ID); return nil },
		func(_ context.Context, ev report.VerifyEvent) error { got = append(got, "verify:"+ev.URL); return nil },
	)
	r := NewRouter(nil, &failing{}, cb)

	err := r.Send(context.Background(), report.SweepReport{ID: "r1"})
	if err == nil || err.Error() != "down" {
		t.Errorf("Send err = %v, want first sink error", err)
	}
	if err := r.SendVerify(context.Background(), report.VerifyEvent{URL: "u"}); err != nil {
		t.Errorf("SendVerify: %v", err)
	}
	if diff := cmp.Diff([]string{"sweep:r1", "verify:u"}, got); diff != "" {
		t.Errorf("delivered (-want +got):\n%s", diff)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d", r.Len())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestCallbackNilHandlers(t *testing.T) {
	c := NewCallback(nil, nil)
	if err := c.Send(context.Background(), report.SweepReport{}); err != nil {
		t.Error(err)
	}
	if err := c.SendVerify(context.Background(), report.VerifyEvent{}); err != nil {
		t.Error(err)
	}
}

func TestWebhookRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := wh.Send(context.Background(), report.SweepReport{ID: "r9"}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if !bytes.Contains(body, []byte(`"id":"r9"`)) {
		t.Errorf("body = %s", body)
	}
}

func TestWebhookGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	err := wh.SendVerify(context.Background(), report.VerifyEvent{})
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Errorf("err = %v", err)
	}
}
