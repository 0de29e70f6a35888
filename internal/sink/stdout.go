package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/kickguard/report"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, r report.SweepReport) error {
	return s.write(envelope{Type: "sweep", Data: r})
}

func (s *Stdout) SendVerify(_ context.Context, ev report.VerifyEvent) error {
	return s.write(envelope{Type: "verify", Data: ev})
}

func (s *Stdout) Close() error { return nil }

func (s *Stdout) write(e envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}
