package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/kickguard/report"
)

// Router fans out reports to all configured sinks. One sink error does not
// block the others: errors are logged and the first is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Send(ctx context.Context, rep report.SweepReport) error {
	return r.each(func(s Sink) error { return s.Send(ctx, rep) }, "sweep")
}

func (r *Router) SendVerify(ctx context.Context, ev report.VerifyEvent) error {
	return r.each(func(s Sink) error { return s.SendVerify(ctx, ev) }, "verify")
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) each(send func(Sink) error, kind string) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := send(s); err != nil {
			r.logger.Warn("sink: send failed", "kind", kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
