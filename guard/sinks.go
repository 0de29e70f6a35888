package guard

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/kickguard/internal/sink"
	"github.com/hazyhaar/kickguard/report"
)

// Sink is the output interface for sweep reports and verify events.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink.
func NewCallbackSink(
	onSweep func(ctx context.Context, r report.SweepReport) error,
	onVerify func(ctx context.Context, ev report.VerifyEvent) error,
) Sink {
	return sink.NewCallback(onSweep, onVerify)
}

// SinksFromConfig builds the sinks a configuration names. stdout sinks
// write to w.
func SinksFromConfig(cfgs []SinkConfig, w io.Writer, logger *slog.Logger) []Sink {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]Sink, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Type {
		case "stdout":
			out = append(out, sink.NewStdout(w))
		case "webhook":
			out = append(out, sink.NewWebhook(c.URL,
				sink.WithWebhookLogger(logger),
				sink.WithWebhookRetries(c.MaxRetries),
				sink.WithWebhookTimeout(c.Timeout)))
		default:
			logger.Warn("guard: unknown sink type", "type", c.Type)
		}
	}
	return out
}
