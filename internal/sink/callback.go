package sink

import (
	"context"

	"github.com/hazyhaar/kickguard/report"
)

// SweepFunc is called for each sweep report.
type SweepFunc func(ctx context.Context, r report.SweepReport) error

// VerifyFunc is called for each verify event.
type VerifyFunc func(ctx context.Context, ev report.VerifyEvent) error

// Callback delivers reports as in-process function calls.
type Callback struct {
	onSweep  SweepFunc
	onVerify VerifyFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onSweep SweepFunc, onVerify VerifyFunc) *Callback {
	return &Callback{onSweep: onSweep, onVerify: onVerify}
}

func (c *Callback) Send(ctx context.Context, r report.SweepReport) error {
	if c.onSweep != nil {
		return c.onSweep(ctx, r)
	}
	return nil
}

func (c *Callback) SendVerify(ctx context.Context, ev report.VerifyEvent) error {
	if c.onVerify != nil {
		return c.onVerify(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
