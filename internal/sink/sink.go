// Package sink defines output backends for kickguard sweep reports.
package sink

import (
	"context"

	"github.com/hazyhaar/kickguard/report"
)

// Sink is the output interface. Implementations deliver reports to
// different backends (stdout, webhook, in-process callback).
type Sink interface {
	Send(ctx context.Context, r report.SweepReport) error
	SendVerify(ctx context.Context, ev report.VerifyEvent) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
