// Package idgen generates identifiers for guarded pages and sweep reports.
//
// Page sessions get short prefixed IDs (they show up in logs and CLI output);
// sweep reports get time-sortable UUIDv7 so sinks can order them.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Short returns a Generator of lowercase base-36 IDs of the given length.
func Short(length int) Generator {
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i, b := range buf {
			buf[i] = base36[int(b)%len(base36)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator of RFC 9562 version 7 UUID strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID produced by gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

var (
	// Default is used by New.
	Default Generator = UUIDv7()

	// PageID names a guarded page session, e.g. "pg_3k9x0a1b2c".
	PageID Generator = Prefixed("pg_", Short(10))

	// ReportID names a sweep report.
	ReportID Generator = Prefixed("swp_", UUIDv7())

	// EventID names a verify event.
	EventID Generator = Prefixed("vfy_", UUIDv7())
)

// New produces an ID with the Default generator.
func New() string {
	return Default()
}
