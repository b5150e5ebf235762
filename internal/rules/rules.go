// Package rules turns a business-state snapshot into alert candidates.
//
// Every evaluator is a pure function of (snapshot, now, config): no clock
// reads, no store access, no I/O. Malformed records (missing ids) are
// skipped one at a time so a single bad row never blanks out the rest of
// the tick's alerts.
package rules

import (
	"time"

	"pharmalert/internal/alert"
)

// Config carries the evaluator thresholds. Zero values fall back to the
// documented defaults, so an empty Config is usable.
type Config struct {
	// ExpiryHorizonDays bounds how far ahead the expiry rule looks.
	ExpiryHorizonDays int
	// RecentSales is the size of the recent-sales window.
	RecentSales int
	// HighValueThreshold triggers an extra notice for large transactions.
	// Amounts are in the store currency.
	HighValueThreshold float64
}

const (
	DefaultExpiryHorizonDays  = 30
	DefaultRecentSales        = 5
	DefaultHighValueThreshold = 10000
)

func (c Config) withDefaults() Config {
	if c.ExpiryHorizonDays <= 0 {
		c.ExpiryHorizonDays = DefaultExpiryHorizonDays
	}
	if c.RecentSales <= 0 {
		c.RecentSales = DefaultRecentSales
	}
	if c.HighValueThreshold <= 0 {
		c.HighValueThreshold = DefaultHighValueThreshold
	}
	return c
}

// Evaluate runs all evaluators against one snapshot and returns the
// combined candidate list for the tick.
//
// The system evaluator runs last because its expiry-attention summary is
// derived from the expiry candidates of the same tick.
func Evaluate(snap Snapshot, now time.Time, cfg Config) []alert.Candidate {
	cfg = cfg.withDefaults()

	out := EvaluateStock(snap, now)

	expiry := EvaluateExpiry(snap, now, cfg.ExpiryHorizonDays)
	out = append(out, expiry...)

	out = append(out, EvaluateSales(snap, now, cfg.RecentSales, cfg.HighValueThreshold)...)
	out = append(out, EvaluateSystem(snap, now, len(expiry))...)
	return out
}
