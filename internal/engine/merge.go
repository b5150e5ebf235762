// Package engine reconciles evaluator candidates with the persisted alert
// set and owns the alert lifecycle (read, delete, retention).
package engine

import (
	"sort"
	"time"

	"pharmalert/internal/alert"
)

// DefaultRetention is how long retention-aged alerts (sale/system) are
// kept after their triggering event before a merge or sweep drops them.
const DefaultRetention = 30 * 24 * time.Hour

// MergeResult is the outcome of reconciling one tick's candidates
// against the previously held alerts.
type MergeResult struct {
	// Next is the complete alert set after the merge.
	Next map[string]alert.Alert
	// Created holds alerts materialized for the first time this tick.
	Created []alert.Alert
	// Retired lists keys removed because their condition cleared (or
	// their retention window lapsed).
	Retired []string
}

// Merge reconciles candidates with the existing alert set.
//
// It is a pure function of its inputs: no I/O, no clock reads beyond the
// passed-in now. Running it twice with unchanged inputs yields an equal
// Next map (identity keys are stable, CreatedAt is taken from existing).
//
// Rules:
//   - a candidate whose key already exists refreshes that alert's
//     severity/title/message/day-count in place; IsRead and CreatedAt
//     are preserved.
//   - a candidate with a new key materializes an unread alert with
//     CreatedAt = now.
//   - an existing condition-mirror alert (stock/expiry/expired) whose key
//     is absent from the candidate set is retired: those alerts exactly
//     track a currently-true predicate.
//   - an existing sale/system alert absent from the candidate set is a
//     retention-aged fact: it stays in Next while younger than retention
//     and is retired only once the window lapses.
func Merge(existing map[string]alert.Alert, candidates []alert.Candidate, now time.Time, retention time.Duration) MergeResult {
	if retention <= 0 {
		retention = DefaultRetention
	}

	next := make(map[string]alert.Alert, len(candidates)+len(existing))
	var created []alert.Alert

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c.Key == "" {
			continue
		}
		seen[c.Key] = struct{}{}

		if _, dup := next[c.Key]; dup {
			// Two evaluators produced the same key in one tick; the
			// first candidate wins so the result stays deterministic.
			continue
		}

		if prev, ok := existing[c.Key]; ok {
			prev.Severity = c.Severity
			prev.Title = c.Title
			prev.Message = c.Message
			prev.OccurredAt = c.OccurredAt
			prev.DaysUntilExpiry = c.DaysUntilExpiry
			next[c.Key] = prev
			continue
		}

		a := alert.Alert{
			Key:             c.Key,
			Domain:          c.Domain,
			Severity:        c.Severity,
			Title:           c.Title,
			Message:         c.Message,
			OccurredAt:      c.OccurredAt,
			CreatedAt:       now,
			IsRead:          false,
			SubjectID:       c.SubjectID,
			DaysUntilExpiry: c.DaysUntilExpiry,
		}
		next[c.Key] = a
		created = append(created, a)
	}

	var retired []string
	for key, prev := range existing {
		if _, ok := seen[key]; ok {
			continue
		}
		if prev.Domain.Retainable() && now.Sub(factTime(prev)) < retention {
			next[key] = prev
			continue
		}
		retired = append(retired, key)
	}
	sort.Strings(retired)

	return MergeResult{Next: next, Created: created, Retired: retired}
}

// factTime is the age reference for retention: the business timestamp
// when present, the first-seen time otherwise.
func factTime(a alert.Alert) time.Time {
	if !a.OccurredAt.IsZero() {
		return a.OccurredAt
	}
	return a.CreatedAt
}
