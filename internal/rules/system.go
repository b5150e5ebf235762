package rules

import (
	"fmt"
	"time"

	"pharmalert/internal/alert"
)

// ExpirySummarySlug identifies the derived tick summary of products that
// need attention due to expiry. It is a fixed slug so repeated ticks
// refresh the same alert instead of stacking new ones.
const ExpirySummarySlug = "expiry-summary"

// EvaluateSystem maps the static system events through to candidates and,
// when any product is expiring or expired this tick, adds a derived
// summary candidate counting them.
func EvaluateSystem(snap Snapshot, now time.Time, expiryAttention int) []alert.Candidate {
	var out []alert.Candidate
	for _, ev := range snap.Events {
		if ev.Slug == "" {
			continue
		}
		out = append(out, alert.Candidate{
			Key:        alert.SystemKey(ev.Slug),
			Domain:     alert.DomainSystem,
			Severity:   alert.ParseSeverity(ev.Severity, alert.SeverityInfo),
			Title:      ev.Title,
			Message:    ev.Message,
			SubjectID:  ev.Slug,
			OccurredAt: now,
		})
	}

	if expiryAttention > 0 {
		msg := fmt.Sprintf("%d products require attention due to expiry", expiryAttention)
		if expiryAttention == 1 {
			msg = "1 product requires attention due to expiry"
		}
		out = append(out, alert.Candidate{
			Key:        alert.SystemKey(ExpirySummarySlug),
			Domain:     alert.DomainSystem,
			Severity:   alert.SeverityInfo,
			Title:      "Inventory Attention Needed",
			Message:    msg,
			SubjectID:  ExpirySummarySlug,
			OccurredAt: now,
		})
	}
	return out
}
