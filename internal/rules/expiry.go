package rules

import (
	"fmt"
	"math"
	"time"

	"pharmalert/internal/alert"
)

// EvaluateExpiry emits "expiry:" candidates for products expiring inside
// the horizon and "expired:" candidates for products already past their
// expiry date.
//
// The two rules are mutually exclusive by strict date comparison: the
// expiring branch only considers ExpiryDate > now, so a product never
// carries both keys in one tick.
func EvaluateExpiry(snap Snapshot, now time.Time, horizonDays int) []alert.Candidate {
	if horizonDays <= 0 {
		horizonDays = DefaultExpiryHorizonDays
	}
	horizon := now.AddDate(0, 0, horizonDays)

	var out []alert.Candidate
	for _, p := range snap.Products {
		if p.ID == "" || p.ExpiryDate == nil {
			continue
		}
		exp := *p.ExpiryDate

		if exp.After(now) {
			if exp.After(horizon) {
				continue
			}
			days := daysUntil(now, exp)
			c := alert.Candidate{
				Key:             alert.ExpiryKey(p.ID),
				Domain:          alert.DomainExpiry,
				SubjectID:       p.ID,
				OccurredAt:      now,
				DaysUntilExpiry: days,
				Message:         fmt.Sprintf("%s expires in %d %s", p.Name, days, plural(days, "day", "days")),
			}
			if days <= 7 {
				c.Severity = alert.SeverityCritical
				c.Title = "Product Expiring Soon"
			} else {
				c.Severity = alert.SeverityWarning
				c.Title = "Product Expiry Warning"
			}
			out = append(out, c)
			continue
		}

		out = append(out, alert.Candidate{
			Key:        alert.ExpiredKey(p.ID),
			Domain:     alert.DomainExpired,
			Severity:   alert.SeverityCritical,
			Title:      "Product Expired",
			Message:    fmt.Sprintf("%s has expired on %s", p.Name, exp.Format("Jan 2, 2006")),
			SubjectID:  p.ID,
			OccurredAt: now,
		})
	}
	return out
}

// daysUntil is the ceiling of the remaining time in whole days, so a
// product expiring in 4.2 days reads "expires in 5 days".
func daysUntil(now, exp time.Time) int {
	return int(math.Ceil(exp.Sub(now).Hours() / 24))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
