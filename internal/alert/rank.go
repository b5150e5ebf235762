package alert

import "sort"

// Rank maps an alert to its display priority bucket, most urgent first.
//
// Buckets:
//  1. expired products
//  2. expiry within 3 days
//  3. critical stock (out of stock)
//  4. remaining expiry warnings
//  5. any other warning
//  6. everything else
//
// The mapping is total: every alert lands in exactly one bucket.
func Rank(a Alert) int {
	switch {
	case a.Domain == DomainExpired:
		return 1
	case a.Domain == DomainExpiry && a.DaysUntilExpiry <= 3:
		return 2
	case a.Domain == DomainStock && a.Severity == SeverityCritical:
		return 3
	case a.Domain == DomainExpiry:
		return 4
	case a.Severity == SeverityWarning:
		return 5
	default:
		return 6
	}
}

// Less orders a before b when a is more urgent. Ties within a rank break
// by OccurredAt descending (most recent first), then by key so the order
// is deterministic for equal timestamps.
func Less(a, b Alert) bool {
	ra, rb := Rank(a), Rank(b)
	if ra != rb {
		return ra < rb
	}
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.After(b.OccurredAt)
	}
	return a.Key < b.Key
}

// SortByPriority sorts alerts in place, most urgent first.
func SortByPriority(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool { return Less(alerts[i], alerts[j]) })
}
