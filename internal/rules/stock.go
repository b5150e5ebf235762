package rules

import (
	"fmt"
	"time"

	"pharmalert/internal/alert"
)

// EvaluateStock emits one candidate per product at or below its reorder
// threshold. Out of stock is critical, low stock is a warning.
func EvaluateStock(snap Snapshot, now time.Time) []alert.Candidate {
	var out []alert.Candidate
	for _, p := range snap.Products {
		if p.ID == "" {
			// Malformed record; skip it, keep the tick going.
			continue
		}
		if p.Quantity > p.ReorderThreshold {
			continue
		}

		c := alert.Candidate{
			Key:        alert.StockKey(p.ID),
			Domain:     alert.DomainStock,
			SubjectID:  p.ID,
			OccurredAt: now,
		}
		if p.Quantity <= 0 {
			c.Severity = alert.SeverityCritical
			c.Title = "Out of Stock"
			c.Message = fmt.Sprintf("%s is out of stock", p.Name)
		} else {
			c.Severity = alert.SeverityWarning
			c.Title = "Low Stock Alert"
			c.Message = fmt.Sprintf("%s has only %d units remaining (minimum: %d)", p.Name, p.Quantity, p.ReorderThreshold)
		}
		out = append(out, c)
	}
	return out
}
