package rules

import (
	"fmt"
	"time"

	"pharmalert/internal/alert"
)

// EvaluateSales emits an informational candidate for each of the most
// recent transactions, plus a high-value notice for transactions above
// the configured threshold.
//
// Sale candidates carry the sale time as OccurredAt, not the tick time:
// a completed sale is a fact with its own timestamp.
func EvaluateSales(snap Snapshot, now time.Time, recentN int, highValue float64) []alert.Candidate {
	if recentN <= 0 {
		recentN = DefaultRecentSales
	}
	if highValue <= 0 {
		highValue = DefaultHighValueThreshold
	}

	var out []alert.Candidate
	taken := 0
	for _, s := range snap.Sales {
		if taken >= recentN {
			break
		}
		if s.ID == "" {
			continue
		}
		taken++

		occurred := s.OccurredAt
		if occurred.IsZero() {
			occurred = now
		}
		ref := s.Reference
		if ref == "" {
			ref = s.ID
		}

		out = append(out, alert.Candidate{
			Key:        alert.SaleKey(s.ID),
			Domain:     alert.DomainSale,
			Severity:   alert.SeverityInfo,
			Title:      "Sale Completed",
			Message:    fmt.Sprintf("Transaction %s - ₦%.2f", ref, s.Amount),
			SubjectID:  s.ID,
			OccurredAt: occurred,
		})

		if s.Amount > highValue {
			out = append(out, alert.Candidate{
				Key:        alert.HighValueSaleKey(s.ID),
				Domain:     alert.DomainSale,
				Severity:   alert.SeverityWarning,
				Title:      "High Value Sale",
				Message:    fmt.Sprintf("High value sale completed: ₦%.2f (transaction %s)", s.Amount, ref),
				SubjectID:  s.ID,
				OccurredAt: occurred,
			})
		}
	}
	return out
}
