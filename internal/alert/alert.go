package alert

import (
	"strings"
	"time"
)

// Domain tags the business area an alert belongs to.
//
// The domain is set once at candidate creation and never re-derived from
// the identity key at read time. "expired" is deliberately a separate
// domain from "expiry": an expired product and a soon-to-expire product
// are different conditions with different urgency.
type Domain string

const (
	DomainStock   Domain = "stock"
	DomainExpiry  Domain = "expiry"
	DomainExpired Domain = "expired"
	DomainSale    Domain = "sale"
	DomainSystem  Domain = "system"
)

// Severity is the display tier of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
)

// Candidate is an ephemeral alert proposal produced by a rule evaluator
// for one evaluation tick. It has not been reconciled against previously
// persisted alerts yet.
type Candidate struct {
	// Key is the stable identity of the underlying condition. It is
	// derived only from the domain and the subject id, never from
	// generated text, so the same condition always re-resolves to the
	// same key across ticks.
	Key      string
	Domain   Domain
	Severity Severity
	Title    string
	Message  string

	// OccurredAt is the business timestamp: the sale time for sale
	// candidates, the evaluation time for condition candidates.
	OccurredAt time.Time

	SubjectID string

	// DaysUntilExpiry is meaningful for DomainExpiry only.
	DaysUntilExpiry int
}

// Alert is the persistent entity owned by the lifecycle store.
//
// CreatedAt is the first-seen timestamp and is never changed by later
// merges, even when title/message text is refreshed.
type Alert struct {
	Key      string   `json:"key"`
	Domain   Domain   `json:"domain"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`

	IsRead bool `json:"is_read"`

	SubjectID       string `json:"subject_id,omitempty"`
	DaysUntilExpiry int    `json:"days_until_expiry,omitempty"`
}

// Identity key constructors. Keep the wire shapes in one place.

func StockKey(productID string) string   { return string(DomainStock) + ":" + productID }
func ExpiryKey(productID string) string  { return string(DomainExpiry) + ":" + productID }
func ExpiredKey(productID string) string { return string(DomainExpired) + ":" + productID }
func SaleKey(saleID string) string       { return string(DomainSale) + ":" + saleID }
func SystemKey(slug string) string       { return string(DomainSystem) + ":" + slug }

// HighValueSaleKey separates the high-value notice from the regular sale
// notice for the same transaction, so both can coexist.
func HighValueSaleKey(saleID string) string { return "sale-high:" + saleID }

// ParseSeverity maps free-form config/storage input to a Severity,
// falling back to the given default.
func ParseSeverity(s string, def Severity) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityWarning:
		return SeverityWarning
	case SeverityInfo:
		return SeverityInfo
	case SeveritySuccess:
		return SeveritySuccess
	default:
		return def
	}
}

// Retainable reports whether alerts in this domain are retention-aged
// facts (kept for a fixed window after the triggering event) rather than
// condition-mirrors (removed the instant the condition clears).
//
// A completed sale is a fact, not a condition: it should not vanish the
// moment it drops out of the "recent N" window.
func (d Domain) Retainable() bool {
	return d == DomainSale || d == DomainSystem
}
