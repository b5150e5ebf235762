package rules

import "time"

// Snapshot is the bounded view of business state one evaluation tick
// works on. It is supplied per tick by a snapshot provider and never
// mutated by the evaluators.
type Snapshot struct {
	Products []ProductState
	Sales    []SaleState
	Events   []SystemEvent
}

// ProductState is the inventory slice an evaluator needs.
//
// ReorderThreshold is zero when the product has no configured minimum, so
// only a fully depleted quantity triggers the stock rule. ExpiryDate is
// nil for products without one (non-perishables).
type ProductState struct {
	ID               string
	Name             string
	Quantity         int
	ReorderThreshold int
	ExpiryDate       *time.Time
}

// SaleState is one recent transaction. Reference is the human-facing
// transaction number printed on the receipt.
type SaleState struct {
	ID         string
	Reference  string
	Amount     float64
	OccurredAt time.Time
}

// SystemEvent is a static, operator-facing event (backup completed,
// license expiring, ...). Slug must be stable across ticks: it becomes
// the alert identity, so repeated ticks refresh rather than duplicate.
type SystemEvent struct {
	Slug     string
	Severity string
	Title    string
	Message  string
}
