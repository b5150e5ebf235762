// Package snapshot supplies the per-tick view of business state the rule
// evaluators run against.
package snapshot

import (
	"context"

	"pharmalert/internal/rules"
)

// Provider is the data-access collaborator. Implementations may fail with
// transient I/O errors; the scheduler treats any error as "abort this
// tick, retry on the next one".
type Provider interface {
	Products(ctx context.Context) ([]rules.ProductState, error)
	RecentSales(ctx context.Context, n int) ([]rules.SaleState, error)
	SystemEvents(ctx context.Context) ([]rules.SystemEvent, error)
}

// Fetch assembles a full snapshot from a provider. It fails on the first
// error so a half-fetched snapshot never reaches the evaluators.
func Fetch(ctx context.Context, p Provider, recentSales int) (rules.Snapshot, error) {
	products, err := p.Products(ctx)
	if err != nil {
		return rules.Snapshot{}, err
	}
	sales, err := p.RecentSales(ctx, recentSales)
	if err != nil {
		return rules.Snapshot{}, err
	}
	events, err := p.SystemEvents(ctx)
	if err != nil {
		return rules.Snapshot{}, err
	}
	return rules.Snapshot{Products: products, Sales: sales, Events: events}, nil
}
