package rules

import (
	"testing"
	"time"

	"pharmalert/internal/alert"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestEvaluateStock(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Products: []ProductState{
		{ID: "1", Name: "Paracetamol 500mg", Quantity: 0, ReorderThreshold: 10},
		{ID: "2", Name: "Amoxicillin 250mg", Quantity: 4, ReorderThreshold: 10},
		{ID: "3", Name: "Vitamin C", Quantity: 50, ReorderThreshold: 10},
		{ID: "4", Name: "Ibuprofen", Quantity: -2, ReorderThreshold: 5},
	}}

	got := EvaluateStock(snap, testNow)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}

	byKey := map[string]alert.Candidate{}
	for _, c := range got {
		byKey[c.Key] = c
	}

	out := byKey[alert.StockKey("1")]
	if out.Severity != alert.SeverityCritical || out.Title != "Out of Stock" {
		t.Fatalf("unexpected out-of-stock candidate: %+v", out)
	}
	if out.Message != "Paracetamol 500mg is out of stock" {
		t.Fatalf("unexpected message: %q", out.Message)
	}

	low := byKey[alert.StockKey("2")]
	if low.Severity != alert.SeverityWarning || low.Title != "Low Stock Alert" {
		t.Fatalf("unexpected low-stock candidate: %+v", low)
	}
	if low.Message != "Amoxicillin 250mg has only 4 units remaining (minimum: 10)" {
		t.Fatalf("unexpected message: %q", low.Message)
	}

	neg := byKey[alert.StockKey("4")]
	if neg.Severity != alert.SeverityCritical {
		t.Fatalf("negative quantity should be critical, got %s", neg.Severity)
	}
}

func TestEvaluateStockBoundary(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Products: []ProductState{
		{ID: "1", Name: "At threshold", Quantity: 10, ReorderThreshold: 10},
		{ID: "2", Name: "Just above", Quantity: 11, ReorderThreshold: 10},
	}}

	got := EvaluateStock(snap, testNow)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Key != alert.StockKey("1") {
		t.Fatalf("quantity equal to threshold should alert, got %s", got[0].Key)
	}
}

func TestEvaluateStockNoThreshold(t *testing.T) {
	t.Parallel()
	// Without a configured minimum, only full depletion alerts.
	snap := Snapshot{Products: []ProductState{
		{ID: "1", Name: "No minimum", Quantity: 1},
		{ID: "2", Name: "Depleted", Quantity: 0},
	}}

	got := EvaluateStock(snap, testNow)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Key != alert.StockKey("2") || got[0].Severity != alert.SeverityCritical {
		t.Fatalf("unexpected candidate: %+v", got[0])
	}
}

func TestEvaluateStockSkipsMalformed(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Products: []ProductState{
		{Name: "No id", Quantity: 0, ReorderThreshold: 5},
		{ID: "2", Name: "Fine", Quantity: 0, ReorderThreshold: 5},
	}}

	got := EvaluateStock(snap, testNow)
	if len(got) != 1 || got[0].Key != alert.StockKey("2") {
		t.Fatalf("malformed record should be skipped, got %+v", got)
	}
}
