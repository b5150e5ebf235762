package rules

import (
	"testing"
	"time"

	"pharmalert/internal/alert"
)

func dateP(t time.Time) *time.Time { return &t }

func TestEvaluateExpiryBranches(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Products: []ProductState{
		{ID: "1", Name: "Expired drug", ExpiryDate: dateP(testNow.AddDate(0, 0, -3))},
		{ID: "2", Name: "Imminent", ExpiryDate: dateP(testNow.AddDate(0, 0, 5))},
		{ID: "3", Name: "Within horizon", ExpiryDate: dateP(testNow.AddDate(0, 0, 20))},
		{ID: "4", Name: "Beyond horizon", ExpiryDate: dateP(testNow.AddDate(0, 0, 45))},
		{ID: "5", Name: "Non-perishable"},
	}}

	got := EvaluateExpiry(snap, testNow, 30)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}

	byKey := map[string]alert.Candidate{}
	for _, c := range got {
		byKey[c.Key] = c
	}

	expired := byKey[alert.ExpiredKey("1")]
	if expired.Domain != alert.DomainExpired || expired.Severity != alert.SeverityCritical {
		t.Fatalf("unexpected expired candidate: %+v", expired)
	}
	if expired.Title != "Product Expired" {
		t.Fatalf("unexpected title: %q", expired.Title)
	}
	if want := "Expired drug has expired on May 29, 2024"; expired.Message != want {
		t.Fatalf("message = %q, want %q", expired.Message, want)
	}
	if !expired.OccurredAt.Equal(testNow) {
		t.Fatalf("expired OccurredAt should be the evaluation time, got %v", expired.OccurredAt)
	}

	soon := byKey[alert.ExpiryKey("2")]
	if soon.Severity != alert.SeverityCritical || soon.Title != "Product Expiring Soon" {
		t.Fatalf("unexpected imminent candidate: %+v", soon)
	}
	if soon.DaysUntilExpiry != 5 {
		t.Fatalf("DaysUntilExpiry = %d, want 5", soon.DaysUntilExpiry)
	}

	later := byKey[alert.ExpiryKey("3")]
	if later.Severity != alert.SeverityWarning || later.Title != "Product Expiry Warning" {
		t.Fatalf("unexpected horizon candidate: %+v", later)
	}
}

func TestEvaluateExpiryMutualExclusion(t *testing.T) {
	t.Parallel()
	// One product must never carry both an expiry and an expired key in
	// the same tick, whichever side of "now" its date falls on.
	for _, offset := range []time.Duration{-time.Hour, time.Hour, 0} {
		snap := Snapshot{Products: []ProductState{
			{ID: "1", Name: "Edge", ExpiryDate: dateP(testNow.Add(offset))},
		}}
		got := EvaluateExpiry(snap, testNow, 30)
		if len(got) != 1 {
			t.Fatalf("offset %v: expected exactly 1 candidate, got %d", offset, len(got))
		}
	}
}

func TestEvaluateExpiryDayRounding(t *testing.T) {
	t.Parallel()
	// 4.2 days away rounds up to 5.
	exp := testNow.Add(4*24*time.Hour + 5*time.Hour)
	snap := Snapshot{Products: []ProductState{{ID: "1", Name: "P", ExpiryDate: &exp}}}

	got := EvaluateExpiry(snap, testNow, 30)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].DaysUntilExpiry != 5 {
		t.Fatalf("DaysUntilExpiry = %d, want 5", got[0].DaysUntilExpiry)
	}
}

func TestEvaluateExpiryCriticalCutoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		days int
		want alert.Severity
	}{
		{days: 7, want: alert.SeverityCritical},
		{days: 8, want: alert.SeverityWarning},
	}
	for _, tt := range tests {
		snap := Snapshot{Products: []ProductState{
			{ID: "1", Name: "P", ExpiryDate: dateP(testNow.AddDate(0, 0, tt.days))},
		}}
		got := EvaluateExpiry(snap, testNow, 30)
		if len(got) != 1 || got[0].Severity != tt.want {
			t.Fatalf("days=%d: got %+v, want severity %s", tt.days, got, tt.want)
		}
	}
}

func TestEvaluateExpirySingularDay(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Products: []ProductState{
		{ID: "1", Name: "P", ExpiryDate: dateP(testNow.Add(20 * time.Hour))},
	}}
	got := EvaluateExpiry(snap, testNow, 30)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if want := "P expires in 1 day"; got[0].Message != want {
		t.Fatalf("message = %q, want %q", got[0].Message, want)
	}
}
