package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"pharmalert/internal/alert"
	"pharmalert/internal/eventbus"
	"pharmalert/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendText(ctx context.Context, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// enable swaps in a fake sender without going through the Telegram
// client, which validates tokens against the live API.
func enable(s *Service, sender Sender, minSev alert.Severity, perSec int) {
	s.mu.Lock()
	s.cfg.Enabled = true
	s.sender = sender
	s.minSev = severityLevel(minSev)
	s.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	s.mu.Unlock()
}

func TestDeliverFiltersSeverity(t *testing.T) {
	t.Parallel()
	s, err := New(Config{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fake := &fakeSender{}
	enable(s, fake, alert.SeverityCritical, 100)

	ctx := context.Background()
	s.deliver(ctx, alert.Alert{Key: "stock:1", Severity: alert.SeverityCritical, Title: "Out of Stock", Message: "gone"})
	s.deliver(ctx, alert.Alert{Key: "stock:2", Severity: alert.SeverityWarning, Title: "Low Stock Alert", Message: "low"})
	s.deliver(ctx, alert.Alert{Key: "sale:3", Severity: alert.SeverityInfo, Title: "Sale Completed", Message: "txn"})

	got := fake.messages()
	if len(got) != 1 {
		t.Fatalf("sent %d messages, want 1: %v", len(got), got)
	}
	if want := "🚨 Out of Stock\ngone"; got[0] != want {
		t.Fatalf("message = %q, want %q", got[0], want)
	}
}

func TestDeliverRateLimitDrops(t *testing.T) {
	t.Parallel()
	s, err := New(Config{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fake := &fakeSender{}
	enable(s, fake, alert.SeverityCritical, 1)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.deliver(ctx, alert.Alert{Key: "stock:1", Severity: alert.SeverityCritical, Title: "Out of Stock"})
	}
	if got := len(fake.messages()); got != 1 {
		t.Fatalf("rate limit should drop the burst, sent %d", got)
	}
}

func TestDeliverDisabled(t *testing.T) {
	t.Parallel()
	s, err := New(Config{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.deliver(context.Background(), alert.Alert{Key: "stock:1", Severity: alert.SeverityCritical})
	// No sender, no panic. Enabled() must also report false.
	if s.Enabled() {
		t.Fatal("service without a sender must report disabled")
	}
}

func TestWorkerForwardsCreatedAlerts(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	s, err := New(Config{}, bus, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fake := &fakeSender{}
	enable(s, fake, alert.SeverityCritical, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	bus.Publish(eventbus.Event{Type: eventbus.TypeAlertCreated, Data: eventbus.AlertEvent{
		Key:   "stock:1",
		Alert: alert.Alert{Key: "stock:1", Severity: alert.SeverityCritical, Title: "Out of Stock", Message: "gone"},
	}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeAlertRetired, Data: eventbus.AlertEvent{Key: "stock:2"}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeTickCompleted, Data: eventbus.TickEvent{RunID: "r"}})

	deadline := time.After(2 * time.Second)
	for len(fake.messages()) == 0 {
		select {
		case <-deadline:
			t.Fatal("created alert never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := fake.messages(); len(got) != 1 {
		t.Fatalf("only created events should deliver, got %v", got)
	}
}

func TestFormatAlertPrefixes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sev  alert.Severity
		want string
	}{
		{alert.SeverityCritical, "🚨"},
		{alert.SeverityWarning, "⚠️"},
		{alert.SeverityInfo, "ℹ️"},
		{alert.SeveritySuccess, "ℹ️"},
	}
	for _, tt := range tests {
		got := formatAlert(alert.Alert{Severity: tt.sev, Title: "T", Message: "M"})
		if got[:len(tt.want)] != tt.want {
			t.Fatalf("severity %s: got %q", tt.sev, got)
		}
	}
}

func TestApplyRejectsBadConfig(t *testing.T) {
	t.Parallel()
	s, err := New(Config{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Apply(Config{Enabled: true}); err == nil {
		t.Fatal("enabling without a token must fail")
	}
}
