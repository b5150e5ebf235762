package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pharmalert/internal/alert"
	"pharmalert/internal/engine"
	"pharmalert/internal/eventbus"
	"pharmalert/internal/rules"
	"pharmalert/pkg/logx"
)

// fakeProvider serves a fixed snapshot. fetches counts Products calls
// (one per tick); block, when set, holds the fetch open until released.
type fakeProvider struct {
	mu       sync.Mutex
	products []rules.ProductState
	sales    []rules.SaleState
	err      error

	fetches atomic.Int32
	block   chan struct{}
}

func (f *fakeProvider) Products(ctx context.Context) ([]rules.ProductState, error) {
	f.fetches.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func (f *fakeProvider) RecentSales(ctx context.Context, n int) ([]rules.SaleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.sales) {
		return f.sales[:n], nil
	}
	return f.sales, nil
}

func (f *fakeProvider) SystemEvents(ctx context.Context) ([]rules.SystemEvent, error) {
	return nil, nil
}

func newTestService(p *fakeProvider, bus eventbus.Bus) (*Service, *engine.Store) {
	store := engine.NewStore(nil, logx.Nop())
	svc := New(Config{}, p, store, bus, logx.Nop())
	return svc, store
}

func TestTickPipeline(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{
		products: []rules.ProductState{{ID: "1", Name: "Depleted", Quantity: 0, ReorderThreshold: 5}},
		sales:    []rules.SaleState{{ID: "7", Reference: "TXN-7", Amount: 500, OccurredAt: time.Now()}},
	}
	svc, store := newTestService(p, nil)

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, ok := store.Get(alert.StockKey("1")); !ok {
		t.Fatal("stock alert missing after tick")
	}
	if _, ok := store.Get(alert.SaleKey("7")); !ok {
		t.Fatal("sale alert missing after tick")
	}
}

func TestTickSingleFlight(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{block: make(chan struct{})}
	svc, _ := newTestService(p, nil)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- svc.Tick(context.Background())
	}()
	<-started
	// Wait until the first tick is actually inside the fetch.
	for p.fetches.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Overlapping triggers are dropped, not queued.
	for i := 0; i < 3; i++ {
		if err := svc.Tick(context.Background()); !errors.Is(err, ErrBusy) {
			t.Fatalf("overlapping tick = %v, want ErrBusy", err)
		}
	}

	close(p.block)
	if err := <-done; err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if got := p.fetches.Load(); got != 1 {
		t.Fatalf("fetches = %d, want exactly 1", got)
	}

	// After completion the guard is released.
	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("post-completion tick: %v", err)
	}
}

func TestTickFetchFailureLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{
		products: []rules.ProductState{{ID: "1", Name: "Depleted", Quantity: 0, ReorderThreshold: 5}},
	}
	svc, store := newTestService(p, nil)

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	before := store.Ordered()

	p.mu.Lock()
	p.err = errors.New("database locked")
	p.mu.Unlock()

	err := svc.Tick(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}

	after := store.Ordered()
	if len(after) != len(before) {
		t.Fatalf("failed fetch changed the store: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i].Key != before[i].Key {
			t.Fatalf("alert set changed at %d: %s vs %s", i, before[i].Key, after[i].Key)
		}
	}
}

func TestTickPublishesEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	p := &fakeProvider{
		products: []rules.ProductState{{ID: "1", Name: "Depleted", Quantity: 0, ReorderThreshold: 5}},
	}
	svc, _ := newTestService(p, bus)

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	var sawCreated, sawCompleted bool
	timeout := time.After(2 * time.Second)
	for !(sawCreated && sawCompleted) {
		select {
		case e := <-events:
			switch e.Type {
			case eventbus.TypeAlertCreated:
				ae := e.Data.(eventbus.AlertEvent)
				if ae.Key != alert.StockKey("1") {
					t.Fatalf("created key = %s", ae.Key)
				}
				sawCreated = true
			case eventbus.TypeTickCompleted:
				te := e.Data.(eventbus.TickEvent)
				if te.RunID == "" || te.Created == 0 {
					t.Fatalf("unexpected tick event: %+v", te)
				}
				sawCompleted = true
			}
		case <-timeout:
			t.Fatalf("missing events: created=%v completed=%v", sawCreated, sawCompleted)
		}
	}
}

func TestRefreshNowThrottled(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{}
	store := engine.NewStore(nil, logx.Nop())
	svc := New(Config{RefreshPerMinute: 2}, p, store, nil, logx.Nop())

	ctx := context.Background()
	if err := svc.RefreshNow(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := svc.RefreshNow(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if err := svc.RefreshNow(ctx); !errors.Is(err, ErrThrottled) {
		t.Fatalf("third refresh = %v, want ErrThrottled", err)
	}
}

func TestTickRetiresClearedCondition(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{
		products: []rules.ProductState{{ID: "1", Name: "Depleted", Quantity: 0, ReorderThreshold: 5}},
	}
	svc, store := newTestService(p, nil)
	ctx := context.Background()

	if err := svc.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, ok := store.Get(alert.StockKey("1")); !ok {
		t.Fatal("stock alert missing")
	}

	// Restocked: the condition clears and the alert goes with it.
	p.mu.Lock()
	p.products = []rules.ProductState{{ID: "1", Name: "Restocked", Quantity: 50, ReorderThreshold: 5}}
	p.mu.Unlock()

	if err := svc.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, ok := store.Get(alert.StockKey("1")); ok {
		t.Fatal("cleared condition should retire its alert")
	}
}
