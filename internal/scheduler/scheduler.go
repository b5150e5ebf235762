// Package scheduler drives the evaluate → merge → apply pipeline on a
// fixed interval, with single-flight protection so two ticks can never
// mutate the lifecycle store concurrently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"pharmalert/internal/engine"
	"pharmalert/internal/eventbus"
	"pharmalert/internal/rules"
	"pharmalert/internal/snapshot"
	"pharmalert/pkg/logx"
)

var (
	// ErrBusy means a tick was dropped because one is already in flight.
	// Triggers are dropped, never queued.
	ErrBusy = errors.New("evaluation already in flight")
	// ErrThrottled means a manual refresh exceeded the refresh rate limit.
	ErrThrottled = errors.New("refresh throttled")
)

// FetchError wraps a transient snapshot-provider failure. The tick it
// aborted left the lifecycle store untouched; the next tick retries.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "snapshot fetch failed: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Config controls the tick loop.
type Config struct {
	// Interval between evaluation ticks. Default 5 minutes.
	Interval time.Duration
	// FetchTimeout bounds the snapshot fetch step; the rest of the
	// pipeline never suspends. Default 30 seconds.
	FetchTimeout time.Duration
	// Retention is the max age of sale/system alerts. Default 30 days.
	Retention time.Duration
	// RefreshPerMinute throttles user-initiated RefreshNow calls.
	// Default 6.
	RefreshPerMinute int

	Rules rules.Config
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = engine.DefaultRetention
	}
	if c.RefreshPerMinute <= 0 {
		c.RefreshPerMinute = 6
	}
	return c
}

// Service owns the periodic evaluation lifecycle. Tests drive ticks
// manually through Tick instead of waiting on wall-clock timers.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	provider snapshot.Provider
	store    *engine.Store
	bus      eventbus.Bus

	c       *cron.Cron
	entry   cron.EntryID
	limiter *rate.Limiter

	// busy is the single-flight guard: one tick at a time, overlapping
	// triggers are dropped.
	busy atomic.Bool

	// nowFn is swappable in tests.
	nowFn func() time.Time
}

func New(cfg Config, provider snapshot.Provider, store *engine.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:      cfg,
		log:      log,
		provider: provider,
		store:    store,
		bus:      bus,
		limiter:  newRefreshLimiter(cfg.RefreshPerMinute),
		nowFn:    time.Now,
	}
}

func newRefreshLimiter(perMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}

// Start launches the cron loop and runs one tick immediately so the UI
// has alerts right after startup instead of waiting a full interval.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New()
	id, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), func() {
		if err := s.Tick(ctx); err != nil {
			// Overlap drops and fetch failures are already logged with
			// context inside Tick.
			return
		}
	})
	if err != nil {
		return err
	}
	s.c = c
	s.entry = id
	c.Start()

	go func() {
		if err := s.Tick(ctx); err != nil && !errors.Is(err, ErrBusy) {
			s.log.Warn("initial evaluation failed; next tick retries", logx.Err(err))
		}
	}()

	s.log.Info("scheduler started", logx.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop halts the timer and waits (bounded by ctx) for an in-flight tick
// to finish.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Apply updates the tick configuration. A changed interval reschedules
// the cron entry; an in-flight tick finishes under the old settings.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	intervalChanged := cfg.Interval != s.cfg.Interval
	if cfg.RefreshPerMinute != s.cfg.RefreshPerMinute {
		s.limiter = newRefreshLimiter(cfg.RefreshPerMinute)
	}
	s.cfg = cfg

	if intervalChanged && s.c != nil {
		s.c.Remove(s.entry)
		id, err := s.c.AddFunc(fmt.Sprintf("@every %s", cfg.Interval), func() {
			_ = s.Tick(context.Background())
		})
		if err != nil {
			s.log.Error("failed to reschedule evaluation", logx.Err(err))
			return
		}
		s.entry = id
		s.log.Info("evaluation interval updated", logx.Duration("interval", cfg.Interval))
	}
}

// RefreshNow is the user-initiated trigger. It is coalesced with the
// timer: if a tick is in flight the call is dropped with ErrBusy rather
// than starting a second concurrent run, and repeated calls are
// rate-limited.
func (s *Service) RefreshNow(ctx context.Context) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()

	if !lim.Allow() {
		return ErrThrottled
	}
	return s.Tick(ctx)
}

// Tick runs one complete evaluate → merge → apply cycle.
//
// A failed snapshot fetch aborts the tick without touching the lifecycle
// store; the error is logged and surfaced as *FetchError, never as an
// alert. Panics in evaluators are contained the same way.
func (s *Service) Tick(ctx context.Context) (err error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Debug("evaluation tick dropped; previous run still in flight")
		return ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	runID := uuid.NewString()
	started := s.nowFn()
	log := s.log.With(logx.String("run_id", runID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during evaluation tick", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("evaluation panic: %v", r)
			s.publish(eventbus.TypeTickFailed, eventbus.TickEvent{
				RunID: runID, Started: started, Duration: time.Since(started), Error: err.Error(),
			})
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	snap, ferr := snapshot.Fetch(fetchCtx, s.provider, cfg.Rules.RecentSales)
	cancel()
	if ferr != nil {
		log.Warn("snapshot fetch failed; tick aborted", logx.Err(ferr))
		s.publish(eventbus.TypeTickFailed, eventbus.TickEvent{
			RunID: runID, Started: started, Duration: time.Since(started), Error: ferr.Error(),
		})
		return &FetchError{Err: ferr}
	}

	now := s.nowFn()
	candidates := rules.Evaluate(snap, now, cfg.Rules)
	res := s.store.Reconcile(ctx, candidates, now, cfg.Retention)
	swept := s.store.SweepRetention(ctx, now, cfg.Retention)

	for _, a := range res.Created {
		s.publish(eventbus.TypeAlertCreated, eventbus.AlertEvent{Key: a.Key, Alert: a})
	}
	for _, key := range res.Retired {
		s.publish(eventbus.TypeAlertRetired, eventbus.AlertEvent{Key: key})
	}

	dur := time.Since(started)
	s.publish(eventbus.TypeTickCompleted, eventbus.TickEvent{
		RunID: runID, Started: started, Duration: dur,
		Created: len(res.Created), Retired: len(res.Retired) + len(swept),
	})
	log.Debug("evaluation tick completed",
		logx.Int("candidates", len(candidates)),
		logx.Int("created", len(res.Created)),
		logx.Int("retired", len(res.Retired)),
		logx.Int("swept", len(swept)),
		logx.Int("alerts", s.store.Len()),
		logx.Duration("dur", dur))
	return nil
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
