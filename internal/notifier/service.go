package notifier

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"pharmalert/internal/alert"
	"pharmalert/internal/eventbus"
	"pharmalert/pkg/logx"
)

// Service bridges the event bus to a Sender: bounded queue, token-bucket
// rate limit, drop-on-full. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	sender Sender

	cfg     Config
	minSev  int
	limiter *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus}
	if err := s.apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) apply(cfg Config) error {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	min := alert.ParseSeverity(cfg.MinSeverity, alert.SeverityCritical)

	var sender Sender
	if cfg.Enabled {
		sn, err := newTelegramSender(cfg.Telegram)
		if err != nil {
			return err
		}
		sender = sn
	}

	s.mu.Lock()
	s.cfg = cfg
	s.minSev = severityLevel(min)
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.sender = sender
	s.mu.Unlock()
	return nil
}

// Apply reconfigures the service in place. Errors keep the previous
// settings (a typo in the bot token must not silence a running notifier).
func (s *Service) Apply(cfg Config) error { return s.apply(cfg) }

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Start subscribes to the bus and launches the delivery worker.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil || s.bus == nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	queue := s.cfg.QueueSize
	s.mu.Unlock()

	events, unsub := s.bus.Subscribe(queue)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsub()
		s.worker(runCtx, events)
	}()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) worker(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != eventbus.TypeAlertCreated {
				continue
			}
			payload, ok := ev.Data.(eventbus.AlertEvent)
			if !ok {
				continue
			}
			s.deliver(ctx, payload.Alert)
		}
	}
}

func (s *Service) deliver(ctx context.Context, a alert.Alert) {
	s.mu.Lock()
	sender := s.sender
	enabled := s.cfg.Enabled
	minSev := s.minSev
	lim := s.limiter
	s.mu.Unlock()

	if !enabled || sender == nil {
		return
	}
	if severityLevel(a.Severity) < minSev {
		return
	}
	if !lim.Allow() {
		// Drop rather than queue: an alert storm must not turn into a
		// delayed message storm.
		s.log.Debug("outbound alert dropped by rate limit", logx.String("key", a.Key))
		return
	}

	if err := sender.SendText(ctx, formatAlert(a)); err != nil {
		s.log.Warn("outbound alert delivery failed", logx.String("key", a.Key), logx.Err(err))
		return
	}
	s.log.Debug("outbound alert delivered", logx.String("key", a.Key), logx.String("severity", string(a.Severity)))
}

func formatAlert(a alert.Alert) string {
	prefix := "ℹ️"
	switch a.Severity {
	case alert.SeverityCritical:
		prefix = "🚨"
	case alert.SeverityWarning:
		prefix = "⚠️"
	}
	return fmt.Sprintf("%s %s\n%s", prefix, a.Title, a.Message)
}
