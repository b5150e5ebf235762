package engine

import (
	"context"
	"sync"
	"time"

	"pharmalert/internal/alert"
	"pharmalert/internal/storage"
	"pharmalert/pkg/logx"
)

// Store is the lifecycle store: the single owner of the merged alert set.
//
// All mutation goes through here: the scheduler's merge apply and the
// user actions (mark read, delete). A mutex serializes them because the
// HTTP surface and the scheduler run on different goroutines.
//
// Persistence is best-effort: a failed backend write leaves the in-memory
// state authoritative for the session, marks the store dirty, and the next
// mutation resynchronizes the backend with a full replace.
type Store struct {
	mu  sync.Mutex
	log logx.Logger
	db  storage.Store // nil when persistence is disabled

	alerts map[string]alert.Alert
	dirty  bool
}

func NewStore(db storage.Store, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{log: log, db: db, alerts: map[string]alert.Alert{}}
}

// Load pulls the persisted alert set into memory. Call once at startup,
// before the first tick.
func (s *Store) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	list, err := s.db.LoadAlerts(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = make(map[string]alert.Alert, len(list))
	for _, a := range list {
		if a.Key != "" {
			s.alerts[a.Key] = a
		}
	}
	return nil
}

// Snapshot returns a copy of the current alert map for the merge step.
func (s *Store) Snapshot() map[string]alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]alert.Alert, len(s.alerts))
	for k, v := range s.alerts {
		cp[k] = v
	}
	return cp
}

// Reconcile merges one tick's candidates against the live alert set and
// applies the outcome inside the same critical section. Snapshotting,
// merging and applying under one lock hold means a concurrent user
// action (mark read, delete) can never land between a stale snapshot
// and a wholesale apply and be overwritten.
func (s *Store) Reconcile(ctx context.Context, candidates []alert.Candidate, now time.Time, retention time.Duration) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Merge(s.alerts, candidates, now, retention)
	s.applyLocked(ctx, res)
	return res
}

// ApplyMergeResult replaces the alert set with a precomputed merge
// outcome. The tick path goes through Reconcile; this is for callers
// that already hold a result.
func (s *Store) ApplyMergeResult(ctx context.Context, res MergeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(ctx, res)
}

func (s *Store) applyLocked(ctx context.Context, res MergeResult) {
	s.alerts = make(map[string]alert.Alert, len(res.Next))
	for k, v := range res.Next {
		s.alerts[k] = v
	}

	upserts := make([]alert.Alert, 0, len(res.Next))
	for _, a := range res.Next {
		upserts = append(upserts, a)
	}
	s.persistLocked(ctx, upserts, res.Retired)
}

// MarkRead flags one alert as read. Absent keys are a no-op; the call is
// idempotent either way.
func (s *Store) MarkRead(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[key]
	if !ok {
		return false
	}
	if a.IsRead {
		return true
	}
	a.IsRead = true
	s.alerts[key] = a
	s.persistLocked(ctx, []alert.Alert{a}, nil)
	return true
}

// MarkAllRead flags every alert as read and reports how many changed.
func (s *Store) MarkAllRead(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []alert.Alert
	for k, a := range s.alerts {
		if a.IsRead {
			continue
		}
		a.IsRead = true
		s.alerts[k] = a
		changed = append(changed, a)
	}
	if len(changed) > 0 {
		s.persistLocked(ctx, changed, nil)
	}
	return len(changed)
}

// Delete removes an alert permanently. Deleting an absent key is a no-op,
// not an error.
//
// Deletion suppresses display, not the underlying condition: a later tick
// whose candidate set still contains the key re-materializes the alert as
// unread. Callers that want alerts gone for good must resolve the
// condition itself (restock, discard expired stock, ...).
func (s *Store) Delete(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[key]; !ok {
		return false
	}
	delete(s.alerts, key)
	s.persistLocked(ctx, nil, []string{key})
	return true
}

// SweepRetention drops sale/system alerts older than maxAge regardless of
// read state. Condition-mirror domains are untouched: the merge already
// retires those the instant their condition clears.
func (s *Store) SweepRetention(ctx context.Context, now time.Time, maxAge time.Duration) []string {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for k, a := range s.alerts {
		if !a.Domain.Retainable() {
			continue
		}
		if now.Sub(factTime(a)) >= maxAge {
			delete(s.alerts, k)
			removed = append(removed, k)
		}
	}
	if len(removed) > 0 {
		s.persistLocked(ctx, nil, removed)
	}
	return removed
}

// Ordered returns the alert set ranked for display, most urgent first.
func (s *Store) Ordered() []alert.Alert {
	s.mu.Lock()
	list := make([]alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		list = append(list, a)
	}
	s.mu.Unlock()

	alert.SortByPriority(list)
	return list
}

// Get looks up one alert by identity key.
func (s *Store) Get(key string) (alert.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[key]
	return a, ok
}

// UnreadCount is recomputed on every call rather than maintained as a
// counter, so it cannot drift from the map.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if !a.IsRead {
			n++
		}
	}
	return n
}

// Len reports the current number of alerts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// persistLocked mirrors the in-memory change to the backend. Failures are
// logged and deferred: the store turns dirty and the next successful call
// rewrites the full set.
func (s *Store) persistLocked(ctx context.Context, upserts []alert.Alert, deletes []string) {
	if s.db == nil {
		return
	}

	if s.dirty {
		full := make([]alert.Alert, 0, len(s.alerts))
		for _, a := range s.alerts {
			full = append(full, a)
		}
		if err := s.db.ReplaceAll(ctx, full); err != nil {
			s.log.Warn("alert store resync failed; will retry", logx.Err(err), logx.Int("alerts", len(full)))
			return
		}
		s.dirty = false
		s.log.Info("alert store resynchronized", logx.Int("alerts", len(full)))
		return
	}

	if err := s.db.UpsertAlerts(ctx, upserts); err != nil {
		s.log.Warn("alert upsert failed; store marked dirty", logx.Err(err), logx.Int("count", len(upserts)))
		s.dirty = true
		return
	}
	if err := s.db.DeleteAlerts(ctx, deletes); err != nil {
		s.log.Warn("alert delete failed; store marked dirty", logx.Err(err), logx.Int("count", len(deletes)))
		s.dirty = true
	}
}
