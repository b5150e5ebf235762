package storage

import (
	"context"
	"errors"
	"time"

	"pharmalert/internal/alert"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default when a path is set)
//   - "file": dependency-free file backend (jsonl + snapshot)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the lifecycle store.
//
// Implementations must treat UpsertAlerts/DeleteAlerts as idempotent:
// the engine retries failed writes on the next mutation.
type Store interface {
	LoadAlerts(ctx context.Context) ([]alert.Alert, error)
	UpsertAlerts(ctx context.Context, alerts []alert.Alert) error
	DeleteAlerts(ctx context.Context, keys []string) error
	// ReplaceAll atomically swaps the stored set for the given one. The
	// engine uses it to resynchronize after a failed incremental write.
	ReplaceAll(ctx context.Context, alerts []alert.Alert) error
	Close() error
}
