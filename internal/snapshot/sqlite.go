package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"pharmalert/internal/rules"
	"pharmalert/pkg/logx"
)

// Config configures the sqlite-backed provider.
type Config struct {
	// Path is the pharmacy database file (products and sales tables).
	Path        string
	BusyTimeout time.Duration

	// Events is the static system event list surfaced on every tick.
	Events []rules.SystemEvent
}

// SQLiteProvider reads the pharmacy POS database. It is read-only: the
// alert engine never writes business data.
type SQLiteProvider struct {
	db  *sql.DB
	log logx.Logger

	mu     sync.Mutex
	events []rules.SystemEvent
}

func OpenSQLite(cfg Config, log logx.Logger) (*SQLiteProvider, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("snapshot database path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA query_only = ON")

	return &SQLiteProvider{db: db, log: log, events: cfg.Events}, nil
}

func (p *SQLiteProvider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *SQLiteProvider) Products(ctx context.Context) ([]rules.ProductState, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, COALESCE(name, ''), COALESCE(quantity, 0), COALESCE(min_stock_level, 0), expiry_date
		 FROM products`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.ProductState
	for rows.Next() {
		var (
			ps     rules.ProductState
			id     sql.NullString
			expiry sql.NullString
		)
		if err := rows.Scan(&id, &ps.Name, &ps.Quantity, &ps.ReorderThreshold, &expiry); err != nil {
			return nil, err
		}
		ps.ID = id.String
		if expiry.Valid {
			if t, ok := parseDate(expiry.String); ok {
				ps.ExpiryDate = &t
			}
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (p *SQLiteProvider) RecentSales(ctx context.Context, n int) ([]rules.SaleState, error) {
	if n <= 0 {
		n = rules.DefaultRecentSales
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, COALESCE(transaction_number, ''), COALESCE(total_amount, 0), created_at
		 FROM sales
		 ORDER BY created_at DESC
		 LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.SaleState
	for rows.Next() {
		var (
			ss rules.SaleState
			id sql.NullString
			at sql.NullString
		)
		if err := rows.Scan(&id, &ss.Reference, &ss.Amount, &at); err != nil {
			return nil, err
		}
		ss.ID = id.String
		if at.Valid {
			if t, ok := parseDate(at.String); ok {
				ss.OccurredAt = t
			}
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

func (p *SQLiteProvider) SystemEvents(ctx context.Context) ([]rules.SystemEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]rules.SystemEvent, len(p.events))
	copy(out, p.events)
	return out, nil
}

// SetEvents swaps the static event list on config reload.
func (p *SQLiteProvider) SetEvents(events []rules.SystemEvent) {
	p.mu.Lock()
	p.events = append([]rules.SystemEvent(nil), events...)
	p.mu.Unlock()
}

// parseDate accepts the timestamp shapes found in the POS database:
// RFC3339 (with or without sub-seconds) and bare dates.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
