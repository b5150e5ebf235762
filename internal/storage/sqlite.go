package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pharmalert/internal/alert"
	"pharmalert/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAlerts(ctx context.Context) ([]alert.Alert, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, domain, severity, title, message, occurred_at, created_at, is_read, subject_id, days_until_expiry
		 FROM alerts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var (
			a                 alert.Alert
			occurred, created string
			isRead            int
			subject           sql.NullString
			domainRaw, sevRaw string
		)
		if err := rows.Scan(&a.Key, &domainRaw, &sevRaw, &a.Title, &a.Message, &occurred, &created, &isRead, &subject, &a.DaysUntilExpiry); err != nil {
			return nil, err
		}
		a.Domain = alert.Domain(domainRaw)
		a.Severity = alert.Severity(sevRaw)
		a.IsRead = isRead != 0
		a.SubjectID = subject.String
		if t, err := time.Parse(time.RFC3339Nano, occurred); err == nil {
			a.OccurredAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			a.CreatedAt = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertAlerts(ctx context.Context, alerts []alert.Alert) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range alerts {
		if err := upsertOne(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertOne(ctx context.Context, tx *sql.Tx, a alert.Alert) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO alerts(key, domain, severity, title, message, occurred_at, created_at, is_read, subject_id, days_until_expiry)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET
		   domain=excluded.domain,
		   severity=excluded.severity,
		   title=excluded.title,
		   message=excluded.message,
		   occurred_at=excluded.occurred_at,
		   is_read=excluded.is_read,
		   subject_id=excluded.subject_id,
		   days_until_expiry=excluded.days_until_expiry`,
		a.Key, string(a.Domain), string(a.Severity), a.Title, a.Message,
		a.OccurredAt.Format(time.RFC3339Nano), a.CreatedAt.Format(time.RFC3339Nano),
		boolInt(a.IsRead), nullStr(a.SubjectID), a.DaysUntilExpiry,
	)
	return err
}

func (s *sqliteStore) DeleteAlerts(ctx context.Context, keys []string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM alerts WHERE key = ?`, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ReplaceAll(ctx context.Context, alerts []alert.Alert) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alerts`); err != nil {
		return err
	}
	for _, a := range alerts {
		if err := upsertOne(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
