package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pharmalert/internal/alert"
	"pharmalert/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.alerts.snapshot.json (periodic full snapshot)
//   - <prefix>.alerts.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot after a bounded number of
// writes, so restarts replay a short tail at most.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalPath  string
	journal      *os.File

	alerts map[string]alert.Alert

	writes int
}

const compactEvery = 64

type journalRecord struct {
	Op    string       `json:"op"` // "upsert" | "delete"
	Key   string       `json:"key,omitempty"`
	Alert *alert.Alert `json:"alert,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".alerts.snapshot.json"
	journalPath := prefix + ".alerts.journal.jsonl"

	alerts := map[string]alert.Alert{}
	_ = loadSnapshot(snapPath, alerts)
	_ = replayJournal(journalPath, alerts)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalPath:  journalPath,
		journal:      jf,
		alerts:       alerts,
	}, nil
}

func loadSnapshot(path string, into map[string]alert.Alert) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var list []alert.Alert
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	for _, a := range list {
		if a.Key != "" {
			into[a.Key] = a
		}
	}
	return nil
}

func replayJournal(path string, into map[string]alert.Alert) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Torn tail write after a crash; ignore the rest.
			break
		}
		switch rec.Op {
		case "upsert":
			if rec.Alert != nil && rec.Alert.Key != "" {
				into[rec.Alert.Key] = *rec.Alert
			}
		case "delete":
			delete(into, rec.Key)
		}
	}
	return sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal != nil {
		err := s.journal.Close()
		s.journal = nil
		return err
	}
	return nil
}

func (s *fileStore) LoadAlerts(ctx context.Context) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (s *fileStore) UpsertAlerts(ctx context.Context, alerts []alert.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrDisabled
	}

	for _, a := range alerts {
		if a.Key == "" {
			continue
		}
		a := a
		if err := s.appendLocked(journalRecord{Op: "upsert", Alert: &a}); err != nil {
			return err
		}
		s.alerts[a.Key] = a
	}
	return s.maybeCompactLocked()
}

func (s *fileStore) DeleteAlerts(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrDisabled
	}

	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := s.appendLocked(journalRecord{Op: "delete", Key: k}); err != nil {
			return err
		}
		delete(s.alerts, k)
	}
	return s.maybeCompactLocked()
}

func (s *fileStore) ReplaceAll(ctx context.Context, alerts []alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrDisabled
	}

	next := make(map[string]alert.Alert, len(alerts))
	for _, a := range alerts {
		if a.Key != "" {
			next[a.Key] = a
		}
	}
	s.alerts = next
	return s.compactLocked()
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.journal.Write(append(b, '\n')); err != nil {
		return err
	}
	s.writes++
	return nil
}

func (s *fileStore) maybeCompactLocked() error {
	if s.writes < compactEvery {
		return nil
	}
	return s.compactLocked()
}

// compactLocked writes a fresh snapshot (tmp + rename) and truncates the
// journal.
func (s *fileStore) compactLocked() error {
	list := make([]alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		list = append(list, a)
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}

	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}

	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	if _, err := s.journal.Seek(0, 0); err != nil {
		return err
	}
	s.writes = 0
	return nil
}
