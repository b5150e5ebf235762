// Package httpapi exposes the alert engine to the UI as a small JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"pharmalert/internal/alert"
	"pharmalert/internal/scheduler"
	"pharmalert/pkg/logx"
)

// Config controls the API server.
//
// Security: bind to localhost. The API carries no authentication of its
// own; the desktop shell talks to it over loopback.
type Config struct {
	Enabled bool
	Addr    string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Alerts is the slice of the lifecycle store the API needs.
type Alerts interface {
	Ordered() []alert.Alert
	UnreadCount() int
	Get(key string) (alert.Alert, bool)
	MarkRead(ctx context.Context, key string) bool
	MarkAllRead(ctx context.Context) int
	Delete(ctx context.Context, key string) bool
}

// Refresher triggers an immediate re-evaluation.
type Refresher interface {
	RefreshNow(ctx context.Context) error
}

type Server struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	alerts    Alerts
	refresher Refresher

	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, alerts Alerts, refresher Refresher, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{log: log, cfg: cfg, alerts: alerts, refresher: refresher}
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped unexpectedly", logx.Err(err))
		}
	}()

	s.log.Info("api server started", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	s.log.Info("api server stopped")
}

// Handler builds the route table. Exposed separately so tests can drive
// it with httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/alerts", s.handleList)
	mux.HandleFunc("GET /api/alerts/unread-count", s.handleUnreadCount)
	mux.HandleFunc("POST /api/alerts/read-all", s.handleReadAll)
	mux.HandleFunc("POST /api/alerts/{key}/read", s.handleMarkRead)
	mux.HandleFunc("GET /api/alerts/{key}/route", s.handleRoute)
	mux.HandleFunc("DELETE /api/alerts/{key}", s.handleDelete)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	return mux
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list := s.alerts.Ordered()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"unread": s.alerts.UnreadCount(),
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"unread": s.alerts.UnreadCount()})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	// Marking an absent key read is a no-op, not an error.
	found := s.alerts.MarkRead(r.Context(), r.PathValue("key"))
	writeJSON(w, http.StatusOK, map[string]any{"found": found, "unread": s.alerts.UnreadCount()})
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	n := s.alerts.MarkAllRead(r.Context())
	// A tick can land new unread alerts right after the mark, so the
	// count is recomputed rather than assumed zero.
	writeJSON(w, http.StatusOK, map[string]int{"updated": n, "unread": s.alerts.UnreadCount()})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	// Idempotent: deleting an absent key succeeds. Note that deletion
	// suppresses display only; a still-true condition re-materializes
	// the alert as unread on the next evaluation.
	s.alerts.Delete(r.Context(), r.PathValue("key"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.refresher.RefreshNow(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"alerts": s.alerts.Ordered(),
			"unread": s.alerts.UnreadCount(),
		})
	case errors.Is(err, scheduler.ErrBusy):
		// A run is already in flight; the trigger is coalesced, not queued.
		writeJSON(w, http.StatusConflict, map[string]string{"error": "refresh already in progress"})
	case errors.Is(err, scheduler.ErrThrottled):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "refresh throttled"})
	default:
		// Transient fetch failure: current alerts are unchanged and still valid.
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	a, ok := s.alerts.Get(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown alert"})
		return
	}
	route, ok := alert.ResolveRoute(a)
	writeJSON(w, http.StatusOK, map[string]any{"route": route, "navigable": ok})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
