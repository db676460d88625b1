// Package server exposes the relay's operational HTTP surface: liveness,
// readiness, Prometheus metrics and a session summary.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/relay/internal/channels"
)

// StatusReporter reports the chat connection state. channels.Adapter
// implements it.
type StatusReporter interface {
	Status() channels.Status
}

// SessionLister summarizes the conversations with a live agent session.
type SessionLister interface {
	Snapshot() []string
}

// Config configures the ops server.
type Config struct {
	// Addr is the listen address. Empty disables the server.
	Addr string

	// Gatherer serves /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	Status   StatusReporter
	Sessions SessionLister
	Version  string
	Logger   *slog.Logger
}

// Server is the ops HTTP server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	listener   net.Listener
	started    time.Time
	logger     *slog.Logger
}

// New builds the server and its routes. Nothing listens until Start.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		config:  cfg,
		started: time.Now(),
		logger:  cfg.Logger.With("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/sessions", s.handleSessions)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Addr == "" {
		s.logger.Info("ops http server disabled")
		return nil
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	s.httpServer = nil
	s.listener = nil
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.config.Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.config.Status == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "error": "no chat adapter"})
		return
	}
	status := s.config.Status.Status()
	code := http.StatusOK
	state := "ready"
	if !status.Connected {
		code = http.StatusServiceUnavailable
		state = "not ready"
	}
	writeJSON(w, code, map[string]any{"status": state, "discord": status})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids := []string{}
	if s.config.Sessions != nil {
		ids = s.config.Sessions.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(ids),
		"conversations": ids,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck
}
