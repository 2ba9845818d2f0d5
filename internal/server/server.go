package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/vwap-ticker/internal/model"
	"github.com/rickgao/vwap-ticker/internal/version"
)

// SampleReader reads persisted samples.
type SampleReader interface {
	QueryAfter(ctx context.Context, d time.Duration) ([]model.Sample, error)
	Ping(ctx context.Context) error
}

// LatestReader reads the latest-sample cache.
type LatestReader interface {
	All(ctx context.Context) ([]model.Sample, error)
	Ping(ctx context.Context) error
}

// Config holds server settings.
type Config struct {
	Port            int
	Retention       time.Duration // Window served by /ticks
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:            3000,
		Retention:       6000 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server serves the query surface.
type Server struct {
	cfg    Config
	store  SampleReader
	latest LatestReader
	stats  func() any
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLatest enables /ticks/latest backed by r.
func WithLatest(r LatestReader) Option {
	return func(s *Server) {
		s.latest = r
	}
}

// WithStats adds pipeline statistics to /health.
func WithStats(fn func() any) Option {
	return func(s *Server) {
		s.stats = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server reading from store.
func New(cfg Config, store SampleReader, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ticks", s.handleTicks)
	mux.HandleFunc("GET /ticks/latest", s.handleLatest)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "port", s.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	samples, err := s.store.QueryAfter(r.Context(), s.cfg.Retention)
	if err != nil {
		s.logger.Error("query samples failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query ticks")
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.latest == nil {
		writeError(w, http.StatusServiceUnavailable, "latest cache not configured")
		return
	}
	samples, err := s.latest.All(r.Context())
	if err != nil {
		s.logger.Error("read latest samples failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read latest ticks")
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	if err := s.store.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Components["store"] = map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		}
	} else {
		health.Components["store"] = "connected"
	}

	if s.latest != nil {
		if err := s.latest.Ping(ctx); err != nil {
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
			health.Components["cache"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["cache"] = "connected"
		}
	}

	if s.stats != nil {
		health.Components["pipeline"] = s.stats()
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
