// Package server provides the HTTP API for image similarity search.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/config"
	"github.com/hyperjump/lookalike/internal/metrics"
	"github.com/hyperjump/lookalike/internal/search"
	"github.com/hyperjump/lookalike/internal/storage"
)

// BreakerState reports the embedding circuit breaker state, if one is configured.
type BreakerState interface {
	State() string
}

// Server is the HTTP server for the search API.
type Server struct {
	engine  *search.Engine
	store   storage.Store
	writer  storage.Writer
	config  *config.Config
	metrics *metrics.Metrics
	breaker BreakerState
	logger  *zap.Logger
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBreaker reports b in /api/status.
func WithBreaker(b BreakerState) Option {
	return func(s *Server) { s.breaker = b }
}

// NewServer creates a server with the given dependencies. Item write routes are
// enabled when the engine's store also implements storage.Writer.
func NewServer(engine *search.Engine, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		store:  engine.Store(),
		config: cfg,
		logger: logger,
	}
	if w, ok := s.store.(storage.Writer); ok {
		s.writer = w
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler with middleware and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: splitOrigins(s.config.Server.CORSOrigin),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Post("/api/search", s.handleSearch)
	r.Post("/search-like", s.handleSearch)
	r.Post("/api/search/vector", s.handleSearchVector)
	r.Post("/api/items", s.handleUpsertItems)
	r.Get("/api/items/{id}", s.handleGetItem)
	r.Delete("/api/items/{id}", s.handleDeleteItem)
	r.Get("/api/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if dir := s.config.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			s.logger.Warn("static directory not found, not serving static files", zap.String("dir", dir))
		}
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func splitOrigins(v string) []string {
	var origins []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
