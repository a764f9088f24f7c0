// Package server exposes the catalog over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hadi77ir/go-catalog/catalog"
	"github.com/hadi77ir/go-catalog/config"
	"github.com/hadi77ir/go-catalog/internal/metrics"
)

// HealthFunc reports whether the service can serve requests.
type HealthFunc func(ctx context.Context) error

// Server routes HTTP requests to catalog actions.
type Server struct {
	endpoint *catalog.Endpoint
	actions  *catalog.Registry
	metrics  *metrics.Collector
	health   HealthFunc
	logger   *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithHealth sets the check behind /healthz.
func WithHealth(fn HealthFunc) Option {
	return func(s *Server) { s.health = fn }
}

// New creates a server for the catalog served at endpoint.
func New(endpoint *catalog.Endpoint, actions *catalog.Registry, opts ...Option) *Server {
	s := &Server{
		endpoint: endpoint,
		actions:  actions,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(requestID)
	router.Use(chimiddleware.RealIP)
	router.Use(s.observe)
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", s.healthCheck)
	if s.metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	router.Get(routePattern(s.endpoint.Template()), s.action(catalog.ActionCatalogShow))
	router.Get("/dataset/{id}.{format}", s.action(catalog.ActionDatasetShow))

	router.Route("/api", func(r chi.Router) {
		r.Get("/catalog/search", s.action(catalog.ActionCatalogSearch))
		r.Get("/datasets", s.action(catalog.ActionDatasetsList))
		r.Get("/action/{name}", s.namedAction)
	})

	return router
}

// routePattern turns an endpoint template into a chi pattern.
func routePattern(template string) string {
	return strings.ReplaceAll(template, catalog.FormatPlaceholder, "{format}")
}

func (s *Server) action(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.run(w, r, name)
	}
}

func (s *Server) namedAction(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, chi.URLParam(r, "name"))
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, name string) {
	action, ok := s.actions.Lookup(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown action "+name, "")
		return
	}

	raw := catalog.RequestFromQuery(r.URL.Query())
	if format := chi.URLParam(r, "format"); format != "" {
		raw.Format = format
	}
	if id := chi.URLParam(r, "id"); id != "" {
		raw.ID = id
	}

	out, err := action(r.Context(), raw)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}

	if rendered, ok := out.(*catalog.Rendered); ok {
		w.Header().Set("Content-Type", rendered.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rendered.Body)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg config.HTTP) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
