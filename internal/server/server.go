// Package server provides the HTTP API for Mihari.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/mihari/internal/config"
	"github.com/hyperjump/mihari/internal/metrics"
	"github.com/hyperjump/mihari/internal/models"
	"github.com/hyperjump/mihari/internal/registry"
	"github.com/hyperjump/mihari/internal/store"
)

// submitTimeout bounds how long a document submission may wait for room
// in the ingestion channel before the request fails.
const submitTimeout = 5 * time.Second

// Server is the HTTP server for the Mihari API.
type Server struct {
	registry *registry.Registry
	store    store.MatchStore
	docs     chan<- *models.TextSource
	config   *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	server   *http.Server

	// conns tracks live TCP connections for the capacity report.
	conns atomic.Int64
}

// NewServer creates a server with the given dependencies. docs is the
// bounded ingestion channel shared with the pipeline worker.
func NewServer(
	reg *registry.Registry,
	st store.MatchStore,
	docs chan<- *models.TextSource,
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Server {
	return &Server{
		registry: reg,
		store:    st,
		docs:     docs,
		config:   cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(s.countRequests)

	r.Post("/api/v1/queries", s.handleSubmitQuery)
	r.Get("/api/v1/queries/{id}", s.handleGetQuery)
	r.Get("/api/v1/queries/{id}/results", s.handleGetResults)
	r.Post("/api/v1/documents", s.handleSubmitDocument)
	r.Get("/api/v1/capacity", s.handleCapacity)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:      addr,
		Handler:   r,
		ConnState: s.trackConn,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.conns.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.conns.Add(-1)
	}
}

// countRequests records per-route request counters.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
	})
}
