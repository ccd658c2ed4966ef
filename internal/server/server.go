// Package server implements the dev server: a single HTTP listener that
// serves the current artifacts, the raw source tree and the live-reload
// WebSocket endpoint.
//
// The server only reads. Artifacts are produced by the build pipeline and
// replaced atomically, so every response carries either the previous or
// the next complete artifact.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/conneroisu/devreload/internal/artifact"
	"github.com/conneroisu/devreload/internal/build"
	"github.com/conneroisu/devreload/internal/config"
	"github.com/conneroisu/devreload/internal/errors"
	"github.com/conneroisu/devreload/internal/logging"
	"github.com/conneroisu/devreload/internal/reload"
)

// Options holds the collaborators of a DevServer.
type Options struct {
	Config *config.Config
	Store  *artifact.Store
	// Source is rooted at the source tree.
	Source   afero.Fs
	Hub      *reload.Hub
	Status   *errors.StatusBoard
	Metrics  *build.BuildMetrics
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

// DevServer serves artifacts with live reload capability
type DevServer struct {
	config   *config.Config
	store    *artifact.Store
	source   afero.Fs
	hub      *reload.Hub
	status   *errors.StatusBoard
	metrics  *build.BuildMetrics
	gatherer prometheus.Gatherer
	logger   logging.Logger
	router   chi.Router
	started  time.Time

	serverMutex sync.RWMutex
	httpServer  *http.Server
	addr        net.Addr
}

// New creates a new dev server
func New(opts Options) *DevServer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	status := opts.Status
	if status == nil {
		status = errors.NewStatusBoard()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = build.NewBuildMetrics()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}

	s := &DevServer{
		config:   opts.Config,
		store:    opts.Store,
		source:   opts.Source,
		hub:      opts.Hub,
		status:   status,
		metrics:  metrics,
		gatherer: gatherer,
		logger:   logger.WithComponent("server"),
		started:  time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *DevServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get(config.LiveReloadPath, s.handleWebSocket)

	// Artifacts and sources answer HEAD like the output fallback does.
	getHead(r, "/", s.serveArtifact(artifact.Page))
	getHead(r, "/"+string(artifact.Page), s.serveArtifact(artifact.Page))
	getHead(r, "/"+string(artifact.Stylesheet), s.serveArtifact(artifact.Stylesheet))
	getHead(r, "/"+string(artifact.HydrationScript), s.serveArtifact(artifact.HydrationScript))
	getHead(r, config.SourcePrefix+"*", s.handleSource)

	r.Get(config.RuntimePath, s.handleRuntime)
	r.Get("/_dev/status", s.handleStatus)
	r.Method(http.MethodGet, "/_dev/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", s.handleHealth)

	r.NotFound(s.handleOutput)
	return r
}

func getHead(r chi.Router, pattern string, h http.HandlerFunc) {
	r.Get(pattern, h)
	r.Head(pattern, h)
}

// Handler returns the routed handler.
func (s *DevServer) Handler() http.Handler {
	return s.router
}

func (s *DevServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

// Start listens on the configured address and serves until ctx is done.
func (s *DevServer) Start(ctx context.Context) error {
	addr := s.config.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// the configured shutdown timeout.
func (s *DevServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.serverMutex.Lock()
	s.httpServer = srv
	s.addr = ln.Addr()
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Dev server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Addr returns the bound address once serving, else nil.
func (s *DevServer) Addr() net.Addr {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// Shutdown gracefully shuts down the HTTP server.
func (s *DevServer) Shutdown(ctx context.Context) error {
	s.serverMutex.RLock()
	srv := s.httpServer
	s.serverMutex.RUnlock()
	if srv == nil {
		return nil
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info(ctx, "Shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
