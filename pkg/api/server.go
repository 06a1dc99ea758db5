// Package api serves the mirrored documentation tree and the authenticated
// admin routes that refresh or replace it.
//
// Routes:
//   - POST /api/admin/update: clean download from the object store
//   - POST /api/admin/upload: deploy the archive in the request body
//   - GET /api/admin/operations: recent operation journal records
//   - GET /healthz: content tree health
//   - GET /...: static files from the content tree
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/docmirror/internal/logger"
	"github.com/marmos91/docmirror/internal/ratelimiter"
	"github.com/marmos91/docmirror/pkg/archive"
	"github.com/marmos91/docmirror/pkg/health"
	"github.com/marmos91/docmirror/pkg/journal"
	"github.com/marmos91/docmirror/pkg/metrics"
	"github.com/marmos91/docmirror/pkg/mirror"
)

// Downloader refreshes the content tree from the object store.
// *mirror.Synchronizer satisfies it.
type Downloader interface {
	CleanDownload(ctx context.Context) (mirror.Result, error)
}

// Deployer replaces the content tree with an uploaded archive.
// *deploy.Coordinator satisfies it.
type Deployer interface {
	Deploy(ctx context.Context, body io.Reader, format archive.Format) error
}

// OperationLister reads the operation history. *journal.Journal satisfies it.
type OperationLister interface {
	List(limit int) ([]journal.Record, error)
}

// Config configures the API server.
type Config struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string

	// Port is the TCP port to listen on. Default: 8080
	Port int

	// ShutdownTimeout bounds graceful shutdown. Default: 30s
	ShutdownTimeout time.Duration

	// ContentDir is the directory served as static files (required)
	ContentDir string

	// MaxUploadBytes caps upload bodies; larger requests get 413 (required)
	MaxUploadBytes int64

	// Username and Password guard the admin routes (required)
	Username string
	Password string

	// RequestsPerSecond and Burst throttle admin routes per client address.
	// Zero RequestsPerSecond disables throttling.
	RequestsPerSecond float64
	Burst             uint

	Downloader Downloader
	Deployer   Deployer
	Health     *health.State

	// Operations is optional; nil serves 404 on /api/admin/operations
	Operations OperationLister

	// Metrics is optional
	Metrics metrics.HTTPMetrics
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoopHTTPMetrics()
	}
}

func (c *Config) validate() error {
	switch {
	case c.ContentDir == "":
		return fmt.Errorf("content directory is required")
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("max upload bytes must be positive")
	case c.Username == "" || c.Password == "":
		return fmt.Errorf("admin credentials are required")
	case c.Downloader == nil:
		return fmt.Errorf("downloader is required")
	case c.Deployer == nil:
		return fmt.Errorf("deployer is required")
	case c.Health == nil:
		return fmt.Errorf("health state is required")
	}
	return nil
}

// Server is the documentation and admin HTTP server.
type Server struct {
	config       Config
	server       *http.Server
	limiter      *ratelimiter.ClientLimiter
	shutdownOnce sync.Once
}

// New validates config and builds a stopped server. Call Start to serve.
func New(config Config) (*Server, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:  config,
		limiter: ratelimiter.NewClientLimiter(config.RequestsPerSecond, config.Burst, 10*time.Minute),
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/admin/update", s.admin("/api/admin/update", s.handleUpdate))
	mux.Handle("POST /api/admin/upload", s.admin("/api/admin/upload", s.handleUpload))
	mux.Handle("GET /api/admin/operations", s.admin("/api/admin/operations", s.handleOperations))
	mux.Handle("GET /healthz", s.instrument("/healthz", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /", s.instrument("static", http.FileServer(http.Dir(s.config.ContentDir))))

	return mux
}

// admin wraps an admin handler with rate limiting, authentication and
// instrumentation, outermost first.
func (s *Server) admin(route string, h http.HandlerFunc) http.Handler {
	return s.instrument(route, s.rateLimit(route, s.authenticate(route, h)))
}

// Handler returns the server's HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves HTTP and blocks until ctx is cancelled or the listener fails.
// Cancellation triggers a graceful shutdown bounded by ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api server failed to listen on %s: %w", s.server.Addr, err)
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening on %s (serving %s)", listener.Addr(), s.config.ContentDir)

		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("api server failed: %w", err)
	}
}

// Stop initiates graceful shutdown, waiting for in-flight requests until ctx
// expires. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("api server shutdown error: %w", err)
			logger.Error("API server shutdown error: %v", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Name identifies the server in logs.
func (s *Server) Name() string {
	return "api"
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	return s.config.Port
}
