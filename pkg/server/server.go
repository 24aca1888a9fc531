package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"taxlab-hq/ledger/pkg/api"
	"taxlab-hq/ledger/pkg/config"
	"taxlab-hq/ledger/pkg/server/middleware"
	"taxlab-hq/ledger/pkg/tasks"
	"taxlab-hq/ledger/pkg/telemetry/health"
	"taxlab-hq/ledger/pkg/telemetry/metrics"
	"taxlab-hq/ledger/pkg/telemetry/tracing"
)

// Options holds the components a Server serves and owns.
type Options struct {
	// Runtimes are the countries served. Each is mounted under /<name>/api/.
	Runtimes []*api.Runtime

	// Runner serves cached endpoints. Nil computes them inline.
	Runner *tasks.Runner

	// Sweeper prunes stale cache entries on a schedule. Optional.
	Sweeper *tasks.Sweeper

	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Health  *health.Checker
	Version health.VersionInfo

	// Closers run last during shutdown, e.g. stores.
	Closers []func() error
}

// Server is the HTTP API server.
type Server struct {
	config       *config.ServerConfig
	opts         Options
	httpServer   *http.Server
	listener     net.Listener
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	cancel       context.CancelFunc
	background   sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(cfg *config.ServerConfig, opts Options) *Server {
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	return &Server{
		config:       cfg,
		opts:         opts,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server, the parameter watchers and the cache
// sweeper, and blocks until ctx is cancelled, a termination signal
// arrives, Stop is called or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	listener := s.listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", s.config.ListenAddress)
		if err != nil {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
		}
	}

	s.httpServer = &http.Server{
		Handler:        s.setupRoutes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.startBackground()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting api server",
			"address", listener.Addr().String(),
			"countries", len(s.opts.Runtimes),
			"cache", s.opts.Runner != nil,
		)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Serve starts the server on an existing listener. It blocks like Start.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.listener = listener
	return s.Start(ctx)
}

// Stop asks a running Start to shut down.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, rt := range s.opts.Runtimes {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			if err := rt.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("parameter watcher stopped", "country", rt.Name(), "error", err)
			}
		}()
	}

	if s.opts.Sweeper != nil {
		if err := s.opts.Sweeper.Start(ctx); err != nil {
			slog.Error("failed to start cache sweeper", "error", err)
		}
	}
}

// Shutdown gracefully shuts down the server: it stops accepting requests,
// waits for running cache workers, then stops the watchers and the sweeper
// and flushes traces.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		slog.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if s.opts.Runner != nil {
			if err := s.opts.Runner.Close(shutdownCtx); err != nil {
				slog.Error("cache workers did not finish", "error", err)
				errs = append(errs, err)
			}
		}

		if s.opts.Sweeper != nil {
			s.opts.Sweeper.Stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
		for _, rt := range s.opts.Runtimes {
			if err := rt.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stop %s watcher: %w", rt.Name(), err))
			}
		}
		s.background.Wait()

		if s.opts.Tracer != nil {
			if err := s.opts.Tracer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			}
		}
		for _, closeFn := range s.opts.Closers {
			if err := closeFn(); err != nil {
				errs = append(errs, err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("api server stopped")
	})

	return errors.Join(errs...)
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mountConfig := api.MountConfig{
		Runner:       s.opts.Runner,
		MaxBodyBytes: s.config.MaxBodyBytes,
	}
	if s.opts.Metrics != nil {
		mountConfig.Recorder = s.opts.Metrics
	}
	for _, rt := range s.opts.Runtimes {
		api.Mount(mux, rt, mountConfig)
	}

	health.Register(mux, s.opts.Health, s.opts.Version)
	if s.opts.Metrics != nil && s.opts.Metrics.Enabled() {
		mux.Handle(s.opts.Metrics.Path(), s.opts.Metrics.Handler())
	}
	mux.HandleFunc("/", notFound)

	var handler http.Handler = mux

	handler = middleware.TimeoutMiddleware(s.config.WriteTimeout)(handler)
	handler = middleware.CORSMiddleware(&s.config.CORS)(handler)
	if s.opts.Metrics != nil {
		handler = middleware.InFlightMiddleware(s.opts.Metrics)(handler)
	}
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	if s.opts.Tracer != nil {
		handler = s.opts.Tracer.HTTPMiddleware(handler)
	}

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

func notFound(w http.ResponseWriter, r *http.Request) {
	_ = api.WriteErrorResponse(w, api.NewErrorResponse(
		fmt.Sprintf("No endpoint at %s.", r.URL.Path),
		api.ErrorTypeNotFound, "path", "not_found",
	))
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
