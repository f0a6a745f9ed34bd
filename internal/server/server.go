// Package server exposes the compiler, and optionally a loaded resource
// table, over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/fhirsql/internal/runner"
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
)

// Config holds configuration for the server.
type Config struct {
	Addr  string
	Table string

	// Runner, when set, enables POST /evaluate against its adapter.
	Runner *runner.Runner

	Logger *slog.Logger
}

// Server serves the compile and evaluate endpoints.
type Server struct {
	addr   string
	table  string
	runner *runner.Runner
	logger *slog.Logger

	mu        sync.Mutex
	compilers map[string]*compiler.Compiler
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:      cfg.Addr,
		table:     cfg.Table,
		runner:    cfg.Runner,
		logger:    logger,
		compilers: make(map[string]*compiler.Compiler),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/dialects", s.handleDialects)
	r.Post("/compile", s.handleCompile)
	r.Post("/evaluate", s.handleEvaluate)
	return r
}

// Serve listens on the configured address and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// compilerFor returns a cached compiler for a registered dialect.
func (s *Server) compilerFor(name string) (*compiler.Compiler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.compilers[name]; ok {
		return c, nil
	}
	c, err := compiler.ForDialect(name, compiler.WithTable(s.table), compiler.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.compilers[name] = c
	return c, nil
}
