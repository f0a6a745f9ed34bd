package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/fhirsql/internal/cli/config"
	"github.com/leapstack-labs/fhirsql/internal/runner"
	"github.com/leapstack-labs/fhirsql/internal/server"
	"github.com/leapstack-labs/fhirsql/internal/watch"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr  string
	Data  []string
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compiler over HTTP",
		Long: `Start an HTTP server with the endpoints:

  GET  /healthz    liveness check
  GET  /dialects   registered dialects and adapters
  POST /compile    {"expression", "resourceType", "dialect"} -> SQL
  POST /evaluate   {"expression", "resourceType"} -> rows (with --data)

With --data the resources are loaded into the target and /evaluate runs
expressions against them; --watch reloads them when the files change.`,
		Example: `  fhirsql serve --addr :9090
  fhirsql serve --data fixtures/ --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default :8080)")
	cmd.Flags().StringSliceVar(&opts.Data, "data", nil, "Resource files or directories to load and evaluate against")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Reload --data when files change")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	project := cfg.Project()

	addr := project.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if opts.Watch && len(opts.Data) == 0 {
		return fmt.Errorf("--watch requires --data")
	}

	srvCfg := server.Config{Addr: addr, Table: cfg.Table, Logger: logger}

	var run *runner.Runner
	if len(opts.Data) > 0 {
		r, a, err := openRunner(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		n, err := loadData(ctx, r, opts.Data)
		if err != nil {
			return fmt.Errorf("load data: %w", err)
		}
		logger.Info("loaded resources", slog.Int("count", n))
		run = r
		srvCfg.Runner = r
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.New(srvCfg).Serve(egctx)
	})
	if opts.Watch {
		eg.Go(func() error {
			return watchData(egctx, run, opts.Data, logger)
		})
	}
	return eg.Wait()
}

func watchData(ctx context.Context, r *runner.Runner, paths []string, logger *slog.Logger) error {
	return watch.Watch(ctx, paths, watch.Options{Extensions: []string{".json", ".ndjson"}, Logger: logger}, func(name string) {
		n, err := loadData(ctx, r, paths)
		if err != nil {
			logger.Error("reload failed", slog.String("file", name), slog.Any("error", err))
			return
		}
		logger.Info("reloaded resources", slog.String("file", name), slog.Int("count", n))
	})
}
