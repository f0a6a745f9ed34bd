// Package commands implements the fhirsql subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/leapstack-labs/fhirsql/internal/cli/config"
	"github.com/leapstack-labs/fhirsql/internal/runner"
	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	_ "github.com/leapstack-labs/fhirsql/pkg/adapters/duckdb"   // register adapter
	_ "github.com/leapstack-labs/fhirsql/pkg/adapters/postgres" // register adapter
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	_ "github.com/leapstack-labs/fhirsql/pkg/dialects/duckdb"   // register dialect
	_ "github.com/leapstack-labs/fhirsql/pkg/dialects/postgres" // register dialect
)

// openTarget creates and connects the adapter for target.
func openTarget(ctx context.Context, target *config.TargetConfig, logger *slog.Logger) (core.Adapter, error) {
	acfg := target.AdapterConfig()
	a, err := adapter.NewAdapter(acfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, acfg); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", target.Type, err)
	}
	return a, nil
}

// openRunner connects to the configured target and returns a runner that
// compiles for its dialect. The caller closes the adapter.
func openRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runner.Runner, core.Adapter, error) {
	a, err := openTarget(ctx, cfg.Target, logger)
	if err != nil {
		return nil, nil, err
	}
	d, err := dialect.Lookup(a.DialectConfig().Name)
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	c := compiler.New(d, compiler.WithTable(cfg.Table), compiler.WithLogger(logger))
	return runner.New(a, c, runner.WithLogger(logger)), a, nil
}

// loadData reads resources from paths into the runner's table.
func loadData(ctx context.Context, r *runner.Runner, paths []string) (int, error) {
	resources, err := runner.ReadResources(paths...)
	if err != nil {
		return 0, err
	}
	if err := r.Load(ctx, resources); err != nil {
		return 0, err
	}
	return len(resources), nil
}

// resolveResourceType returns explicit when set, otherwise the type named
// by the expression's first path segment (Patient.name -> Patient).
func resolveResourceType(explicit, expr string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	expr = strings.TrimSpace(expr)
	end := strings.IndexFunc(expr, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if end < 0 {
		end = len(expr)
	}
	if head := expr[:end]; head != "" && unicode.IsUpper(rune(head[0])) {
		return head, nil
	}
	return "", fmt.Errorf("cannot infer the resource type of %q; pass --resource-type", expr)
}

// readExpression returns the expression from args or, when file is set,
// from that file.
func readExpression(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file) //nolint:gosec // path comes from the user
		if err != nil {
			return "", err
		}
		expr := strings.TrimSpace(string(data))
		if expr == "" {
			return "", fmt.Errorf("%s is empty", file)
		}
		return expr, nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("an expression argument or --file is required")
	}
	return strings.Join(args, " "), nil
}
