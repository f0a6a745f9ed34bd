// Package runner executes compiled FHIRPath statements on a database
// adapter and decodes the per-resource result collections.
package runner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/fhirsql/pkg/compiler"
	"github.com/leapstack-labs/fhirsql/pkg/core"
)

// Row is the result of an expression for one resource.
type Row struct {
	ID     string
	Result []any
}

// Result is a compiled expression together with its rows.
type Result struct {
	Compiled *compiler.Result
	Rows     []Row
	Elapsed  time.Duration
}

// Runner compiles expressions for the adapter's dialect and runs them.
type Runner struct {
	adapter  core.Adapter
	compiler *compiler.Compiler
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a runner. The compiler's dialect must match the adapter.
func New(a core.Adapter, c *compiler.Compiler, opts ...Option) *Runner {
	r := &Runner{
		adapter:  a,
		compiler: c,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Compiler returns the compiler used by Evaluate.
func (r *Runner) Compiler() *compiler.Compiler {
	return r.compiler
}

// Load replaces the resource table with resources.
func (r *Runner) Load(ctx context.Context, resources []json.RawMessage) error {
	return r.adapter.LoadResources(ctx, r.compiler.Table(), resources)
}

// Evaluate compiles expr and runs it against every resource of
// resourceType in the resource table.
func (r *Runner) Evaluate(ctx context.Context, expr, resourceType string) (*Result, error) {
	compiled, err := r.compiler.Compile(expr, resourceType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := r.Query(ctx, compiled.SQL)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	r.logger.Debug("evaluated",
		slog.String("expression", expr),
		slog.Int("rows", len(rows)),
		slog.Duration("elapsed", elapsed))

	return &Result{Compiled: compiled, Rows: rows, Elapsed: elapsed}, nil
}

// Query runs a compiled statement. The statement must return (id, result)
// columns; a statement without a result set yields no rows.
func (r *Runner) Query(ctx context.Context, stmt string) ([]Row, error) {
	wrapped := fmt.Sprintf("SELECT id, CAST(result AS VARCHAR) AS result FROM (\n%s\n) AS q ORDER BY id", stmt)

	rows, err := r.adapter.Query(ctx, wrapped)
	if errors.Is(err, core.ErrNoResultSet) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	if len(cols) != 2 {
		return nil, fmt.Errorf("expected columns (id, result), got %v", cols)
	}

	var out []Row
	for rows.Next() {
		var id, text sql.NullString
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if !text.Valid {
			return nil, fmt.Errorf("resource %s: result is NULL", id.String)
		}
		items, err := Decode(text.String)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", id.String, err)
		}
		out = append(out, Row{ID: id.String, Result: items})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return out, nil
}
