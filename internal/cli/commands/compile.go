package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fhirsql/internal/cli/config"
	"github.com/leapstack-labs/fhirsql/internal/cli/output"
	"github.com/leapstack-labs/fhirsql/internal/watch"
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
)

// CompileOptions holds options for the compile command.
type CompileOptions struct {
	ResourceType string
	Dialect      string
	File         string
	Watch        bool
	ShowCTEs     bool
}

// compiledJSON is the --output json form of a compiled expression.
type compiledJSON struct {
	Expression   string   `json:"expression"`
	ResourceType string   `json:"resourceType"`
	Dialect      string   `json:"dialect"`
	Type         string   `json:"type"`
	IsCollection bool     `json:"isCollection"`
	CTEs         []string `json:"ctes"`
	SQL          string   `json:"sql"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	opts := &CompileOptions{}

	cmd := &cobra.Command{
		Use:   "compile [expression]",
		Short: "Compile a FHIRPath expression to SQL",
		Long: `Compile a FHIRPath expression into one SQL statement for the selected dialect.

The statement returns one row per resource with the columns id and result,
where result is the expression's collection as a JSON array.`,
		Example: `  # Compile for the configured target
  fhirsql compile "Patient.name.where(use = 'official').given"

  # Compile for PostgreSQL
  fhirsql compile -d postgres "Observation.value.ofType(Quantity).value > 5"

  # Recompile whenever the expression file changes
  fhirsql compile -f expr.fhirpath --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ResourceType, "resource-type", "r", "", "Resource type the expression is evaluated against (default: first path segment)")
	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "", "SQL dialect (default: target type)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read the expression from a file")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Recompile when --file changes")
	cmd.Flags().BoolVar(&opts.ShowCTEs, "ctes", false, "List the CTEs of the statement")

	return cmd
}

func runCompile(cmd *cobra.Command, args []string, opts *CompileOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	r := output.FromContext(ctx)

	name := opts.Dialect
	if name == "" {
		name = cfg.Target.Type
	}
	c, err := compiler.ForDialect(name, compiler.WithTable(cfg.Table), compiler.WithLogger(logger))
	if err != nil {
		return err
	}

	if opts.Watch && opts.File == "" {
		return fmt.Errorf("--watch requires --file")
	}

	if err := compileOnce(r, c, args, opts); err != nil {
		if !opts.Watch {
			return err
		}
		r.Error(err.Error())
	}
	if !opts.Watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return watchAndCompile(ctx, r, c, args, opts, logger)
}

func watchAndCompile(ctx context.Context, r *output.Renderer, c *compiler.Compiler, args []string, opts *CompileOptions, logger *slog.Logger) error {
	r.Muted(fmt.Sprintf("watching %s (Ctrl+C to stop)", opts.File))
	return watch.Watch(ctx, []string{opts.File}, watch.Options{Logger: logger}, func(string) {
		if err := compileOnce(r, c, args, opts); err != nil {
			r.Error(err.Error())
		}
	})
}

func compileOnce(r *output.Renderer, c *compiler.Compiler, args []string, opts *CompileOptions) error {
	expr, err := readExpression(args, opts.File)
	if err != nil {
		return err
	}
	rt, err := resolveResourceType(opts.ResourceType, expr)
	if err != nil {
		return err
	}

	res, err := c.Compile(expr, rt)
	if err != nil {
		return fmt.Errorf("%s error: %w", compiler.Stage(err), err)
	}

	if r.Mode() == output.ModeJSON {
		names := make([]string, len(res.CTEs))
		for i, cte := range res.CTEs {
			names[i] = cte.Name
		}
		return r.JSON(compiledJSON{
			Expression:   expr,
			ResourceType: rt,
			Dialect:      c.Dialect().Name(),
			Type:         res.Type.String(),
			IsCollection: res.IsCollection,
			CTEs:         names,
			SQL:          res.SQL,
		})
	}

	if opts.ShowCTEs {
		rows := make([][]string, len(res.CTEs))
		for i, cte := range res.CTEs {
			rows[i] = []string{cte.Name, strings.Join(cte.DependsOn, ", ")}
		}
		if err := r.Table([]string{"cte", "depends on"}, rows); err != nil {
			return err
		}
	}
	r.SQL(res.SQL)
	return nil
}
