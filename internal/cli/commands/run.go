package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fhirsql/internal/cli/config"
	"github.com/leapstack-labs/fhirsql/internal/cli/output"
	"github.com/leapstack-labs/fhirsql/internal/runner"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	ResourceType string
	Data         []string
	File         string
	ShowSQL      bool
}

type rowJSON struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [expression]",
		Short: "Evaluate a FHIRPath expression on the target database",
		Long: `Compile an expression for the target's dialect and run it against the
resource table.

With --data the table is first replaced by the resources read from JSON,
NDJSON or Bundle files. Without it, the table must already exist.`,
		Example: `  # Evaluate against fixtures in an in-memory DuckDB
  fhirsql run --data testdata/patients.ndjson "Patient.name.given"

  # Evaluate against a PostgreSQL table
  fhirsql run -t prod "Observation.code.coding.code"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ResourceType, "resource-type", "r", "", "Resource type the expression is evaluated against (default: first path segment)")
	cmd.Flags().StringSliceVar(&opts.Data, "data", nil, "Resource files or directories to load first")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read the expression from a file")
	cmd.Flags().BoolVar(&opts.ShowSQL, "sql", false, "Print the compiled SQL")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	r := output.FromContext(ctx)

	expr, err := readExpression(args, opts.File)
	if err != nil {
		return err
	}
	rt, err := resolveResourceType(opts.ResourceType, expr)
	if err != nil {
		return err
	}

	run, a, err := openRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if len(opts.Data) > 0 {
		n, err := loadData(ctx, run, opts.Data)
		if err != nil {
			return fmt.Errorf("load data: %w", err)
		}
		logger.Info("loaded resources", slog.Int("count", n), slog.String("table", cfg.Table))
	}

	res, err := run.Evaluate(ctx, expr, rt)
	if err != nil {
		return err
	}
	if opts.ShowSQL {
		r.SQL(res.Compiled.SQL)
	}
	return renderRows(r, res)
}

func renderRows(r *output.Renderer, res *runner.Result) error {
	if r.Mode() == output.ModeJSON {
		rows := make([]rowJSON, len(res.Rows))
		for i, row := range res.Rows {
			rows[i] = rowJSON{ID: row.ID, Result: json.RawMessage(runner.Render(row.Result))}
		}
		return r.JSON(rows)
	}

	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = []string{row.ID, runner.Render(row.Result)}
	}
	if err := r.Table([]string{"id", "result"}, rows); err != nil {
		return err
	}
	if r.Mode() == output.ModeTable {
		r.Muted(fmt.Sprintf("%d rows in %s", len(res.Rows), res.Elapsed.Round(time.Microsecond)))
	}
	return nil
}
