package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fhirsql/internal/cli/config"
	"github.com/leapstack-labs/fhirsql/internal/cli/output"
	"github.com/leapstack-labs/fhirsql/internal/conformance"
	sharedcfg "github.com/leapstack-labs/fhirsql/internal/config"
	"github.com/leapstack-labs/fhirsql/internal/state"
)

// ConformanceOptions holds options for the conformance command.
type ConformanceOptions struct {
	Parallel int
	All      bool
	History  string
}

// NewConformanceCommand creates the conformance command.
func NewConformanceCommand() *cobra.Command {
	opts := &ConformanceOptions{}

	cmd := &cobra.Command{
		Use:   "conformance [suite...]",
		Short: "Run YAML conformance suites against the configured targets",
		Long: `Run every case of the given YAML suites (files or directories) against
each conformance target and report the cases whose result differs.

Suites and targets default to the conformance section of fhirsql.yaml; with
no targets configured the main target is used.`,
		Example: `  fhirsql conformance internal/conformance/testdata
  fhirsql conformance --parallel 8 suites/
  fhirsql conformance --history .fhirsql/history.db suites/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConformance(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "Maximum number of cases in flight")
	cmd.Flags().BoolVar(&opts.All, "all", false, "List passing and skipped cases too")
	cmd.Flags().StringVar(&opts.History, "history", "", "SQLite file to record the run in")

	return cmd
}

func runConformance(cmd *cobra.Command, args []string, opts *ConformanceOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	r := output.FromContext(ctx)
	project := cfg.Project()

	paths := args
	if len(paths) == 0 {
		paths = suitePaths(project.Conformance.Suites)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no suites given and none configured under conformance.suites")
	}
	suites, err := conformance.LoadSuites(paths...)
	if err != nil {
		return err
	}

	targetCfgs := project.Conformance.Targets
	if len(targetCfgs) == 0 {
		targetCfgs = []*config.TargetConfig{cfg.Target}
	}

	targets := make([]conformance.Target, 0, len(targetCfgs))
	seen := make(map[string]int)
	for _, tc := range targetCfgs {
		if err := sharedcfg.ValidateTarget(tc); err != nil {
			return err
		}
		a, err := openTarget(ctx, tc, logger)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		name := tc.Type
		if n := seen[name]; n > 0 {
			name += "#" + strconv.Itoa(n+1)
		}
		seen[tc.Type]++
		targets = append(targets, conformance.Target{Name: name, Adapter: a})
	}

	parallel := project.Conformance.Parallel
	if opts.Parallel > 0 {
		parallel = opts.Parallel
	}

	h := conformance.New(targets, conformance.WithParallel(parallel), conformance.WithLogger(logger))
	report, err := h.Run(ctx, suites)
	if err != nil {
		return err
	}

	if err := renderReport(r, report, opts.All); err != nil {
		return err
	}

	history := project.Conformance.History
	if opts.History != "" {
		history = opts.History
	}
	if history != "" {
		if err := recordHistory(ctx, r, history, report, logger); err != nil {
			return err
		}
	}
	if !report.Passed() {
		return fmt.Errorf("%d failed, %d errored", report.Count(conformance.StatusFail), report.Count(conformance.StatusError))
	}
	return nil
}

// suitePaths resolves configured suite paths against the directory of the
// config file in use.
func suitePaths(paths []string) []string {
	base := filepath.Dir(config.GetConfigFileUsed())
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) || config.GetConfigFileUsed() == "" {
			out[i] = p
			continue
		}
		out[i] = filepath.Join(base, p)
	}
	return out
}

func renderReport(r *output.Renderer, report *conformance.Report, all bool) error {
	if r.Mode() == output.ModeJSON {
		return r.JSON(report)
	}

	var rows [][]string
	for _, o := range report.Outcomes {
		if !all && (o.Status == conformance.StatusPass || o.Status == conformance.StatusSkip) {
			continue
		}
		rows = append(rows, []string{o.Suite, o.Case, o.Target, string(o.Status), o.Message})
	}
	if len(rows) > 0 {
		if err := r.Table([]string{"suite", "case", "target", "status", "message"}, rows); err != nil {
			return err
		}
	}

	summary := fmt.Sprintf("%d passed, %d failed, %d errored, %d skipped in %s",
		report.Count(conformance.StatusPass),
		report.Count(conformance.StatusFail),
		report.Count(conformance.StatusError),
		report.Count(conformance.StatusSkip),
		report.Elapsed.Round(time.Millisecond))
	if report.Passed() {
		r.Success(summary)
	} else {
		r.Error(summary)
	}
	return nil
}

// recordHistory stores the report and warns about cases that passed in the
// previous recorded run.
func recordHistory(ctx context.Context, r *output.Renderer, path string, report *conformance.Report, logger *slog.Logger) error {
	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.RecordRun(ctx, report); err != nil {
		return err
	}
	regs, err := store.Regressions(ctx, report.RunID)
	if err != nil {
		return err
	}
	for _, o := range regs {
		r.Warning(fmt.Sprintf("regression: %s/%s on %s is now %s", o.Suite, o.Case, o.Target, o.Status))
	}
	if r.Mode() != output.ModeJSON {
		r.Muted("recorded run " + report.RunID)
	}
	return nil
}
