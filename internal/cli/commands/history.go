package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fhirsql/internal/cli/config"
	"github.com/leapstack-labs/fhirsql/internal/cli/output"
	"github.com/leapstack-labs/fhirsql/internal/conformance"
	"github.com/leapstack-labs/fhirsql/internal/state"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	History     string
	Limit       int
	All         bool
	Regressions bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded conformance runs",
		Long: `List the conformance runs recorded with --history, or show the outcomes
of a single run.`,
		Example: `  fhirsql history --history .fhirsql/history.db
  fhirsql history 0b7c... --regressions`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.History, "history", "", "SQLite file holding the run history")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Number of runs to list")
	cmd.Flags().BoolVar(&opts.All, "all", false, "List passing and skipped cases too")
	cmd.Flags().BoolVar(&opts.Regressions, "regressions", false, "Only cases that passed in the previous run")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string, opts *HistoryOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	r := output.FromContext(ctx)

	path := cfg.Project().Conformance.History
	if opts.History != "" {
		path = opts.History
	}
	if path == "" {
		return fmt.Errorf("no history file given and none configured under conformance.history")
	}

	store := state.NewSQLiteStore(config.GetLogger(ctx))
	if err := store.Open(path); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(args) == 0 {
		runs, err := store.ListRuns(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if r.Mode() == output.ModeJSON {
			return r.JSON(runs)
		}
		rows := make([][]string, len(runs))
		for i, run := range runs {
			rows[i] = []string{
				run.ID,
				run.Started.Local().Format(time.DateTime),
				strconv.Itoa(run.Passed),
				strconv.Itoa(run.Failed),
				strconv.Itoa(run.Errored),
				strconv.Itoa(run.Skipped),
				run.Elapsed.Round(time.Millisecond).String(),
			}
		}
		return r.Table([]string{"run", "started", "passed", "failed", "errored", "skipped", "elapsed"}, rows)
	}

	var (
		outcomes []conformance.Outcome
		err      error
	)
	if opts.Regressions {
		outcomes, err = store.Regressions(ctx, args[0])
	} else {
		if _, err = store.GetRun(ctx, args[0]); err == nil {
			outcomes, err = store.Outcomes(ctx, args[0])
		}
	}
	if err != nil {
		return err
	}

	if r.Mode() == output.ModeJSON {
		return r.JSON(outcomes)
	}
	var rows [][]string
	for _, o := range outcomes {
		if !opts.All && (o.Status == conformance.StatusPass || o.Status == conformance.StatusSkip) {
			continue
		}
		rows = append(rows, []string{o.Suite, o.Case, o.Target, string(o.Status), o.Message})
	}
	return r.Table([]string{"suite", "case", "target", "status", "message"}, rows)
}
