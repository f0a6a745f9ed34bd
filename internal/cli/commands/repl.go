package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fhirsql/internal/cli/config"
	"github.com/leapstack-labs/fhirsql/internal/cli/output"
	"github.com/leapstack-labs/fhirsql/internal/runner"
)

// ReplOptions holds options for the repl command.
type ReplOptions struct {
	ResourceType string
	Data         []string
}

// NewReplCommand creates the repl command.
func NewReplCommand() *cobra.Command {
	opts := &ReplOptions{}

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Evaluate FHIRPath expressions interactively",
		Long: `Start an interactive session on the target database. Each line is an
expression evaluated against the resource table; lines starting with a dot
are session commands (.help lists them).`,
		Example: `  fhirsql repl --data fixtures/patients.ndjson`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ResourceType, "resource-type", "r", "", "Resource type expressions are evaluated against (default: first path segment)")
	cmd.Flags().StringSliceVar(&opts.Data, "data", nil, "Resource files or directories to load first")

	return cmd
}

func runRepl(cmd *cobra.Command, opts *ReplOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	r := output.FromContext(ctx)

	run, a, err := openRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	s := &replSession{runner: run, out: r, resourceType: opts.ResourceType}
	if len(opts.Data) > 0 {
		s.load(ctx, opts.Data)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.Styles().Prompt.Render("fhirsql> "),
		HistoryFile:     historyFile(),
		AutoComplete:    replCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          r.Out(),
		Stderr:          r.Err(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r.Println(fmt.Sprintf("fhirsql REPL (%s, table %s)", a.DialectConfig().Name, cfg.Table))
	r.Muted("Type .help for commands, .quit to exit")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.handle(ctx, line) {
			return nil
		}
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fhirsql_history")
}

func replCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".type"),
		readline.PcItem(".sql"),
		readline.PcItem(".load"),
		readline.PcItem(".compile"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}

// replSession holds the state of an interactive session.
type replSession struct {
	runner       *runner.Runner
	out          *output.Renderer
	resourceType string
	showSQL      bool
}

// handle processes one input line and reports whether the session ends.
func (s *replSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, ".") {
		return s.command(ctx, line)
	}
	s.evaluate(ctx, line)
	return false
}

func (s *replSession) command(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(s.out.Out())

	case ".type":
		if len(parts) < 2 {
			s.resourceType = ""
			s.out.Muted("resource type: inferred from each expression")
			return false
		}
		s.resourceType = parts[1]
		s.out.Muted("resource type: " + s.resourceType)

	case ".sql":
		s.showSQL = !s.showSQL
		s.out.Muted(fmt.Sprintf("show SQL: %v", s.showSQL))

	case ".load":
		if len(parts) < 2 {
			s.out.Error("Usage: .load <file or directory>...")
			return false
		}
		s.load(ctx, parts[1:])

	case ".compile":
		expr := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		if expr == "" {
			s.out.Error("Usage: .compile <expression>")
			return false
		}
		s.compile(expr)

	case ".clear":
		_, _ = fmt.Fprint(s.out.Out(), "\033[H\033[2J")

	default:
		s.out.Error(fmt.Sprintf("Unknown command: %s (type .help for commands)", parts[0]))
	}
	return false
}

func (s *replSession) load(ctx context.Context, paths []string) {
	n, err := loadData(ctx, s.runner, paths)
	if err != nil {
		s.out.Error(fmt.Sprintf("Error: %v", err))
		return
	}
	s.out.Success(fmt.Sprintf("loaded %d resources", n))
}

func (s *replSession) compile(expr string) {
	rt, err := resolveResourceType(s.resourceType, expr)
	if err != nil {
		s.out.Error(fmt.Sprintf("Error: %v", err))
		return
	}
	res, err := s.runner.Compiler().Compile(expr, rt)
	if err != nil {
		s.out.Error(fmt.Sprintf("Error: %v", err))
		return
	}
	s.out.SQL(res.SQL)
}

func (s *replSession) evaluate(ctx context.Context, expr string) {
	rt, err := resolveResourceType(s.resourceType, expr)
	if err != nil {
		s.out.Error(fmt.Sprintf("Error: %v", err))
		return
	}
	res, err := s.runner.Evaluate(ctx, expr, rt)
	if err != nil {
		s.out.Error(fmt.Sprintf("Error: %v", err))
		return
	}
	if s.showSQL {
		s.out.SQL(res.Compiled.SQL)
	}
	if err := renderRows(s.out, res); err != nil {
		s.out.Error(fmt.Sprintf("Error: %v", err))
	}
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help              Show this help message
  .type [Resource]   Set the resource type (no argument: infer it)
  .sql               Toggle printing the compiled SQL
  .load <path>...    Replace the resource table with resources from files
  .compile <expr>    Print the SQL for an expression without running it
  .clear             Clear the screen
  .quit / .exit      Exit the REPL

Tips:
  - Any other line is evaluated as a FHIRPath expression
  - Use arrow keys to navigate history
`
	_, _ = fmt.Fprintln(w, help)
}
