package conformance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/fhirsql/internal/runner"
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
)

// Status is the outcome of one case on one target.
type Status string

// Case outcomes.
const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
	StatusSkip  Status = "skip"
)

// Target is a connected adapter cases run against.
type Target struct {
	Name    string
	Adapter core.Adapter
}

// Outcome is the result of one case on one target.
type Outcome struct {
	Suite   string        `json:"suite"`
	Case    string        `json:"case"`
	Target  string        `json:"target"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	SQL     string        `json:"sql,omitempty"`
	Got     []any         `json:"-"`
	Elapsed time.Duration `json:"elapsedNs"`
}

// Report collects every outcome of a run.
type Report struct {
	RunID    string        `json:"runId"`
	Started  time.Time     `json:"started"`
	Outcomes []Outcome     `json:"outcomes"`
	Elapsed  time.Duration `json:"elapsedNs"`
}

// Count returns the number of outcomes with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Passed reports whether no case failed or errored.
func (r *Report) Passed() bool {
	return r.Count(StatusFail) == 0 && r.Count(StatusError) == 0
}

// Harness runs suites against targets.
type Harness struct {
	targets  []Target
	parallel int
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithParallel bounds the number of cases in flight.
func WithParallel(n int) Option {
	return func(h *Harness) {
		if n > 0 {
			h.parallel = n
		}
	}
}

// New creates a harness for targets.
func New(targets []Target, opts ...Option) *Harness {
	h := &Harness{
		targets:  targets,
		parallel: 1,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes every case of suites on every target. Case failures are
// recorded in the report; the returned error is for a cancelled context
// or an unusable target.
func (h *Harness) Run(ctx context.Context, suites []*Suite) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Started: start.UTC()}
	log := h.logger.With(slog.String("run", report.RunID))

	dialects := make(map[string]dialect.Dialect, len(h.targets))
	for _, t := range h.targets {
		d, err := dialect.Lookup(t.Adapter.DialectConfig().Name)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Name, err)
		}
		dialects[t.Name] = d
	}

	total := 0
	for _, s := range suites {
		total += len(s.Cases) * len(h.targets)
	}
	report.Outcomes = make([]Outcome, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallel)

	i := 0
	for _, s := range suites {
		for _, c := range s.Cases {
			for _, t := range h.targets {
				slot := i
				i++
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}
					o := h.runCase(gctx, t, dialects[t.Name], s, c)
					log.Debug("case finished",
						slog.String("suite", s.Name),
						slog.String("case", c.Name),
						slog.String("target", t.Name),
						slog.String("status", string(o.Status)))
					report.Outcomes[slot] = o
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Elapsed = time.Since(start)
	log.Info("conformance run finished",
		slog.Int("pass", report.Count(StatusPass)),
		slog.Int("fail", report.Count(StatusFail)),
		slog.Int("error", report.Count(StatusError)),
		slog.Int("skip", report.Count(StatusSkip)),
		slog.Duration("elapsed", report.Elapsed))
	return report, nil
}

func (h *Harness) runCase(ctx context.Context, t Target, d dialect.Dialect, s *Suite, c *Case) (o Outcome) {
	o = Outcome{Suite: s.Name, Case: c.Name, Target: t.Name}
	if c.SkipsDialect(d.Name()) {
		o.Status = StatusSkip
		return o
	}

	table := "fixture_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	r := runner.New(t.Adapter,
		compiler.New(d, compiler.WithTable(table), compiler.WithLogger(h.logger)),
		runner.WithLogger(h.logger))

	start := time.Now()
	defer func() { o.Elapsed = time.Since(start) }()

	if c.Error != "" {
		_, err := r.Compiler().Compile(c.Expression, c.resourceType)
		switch {
		case err == nil:
			o.Status = StatusFail
			o.Message = fmt.Sprintf("expected error containing %q, compiled", c.Error)
		case !strings.Contains(err.Error(), c.Error):
			o.Status = StatusFail
			o.Message = fmt.Sprintf("expected error containing %q, got %v", c.Error, err)
		default:
			o.Status = StatusPass
		}
		return o
	}

	if err := r.Load(ctx, []json.RawMessage{c.fixture}); err != nil {
		o.Status = StatusError
		o.Message = fmt.Sprintf("load fixture: %v", err)
		return o
	}
	defer func() {
		if err := t.Adapter.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+d.QuoteIdentifier(table)); err != nil {
			h.logger.Warn("drop fixture table", slog.String("table", table), slog.Any("error", err))
		}
	}()

	res, err := r.Evaluate(ctx, c.Expression, c.resourceType)
	if err != nil {
		o.Status = StatusError
		o.Message = err.Error()
		return o
	}
	o.SQL = res.Compiled.SQL

	var got []any
	if len(res.Rows) > 0 {
		got = res.Rows[0].Result
	}
	if got == nil {
		got = []any{}
	}
	o.Got = got

	if runner.Equal(got, c.expected) {
		o.Status = StatusPass
		return o
	}
	o.Status = StatusFail
	o.Message = fmt.Sprintf("expected %s, got %s", runner.Render(c.expected), runner.Render(got))
	return o
}
