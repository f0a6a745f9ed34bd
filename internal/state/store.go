// Package state records conformance runs in SQLite so results can be
// compared across runs.
package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/fhirsql/internal/conformance"
)

// Run summarizes one recorded conformance run.
type Run struct {
	ID      string        `json:"id"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsedNs"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Errored int           `json:"errored"`
	Skipped int           `json:"skipped"`
}

// Store persists conformance runs.
type Store interface {
	RecordRun(ctx context.Context, report *conformance.Report) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Outcomes(ctx context.Context, runID string) ([]conformance.Outcome, error)
	Regressions(ctx context.Context, runID string) ([]conformance.Outcome, error)
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
