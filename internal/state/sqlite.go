package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/leapstack-labs/fhirsql/internal/conformance"
)

var errNotOpen = errors.New("database not opened")

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore implements Store on a SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a store. A nil logger discards output.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened state store", slog.String("path", path))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores a report and its outcomes in one transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, report *conformance.Report) error {
	if s.db == nil {
		return errNotOpen
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, elapsed_ns, passed, failed, errored, skipped) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Started.UnixNano(), int64(report.Elapsed),
		report.Count(conformance.StatusPass),
		report.Count(conformance.StatusFail),
		report.Count(conformance.StatusError),
		report.Count(conformance.StatusSkip))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, suite, case_name, target, status, message, elapsed_ns) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, o := range report.Outcomes {
		if _, err := stmt.ExecContext(ctx, report.RunID, o.Suite, o.Case, o.Target, string(o.Status), o.Message, int64(o.Elapsed)); err != nil {
			return fmt.Errorf("failed to record outcome %s/%s: %w", o.Suite, o.Case, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("recorded run", slog.String("id", report.RunID), slog.Int("outcomes", len(report.Outcomes)))
	return nil
}

const runColumns = `id, started_at, elapsed_ns, passed, failed, errored, skipped`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		r       Run
		started int64
		elapsed int64
	)
	if err := row.Scan(&r.ID, &started, &elapsed, &r.Passed, &r.Failed, &r.Errored, &r.Skipped); err != nil {
		return nil, err
	}
	r.Started = time.Unix(0, started).UTC()
	r.Elapsed = time.Duration(elapsed)
	return &r, nil
}

// GetRun retrieves a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes returns a run's outcomes in recorded order.
func (s *SQLiteStore) Outcomes(ctx context.Context, runID string) ([]conformance.Outcome, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	return s.queryOutcomes(ctx,
		`SELECT suite, case_name, target, status, message, elapsed_ns FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
}

// Regressions returns the outcomes of runID that failed or errored while
// the same case on the same target passed in the run before it.
func (s *SQLiteStore) Regressions(ctx context.Context, runID string) ([]conformance.Outcome, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.queryOutcomes(ctx, `
		WITH prev AS (
			SELECT id FROM runs
			WHERE started_at < (SELECT started_at FROM runs WHERE id = ?1)
			ORDER BY started_at DESC LIMIT 1
		)
		SELECT cur.suite, cur.case_name, cur.target, cur.status, cur.message, cur.elapsed_ns
		FROM outcomes AS cur
		JOIN outcomes AS old
			ON old.run_id = (SELECT id FROM prev)
			AND old.suite = cur.suite AND old.case_name = cur.case_name AND old.target = cur.target
		WHERE cur.run_id = ?1
			AND cur.status IN ('fail', 'error')
			AND old.status = 'pass'
		ORDER BY cur.id`, runID)
}

func (s *SQLiteStore) queryOutcomes(ctx context.Context, query string, args ...any) ([]conformance.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []conformance.Outcome
	for rows.Next() {
		var (
			o       conformance.Outcome
			status  string
			elapsed int64
		)
		if err := rows.Scan(&o.Suite, &o.Case, &o.Target, &status, &o.Message, &elapsed); err != nil {
			return nil, err
		}
		o.Status = conformance.Status(status)
		o.Elapsed = time.Duration(elapsed)
		out = append(out, o)
	}
	return out, rows.Err()
}
