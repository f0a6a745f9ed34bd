package conformance_test

import (
	"context"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/conformance"
	"github.com/leapstack-labs/fhirsql/internal/testutil"
	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	"github.com/leapstack-labs/fhirsql/pkg/adapters/duckdb"
	"github.com/leapstack-labs/fhirsql/pkg/adapters/postgres"
	"github.com/leapstack-labs/fhirsql/pkg/core"
	duckdbdialect "github.com/leapstack-labs/fhirsql/pkg/dialects/duckdb"
)

type mockAdapter struct {
	adapter.BaseSQLAdapter
}

func (m *mockAdapter) Connect(context.Context, core.AdapterConfig) error { return nil }

func TestHarnessErrorCasesNeedNoDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s, err := conformance.ParseSuite([]byte(`
name: compile
resource: {resourceType: Patient, id: p1}
cases:
  - name: rejected
    expression: Patient.name.nope()
    error: unknown function
  - name: wrong message
    expression: Patient.name.nope()
    error: something else
  - name: compiles
    expression: Patient.name
    error: unknown function
  - name: skipped
    expression: Patient.name
    skip: [duckdb]
`))
	require.NoError(t, err)

	target := conformance.Target{
		Name:    "mock",
		Adapter: &mockAdapter{adapter.BaseSQLAdapter{DB: db, Dialect: duckdbdialect.Config}},
	}
	h := conformance.New([]conformance.Target{target},
		conformance.WithParallel(2),
		conformance.WithLogger(testutil.NewTestLogger(t)))

	report, err := h.Run(context.Background(), []*conformance.Suite{s})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 4)
	assert.NotEmpty(t, report.RunID)

	statuses := make([]conformance.Status, len(report.Outcomes))
	for i, o := range report.Outcomes {
		statuses[i] = o.Status
		assert.Equal(t, "mock", o.Target)
	}
	assert.Equal(t, []conformance.Status{
		conformance.StatusPass,
		conformance.StatusFail,
		conformance.StatusFail,
		conformance.StatusSkip,
	}, statuses)
	assert.Contains(t, report.Outcomes[2].Message, "compiled")
	assert.False(t, report.Passed())
	assert.Equal(t, 1, report.Count(conformance.StatusPass))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHarnessCancelled(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s, err := conformance.ParseSuite([]byte("resource: {resourceType: Patient}\ncases:\n  - expression: Patient.id\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := conformance.New([]conformance.Target{{
		Name:    "mock",
		Adapter: &mockAdapter{adapter.BaseSQLAdapter{DB: db, Dialect: duckdbdialect.Config}},
	}})
	_, err = h.Run(ctx, []*conformance.Suite{s})
	assert.ErrorIs(t, err, context.Canceled)
}

func runSuites(t *testing.T, target conformance.Target) {
	t.Helper()
	suites, err := conformance.LoadSuites("testdata")
	require.NoError(t, err)

	h := conformance.New([]conformance.Target{target},
		conformance.WithParallel(4),
		conformance.WithLogger(testutil.NewTestLogger(t)))
	report, err := h.Run(context.Background(), suites)
	require.NoError(t, err)

	for _, o := range report.Outcomes {
		if o.Status == conformance.StatusFail || o.Status == conformance.StatusError {
			t.Errorf("%s/%s on %s: %s: %s\n%s", o.Suite, o.Case, o.Target, o.Status, o.Message, o.SQL)
		}
	}
	assert.True(t, report.Passed())
}

func TestSuitesDuckDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DuckDB conformance run in short mode")
	}
	a := duckdb.New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(context.Background(), core.AdapterConfig{Type: "duckdb", Path: ":memory:"}))
	defer func() { _ = a.Close() }()

	runSuites(t, conformance.Target{Name: "duckdb", Adapter: a})
}

func TestSuitesDuckDBCaseInsensitiveSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DuckDB conformance run in short mode")
	}
	a := duckdb.New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(context.Background(), core.AdapterConfig{
		Type:   "duckdb",
		Path:   ":memory:",
		Params: map[string]any{"settings": map[string]any{"default_collation": "nocase"}},
	}))
	defer func() { _ = a.Close() }()

	runSuites(t, conformance.Target{Name: "duckdb-nocase", Adapter: a})
}

func TestSuitesPostgres(t *testing.T) {
	dsn := os.Getenv("FHIRSQL_POSTGRES_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("FHIRSQL_POSTGRES_DSN not set")
	}
	a := postgres.New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(context.Background(), core.AdapterConfig{Type: "postgres", Database: dsn}))
	defer func() { _ = a.Close() }()

	runSuites(t, conformance.Target{Name: "postgres", Adapter: a})
}
