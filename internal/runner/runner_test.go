package runner_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/runner"
	"github.com/leapstack-labs/fhirsql/internal/testutil"
	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	"github.com/leapstack-labs/fhirsql/pkg/adapters/duckdb"
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
	"github.com/leapstack-labs/fhirsql/pkg/core"
	duckdbdialect "github.com/leapstack-labs/fhirsql/pkg/dialects/duckdb"
)

type mockAdapter struct {
	adapter.BaseSQLAdapter
}

func (m *mockAdapter) Connect(context.Context, core.AdapterConfig) error { return nil }

func newMock(t *testing.T) (*runner.Runner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a := &mockAdapter{adapter.BaseSQLAdapter{DB: db, Dialect: duckdbdialect.Config}}
	return runner.New(a, compiler.New(duckdbdialect.DuckDB), runner.WithLogger(testutil.NewTestLogger(t))), mock
}

func TestQuery(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(`SELECT id, CAST\(result AS VARCHAR\) AS result FROM \(`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "result"}).
			AddRow("p1", `["Peter","James"]`).
			AddRow("p2", `[]`))

	rows, err := r.Query(context.Background(), "WITH cte_1 AS (SELECT 1) SELECT id, value AS result FROM cte_1 ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, runner.Row{ID: "p1", Result: []any{"Peter", "James"}}, rows[0])
	assert.Empty(t, rows[1].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFailures(t *testing.T) {
	tests := []struct {
		name   string
		rows   *sqlmock.Rows
		errMsg string
	}{
		{"wrong columns", sqlmock.NewRows([]string{"id"}).AddRow("p1"), "expected columns"},
		{"null result", sqlmock.NewRows([]string{"id", "result"}).AddRow("p1", nil), "result is NULL"},
		{"not an array", sqlmock.NewRows([]string{"id", "result"}).AddRow("p1", `"x"`), "expected a JSON array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMock(t)
			mock.ExpectQuery("SELECT").WillReturnRows(tt.rows)

			_, err := r.Query(context.Background(), "SELECT 1")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestQueryWithoutResultSet(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{}))

	rows, err := r.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestEvaluateCompileErrorRunsNothing(t *testing.T) {
	r, mock := newMock(t)

	_, err := r.Evaluate(context.Background(), "Patient.name.nope()", "Patient")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateDuckDB(t *testing.T) {
	if testing.Short() {
		t.Skip("duckdb integration test")
	}
	ctx := context.Background()

	a := duckdb.New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(ctx, core.AdapterConfig{}))
	defer func() { _ = a.Close() }()

	r := runner.New(a, compiler.New(duckdbdialect.DuckDB), runner.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, r.Load(ctx, []json.RawMessage{
		json.RawMessage(`{"resourceType":"Patient","id":"p1","name":[{"given":["Peter","James"],"family":"Chalmers"}]}`),
		json.RawMessage(`{"resourceType":"Patient","id":"p2"}`),
		json.RawMessage(`{"resourceType":"Observation","id":"o1"}`),
	}))

	res, err := r.Evaluate(ctx, "Patient.name.given", "Patient")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []any{"Peter", "James"}, res.Rows[0].Result)
	assert.Empty(t, res.Rows[1].Result)

	res, err = r.Evaluate(ctx, "0.1 + 0.2", "Patient")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Len(t, res.Rows[0].Result, 1)
	assert.True(t, decimal.RequireFromString("0.3").Equal(res.Rows[0].Result[0].(decimal.Decimal)))
}
