package commands

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/cli/config"
	"github.com/leapstack-labs/fhirsql/internal/cli/output"
	"github.com/leapstack-labs/fhirsql/internal/cli/testutil"
	"github.com/leapstack-labs/fhirsql/internal/conformance"
	"github.com/leapstack-labs/fhirsql/internal/runner"
	"github.com/leapstack-labs/fhirsql/internal/state"
	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
	"github.com/leapstack-labs/fhirsql/pkg/core"
	duckdbdialect "github.com/leapstack-labs/fhirsql/pkg/dialects/duckdb"
)

const patients = `{"resourceType":"Patient","id":"p1","name":[{"given":["Peter","James"]}]}
{"resourceType":"Patient","id":"p2","name":[{"given":["Jim"]}]}
`

func execute(t *testing.T, cmd *cobra.Command, cfg *config.Config, mode output.Mode, args ...string) (*testutil.TestRenderer, error) {
	t.Helper()
	tr := testutil.NewTestRenderer(mode, false)
	cmd.SetArgs(args)
	cmd.SetOut(tr.Out)
	cmd.SetErr(tr.ErrOut)
	err := cmd.ExecuteContext(testutil.Context(t, cfg, tr))
	return tr, err
}

func TestResolveResourceType(t *testing.T) {
	tests := []struct {
		explicit string
		expr     string
		want     string
		wantErr  bool
	}{
		{"", "Patient.name.given", "Patient", false},
		{"", "  Observation", "Observation", false},
		{"", "Patient", "Patient", false},
		{"Observation", "value", "Observation", false},
		{"", "name.given", "", true},
		{"", "1 + 2", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := resolveResourceType(tt.explicit, tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadExpression(t *testing.T) {
	dir := t.TempDir()
	file := testutil.WriteFile(t, dir, "expr.fhirpath", "  Patient.gender\n")
	empty := testutil.WriteFile(t, dir, "empty.fhirpath", "\n")

	got, err := readExpression(nil, file)
	require.NoError(t, err)
	assert.Equal(t, "Patient.gender", got)

	got, err = readExpression([]string{"Patient.name", "|", "Patient.id"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Patient.name | Patient.id", got)

	_, err = readExpression(nil, "")
	assert.Error(t, err)
	_, err = readExpression(nil, empty)
	assert.Error(t, err)
	_, err = readExpression(nil, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestCompileCommand(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		tr, err := execute(t, NewCompileCommand(), nil, output.ModeAuto, "Patient.name.given")
		require.NoError(t, err)
		assert.Contains(t, tr.Output(), "```sql\nWITH cte_1 AS (")
		testutil.AssertNoANSI(t, tr.Output())
	})

	t.Run("json for postgres", func(t *testing.T) {
		tr, err := execute(t, NewCompileCommand(), nil, output.ModeJSON, "-d", "postgres", "Patient.gender")
		require.NoError(t, err)

		var got compiledJSON
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
		assert.Equal(t, "postgres", got.Dialect)
		assert.Equal(t, "Patient", got.ResourceType)
		assert.Equal(t, "Patient.gender", got.Expression)
		assert.NotEmpty(t, got.CTEs)
		assert.Contains(t, got.SQL, "#>> '{}'")
	})

	t.Run("ctes", func(t *testing.T) {
		tr, err := execute(t, NewCompileCommand(), nil, output.ModeMarkdown, "--ctes", "Patient.name.first()")
		require.NoError(t, err)
		assert.Contains(t, tr.Output(), "| cte | depends on |")
		assert.Contains(t, tr.Output(), "cte_2")
	})

	t.Run("file", func(t *testing.T) {
		file := testutil.WriteFile(t, t.TempDir(), "expr.fhirpath", "Observation.status")
		tr, err := execute(t, NewCompileCommand(), nil, output.ModeMarkdown, "-f", file)
		require.NoError(t, err)
		assert.Contains(t, tr.Output(), "'Observation'")
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			args   []string
			errMsg string
		}{
			{[]string{"Patient.name.where("}, "parse error"},
			{[]string{"Patient.name.nope()"}, "unknown function"},
			{[]string{"-d", "oracle", "Patient.id"}, "unknown dialect"},
			{[]string{"--watch", "Patient.id"}, "--watch requires --file"},
			{[]string{"name"}, "--resource-type"},
			{nil, "expression argument"},
		}
		for _, tt := range tests {
			_, err := execute(t, NewCompileCommand(), nil, output.ModeMarkdown, tt.args...)
			require.Error(t, err, tt.args)
			assert.Contains(t, err.Error(), tt.errMsg)
		}
	})
}

func TestDialectsCommand(t *testing.T) {
	tr, err := execute(t, NewDialectsCommand(), nil, output.ModeCSV)
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "dialect,json type,decimal type,placeholder,adapter")
	assert.Contains(t, tr.Output(), "duckdb,JSON,")
	assert.Contains(t, tr.Output(), "postgres,jsonb,NUMERIC,$1,yes")
}

func TestVersionCommand(t *testing.T) {
	tr, err := execute(t, NewVersionCommand("1.2.3"), nil, output.ModeAuto)
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "fhirsql v1.2.3")
}

func TestServeCommandFlags(t *testing.T) {
	_, err := execute(t, NewServeCommand(), nil, output.ModeAuto, "--watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch requires --data")
}

func TestRunCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DuckDB test in short mode")
	}
	data := testutil.WriteFile(t, t.TempDir(), "patients.ndjson", patients)

	tr, err := execute(t, NewRunCommand(), nil, output.ModeJSON, "--data", data, "Patient.name.given")
	require.NoError(t, err)

	var rows []rowJSON
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "p1", rows[0].ID)
	assert.JSONEq(t, `["Peter","James"]`, string(rows[0].Result))
	assert.JSONEq(t, `["Jim"]`, string(rows[1].Result))

	tr, err = execute(t, NewRunCommand(), nil, output.ModeMarkdown, "--data", data, "--sql", "Patient.name.given.count()")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "```sql")
	assert.Contains(t, tr.Output(), "| p1 | [2]")
}

func TestConformanceCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DuckDB test in short mode")
	}
	suites := filepath.Join("..", "..", "conformance", "testdata")

	tr, err := execute(t, NewConformanceCommand(), nil, output.ModeMarkdown, suites)
	require.NoError(t, err, tr.Output())
	assert.Contains(t, tr.Output(), "0 failed, 0 errored")

	failing := testutil.WriteFile(t, t.TempDir(), "failing.yaml", `
name: failing
resource: {resourceType: Patient, id: p1, gender: male}
cases:
  - name: wrong gender
    expression: Patient.gender
    expected: female
`)
	history := filepath.Join(t.TempDir(), "history.db")
	tr, err = execute(t, NewConformanceCommand(), nil, output.ModeMarkdown, "--parallel", "2", "--history", history, failing)
	require.Error(t, err)
	assert.Contains(t, tr.Output(), "recorded run")
	assert.Contains(t, err.Error(), "1 failed")
	assert.Contains(t, tr.Output(), "wrong gender")
	assert.Contains(t, tr.Output(), `expected ["female"], got ["male"]`)

	_, err = execute(t, NewConformanceCommand(), nil, output.ModeMarkdown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suites")
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []conformance.Status{conformance.StatusPass, conformance.StatusFail} {
		require.NoError(t, store.RecordRun(context.Background(), &conformance.Report{
			RunID:   "run-" + strconv.Itoa(i+1),
			Started: base.Add(time.Duration(i) * time.Hour),
			Outcomes: []conformance.Outcome{
				{Suite: "paths", Case: "given", Target: "duckdb", Status: st, Message: "boom"},
			},
		}))
	}
	require.NoError(t, store.Close())

	tr, err := execute(t, NewHistoryCommand(), nil, output.ModeCSV, "--history", path)
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "run,started,passed,failed,errored,skipped,elapsed")
	assert.Contains(t, tr.Output(), "run-2,")
	assert.Less(t, strings.Index(tr.Output(), "run-2"), strings.Index(tr.Output(), "run-1"))

	tr, err = execute(t, NewHistoryCommand(), nil, output.ModeCSV, "--history", path, "--regressions", "run-2")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "paths,given,duckdb,fail,boom")

	tr, err = execute(t, NewHistoryCommand(), nil, output.ModeCSV, "--history", path, "run-1")
	require.NoError(t, err)
	assert.NotContains(t, tr.Output(), "given")

	_, err = execute(t, NewHistoryCommand(), nil, output.ModeCSV, "--history", path, "missing")
	require.ErrorIs(t, err, state.ErrRunNotFound)

	_, err = execute(t, NewHistoryCommand(), nil, output.ModeCSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no history file")
}

type mockAdapter struct {
	adapter.BaseSQLAdapter
}

func (m *mockAdapter) Connect(context.Context, core.AdapterConfig) error { return nil }

func newSession(t *testing.T) (*replSession, *testutil.TestRenderer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a := &mockAdapter{adapter.BaseSQLAdapter{DB: db, Dialect: duckdbdialect.Config}}
	tr := testutil.NewTestRenderer(output.ModeMarkdown, false)
	s := &replSession{runner: runner.New(a, compiler.New(duckdbdialect.DuckDB)), out: tr.Renderer}
	return s, tr, mock
}

func TestReplSession(t *testing.T) {
	ctx := context.Background()

	t.Run("commands", func(t *testing.T) {
		s, tr, _ := newSession(t)
		assert.False(t, s.handle(ctx, ""))
		assert.False(t, s.handle(ctx, ".help"))
		assert.Contains(t, tr.Output(), ".compile <expr>")

		assert.False(t, s.handle(ctx, ".type Observation"))
		assert.Equal(t, "Observation", s.resourceType)
		assert.False(t, s.handle(ctx, ".type"))
		assert.Empty(t, s.resourceType)

		assert.False(t, s.handle(ctx, ".sql"))
		assert.True(t, s.showSQL)

		assert.False(t, s.handle(ctx, ".bogus"))
		assert.Contains(t, tr.ErrorOutput(), "Unknown command: .bogus")

		assert.False(t, s.handle(ctx, ".load"))
		assert.Contains(t, tr.ErrorOutput(), "Usage: .load")

		assert.True(t, s.handle(ctx, ".quit"))
		assert.True(t, s.handle(ctx, ".EXIT"))
	})

	t.Run("compile", func(t *testing.T) {
		s, tr, _ := newSession(t)
		s.handle(ctx, ".compile Patient.gender")
		assert.Contains(t, tr.Output(), "```sql\nWITH cte_1")

		s.handle(ctx, ".compile gender")
		assert.Contains(t, tr.ErrorOutput(), "--resource-type")
	})

	t.Run("evaluate", func(t *testing.T) {
		s, tr, mock := newSession(t)
		mock.ExpectQuery("SELECT id, CAST").
			WillReturnRows(sqlmock.NewRows([]string{"id", "result"}).AddRow("p1", `["male"]`))

		assert.False(t, s.handle(ctx, "Patient.gender"))
		assert.Contains(t, tr.Output(), `| p1 | ["male"] |`)

		s.handle(ctx, "Patient.gender.nope()")
		assert.Contains(t, tr.ErrorOutput(), "unknown function")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
