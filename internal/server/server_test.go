package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/runner"
	"github.com/leapstack-labs/fhirsql/internal/server"
	"github.com/leapstack-labs/fhirsql/internal/testutil"
	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	_ "github.com/leapstack-labs/fhirsql/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/fhirsql/pkg/adapters/postgres"
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
	"github.com/leapstack-labs/fhirsql/pkg/core"
	duckdbdialect "github.com/leapstack-labs/fhirsql/pkg/dialects/duckdb"
	_ "github.com/leapstack-labs/fhirsql/pkg/dialects/postgres"
)

type mockAdapter struct {
	adapter.BaseSQLAdapter
}

func (m *mockAdapter) Connect(context.Context, core.AdapterConfig) error { return nil }

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndDialects(t *testing.T) {
	h := server.New(server.Config{Logger: testutil.NewTestLogger(t)}).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/dialects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Contains(t, got["dialects"], "duckdb")
	assert.Contains(t, got["dialects"], "postgres")
	assert.Contains(t, got["adapters"], "duckdb")
}

func TestCompile(t *testing.T) {
	h := server.New(server.Config{Table: "fhir", Logger: testutil.NewTestLogger(t)}).Handler()

	for _, d := range []string{"duckdb", "postgres"} {
		t.Run(d, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/compile", server.CompileRequest{
				Expression:   "Patient.name.given",
				ResourceType: "Patient",
				Dialect:      d,
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp server.CompileResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, d, resp.Dialect)
			assert.Contains(t, resp.SQL, `"fhir"`)
			assert.Contains(t, resp.SQL, "SELECT id, value AS result FROM")
			assert.True(t, resp.IsCollection)
			assert.NotEmpty(t, resp.CTEs)
			assert.Equal(t, "cte_1", resp.CTEs[0].Name)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	h := server.New(server.Config{}).Handler()

	tests := []struct {
		name   string
		body   any
		status int
		stage  string
	}{
		{"missing expression", server.CompileRequest{ResourceType: "Patient"}, http.StatusBadRequest, ""},
		{"unknown dialect", server.CompileRequest{Expression: "Patient.id", ResourceType: "Patient", Dialect: "oracle"}, http.StatusBadRequest, ""},
		{"unknown field", map[string]string{"expr": "x"}, http.StatusBadRequest, ""},
		{"parse error", server.CompileRequest{Expression: "Patient.name.where(", ResourceType: "Patient"}, http.StatusUnprocessableEntity, compiler.StageParse},
		{"validation error", server.CompileRequest{Expression: "Patient.birthDate = @T10:00", ResourceType: "Patient"}, http.StatusUnprocessableEntity, compiler.StageValidate},
		{"unknown function", server.CompileRequest{Expression: "Patient.name.nope()", ResourceType: "Patient"}, http.StatusUnprocessableEntity, compiler.StageTranslate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/compile", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var resp server.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.stage, resp.Stage)
		})
	}
}

func TestEvaluateWithoutTarget(t *testing.T) {
	h := server.New(server.Config{}).Handler()
	rec := do(t, h, http.MethodPost, "/evaluate", server.EvaluateRequest{Expression: "Patient.id", ResourceType: "Patient"})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestEvaluate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	a := &mockAdapter{adapter.BaseSQLAdapter{DB: db, Dialect: duckdbdialect.Config}}
	r := runner.New(a, compiler.New(duckdbdialect.DuckDB))
	h := server.New(server.Config{Runner: r, Logger: testutil.NewTestLogger(t)}).Handler()

	mock.ExpectQuery("SELECT id, CAST").
		WillReturnRows(sqlmock.NewRows([]string{"id", "result"}).AddRow("p1", `["Peter", 1.50]`))

	rec := do(t, h, http.MethodPost, "/evaluate", server.EvaluateRequest{Expression: "Patient.name.given", ResourceType: "Patient"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp server.EvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "p1", resp.Rows[0].ID)
	assert.JSONEq(t, `["Peter",1.50]`, string(resp.Rows[0].Result))
	assert.NotEmpty(t, resp.SQL)

	mock.ExpectQuery("SELECT id, CAST").WillReturnError(assert.AnError)
	rec = do(t, h, http.MethodPost, "/evaluate", server.EvaluateRequest{Expression: "Patient.name.given", ResourceType: "Patient"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stage":"execute"`)

	rec = do(t, h, http.MethodPost, "/evaluate", server.EvaluateRequest{Expression: "Patient.name.nope()", ResourceType: "Patient"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServeListenerShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := server.New(server.Config{Logger: testutil.NewTestLogger(t)})
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz") //nolint:noctx // test request
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
