package duckdb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/testutil"
	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	"github.com/leapstack-labs/fhirsql/pkg/core"
)

func connect(t *testing.T, cfg core.AdapterConfig) *Adapter {
	t.Helper()
	if testing.Short() {
		t.Skip("duckdb integration test")
	}
	adp := New(testutil.NewTestLogger(t))
	require.NoError(t, adp.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = adp.Close() })
	return adp
}

func TestAdapter_Connect(t *testing.T) {
	tests := []struct {
		name      string
		setupPath func(t *testing.T) string
		verify    func(t *testing.T, path string)
	}{
		{
			name:      "in-memory",
			setupPath: func(_ *testing.T) string { return ":memory:" },
		},
		{
			name:      "empty path",
			setupPath: func(_ *testing.T) string { return "" },
		},
		{
			name: "file-based",
			setupPath: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "fhir.duckdb")
			},
			verify: func(t *testing.T, path string) {
				_, err := os.Stat(path)
				assert.False(t, os.IsNotExist(err), "database file was not created")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.setupPath(t)
			adp := connect(t, core.AdapterConfig{Type: "duckdb", Path: path})
			assert.True(t, adp.IsConnected())
			assert.Equal(t, "duckdb", adp.DialectConfig().Name)
			if tt.verify != nil {
				tt.verify(t, path)
			}
		})
	}
}

func TestAdapter_ConnectAppliesSettings(t *testing.T) {
	adp := connect(t, core.AdapterConfig{
		Params: map[string]any{"settings": map[string]any{"threads": 2}},
	})

	rows, err := adp.Query(context.Background(), "SELECT current_setting('threads')")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	require.True(t, rows.Next())
	var threads int64
	require.NoError(t, rows.Scan(&threads))
	assert.Equal(t, int64(2), threads)
}

func TestAdapter_ConnectRejectsBadParams(t *testing.T) {
	adp := New(nil)
	err := adp.Connect(context.Background(), core.AdapterConfig{
		Params: map[string]any{"settings": map[string]any{"threads; DROP": "1"}},
	})
	require.Error(t, err)
	assert.False(t, adp.IsConnected())
}

func TestAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	assert.Error(t, adp.Exec(ctx, "SELECT 1"))
	_, err := adp.Query(ctx, "SELECT 1")
	assert.Error(t, err)
	assert.NoError(t, adp.Close())
}

func TestAdapter_LoadResources(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{})

	resources := []json.RawMessage{
		json.RawMessage(`{"resourceType":"Patient","id":"p1","gender":"female"}`),
		json.RawMessage(`{"resourceType":"Patient","id":"p2","name":[{"given":["Ann"]}]}`),
	}
	require.NoError(t, adp.LoadResources(ctx, "resources", resources))

	rows, err := adp.Query(ctx, `SELECT id, json_extract_string(resource, '$.resourceType') FROM resources ORDER BY id`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id, rt string
		require.NoError(t, rows.Scan(&id, &rt))
		assert.Equal(t, "Patient", rt)
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"p1", "p2"}, ids)

	// Loading again replaces the table.
	require.NoError(t, adp.LoadResources(ctx, "resources", resources[:1]))
	rows2, err := adp.Query(ctx, "SELECT COUNT(*) FROM resources")
	require.NoError(t, err)
	defer func() { _ = rows2.Close() }()
	require.True(t, rows2.Next())
	var n int64
	require.NoError(t, rows2.Scan(&n))
	assert.Equal(t, int64(1), n)
}

func TestAdapter_ExecutionErrorCarriesSQL(t *testing.T) {
	adp := connect(t, core.AdapterConfig{})

	_, err := adp.Query(context.Background(), "SELECT CAST('x' AS INTEGER)")
	var ee *adapter.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "SELECT CAST('x' AS INTEGER)", ee.SQL)
	assert.False(t, adapter.IsTransient(err))
}

func TestRegistered(t *testing.T) {
	a, err := adapter.NewAdapter(core.AdapterConfig{Type: "duckdb"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Adapter{}, a)
}
