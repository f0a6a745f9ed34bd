package runner_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/runner"
)

func TestSplitResources(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", `{"resourceType":"Patient","id":"a"}`, []string{`{"resourceType":"Patient","id":"a"}`}},
		{"array", `[{"resourceType":"Patient","id":"a"},{"resourceType":"Patient","id":"b"}]`,
			[]string{`{"resourceType":"Patient","id":"a"}`, `{"resourceType":"Patient","id":"b"}`}},
		{"bundle", `{"resourceType":"Bundle","entry":[{"resource":{"resourceType":"Patient","id":"a"}},{"fullUrl":"x"}]}`,
			[]string{`{"resourceType":"Patient","id":"a"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runner.SplitResources([]byte(tt.input))
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.JSONEq(t, tt.want[i], string(got[i]))
			}
		})
	}

	_, err := runner.SplitResources([]byte("  "))
	assert.Error(t, err)
	_, err = runner.SplitResources([]byte("{"))
	assert.Error(t, err)
}

func TestReadResources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`{"resourceType":"Patient","id":"a"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.ndjson"),
		[]byte("{\"resourceType\":\"Patient\",\"id\":\"b\"}\n\n{\"resourceType\":\"Patient\",\"id\":\"c\"}\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	got, err := runner.ReadResources(dir)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = runner.ReadResources(filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.ndjson"), []byte("{\"a\":1}\nnope\n"), 0o600))
	_, err = runner.ReadResources(filepath.Join(dir, "bad.ndjson"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = runner.ReadResources(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
