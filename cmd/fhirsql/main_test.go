package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/cli"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fhirsql v"+cli.Version)
}

func TestSubcommands(t *testing.T) {
	cmd := cli.NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"compile", "run", "repl", "conformance", "history", "serve", "dialects", "version", "completion"} {
		assert.Contains(t, names, want)
	}
}

func TestCompileWithFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "compile", "--engine", "postgres", "--table", "fhir", "-o", "json", "Patient.id")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "postgres", got["dialect"])
	assert.Contains(t, got["sql"], `FROM "fhir" AS src`)
}

func TestCompileUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fhirsql.yaml"), []byte(`
table: stored
target:
  type: postgres
  database: fhir
environments:
  prod:
    table: prod_resources
`), 0o600))
	t.Chdir(dir)

	out, err := execute(t, "compile", "-o", "json", "Patient.id")
	require.NoError(t, err)
	assert.Contains(t, out, `\"stored\"`)

	out, err = execute(t, "compile", "-t", "prod", "-o", "json", "Patient.id")
	require.NoError(t, err)
	assert.Contains(t, out, `\"prod_resources\"`)
}

func TestInvalidOutputFormat(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "compile", "-o", "xml", "Patient.id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestUnknownEngine(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "compile", "--engine", "oracle", "Patient.id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid target configuration")
}

func TestCompletion(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "fhirsql")
}
