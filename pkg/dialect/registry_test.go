package dialect_test

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	_ "github.com/leapstack-labs/fhirsql/pkg/dialects/duckdb"
	_ "github.com/leapstack-labs/fhirsql/pkg/dialects/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"duckdb", "postgres"}, dialect.List())

	d, ok := dialect.Get("DuckDB")
	require.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, "duckdb", d.Name())

	_, ok = dialect.Get("oracle")
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	d, err := dialect.Lookup("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = dialect.Lookup("")
	assert.True(t, errors.Is(err, dialect.ErrDialectRequired))

	_, err = dialect.Lookup("oracle")
	var unknown *dialect.UnknownDialectError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "oracle", unknown.Name)
	assert.Contains(t, err.Error(), "duckdb, postgres")
}

func TestJSONKindString(t *testing.T) {
	assert.Equal(t, "boolean", dialect.KindBoolean.String())
	assert.Equal(t, "unknown", dialect.JSONKind(42).String())
}
