package compiler_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/testutil"
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	_ "github.com/leapstack-labs/fhirsql/pkg/dialects/duckdb"
	_ "github.com/leapstack-labs/fhirsql/pkg/dialects/postgres"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
	"github.com/leapstack-labs/fhirsql/pkg/translator"
)

func compile(t *testing.T, dialectName, expr string) *compiler.Result {
	t.Helper()
	c, err := compiler.ForDialect(dialectName, compiler.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	res, err := c.Compile(expr, "Patient")
	require.NoError(t, err)
	return res
}

func TestCompileShape(t *testing.T) {
	for _, d := range []string{"duckdb", "postgres"} {
		t.Run(d, func(t *testing.T) {
			res := compile(t, d, "Patient.name.skip(1).family")
			require.Len(t, res.CTEs, 3)
			assert.True(t, strings.HasPrefix(res.SQL, "WITH cte_1 AS (SELECT src.id, src.resource, "))
			assert.Contains(t, res.SQL, "FROM cte_1 AS src")
			assert.Contains(t, res.SQL, "FROM cte_2 AS src")
			assert.True(t, strings.HasSuffix(res.SQL, "SELECT id, value AS result FROM cte_3 ORDER BY id"))
			assert.Equal(t, core.TypeString, res.Type)
			assert.True(t, res.IsCollection)
		})
	}
}

func TestCompileExactDecimals(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{"duckdb", "CAST('0.1' AS DECIMAL(1,1))"},
		{"postgres", "CAST('0.1' AS NUMERIC)"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			res := compile(t, tt.dialect, "0.1 + 0.2")
			assert.Contains(t, res.SQL, tt.want)
			assert.NotContains(t, strings.ToUpper(res.SQL), "FLOAT")
			assert.NotContains(t, strings.ToUpper(res.SQL), "DOUBLE")
			assert.Equal(t, core.TypeDecimal, res.Type)
			assert.False(t, res.IsCollection)
		})
	}
}

func TestCompileAllTrueOnEmpty(t *testing.T) {
	res := compile(t, "duckdb", "{}.allTrue()")
	require.Len(t, res.CTEs, 2)
	assert.Contains(t, res.CTEs[0].Body, "CAST('[]' AS JSON) AS value")
	assert.Contains(t, res.SQL, ", TRUE) END")
}

func TestCompileSignedConversion(t *testing.T) {
	res := compile(t, "duckdb", "'-5'.toInteger()")
	assert.Contains(t, res.SQL, "to_json([-5]) AS value")
	assert.Equal(t, core.TypeInteger, res.Type)
}

func TestCompileTopLevelJoin(t *testing.T) {
	res := compile(t, "postgres", "Patient.name.first() | Patient.telecom.first()")
	require.Len(t, res.CTEs, 5)
	assert.Contains(t, res.SQL, "FROM cte_2 AS src JOIN cte_4 AS rhs ON src.id = rhs.id")
	assert.Equal(t, []string{"cte_2", "cte_4"}, res.CTEs[4].DependsOn)
}

func TestCompileErrors(t *testing.T) {
	c, err := compiler.ForDialect("duckdb")
	require.NoError(t, err)

	t.Run("time against date", func(t *testing.T) {
		res, err := c.Compile("Patient.birthDate = @T10:00", "Patient")
		assert.Nil(t, res)
		var ie *translator.IncompatibleError
		require.ErrorAs(t, err, &ie)
		assert.Contains(t, err.Error(), "Date and Time")
	})

	t.Run("parse error", func(t *testing.T) {
		res, err := c.Compile("Patient.name.where(", "Patient")
		assert.Nil(t, res)
		var pe *fhirpath.ParseError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("unknown function", func(t *testing.T) {
		res, err := c.Compile("Patient.name.nope()", "Patient")
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, translator.ErrUnknownFunction))
	})

	t.Run("missing resource type", func(t *testing.T) {
		_, err := c.Compile("name", "")
		assert.Error(t, err)
	})
}

func TestForDialectUnknown(t *testing.T) {
	_, err := compiler.ForDialect("oracle")
	var ue *dialect.UnknownDialectError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Available, "duckdb")
	assert.Contains(t, ue.Available, "postgres")
}

func TestWithTable(t *testing.T) {
	c, err := compiler.ForDialect("postgres", compiler.WithTable("fhir"))
	require.NoError(t, err)
	res, err := c.Compile("Patient.gender", "Patient")
	require.NoError(t, err)
	assert.Contains(t, res.SQL, `FROM "fhir" AS src WHERE`)
}

func TestCompileConcurrently(t *testing.T) {
	c, err := compiler.ForDialect("duckdb")
	require.NoError(t, err)

	want, err := c.Compile("Patient.name.where(use = 'official').given.first()", "Patient")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Compile("Patient.name.where(use = 'official').given.first()", "Patient")
			assert.NoError(t, err)
			assert.Equal(t, want.SQL, got.SQL)
		}()
	}
	wg.Wait()
}

func TestStage(t *testing.T) {
	c, err := compiler.ForDialect("duckdb")
	require.NoError(t, err)

	tests := []struct {
		expr string
		want string
	}{
		{"Patient.name.where(", compiler.StageParse},
		{"'abc", compiler.StageParse},
		{"Patient.birthDate = @T10:00", compiler.StageValidate},
		{"Patient.name.nope()", compiler.StageTranslate},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := c.Compile(tt.expr, "Patient")
			require.Error(t, err)
			assert.Equal(t, tt.want, compiler.Stage(err))
		})
	}
}
