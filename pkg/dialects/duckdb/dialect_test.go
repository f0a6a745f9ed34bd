package duckdb_test

import (
	"testing"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	"github.com/leapstack-labs/fhirsql/pkg/dialects/duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistered(t *testing.T) {
	d, ok := dialect.Get("duckdb")
	require.True(t, ok)
	assert.Equal(t, duckdb.DuckDB, d)
	assert.Equal(t, "JSON", d.Config().JSONType)
	assert.Equal(t, core.PlaceholderQuestion, d.Config().Placeholder)
}

func TestSyntax(t *testing.T) {
	d := duckdb.DuckDB

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"string literal escapes quotes", d.StringLiteral("it's"), "'it''s'"},
		{"quote identifier", d.QuoteIdentifier(`a"b`), `"a""b"`},
		{"decimal literal is exact", d.DecimalLiteral("0.1", 1, 1), "CAST('0.1' AS DECIMAL(1,1))"},
		{"empty collection", d.EmptyCollection(), "CAST('[]' AS JSON)"},
		{"length", d.Length("c"), "CAST(json_array_length(c) AS BIGINT)"},
		{"element at is one-based internally", d.ElementAt("c", "2"), "(json_extract(c, '$[*]'))[CAST(2 AS BIGINT) + 1]"},
		{"concat", d.Concat("a", "b"), "to_json(list_concat(json_extract(a, '$[*]'), json_extract(b, '$[*]')))"},
		{"wrap", d.Wrap("x"), "to_json([x])"},
		{"item text", d.ItemText("i"), "json_extract_string(i, '$')"},
		{"item field", d.ItemField("i", "resourceType"), `json_extract(i, '$."resourceType"')`},
		{"item is integer", d.ItemIs("i", dialect.KindInteger), "(json_type(i) IN ('BIGINT', 'UBIGINT'))"},
		{"cast decimal", d.Cast("x", core.TypeDecimal), "CAST(x AS DECIMAL(38,10))"},
		{"collate forces binary", d.Collate("x"), `(x COLLATE "binary")`},
		{"json equality is binary text", d.JSONEquals("a", "b"), `((CAST(json(a) AS VARCHAR) COLLATE "binary") = CAST(json(b) AS VARCHAR))`},
		{"decimal item goes through text", d.DecimalItem("x"), `CAST(regexp_replace(CAST(x AS VARCHAR), '(\.[0-9]*[1-9])0+$|\.0+$', '\1') AS JSON)`},
		{"int divide", d.IntDivide("a", "b"), "(a // b)"},
		{"index of is zero-based", d.IndexOf("s", "x"), "(strpos(s, x) - 1)"},
		{"substring shifts start", d.Substring("s", "1", "2"), "substr(s, 1 + 1, 2)"},
		{"substring to end", d.Substring("s", "1", ""), "substr(s, 1 + 1)"},
		{"regex capture", d.RegexCapture("s", "'p'", 1), "NULLIF(regexp_extract(s, 'p', 1), '')"},
		{"bool and", d.BoolAnd("p"), "bool_and(p)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestPath(t *testing.T) {
	sql := duckdb.DuckDB.Path("src.resource", []string{"name", "family"})

	assert.Contains(t, sql, "json_extract(src.resource, '$[*]')")
	assert.Contains(t, sql, `json_type(_x, '$."name"') = 'ARRAY'`)
	assert.Contains(t, sql, `json_extract(_x, '$."family"[*]')`)
	assert.Contains(t, sql, "CAST([] AS JSON[])")
	assert.Equal(t, 2, countOf(sql, "flatten(list_transform("))
}

func TestAggregatesDefaultToEmpty(t *testing.T) {
	d := duckdb.DuckDB
	assert.Equal(t, "COALESCE(to_json(list(e.item ORDER BY e.idx)), CAST('[]' AS JSON))", d.AggregateItems("e.item", "e.idx"))
	assert.Contains(t, d.AggregateCollections("v", "id"), "flatten(list(json_extract(v, '$[*]') ORDER BY id))")
}

func TestDecimalDivideStaysExact(t *testing.T) {
	sql := duckdb.DuckDB.DecimalDivide("a", "b")
	assert.Contains(t, sql, "AS HUGEINT")
	assert.Contains(t, sql, "//")
	assert.NotContains(t, sql, "DOUBLE")
}

func TestCurrentInstantIsUTC(t *testing.T) {
	d := duckdb.DuckDB
	for _, sql := range []string{d.CurrentDate(), d.CurrentDateTime(), d.CurrentTime()} {
		assert.Contains(t, sql, "timezone('UTC', now())")
	}
	assert.Contains(t, d.CurrentDateTime(), "%gZ'")
}

func countOf(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
