package postgres

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
)

func init() {
	dialect.Register(Postgres)
}

// Postgres is the PostgreSQL dialect. Collections are jsonb arrays and member
// paths compile to SQL/JSON path queries in lax mode.
var Postgres dialect.Dialect = postgresDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string                { return Config.Name }
func (postgresDialect) Config() *core.DialectConfig { return Config }

// ---------- Literals ----------

func (postgresDialect) QuoteIdentifier(name string) string {
	return Config.Identifiers.QuoteIdentifier(name)
}

func (postgresDialect) StringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (d postgresDialect) DecimalLiteral(text string, _, _ int) string {
	return "CAST(" + d.StringLiteral(text) + " AS NUMERIC)"
}

func (d postgresDialect) CollectionLiteral(jsonText string) string {
	return "CAST(" + d.StringLiteral(jsonText) + " AS jsonb)"
}

func (d postgresDialect) EmptyCollection() string {
	return d.CollectionLiteral("[]")
}

// ---------- Collections ----------

// Path uses a lax-mode JSON path: [*] after every member unrolls arrays and
// wraps scalars, and missing members yield nothing.
func (d postgresDialect) Path(coll string, keys []string) string {
	var b strings.Builder
	b.WriteString("lax $[*]")
	for _, k := range keys {
		b.WriteString(".")
		b.WriteString(jsonPathKey(k))
		b.WriteString("[*]")
	}
	return fmt.Sprintf("jsonb_path_query_array(%s, %s)", coll, d.StringLiteral(b.String()))
}

func jsonPathKey(k string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(k) + `"`
}

func (postgresDialect) Length(coll string) string {
	return "jsonb_array_length(" + coll + ")"
}

func (postgresDialect) ElementAt(coll, index string) string {
	return "(" + coll + " -> CAST(" + index + " AS INTEGER))"
}

func (postgresDialect) Concat(a, b string) string {
	return "(" + a + " || " + b + ")"
}

func (postgresDialect) Wrap(expr string) string {
	return "jsonb_build_array(" + expr + ")"
}

func (postgresDialect) DecimalItem(expr string) string {
	return "to_jsonb(trim_scale(CAST(" + expr + " AS NUMERIC)))"
}

func (postgresDialect) Enumerate(coll, alias string) string {
	return fmt.Sprintf("(SELECT value AS item, ordinality - 1 AS idx FROM jsonb_array_elements(%s) WITH ORDINALITY) AS %s", coll, alias)
}

func (d postgresDialect) AggregateItems(item, orderBy string) string {
	return fmt.Sprintf("COALESCE(jsonb_agg(%s ORDER BY %s), %s)", item, orderBy, d.EmptyCollection())
}

func (d postgresDialect) AggregateCollections(coll, orderBy string) string {
	return fmt.Sprintf("COALESCE(jsonb_path_query_array(jsonb_agg(%s ORDER BY %s), 'strict $[*][*]'), %s)", coll, orderBy, d.EmptyCollection())
}

func (postgresDialect) JSONEquals(a, b string) string {
	return "(" + a + " = " + b + ")"
}

// ---------- Items ----------

func (postgresDialect) ItemText(item string) string {
	return "(" + item + " #>> '{}')"
}

func (d postgresDialect) ItemField(item, key string) string {
	return "(" + item + " -> " + d.StringLiteral(key) + ")"
}

func (d postgresDialect) ItemIs(item string, kind dialect.JSONKind) string {
	switch kind {
	case dialect.KindString:
		return "(jsonb_typeof(" + item + ") = 'string')"
	case dialect.KindInteger:
		return "(jsonb_typeof(" + item + ") = 'number' AND " + d.ItemText(item) + " ~ '^-?[0-9]+$')"
	case dialect.KindNumber:
		return "(jsonb_typeof(" + item + ") = 'number')"
	case dialect.KindBoolean:
		return "(jsonb_typeof(" + item + ") = 'boolean')"
	default:
		return "(jsonb_typeof(" + item + ") = 'object')"
	}
}

func (postgresDialect) JSONObject(pairs ...string) string {
	return "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"
}

// ---------- Scalars ----------

func (postgresDialect) Cast(expr string, t core.ValueType) string {
	switch t {
	case core.TypeInteger:
		return "CAST(" + expr + " AS BIGINT)"
	case core.TypeDecimal:
		return "CAST(" + expr + " AS NUMERIC)"
	case core.TypeBoolean:
		return "CAST(" + expr + " AS BOOLEAN)"
	default:
		return "CAST(" + expr + " AS TEXT)"
	}
}

func (postgresDialect) Collate(expr string) string {
	return "(" + expr + ` COLLATE "C")`
}

func (postgresDialect) DecimalDivide(a, b string) string {
	return "TRUNC(CAST(" + a + " AS NUMERIC) / CAST(" + b + " AS NUMERIC), 8)"
}

func (postgresDialect) IntDivide(a, b string) string {
	return "(" + a + " / " + b + ")"
}

func (postgresDialect) DecimalIntDivide(a, b string) string {
	return "CAST(TRUNC(CAST(" + a + " AS NUMERIC) / CAST(" + b + " AS NUMERIC)) AS BIGINT)"
}

func (postgresDialect) StartsWith(s, prefix string) string {
	return "starts_with(" + s + ", " + prefix + ")"
}

func (d postgresDialect) EndsWith(s, suffix string) string {
	return "(" + d.Collate("right("+s+", length("+suffix+"))") + " = " + suffix + ")"
}

func (postgresDialect) Contains(s, sub string) string {
	return "(strpos(" + s + ", " + sub + ") > 0)"
}

func (postgresDialect) IndexOf(s, sub string) string {
	return "(strpos(" + s + ", " + sub + ") - 1)"
}

func (postgresDialect) Substring(s, start, length string) string {
	if length == "" {
		return "substr(" + s + ", " + start + " + 1)"
	}
	return "substr(" + s + ", " + start + " + 1, " + length + ")"
}

func (postgresDialect) RegexMatches(s, pattern string) string {
	return "(" + s + " ~ " + pattern + ")"
}

func (postgresDialect) RegexReplace(s, pattern, replacement string) string {
	return "regexp_replace(" + s + ", " + pattern + ", " + replacement + ", 'g')"
}

func (postgresDialect) RegexCapture(s, pattern string, group int) string {
	return fmt.Sprintf("(regexp_match(%s, %s))[%d]", s, pattern, group)
}

func (d postgresDialect) Chars(s string) string {
	return fmt.Sprintf("COALESCE((SELECT jsonb_agg(substr(%s, g, 1) ORDER BY g) FROM generate_series(1, length(%s)) AS g), %s)", s, s, d.EmptyCollection())
}

func (postgresDialect) Split(s, sep string) string {
	return "to_jsonb(string_to_array(" + s + ", " + sep + "))"
}

func (postgresDialect) StringAgg(text, sep, orderBy string) string {
	return "string_agg(" + text + ", " + sep + " ORDER BY " + orderBy + ")"
}

func (postgresDialect) BoolAnd(pred string) string { return "bool_and(" + pred + ")" }
func (postgresDialect) BoolOr(pred string) string  { return "bool_or(" + pred + ")" }

const utcNow = "(now() AT TIME ZONE 'UTC')"

func (postgresDialect) CurrentDate() string {
	return "to_char(" + utcNow + ", 'YYYY-MM-DD')"
}

func (postgresDialect) CurrentDateTime() string {
	return "to_char(" + utcNow + `, 'YYYY-MM-DD"T"HH24:MI:SS.MS"Z"')`
}

func (postgresDialect) CurrentTime() string {
	return "to_char(" + utcNow + ", 'HH24:MI:SS.MS')"
}
