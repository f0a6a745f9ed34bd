package duckdb

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
)

func init() {
	dialect.Register(DuckDB)
}

// DuckDB is the DuckDB dialect. Collections are JSON arrays; most operations
// convert them to JSON[] lists with json_extract(c, '$[*]') and back with to_json.
var DuckDB dialect.Dialect = duckDBDialect{}

type duckDBDialect struct{}

// decimalScale is the scale of DECIMAL(38,10); scaling a decimal by
// 10^decimalScale makes it an exact HUGEINT.
const (
	decimalScale = "10000000000"
	quotientUnit = "100000000" // 10^8, the precision of decimal division
)

func (duckDBDialect) Name() string                { return Config.Name }
func (duckDBDialect) Config() *core.DialectConfig { return Config }

// ---------- Literals ----------

func (duckDBDialect) QuoteIdentifier(name string) string {
	return Config.Identifiers.QuoteIdentifier(name)
}

func (duckDBDialect) StringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (d duckDBDialect) DecimalLiteral(text string, precision, scale int) string {
	return fmt.Sprintf("CAST(%s AS DECIMAL(%d,%d))", d.StringLiteral(text), precision, scale)
}

func (d duckDBDialect) CollectionLiteral(jsonText string) string {
	return "CAST(" + d.StringLiteral(jsonText) + " AS JSON)"
}

func (d duckDBDialect) EmptyCollection() string {
	return d.CollectionLiteral("[]")
}

// ---------- Collections ----------

func items(coll string) string {
	return "json_extract(" + coll + ", '$[*]')"
}

// Path unrolls one member per step: an array member contributes its items,
// a missing or null member contributes nothing, anything else itself.
func (d duckDBDialect) Path(coll string, keys []string) string {
	list := items(coll)
	for _, k := range keys {
		member := "'$." + jsonPathKey(k) + "'"
		unrolled := "'$." + jsonPathKey(k) + "[*]'"
		kind := "json_type(_x, " + member + ")"
		list = fmt.Sprintf(
			"flatten(list_transform(%s, _x -> CASE WHEN %s = 'ARRAY' THEN json_extract(_x, %s) WHEN %s IS NULL OR %s = 'NULL' THEN CAST([] AS JSON[]) ELSE [json_extract(_x, %s)] END))",
			list, kind, unrolled, kind, kind, member)
	}
	return "to_json(" + list + ")"
}

func jsonPathKey(k string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `'`, `''`)
	return `"` + r.Replace(k) + `"`
}

func (duckDBDialect) Length(coll string) string {
	return "CAST(json_array_length(" + coll + ") AS BIGINT)"
}

func (duckDBDialect) ElementAt(coll, index string) string {
	return "(" + items(coll) + ")[CAST(" + index + " AS BIGINT) + 1]"
}

func (duckDBDialect) Concat(a, b string) string {
	return "to_json(list_concat(" + items(a) + ", " + items(b) + "))"
}

func (duckDBDialect) Wrap(expr string) string {
	return "to_json([" + expr + "])"
}

// DecimalItem goes through text: to_json renders DECIMAL as DOUBLE.
func (duckDBDialect) DecimalItem(expr string) string {
	return "CAST(" + trimScale("CAST("+expr+" AS VARCHAR)") + " AS JSON)"
}

// trimScale drops trailing fractional zeros (and a bare point) from decimal text.
func trimScale(text string) string {
	return `regexp_replace(` + text + `, '(\.[0-9]*[1-9])0+$|\.0+$', '\1')`
}

func (d duckDBDialect) Enumerate(coll, alias string) string {
	return fmt.Sprintf("(SELECT UNNEST(%s) AS item, UNNEST(range(%s)) AS idx) AS %s", items(coll), d.Length(coll), alias)
}

func (d duckDBDialect) AggregateItems(item, orderBy string) string {
	return fmt.Sprintf("COALESCE(to_json(list(%s ORDER BY %s)), %s)", item, orderBy, d.EmptyCollection())
}

func (d duckDBDialect) AggregateCollections(coll, orderBy string) string {
	return fmt.Sprintf("COALESCE(to_json(flatten(list(%s ORDER BY %s))), %s)", items(coll), orderBy, d.EmptyCollection())
}

func (d duckDBDialect) JSONEquals(a, b string) string {
	return "(" + d.Collate("CAST(json("+a+") AS VARCHAR)") + " = CAST(json(" + b + ") AS VARCHAR))"
}

// ---------- Items ----------

func (duckDBDialect) ItemText(item string) string {
	return "json_extract_string(" + item + ", '$')"
}

func (duckDBDialect) ItemField(item, key string) string {
	return "json_extract(" + item + ", '$." + jsonPathKey(key) + "')"
}

func (duckDBDialect) ItemIs(item string, kind dialect.JSONKind) string {
	switch kind {
	case dialect.KindString:
		return "(json_type(" + item + ") = 'VARCHAR')"
	case dialect.KindInteger:
		return "(json_type(" + item + ") IN ('BIGINT', 'UBIGINT'))"
	case dialect.KindNumber:
		return "(json_type(" + item + ") IN ('BIGINT', 'UBIGINT', 'DOUBLE'))"
	case dialect.KindBoolean:
		return "(json_type(" + item + ") = 'BOOLEAN')"
	default:
		return "(json_type(" + item + ") = 'OBJECT')"
	}
}

func (duckDBDialect) JSONObject(pairs ...string) string {
	return "json_object(" + strings.Join(pairs, ", ") + ")"
}

// ---------- Scalars ----------

func (duckDBDialect) Cast(expr string, t core.ValueType) string {
	switch t {
	case core.TypeInteger:
		return "CAST(" + expr + " AS BIGINT)"
	case core.TypeDecimal:
		return "CAST(" + expr + " AS " + Config.DecimalType + ")"
	case core.TypeBoolean:
		return "CAST(" + expr + " AS BOOLEAN)"
	default:
		return "CAST(" + expr + " AS VARCHAR)"
	}
}

// Collate overrides default_collation, which a target may set through
// params.settings.
func (duckDBDialect) Collate(expr string) string {
	return "(" + expr + ` COLLATE "binary")`
}

func scaled(x string) string {
	return "CAST(CAST(" + x + " AS " + Config.DecimalType + ") * " + decimalScale + " AS HUGEINT)"
}

// DecimalDivide divides in HUGEINT space scaled by 10^8 and converts the
// integer quotient back to DECIMAL(38,8).
func (duckDBDialect) DecimalDivide(a, b string) string {
	return fmt.Sprintf("(CAST((%s * %s) // %s AS DECIMAL(30,0)) * CAST(0.00000001 AS DECIMAL(9,8)))",
		scaled(a), quotientUnit, scaled(b))
}

func (duckDBDialect) IntDivide(a, b string) string {
	return "(" + a + " // " + b + ")"
}

func (duckDBDialect) DecimalIntDivide(a, b string) string {
	return "CAST(" + scaled(a) + " // " + scaled(b) + " AS BIGINT)"
}

func (duckDBDialect) StartsWith(s, prefix string) string {
	return "starts_with(" + s + ", " + prefix + ")"
}

func (duckDBDialect) EndsWith(s, suffix string) string {
	return "ends_with(" + s + ", " + suffix + ")"
}

func (duckDBDialect) Contains(s, sub string) string {
	return "contains(" + s + ", " + sub + ")"
}

func (duckDBDialect) IndexOf(s, sub string) string {
	return "(strpos(" + s + ", " + sub + ") - 1)"
}

func (duckDBDialect) Substring(s, start, length string) string {
	if length == "" {
		return "substr(" + s + ", " + start + " + 1)"
	}
	return "substr(" + s + ", " + start + " + 1, " + length + ")"
}

func (duckDBDialect) RegexMatches(s, pattern string) string {
	return "regexp_matches(" + s + ", " + pattern + ")"
}

func (duckDBDialect) RegexReplace(s, pattern, replacement string) string {
	return "regexp_replace(" + s + ", " + pattern + ", " + replacement + ", 'g')"
}

func (duckDBDialect) RegexCapture(s, pattern string, group int) string {
	return fmt.Sprintf("NULLIF(regexp_extract(%s, %s, %d), '')", s, pattern, group)
}

func (duckDBDialect) Chars(s string) string {
	return "to_json(list_transform(range(1, length(" + s + ") + 1), _i -> substr(" + s + ", _i, 1)))"
}

func (duckDBDialect) Split(s, sep string) string {
	return "to_json(string_split(" + s + ", " + sep + "))"
}

func (duckDBDialect) StringAgg(text, sep, orderBy string) string {
	return "string_agg(" + text + ", " + sep + " ORDER BY " + orderBy + ")"
}

func (duckDBDialect) BoolAnd(pred string) string { return "bool_and(" + pred + ")" }
func (duckDBDialect) BoolOr(pred string) string  { return "bool_or(" + pred + ")" }

const utcNow = "timezone('UTC', now())"

func (duckDBDialect) CurrentDate() string {
	return "strftime(" + utcNow + ", '%Y-%m-%d')"
}

func (duckDBDialect) CurrentDateTime() string {
	return "strftime(" + utcNow + ", '%Y-%m-%dT%H:%M:%S.%gZ')"
}

func (duckDBDialect) CurrentTime() string {
	return "strftime(" + utcNow + ", '%H:%M:%S.%g')"
}
