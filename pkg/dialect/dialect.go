// Package dialect defines the SQL syntax surface the FHIRPath translator
// targets. Concrete dialects are registered from pkg/dialects/*/ packages.
//
// A Dialect only chooses syntax. Every member is a pure function from
// operand SQL to SQL text: semantic rules (empty-collection defaults,
// negative counts, division by zero) are applied by the translator before
// a member is called, identically for every engine.
//
// # Value representation
//
// A FHIRPath collection is a JSON array in SQL (jsonb on Postgres, JSON on
// DuckDB). Members documented as taking a "coll" expect such an array and
// members returning a collection always return one, never NULL. An "item"
// is a single JSON value taken out of a collection. A "scalar" is a plain
// SQL value (BIGINT, exact decimal, text, boolean) and may be NULL, which
// stands for "no value".
package dialect

import "github.com/leapstack-labs/fhirsql/pkg/core"

// JSONKind is a JSON value kind an item can be tested for.
type JSONKind int

// JSON kinds.
const (
	KindString JSONKind = iota
	KindInteger
	KindNumber // integer or decimal
	KindBoolean
	KindObject
)

func (k JSONKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Dialect is the syntax provider for one SQL engine. Implementations are
// stateless and safe for concurrent use.
type Dialect interface {
	// Name is the registry key.
	Name() string

	// Config returns the static engine description.
	Config() *core.DialectConfig

	// ---------- Literals ----------

	QuoteIdentifier(name string) string
	StringLiteral(s string) string
	// DecimalLiteral renders an exact decimal constant. precision and scale
	// describe text (e.g. 12.345 is precision 5, scale 3).
	DecimalLiteral(text string, precision, scale int) string
	// CollectionLiteral renders a constant JSON array given its JSON text.
	CollectionLiteral(jsonText string) string
	EmptyCollection() string

	// ---------- Collections ----------

	// Path flattens the member path keys over every item of coll. Arrays met
	// along the way are unrolled and missing members contribute nothing.
	Path(coll string, keys []string) string
	// Length is the item count of coll as an integer scalar.
	Length(coll string) string
	// ElementAt is the item at the 0-based index, or NULL past the end.
	// index must not be negative.
	ElementAt(coll, index string) string
	// Concat appends b to a, keeping duplicates and order.
	Concat(a, b string) string
	// Wrap turns a non-NULL item or scalar into a one-item collection.
	Wrap(expr string) string
	// DecimalItem turns an exact decimal scalar into a JSON number item with
	// every digit kept and trailing fractional zeros removed.
	DecimalItem(expr string) string
	// Enumerate is a FROM item producing one row per item of coll, with
	// columns <alias>.item and <alias>.idx (0-based).
	Enumerate(coll, alias string) string
	// AggregateItems aggregates items into a collection ordered by orderBy.
	// Zero input rows produce the empty collection.
	AggregateItems(item, orderBy string) string
	// AggregateCollections concatenates collections ordered by orderBy.
	// Zero input rows produce the empty collection.
	AggregateCollections(coll, orderBy string) string
	// JSONEquals compares two JSON values (items or collections) structurally.
	JSONEquals(a, b string) string

	// ---------- Items ----------

	// ItemText is the text of a JSON scalar item without JSON quoting.
	ItemText(item string) string
	// ItemField is the member key of a JSON object item, or NULL.
	ItemField(item, key string) string
	// ItemIs tests the JSON kind of an item.
	ItemIs(item string, kind JSONKind) string
	// JSONObject builds a JSON object item from alternating key literals and
	// value expressions.
	JSONObject(pairs ...string) string

	// ---------- Scalars ----------

	// Cast converts a text or numeric scalar to the SQL type of t.
	Cast(expr string, t core.ValueType) string
	// Collate forces binary (code point) ordering on a text scalar.
	Collate(expr string) string
	// DecimalDivide divides exactly, truncating the quotient to 8 decimal places.
	DecimalDivide(a, b string) string
	// IntDivide is integer division of non-negative integers.
	IntDivide(a, b string) string
	// DecimalIntDivide is the integer quotient of non-negative decimals.
	DecimalIntDivide(a, b string) string

	StartsWith(s, prefix string) string
	EndsWith(s, suffix string) string
	Contains(s, sub string) string
	// IndexOf is the 0-based position of sub in s, -1 when absent.
	IndexOf(s, sub string) string
	// Substring takes length characters of s from the 0-based start.
	// An empty length means to the end of s.
	Substring(s, start, length string) string
	RegexMatches(s, pattern string) string
	RegexReplace(s, pattern, replacement string) string
	// RegexCapture is capture group of the first match, or NULL.
	RegexCapture(s, pattern string, group int) string
	// Chars splits s into a collection of one-character strings.
	Chars(s string) string
	// Split splits s on sep into a collection of strings.
	Split(s, sep string) string
	// StringAgg concatenates text with sep ordered by orderBy.
	StringAgg(text, sep, orderBy string) string

	// BoolAnd and BoolOr are the boolean aggregates. Both are NULL over zero
	// rows; callers supply the FHIRPath default.
	BoolAnd(pred string) string
	BoolOr(pred string) string

	// CurrentDate, CurrentDateTime and CurrentTime render the current instant
	// in UTC as FHIR date, dateTime (with a Z suffix) and time text.
	CurrentDate() string
	CurrentDateTime() string
	CurrentTime() string
}
