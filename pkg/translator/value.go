package translator

import (
	"fmt"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	"github.com/leapstack-labs/fhirsql/pkg/schema"
)

// form says how the SQL text of a value holds the FHIRPath collection.
type form int

const (
	formCollection form = iota // JSON array, never NULL
	formItem                   // one JSON item, never NULL
	formScalar                 // plain SQL scalar, NULL is the empty collection
)

func (f form) String() string {
	switch f {
	case formItem:
		return "item"
	case formScalar:
		return "scalar"
	default:
		return "collection"
	}
}

// value is a translated sub-expression.
type value struct {
	sql      string
	form     form
	typ      core.ValueType
	fhirType string
	single   bool // at most one item
	notNull  bool // scalar that is never NULL
	empty    bool // the {} literal

	// literal holds the text of a string or integer literal.
	literal   string
	isLiteral bool

	// An unmaterialized member path: keys applied to the root collection.
	// choice is set when the last key is a choice element (value[x]).
	root   string
	keys   []string
	choice *schema.Element

	bare     bool   // exactly src.value of the current CTE
	join     string // CTE joined as rhs
	boundary string // boundary category of the function that produced it
	fn       string
}

func scalarValue(sql string, typ core.ValueType) value {
	return value{sql: sql, form: formScalar, typ: typ, single: true}
}

func constValue(sql string, typ core.ValueType) value {
	v := scalarValue(sql, typ)
	v.notNull = true
	return v
}

func collValue(sql string, typ core.ValueType) value {
	return value{sql: sql, form: formCollection, typ: typ}
}

func (t *Translator) emptyValue() value {
	return value{sql: t.d.EmptyCollection(), form: formCollection, empty: true}
}

// isPath reports whether v is an unmaterialized member path.
func (v value) isPath() bool {
	return v.keys != nil
}

// stringLiteral returns the text of a string literal.
func (v value) stringLiteral() (string, bool) {
	if v.isLiteral && v.typ == core.TypeString {
		return v.literal, true
	}
	return "", false
}

// coll renders v as a JSON array.
func (t *Translator) coll(v value) string {
	switch {
	case v.isPath():
		return t.pathSQL(v)
	case v.form == formItem:
		return t.d.Wrap(v.sql)
	case v.form == formScalar:
		item := v.sql
		if v.typ == core.TypeDecimal {
			item = t.d.DecimalItem(v.sql)
		}
		if v.notNull {
			return t.d.Wrap(item)
		}
		return fmt.Sprintf("CASE WHEN %s IS NULL THEN %s ELSE %s END", v.sql, t.d.EmptyCollection(), t.d.Wrap(item))
	default:
		return v.sql
	}
}

// pathSQL materializes a member path. A trailing choice element reads every
// concrete key; at most one of them exists on any object.
func (t *Translator) pathSQL(v value) string {
	if v.choice == nil {
		return t.d.Path(v.root, v.keys)
	}
	prefix := v.keys[:len(v.keys)-1]
	out := ""
	for i, key := range v.choice.ChoiceKeys() {
		keys := append(append([]string(nil), prefix...), key)
		p := t.d.Path(v.root, keys)
		if i == 0 {
			out = p
		} else {
			out = t.d.Concat(out, p)
		}
	}
	return out
}

// materialize turns a path value into a plain collection value.
func (t *Translator) materialize(v value) value {
	if !v.isPath() {
		return v
	}
	out := v
	out.sql = t.pathSQL(v)
	out.root, out.keys, out.choice = "", nil, nil
	return out
}

// isEmpty is a SQL predicate that is true when v holds no items.
func (t *Translator) isEmpty(v value) string {
	switch {
	case v.empty:
		return "TRUE"
	case v.form == formScalar:
		if v.notNull {
			return "FALSE"
		}
		return "(" + v.sql + " IS NULL)"
	case v.form == formItem:
		return "FALSE"
	default:
		return "(" + t.d.Length(t.coll(v)) + " = 0)"
	}
}

// first returns the SQL of the first item of a collection value and a guard
// that is true when the collection holds exactly one item.
func (t *Translator) first(v value) (item, guard string) {
	if v.form == formItem {
		return v.sql, ""
	}
	c := t.coll(v)
	return t.d.ElementAt(c, "0"), t.d.Length(c) + " = 1"
}

// scalar extracts v as a SQL scalar of type want, NULL unless v holds
// exactly one item of that type.
func (t *Translator) scalar(v value, want core.ValueType) string {
	if want == core.TypeAny {
		want = v.typ
	}
	if v.empty {
		return t.nullOf(want)
	}
	if v.form == formScalar {
		return t.convertScalar(v.sql, v.typ, want)
	}
	item, guard := t.first(v)
	s := t.itemScalar(item, v.typ, want)
	if guard == "" {
		return s
	}
	return fmt.Sprintf("CASE WHEN %s THEN %s END", guard, s)
}

func (t *Translator) nullOf(typ core.ValueType) string {
	switch typ {
	case core.TypeBoolean, core.TypeInteger, core.TypeDecimal:
		return t.d.Cast("NULL", typ)
	default:
		return t.d.Cast("NULL", core.TypeString)
	}
}

func (t *Translator) convertScalar(sql string, have, want core.ValueType) string {
	switch {
	case have == want:
		return sql
	case want == core.TypeDecimal && have == core.TypeInteger:
		return t.d.Cast(sql, core.TypeDecimal)
	case want == core.TypeString && (have.IsNumeric() || have == core.TypeBoolean):
		return t.d.Cast(sql, core.TypeString)
	default:
		return sql
	}
}

// itemScalar reads a JSON item as a SQL scalar. When the item's type is not
// known to be want, its JSON kind is checked first.
func (t *Translator) itemScalar(item string, have, want core.ValueType) string {
	text := t.d.ItemText(item)
	switch want {
	case core.TypeInteger:
		cast := t.d.Cast(text, core.TypeInteger)
		if have == core.TypeInteger {
			return cast
		}
		return fmt.Sprintf("CASE WHEN %s THEN %s END", t.d.ItemIs(item, dialect.KindInteger), cast)
	case core.TypeDecimal:
		cast := t.d.Cast(text, core.TypeDecimal)
		if have.IsNumeric() {
			return cast
		}
		return fmt.Sprintf("CASE WHEN %s THEN %s END", t.d.ItemIs(item, dialect.KindNumber), cast)
	case core.TypeBoolean:
		b := fmt.Sprintf("CASE %s WHEN 'true' THEN TRUE WHEN 'false' THEN FALSE END", text)
		if have == core.TypeBoolean {
			return b
		}
		return fmt.Sprintf("CASE WHEN %s THEN %s END", t.d.ItemIs(item, dialect.KindBoolean), b)
	default:
		return text
	}
}

// boolean evaluates v in a boolean context. A single non-boolean item counts
// as true.
func (t *Translator) boolean(v value) string {
	switch {
	case v.empty:
		return t.nullOf(core.TypeBoolean)
	case v.typ == core.TypeBoolean:
		return t.scalar(v, core.TypeBoolean)
	case v.form == formScalar:
		if v.notNull {
			return "TRUE"
		}
		return fmt.Sprintf("CASE WHEN %s IS NULL THEN NULL ELSE TRUE END", v.sql)
	}
	item, guard := t.first(v)
	test := "TRUE"
	if v.typ == core.TypeAny {
		test = fmt.Sprintf("CASE WHEN %s THEN %s = 'true' ELSE TRUE END", t.d.ItemIs(item, dialect.KindBoolean), t.d.ItemText(item))
	}
	if guard == "" {
		return test
	}
	return fmt.Sprintf("CASE WHEN %s THEN %s END", guard, test)
}

// kindOf is a SQL predicate telling whether the single value of v has a JSON
// kind. It is a constant when the type of v is known.
func (t *Translator) kindOf(v value, kind dialect.JSONKind) string {
	if v.typ != core.TypeAny {
		if staticKind(v.typ, kind) {
			return "TRUE"
		}
		return "FALSE"
	}
	if v.form == formScalar {
		return "FALSE"
	}
	item, _ := t.first(v)
	return t.d.ItemIs(item, kind)
}

func staticKind(typ core.ValueType, kind dialect.JSONKind) bool {
	switch kind {
	case dialect.KindBoolean:
		return typ == core.TypeBoolean
	case dialect.KindInteger:
		return typ == core.TypeInteger
	case dialect.KindNumber:
		return typ.IsNumeric()
	case dialect.KindString:
		return typ == core.TypeString || typ.IsTemporal()
	default:
		return typ == core.TypeComplex || typ == core.TypeQuantity
	}
}

// mergeType is the type of a collection holding items of a and b.
func mergeType(a, b value) core.ValueType {
	switch {
	case a.empty:
		return b.typ
	case b.empty:
		return a.typ
	case a.typ == b.typ:
		return a.typ
	case a.typ.IsNumeric() && b.typ.IsNumeric():
		return core.TypeDecimal
	default:
		return core.TypeAny
	}
}

// fragmentOf stores a value as a binding.
func (t *Translator) fragmentOf(v value) core.Fragment {
	v = t.materialize(v)
	f := core.Fragment{
		Expression:   v.sql,
		Type:         v.typ,
		IsCollection: !v.single,
	}
	f.SetMeta(metaForm, v.form.String())
	if v.fhirType != "" {
		f.SetMeta(core.MetaFHIRType, v.fhirType)
	}
	return f
}

// valueOf reads back a binding.
func valueOf(f core.Fragment) value {
	v := value{
		sql:      f.Expression,
		typ:      f.Type,
		fhirType: f.Meta(core.MetaFHIRType),
		single:   !f.IsCollection,
	}
	switch f.Meta(metaForm) {
	case "item":
		v.form = formItem
	case "scalar":
		v.form = formScalar
		v.notNull = true
	default:
		v.form = formCollection
	}
	return v
}

const metaForm = "form"
