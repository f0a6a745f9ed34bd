package translator

import (
	"fmt"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

func (t *Translator) binary(n *fhirpath.Binary, l, r value) (value, error) {
	op := n.Op.String()
	var (
		res value
		err error
	)
	switch n.Op {
	case fhirpath.TOKEN_EQ:
		res = t.equals(l, r)
	case fhirpath.TOKEN_NE:
		res = t.not(t.equals(l, r))
	case fhirpath.TOKEN_EQUIV:
		res = t.equivalent(l, r)
	case fhirpath.TOKEN_NEQUIV:
		res = t.not(t.equivalent(l, r))
	case fhirpath.TOKEN_LT, fhirpath.TOKEN_GT, fhirpath.TOKEN_LE, fhirpath.TOKEN_GE:
		res, err = t.compare(op, l, r, n.At)
	case fhirpath.TOKEN_AND, fhirpath.TOKEN_OR, fhirpath.TOKEN_XOR, fhirpath.TOKEN_IMPLIES:
		res = t.logical(n.Op, l, r)
	case fhirpath.TOKEN_PLUS, fhirpath.TOKEN_MINUS, fhirpath.TOKEN_STAR,
		fhirpath.TOKEN_SLASH, fhirpath.TOKEN_DIV, fhirpath.TOKEN_MOD:
		res, err = t.arithmetic(n.Op, l, r, n.At)
	case fhirpath.TOKEN_AMP:
		res = constValue(fmt.Sprintf("(COALESCE(%s, '') || COALESCE(%s, ''))",
			t.scalar(l, core.TypeString), t.scalar(r, core.TypeString)), core.TypeString)
	case fhirpath.TOKEN_IN:
		res = t.membership(l, r)
	case fhirpath.TOKEN_CONTAINS:
		res = t.membership(r, l)
	default:
		err = newError(ErrUnsupported, op, n.At, "operator")
	}
	if err != nil {
		return value{}, err
	}
	res.fn = op
	return res, nil
}

// compareType returns the scalar type two operands are compared as. A number
// of unknown type is read as a decimal.
func compareType(a, b core.ValueType) (core.ValueType, bool) {
	untyped := a == core.TypeAny || b == core.TypeAny
	switch {
	case a == core.TypeAny && b == core.TypeAny:
		return core.TypeAny, false
	case a == core.TypeAny:
		a = b
	case b == core.TypeAny:
		b = a
	}
	switch {
	case a.IsNumeric() && b.IsNumeric():
		if untyped {
			return core.TypeDecimal, true
		}
		return core.PromoteNumeric(a, b), true
	case a == b && a.IsPrimitive():
		if a.IsTemporal() {
			return core.TypeString, true
		}
		return a, true
	case isText(a) && isText(b):
		return core.TypeString, true
	default:
		return core.TypeAny, false
	}
}

// isText reports types held as text: strings, dates, times.
func isText(t core.ValueType) bool {
	return t == core.TypeString || t.IsTemporal()
}

// atMostOne reports whether v can be read as a scalar.
func atMostOne(v value) bool {
	return v.single || v.form != formCollection
}

// equals is =. Two empty operands are equal; one empty operand gives empty.
func (t *Translator) equals(l, r value) value {
	switch {
	case l.empty && r.empty:
		return constValue("TRUE", core.TypeBoolean)
	case l.empty:
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN TRUE END", t.isEmpty(r)), core.TypeBoolean)
	case r.empty:
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN TRUE END", t.isEmpty(l)), core.TypeBoolean)
	}

	if typ, ok := compareType(l.typ, r.typ); ok && atMostOne(l) && atMostOne(r) {
		a, b := t.scalar(l, typ), t.scalar(r, typ)
		eq := "(" + a + " = " + b + ")"
		if typ == core.TypeString {
			eq = "(" + t.d.Collate(a) + " = " + b + ")"
		}
		if l.notNull || r.notNull {
			return scalarValue(eq, core.TypeBoolean)
		}
		return scalarValue(fmt.Sprintf("CASE WHEN %s IS NULL AND %s IS NULL THEN TRUE ELSE %s END", a, b, eq), core.TypeBoolean)
	}

	a, b := t.coll(l), t.coll(r)
	return scalarValue(fmt.Sprintf(
		"CASE WHEN %s = 0 AND %s = 0 THEN TRUE WHEN %s = 0 OR %s = 0 THEN NULL ELSE %s END",
		t.d.Length(a), t.d.Length(b), t.d.Length(a), t.d.Length(b), t.d.JSONEquals(a, b)), core.TypeBoolean)
}

// equivalent is ~: strings compare case-insensitively after trimming, and an
// empty operand makes the result false rather than empty.
func (t *Translator) equivalent(l, r value) value {
	if l.empty && r.empty {
		return constValue("TRUE", core.TypeBoolean)
	}

	if typ, ok := compareType(l.typ, r.typ); ok && atMostOne(l) && atMostOne(r) {
		a, b := t.scalar(l, typ), t.scalar(r, typ)
		eq := "(" + a + " = " + b + ")"
		if typ == core.TypeString {
			eq = "(lower(trim(" + a + ")) = lower(trim(" + b + ")))"
		}
		return constValue(fmt.Sprintf(
			"CASE WHEN %s IS NULL AND %s IS NULL THEN TRUE WHEN %s IS NULL OR %s IS NULL THEN FALSE ELSE %s END",
			a, b, a, b, eq), core.TypeBoolean)
	}

	a, b := t.coll(l), t.coll(r)
	return constValue(fmt.Sprintf(
		"CASE WHEN %s = 0 AND %s = 0 THEN TRUE WHEN %s = 0 OR %s = 0 THEN FALSE ELSE %s END",
		t.d.Length(a), t.d.Length(b), t.d.Length(a), t.d.Length(b), t.d.JSONEquals(a, b)), core.TypeBoolean)
}

func (t *Translator) not(v value) value {
	return scalarValue("(NOT "+t.boolean(v)+")", core.TypeBoolean)
}

func (t *Translator) compare(op string, l, r value, pos fhirpath.Position) (value, error) {
	if l.empty || r.empty {
		return scalarValue(t.nullOf(core.TypeBoolean), core.TypeBoolean), nil
	}
	typ, ok := compareType(l.typ, r.typ)
	if !ok {
		if l.typ != core.TypeAny || r.typ != core.TypeAny {
			return value{}, newError(ErrUnsupported, op, pos, "ordering %s and %s", l.typ, r.typ)
		}
		typ = core.TypeString
	}
	a, b := t.scalar(l, typ), t.scalar(r, typ)
	if typ == core.TypeString {
		a, b = t.d.Collate(a), t.d.Collate(b)
	}
	return scalarValue("("+a+" "+op+" "+b+")", core.TypeBoolean), nil
}

// logical relies on SQL three-valued logic, which matches FHIRPath's for
// and, or, xor and implies when NULL stands for empty.
func (t *Translator) logical(op fhirpath.TokenType, l, r value) value {
	a, b := t.boolean(l), t.boolean(r)
	var sql string
	switch op {
	case fhirpath.TOKEN_AND:
		sql = "(" + a + " AND " + b + ")"
	case fhirpath.TOKEN_OR:
		sql = "(" + a + " OR " + b + ")"
	case fhirpath.TOKEN_XOR:
		sql = "(" + a + " <> " + b + ")"
	default:
		sql = "((NOT " + a + ") OR " + b + ")"
	}
	return scalarValue(sql, core.TypeBoolean)
}

func numericType(v value) core.ValueType {
	if v.typ == core.TypeInteger {
		return core.TypeInteger
	}
	return core.TypeDecimal
}

func (t *Translator) arithmetic(op fhirpath.TokenType, l, r value, pos fhirpath.Position) (value, error) {
	name := op.String()
	for _, v := range []value{l, r} {
		if v.typ.IsTemporal() || v.typ == core.TypeQuantity {
			return value{}, newError(ErrUnsupported, name, pos, "arithmetic on %s", v.typ)
		}
		if v.typ == core.TypeBoolean || v.typ == core.TypeComplex {
			return value{}, newError(ErrUnsupported, name, pos, "arithmetic on %s", v.typ)
		}
	}

	if op == fhirpath.TOKEN_PLUS && (l.typ == core.TypeString || r.typ == core.TypeString) {
		return scalarValue("("+t.scalar(l, core.TypeString)+" || "+t.scalar(r, core.TypeString)+")", core.TypeString), nil
	}
	if l.typ == core.TypeString || r.typ == core.TypeString {
		return value{}, newError(ErrUnsupported, name, pos, "arithmetic on %s and %s", l.typ, r.typ)
	}

	typ := core.PromoteNumeric(numericType(l), numericType(r))
	if l.empty || r.empty {
		return scalarValue(t.nullOf(typ), typ), nil
	}
	a, b := t.scalar(l, typ), t.scalar(r, typ)

	switch op {
	case fhirpath.TOKEN_PLUS, fhirpath.TOKEN_MINUS, fhirpath.TOKEN_STAR:
		return scalarValue("("+a+" "+name+" "+b+")", typ), nil
	case fhirpath.TOKEN_SLASH:
		a, b = t.scalar(l, core.TypeDecimal), t.scalar(r, core.TypeDecimal)
		return scalarValue(t.divide(a, b), core.TypeDecimal), nil
	case fhirpath.TOKEN_DIV:
		return scalarValue(fmt.Sprintf("CASE WHEN %s = 0 THEN NULL ELSE %s END", b, t.truncQuotient(a, b, typ)), core.TypeInteger), nil
	default: // mod
		return scalarValue(fmt.Sprintf("CASE WHEN %s = 0 THEN NULL ELSE (%s - %s * %s) END", b, a, b, t.truncQuotient(a, b, typ)), typ), nil
	}
}

// divide is exact decimal division; dividing by zero gives NULL.
func (t *Translator) divide(a, b string) string {
	q := t.d.DecimalDivide("abs("+a+")", "abs("+b+")")
	return fmt.Sprintf("CASE WHEN %s = 0 THEN NULL WHEN (%s < 0) <> (%s < 0) THEN (-(%s)) ELSE %s END", b, a, b, q, q)
}

// truncQuotient is the integer quotient rounded toward zero.
func (t *Translator) truncQuotient(a, b string, typ core.ValueType) string {
	absA, absB := "abs("+a+")", "abs("+b+")"
	q := t.d.IntDivide(absA, absB)
	if typ == core.TypeDecimal {
		q = t.d.DecimalIntDivide(absA, absB)
	}
	return fmt.Sprintf("CASE WHEN (%s < 0) <> (%s < 0) THEN (-(%s)) ELSE %s END", a, b, q, q)
}

// union concatenates two collections, keeping duplicates and order.
func (t *Translator) union(l, r value) value {
	switch {
	case l.empty:
		return t.asCollection(r)
	case r.empty:
		return t.asCollection(l)
	}
	res := collValue(t.d.Concat(t.coll(l), t.coll(r)), mergeType(l, r))
	if l.fhirType == r.fhirType {
		res.fhirType = l.fhirType
	}
	res.fn = "|"
	return res
}

func (t *Translator) asCollection(v value) value {
	if v.empty {
		return v
	}
	res := collValue(t.coll(v), v.typ)
	res.fhirType = v.fhirType
	res.single = v.single
	return res
}

// membership is item in coll. An empty item gives empty, an empty
// collection false.
func (t *Translator) membership(item, coll value) value {
	if item.empty {
		return scalarValue(t.nullOf(core.TypeBoolean), core.TypeBoolean)
	}
	if coll.empty {
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN NULL ELSE FALSE END", t.isEmpty(item)), core.TypeBoolean)
	}

	e := t.ctx.NextAlias()
	from := t.d.Enumerate(t.coll(coll), e)
	if typ, ok := compareType(item.typ, coll.typ); ok {
		x := t.scalar(item, typ)
		y := t.itemScalar(e+".item", coll.typ, typ)
		if typ == core.TypeString {
			y = t.d.Collate(y)
		}
		return scalarValue(fmt.Sprintf("CASE WHEN %s IS NULL THEN NULL ELSE EXISTS (SELECT 1 FROM %s WHERE %s = %s) END",
			x, from, y, x), core.TypeBoolean)
	}
	first, guard := t.first(item)
	cond := "TRUE"
	if guard != "" {
		cond = guard
	}
	return scalarValue(fmt.Sprintf("CASE WHEN %s THEN EXISTS (SELECT 1 FROM %s WHERE %s) END",
		cond, from, t.d.JSONEquals(e+".item", first)), core.TypeBoolean)
}
