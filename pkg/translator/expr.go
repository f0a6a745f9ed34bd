package translator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
	"github.com/leapstack-labs/fhirsql/pkg/schema"
)

// maxDecimalPrecision is the widest exact decimal both engines accept.
const maxDecimalPrecision = 38

// Well-known external constants.
var externalConstants = map[string]string{
	"%ucum":  "http://unitsofmeasure.org",
	"%sct":   "http://snomed.info/sct",
	"%loinc": "http://loinc.org",
}

// expr translates node inline against focus.
func (t *Translator) expr(node fhirpath.Node, focus value) (value, error) {
	switch n := node.(type) {
	case *fhirpath.Literal:
		return t.literal(n)

	case *fhirpath.Identifier:
		return t.identifier(focus, n)

	case *fhirpath.Member:
		v, err := t.expr(n.Target, focus)
		if err != nil {
			return value{}, err
		}
		return t.member(v, n.Name, n.At)

	case *fhirpath.Invocation:
		target := focus
		if n.Target != nil {
			v, err := t.expr(n.Target, focus)
			if err != nil {
				return value{}, err
			}
			target = v
		}
		return t.call(n, target, false)

	case *fhirpath.Indexer:
		v, err := t.expr(n.Target, focus)
		if err != nil {
			return value{}, err
		}
		return t.index(v, n)

	case *fhirpath.Binary:
		l, err := t.expr(n.Left, focus)
		if err != nil {
			return value{}, err
		}
		r, err := t.expr(n.Right, focus)
		if err != nil {
			return value{}, err
		}
		return t.binary(n, l, r)

	case *fhirpath.Unary:
		return t.unary(n, focus)

	case *fhirpath.Union:
		l, err := t.expr(n.Left, focus)
		if err != nil {
			return value{}, err
		}
		r, err := t.expr(n.Right, focus)
		if err != nil {
			return value{}, err
		}
		return t.union(l, r), nil

	case *fhirpath.Variable:
		return t.variable(n, focus)

	case *fhirpath.TypeExpr:
		v, err := t.expr(n.Operand, focus)
		if err != nil {
			return value{}, err
		}
		if n.Op == fhirpath.TOKEN_IS {
			return t.isType(v, n.TypeName), nil
		}
		return t.ofType(v, n.TypeName), nil

	default:
		return value{}, newError(ErrUnsupported, "", node.Pos(), "%T", node)
	}
}

func (t *Translator) literal(n *fhirpath.Literal) (value, error) {
	switch n.Kind {
	case fhirpath.LiteralNull:
		return t.emptyValue(), nil
	case fhirpath.LiteralBoolean:
		if n.Value == "true" {
			return constValue("TRUE", core.TypeBoolean), nil
		}
		return constValue("FALSE", core.TypeBoolean), nil
	case fhirpath.LiteralString:
		v := constValue(t.d.StringLiteral(n.Value), core.TypeString)
		v.literal, v.isLiteral = n.Value, true
		return v, nil
	case fhirpath.LiteralInteger:
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return t.decimalValue(n.Value, n.At)
		}
		v := constValue(strconv.FormatInt(i, 10), core.TypeInteger)
		v.literal, v.isLiteral = strconv.FormatInt(i, 10), true
		return v, nil
	case fhirpath.LiteralDecimal:
		return t.decimalValue(n.Value, n.At)
	case fhirpath.LiteralDate:
		return constValue(t.d.StringLiteral(n.Value), core.TypeDate), nil
	case fhirpath.LiteralDateTime:
		return constValue(t.d.StringLiteral(n.Value), core.TypeDateTime), nil
	case fhirpath.LiteralTime:
		return constValue(t.d.StringLiteral(n.Value), core.TypeTime), nil
	case fhirpath.LiteralQuantity:
		num, err := t.decimalValue(n.Value, n.At)
		if err != nil {
			return value{}, err
		}
		return t.quantityValue(num.sql, t.d.StringLiteral(n.Unit)), nil
	default:
		return value{}, newError(ErrUnsupported, "", n.At, "literal %s", n.Kind)
	}
}

// decimalValue renders an exact decimal literal sized to its digits.
// Fractional digits beyond maxDecimalPrecision are rounded away; a literal
// whose integer part alone is wider is rejected.
func (t *Translator) decimalValue(text string, pos fhirpath.Position) (value, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return value{}, newError(ErrUnsupported, "", pos, "decimal literal %q: %v", text, err)
	}
	scale, digits := decimalDigits(d)
	intDigits := max(digits-scale, 0)
	if intDigits > maxDecimalPrecision {
		return value{}, newError(ErrUnsupported, "", pos, "decimal literal %s has more than %d integer digits", text, maxDecimalPrecision)
	}
	if max(digits, scale) > maxDecimalPrecision {
		for places := maxDecimalPrecision - intDigits; max(digits, scale) > maxDecimalPrecision; places-- {
			d = d.Round(int32(places))
			scale, digits = decimalDigits(d)
		}
		text = d.StringFixed(int32(scale))
	}
	precision := max(digits, scale, 1)
	return constValue(t.d.DecimalLiteral(text, precision, scale), core.TypeDecimal), nil
}

// decimalDigits returns the scale of d and its total digit count.
func decimalDigits(d decimal.Decimal) (scale, digits int) {
	coef := d.Coefficient()
	digits = len(coef.Abs(coef).String())
	switch exp := int(d.Exponent()); {
	case exp < 0:
		scale = -exp
	case exp > 0:
		digits += exp
	}
	return scale, digits
}

// quantityValue builds a Quantity item from a numeric scalar and a unit.
func (t *Translator) quantityValue(num, unit string) value {
	obj := t.d.JSONObject(t.d.StringLiteral("value"), t.d.DecimalItem(num), t.d.StringLiteral("unit"), unit)
	return value{sql: obj, form: formItem, typ: core.TypeQuantity, fhirType: "Quantity", single: true}
}

// identifier resolves the first name of a path against focus. A resource
// type name selects the focus itself when it has that type.
func (t *Translator) identifier(focus value, n *fhirpath.Identifier) (value, error) {
	if n.Name == t.resourceType || schema.IsResource(n.Name) {
		switch {
		case focus.fhirType == n.Name:
			return focus, nil
		case n.Name == t.resourceType:
			return t.root(), nil
		default:
			return t.emptyValue(), nil
		}
	}
	return t.member(focus, n.Name, n.At)
}

// member appends a member step, resolving its type and cardinality from
// the element tables.
func (t *Translator) member(v value, name string, pos fhirpath.Position) (value, error) {
	if v.empty {
		return t.emptyValue(), nil
	}
	if v.form == formScalar {
		return value{}, newError(ErrUnsupportedChain, v.fn, pos,
			"member %q on a %s value", name, v.typ)
	}

	res := value{form: formCollection, typ: core.TypeAny}
	if v.isPath() && v.choice == nil {
		res.root = v.root
		res.keys = append(append([]string(nil), v.keys...), name)
	} else {
		res.root = t.coll(v)
		res.keys = []string{name}
	}

	if v.fhirType != "" {
		if e, ok := schema.Lookup(v.fhirType, name); ok {
			res.typ = e.ValueType()
			res.fhirType = e.Type
			res.single = v.single && !e.IsCollection()
			if e.IsChoice() {
				res.choice = &e
			}
		}
	}
	return res, nil
}

func (t *Translator) variable(n *fhirpath.Variable, focus value) (value, error) {
	switch n.Name {
	case "$this":
		if f, ok := t.ctx.Lookup(BindThis); ok {
			return valueOf(f), nil
		}
		return focus, nil
	case "$index":
		if f, ok := t.ctx.Lookup(BindIndex); ok {
			return valueOf(f), nil
		}
		return value{}, newError(ErrUnsupported, "", n.At, "$index outside an iteration")
	case "$total":
		if f, ok := t.ctx.Lookup(BindTotal); ok {
			return valueOf(f), nil
		}
		return value{}, newError(ErrUnsupported, "", n.At, "$total outside aggregate()")
	case "%resource", "%context", "%rootResource":
		return t.root(), nil
	}
	if uri, ok := externalConstants[n.Name]; ok {
		return constValue(t.d.StringLiteral(uri), core.TypeString), nil
	}
	return value{}, newError(ErrUnsupported, "", n.At, "external constant %s", n.Name)
}

// unary applies polarity. Minus on a numeric literal folds into the literal.
func (t *Translator) unary(n *fhirpath.Unary, focus value) (value, error) {
	if n.Op == fhirpath.TOKEN_MINUS {
		if lit, ok := n.Operand.(*fhirpath.Literal); ok {
			switch lit.Kind {
			case fhirpath.LiteralInteger, fhirpath.LiteralDecimal, fhirpath.LiteralQuantity:
				neg := *lit
				neg.Value = negate(lit.Value)
				return t.literal(&neg)
			}
		}
	}

	v, err := t.expr(n.Operand, focus)
	if err != nil {
		return value{}, err
	}
	typ := v.typ
	if !typ.IsNumeric() {
		if typ != core.TypeAny {
			return value{}, newError(ErrUnsupported, n.Op.String(), n.At, "polarity on %s", typ)
		}
		typ = core.TypeDecimal
	}
	x := t.scalar(v, typ)
	if n.Op == fhirpath.TOKEN_PLUS {
		return scalarValue(x, typ), nil
	}
	return scalarValue("(-("+x+"))", typ), nil
}

func negate(text string) string {
	if rest, ok := strings.CutPrefix(text, "-"); ok {
		return rest
	}
	return "-" + text
}

// index is target[i]: the item at a 0-based position, empty when the
// position is negative or past the end.
func (t *Translator) index(v value, n *fhirpath.Indexer) (value, error) {
	iv, err := t.expr(n.Index, t.scope())
	if err != nil {
		return value{}, err
	}
	if iv.typ != core.TypeInteger && iv.typ != core.TypeAny {
		return value{}, newError(ErrUnsupported, "[]", n.At, "index of type %s", iv.typ)
	}
	i := t.scalar(iv, core.TypeInteger)
	res := t.slice(v, func(idx string) string { return idx + " = " + i })
	res.single = true
	return res, nil
}

// iterate translates body once per item: $this is the item, $index its
// position. The context is restored afterwards.
func (t *Translator) iterate(body fhirpath.Node, focus value, item, idx string) (value, error) {
	snap := t.ctx.Snapshot()
	defer t.ctx.Restore(snap)

	this := value{sql: item, form: formItem, typ: focus.typ, fhirType: focus.fhirType, single: true}
	t.ctx.Bind(BindThis, t.fragmentOf(this))
	t.ctx.Bind(BindIndex, t.fragmentOf(value{sql: idx, form: formScalar, typ: core.TypeInteger, single: true, notNull: true}))
	return t.expr(body, this)
}

// arg translates a non-iterated function argument.
func (t *Translator) arg(node fhirpath.Node) (value, error) {
	return t.expr(node, t.scope())
}

// slice keeps the items of v whose 0-based position satisfies cond,
// in order.
func (t *Translator) slice(v value, cond func(idx string) string) value {
	e := t.ctx.NextAlias()
	sql := fmt.Sprintf("(SELECT %s FROM %s WHERE %s)",
		t.d.AggregateItems(e+".item", e+".idx"), t.d.Enumerate(t.coll(v), e), cond(e+".idx"))
	return value{sql: sql, form: formCollection, typ: v.typ, fhirType: v.fhirType}
}
