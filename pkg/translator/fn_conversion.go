package translator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

const (
	integerPattern  = `^[+-]?[0-9]+$`
	decimalPattern  = `^[+-]?[0-9]+(\.[0-9]+)?$`
	quantityPattern = `^([+-]?\d+(\.\d+)?)\s*('([^']+)'|([a-zA-Z]+))?$`
	datePattern     = `^(\d{4}(-\d{2}(-\d{2})?)?)(T.*)?$`
	dateTimePattern = `^\d{4}(-\d{2}(-\d{2}(T\d{2}(:\d{2}(:\d{2}(\.\d+)?)?)?(Z|[+-]\d{2}:\d{2})?)?)?)?$`
	timePattern     = `^T?(\d{2}(:\d{2}(:\d{2}(\.\d+)?)?)?)$`
)

var (
	integerRe = regexp.MustCompile(integerPattern)
	decimalRe = regexp.MustCompile(decimalPattern)
)

var (
	trueStrings  = []string{"true", "t", "yes", "y", "1", "1.0"}
	falseStrings = []string{"false", "f", "no", "n", "0", "0.0"}
)

// iif picks a branch. $this in the criterion is the focus.
func fnIif(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	snap := t.ctx.Snapshot()
	if call.Target != nil {
		t.ctx.Bind(BindThis, t.fragmentOf(focus))
	}
	args := make([]value, 0, 3)
	for _, a := range call.Args {
		v, err := t.arg(a)
		if err != nil {
			t.ctx.Restore(snap)
			return value{}, err
		}
		args = append(args, v)
	}
	t.ctx.Restore(snap)

	cond, then := t.boolean(args[0]), args[1]
	otherwise := t.emptyValue()
	if len(args) == 3 {
		otherwise = args[2]
	}

	typ := mergeType(then, otherwise)
	if then.form == formScalar && (otherwise.empty || otherwise.form == formScalar) && typ != core.TypeAny {
		b := t.nullOf(typ)
		if !otherwise.empty {
			b = t.scalar(otherwise, typ)
		}
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", cond, t.scalar(then, typ), b), typ), nil
	}
	res := collValue(fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", cond, t.coll(then), t.coll(otherwise)), typ)
	res.single = then.single && (otherwise.single || otherwise.empty)
	if then.fhirType == otherwise.fhirType || otherwise.empty {
		res.fhirType = then.fhirType
	}
	return res, nil
}

// textOf is the single value of v as text, NULL when v is not one item.
func (t *Translator) textOf(v value) string {
	return t.scalar(v, core.TypeString)
}

func (t *Translator) inList(text string, words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = t.d.StringLiteral(w)
	}
	return fmt.Sprintf("lower(%s) IN (%s)", text, strings.Join(quoted, ", "))
}

func fnToBoolean(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	switch {
	case focus.empty:
		return focus, nil
	case focus.typ == core.TypeBoolean:
		return scalarValue(t.scalar(focus, core.TypeBoolean), core.TypeBoolean), nil
	case focus.typ.IsNumeric(), focus.typ == core.TypeString, focus.typ == core.TypeAny:
		s := t.textOf(focus)
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN TRUE WHEN %s THEN FALSE END",
			t.inList(s, trueStrings), t.inList(s, falseStrings)), core.TypeBoolean), nil
	default:
		return t.emptyValue(), nil
	}
}

// toInteger accepts integers, booleans and strings of digits. String
// literals are converted here since engines may fold a failing cast.
func fnToInteger(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if lit, ok := focus.stringLiteral(); ok {
		if integerRe.MatchString(lit) {
			return t.literal(&fhirpath.Literal{Kind: fhirpath.LiteralInteger, Value: strings.TrimPrefix(lit, "+")})
		}
		return t.emptyValue(), nil
	}

	switch {
	case focus.empty:
		return focus, nil
	case focus.typ == core.TypeInteger:
		return scalarValue(t.scalar(focus, core.TypeInteger), core.TypeInteger), nil
	case focus.typ == core.TypeBoolean:
		return scalarValue(fmt.Sprintf("CASE %s WHEN TRUE THEN 1 WHEN FALSE THEN 0 END", t.scalar(focus, core.TypeBoolean)), core.TypeInteger), nil
	case focus.typ == core.TypeString, focus.typ == core.TypeAny:
		s := t.textOf(focus)
		sql := fmt.Sprintf("CASE WHEN %s THEN %s END",
			t.d.RegexMatches(s, t.d.StringLiteral(integerPattern)), t.d.Cast(s, core.TypeInteger))
		if kind := t.kindOf(focus, dialect.KindBoolean); kind != "FALSE" {
			sql = fmt.Sprintf("CASE WHEN %s THEN CASE %s WHEN 'true' THEN 1 WHEN 'false' THEN 0 END ELSE %s END", kind, s, sql)
		}
		return scalarValue(sql, core.TypeInteger), nil
	default:
		return t.emptyValue(), nil
	}
}

func fnToDecimal(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if lit, ok := focus.stringLiteral(); ok {
		if decimalRe.MatchString(lit) {
			return t.decimalValue(lit, fhirpath.Position{})
		}
		return t.emptyValue(), nil
	}

	switch {
	case focus.empty:
		return focus, nil
	case focus.typ.IsNumeric():
		return scalarValue(t.scalar(focus, core.TypeDecimal), core.TypeDecimal), nil
	case focus.typ == core.TypeString, focus.typ == core.TypeAny:
		s := t.textOf(focus)
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN %s END",
			t.d.RegexMatches(s, t.d.StringLiteral(decimalPattern)), t.d.Cast(s, core.TypeDecimal)), core.TypeDecimal), nil
	default:
		return t.emptyValue(), nil
	}
}

func fnToString(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	switch {
	case focus.empty:
		return focus, nil
	case focus.typ == core.TypeQuantity:
		item, guard := t.first(focus)
		s := fmt.Sprintf("(%s || ' ''' || %s || '''')",
			t.d.ItemText(t.d.ItemField(item, "value")), t.d.ItemText(t.d.ItemField(item, "unit")))
		if guard != "" {
			s = fmt.Sprintf("CASE WHEN %s THEN %s END", guard, s)
		}
		return scalarValue(s, core.TypeString), nil
	case focus.typ == core.TypeComplex:
		return t.emptyValue(), nil
	case focus.typ == core.TypeAny:
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN NULL ELSE %s END",
			t.kindOf(focus, dialect.KindObject), t.textOf(focus)), core.TypeString), nil
	default:
		return scalarValue(t.textOf(focus), core.TypeString), nil
	}
}

// toQuantity parses "<number> '<unit>'" or "<number> <word>". A number
// without unit gets unit '1'. With an argument, only a quantity in that
// unit is returned.
func fnToQuantity(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	if focus.empty {
		return focus, nil
	}

	var q value
	switch {
	case focus.typ == core.TypeQuantity:
		q = t.asCollection(focus)
	case focus.typ.IsNumeric():
		x := t.scalar(focus, core.TypeDecimal)
		obj := t.quantityValue(x, t.d.StringLiteral("1"))
		q = collValue(fmt.Sprintf("CASE WHEN %s IS NULL THEN %s ELSE %s END", x, t.d.EmptyCollection(), t.d.Wrap(obj.sql)), core.TypeQuantity)
	case focus.typ == core.TypeString, focus.typ == core.TypeAny:
		s := t.textOf(focus)
		p := t.d.StringLiteral(quantityPattern)
		unit := fmt.Sprintf("COALESCE(%s, %s, '1')", t.d.RegexCapture(s, p, 4), t.d.RegexCapture(s, p, 5))
		obj := t.quantityValue(t.d.Cast(t.d.RegexCapture(s, p, 1), core.TypeDecimal), unit)
		q = collValue(fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", t.d.RegexMatches(s, p), t.d.Wrap(obj.sql), t.d.EmptyCollection()), core.TypeQuantity)
	default:
		return t.emptyValue(), nil
	}
	q.single = true
	q.fhirType = "Quantity"

	if len(call.Args) == 0 {
		return q, nil
	}
	u, err := t.arg(call.Args[0])
	if err != nil {
		return value{}, err
	}
	item, _ := t.first(q)
	q.sql = fmt.Sprintf("CASE WHEN %s = %s THEN %s ELSE %s END",
		t.d.ItemText(t.d.ItemField(item, "unit")), t.textOf(u), t.coll(q), t.d.EmptyCollection())
	return q, nil
}

func fnToDate(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	switch {
	case focus.empty:
		return focus, nil
	case focus.typ == core.TypeDate:
		return scalarValue(t.textOf(focus), core.TypeDate), nil
	case focus.typ == core.TypeDateTime, focus.typ == core.TypeString, focus.typ == core.TypeAny:
		return scalarValue(t.d.RegexCapture(t.textOf(focus), t.d.StringLiteral(datePattern), 1), core.TypeDate), nil
	default:
		return t.emptyValue(), nil
	}
}

func fnToDateTime(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	switch {
	case focus.empty:
		return focus, nil
	case focus.typ == core.TypeDateTime, focus.typ == core.TypeDate:
		return scalarValue(t.textOf(focus), core.TypeDateTime), nil
	case focus.typ == core.TypeString, focus.typ == core.TypeAny:
		s := t.textOf(focus)
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN %s END",
			t.d.RegexMatches(s, t.d.StringLiteral(dateTimePattern)), s), core.TypeDateTime), nil
	default:
		return t.emptyValue(), nil
	}
}

func fnToTime(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	switch {
	case focus.empty:
		return focus, nil
	case focus.typ == core.TypeTime:
		return scalarValue(t.textOf(focus), core.TypeTime), nil
	case focus.typ == core.TypeString, focus.typ == core.TypeAny:
		return scalarValue(t.d.RegexCapture(t.textOf(focus), t.d.StringLiteral(timePattern), 1), core.TypeTime), nil
	default:
		return t.emptyValue(), nil
	}
}

// convertsTo builds convertsToX from toX: true when the conversion yields a
// value, empty on empty input.
func convertsTo(to FunctionID) Impl {
	return func(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
		if focus.empty {
			return focus, nil
		}
		res, err := functionTable[to].Impl(t, focus, call)
		if err != nil {
			return value{}, err
		}
		ok := "(NOT " + t.isEmpty(res) + ")"
		if focus.notNull || focus.form == formItem {
			return constValue(ok, core.TypeBoolean), nil
		}
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN NULL ELSE %s END", t.isEmpty(focus), ok), core.TypeBoolean), nil
	}
}
