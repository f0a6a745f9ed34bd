package translator

import (
	"fmt"
	"regexp"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

// groupRef matches $1 style references in a replaceMatches substitution.
var groupRef = regexp.MustCompile(`\$(\d)`)

// stringArg translates argument i of call as a text scalar.
func (t *Translator) stringArg(call *fhirpath.Invocation, i int) (string, value, error) {
	v, err := t.arg(call.Args[i])
	if err != nil {
		return "", value{}, err
	}
	if v.typ != core.TypeString && v.typ != core.TypeAny && !v.empty {
		return "", value{}, newError(ErrUnsupported, call.Name, call.At, "argument of type %s", v.typ)
	}
	return t.textOf(v), v, nil
}

// patternCall applies a string test taking one pattern argument. An empty
// pattern gives onEmpty for any input string.
func (t *Translator) patternCall(focus value, call *fhirpath.Invocation, typ core.ValueType, onEmpty string, build func(s, p string) string) (value, error) {
	p, pv, err := t.stringArg(call, 0)
	if err != nil {
		return value{}, err
	}
	if focus.empty || pv.empty {
		return scalarValue(t.nullOf(typ), typ), nil
	}
	s := t.textOf(focus)
	if lit, ok := pv.stringLiteral(); ok && lit == "" {
		return scalarValue(fmt.Sprintf("CASE WHEN %s IS NULL THEN NULL ELSE %s END", s, onEmpty), typ), nil
	}
	return scalarValue(fmt.Sprintf("CASE WHEN %s IS NULL OR %s IS NULL THEN NULL WHEN %s = '' THEN %s ELSE %s END",
		s, p, p, onEmpty, build(s, p)), typ), nil
}

func fnIndexOf(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	return t.patternCall(focus, call, core.TypeInteger, "0", t.d.IndexOf)
}

func fnStartsWith(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	return t.patternCall(focus, call, core.TypeBoolean, "TRUE", t.d.StartsWith)
}

func fnEndsWith(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	return t.patternCall(focus, call, core.TypeBoolean, "TRUE", t.d.EndsWith)
}

func fnContains(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	return t.patternCall(focus, call, core.TypeBoolean, "TRUE", t.d.Contains)
}

// substring gives '' when start lies outside the string.
func fnSubstring(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	sv, err := t.arg(call.Args[0])
	if err != nil {
		return value{}, err
	}
	if focus.empty || sv.empty {
		return scalarValue(t.nullOf(core.TypeString), core.TypeString), nil
	}
	s, start := t.textOf(focus), t.scalar(sv, core.TypeInteger)

	body := t.d.Substring(s, start, "")
	if len(call.Args) == 2 {
		lv, err := t.arg(call.Args[1])
		if err != nil {
			return value{}, err
		}
		if !lv.empty {
			n := t.scalar(lv, core.TypeInteger)
			body = fmt.Sprintf("CASE WHEN %s IS NULL THEN %s WHEN %s < 0 THEN '' ELSE %s END",
				n, body, n, t.d.Substring(s, start, n))
		}
	}
	return scalarValue(fmt.Sprintf("CASE WHEN %s IS NULL OR %s IS NULL THEN NULL WHEN %s < 0 OR %s >= length(%s) THEN '' ELSE %s END",
		s, start, start, start, s, body), core.TypeString), nil
}

// stringFunc maps a one-argument SQL text function that both engines share.
func stringFunc(name string) Impl {
	return func(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
		if focus.empty {
			return focus, nil
		}
		return scalarValue(name+"("+t.textOf(focus)+")", core.TypeString), nil
	}
}

func fnReplace(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	p, _, err := t.stringArg(call, 0)
	if err != nil {
		return value{}, err
	}
	r, _, err := t.stringArg(call, 1)
	if err != nil {
		return value{}, err
	}
	if focus.empty {
		return focus, nil
	}
	return scalarValue(fmt.Sprintf("replace(%s, %s, %s)", t.textOf(focus), p, r), core.TypeString), nil
}

func fnMatches(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	p, _, err := t.stringArg(call, 0)
	if err != nil {
		return value{}, err
	}
	if focus.empty {
		return focus, nil
	}
	return scalarValue(t.d.RegexMatches(t.textOf(focus), p), core.TypeBoolean), nil
}

// replaceMatches replaces every match. $n references in a literal
// substitution become the engines' \n form.
func fnReplaceMatches(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	p, _, err := t.stringArg(call, 0)
	if err != nil {
		return value{}, err
	}
	r, rv, err := t.stringArg(call, 1)
	if err != nil {
		return value{}, err
	}
	if lit, ok := rv.stringLiteral(); ok {
		r = t.d.StringLiteral(groupRef.ReplaceAllString(lit, `\$1`))
	}
	if focus.empty {
		return focus, nil
	}
	return scalarValue(t.d.RegexReplace(t.textOf(focus), p, r), core.TypeString), nil
}

func fnLength(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if focus.empty {
		return focus, nil
	}
	return scalarValue(t.d.Cast("length("+t.textOf(focus)+")", core.TypeInteger), core.TypeInteger), nil
}

func fnToChars(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if focus.empty {
		return focus, nil
	}
	s := t.textOf(focus)
	return collValue(fmt.Sprintf("CASE WHEN %s IS NULL THEN %s ELSE %s END", s, t.d.EmptyCollection(), t.d.Chars(s)), core.TypeString), nil
}

func fnSplit(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	sep, _, err := t.stringArg(call, 0)
	if err != nil {
		return value{}, err
	}
	if focus.empty {
		return focus, nil
	}
	s := t.textOf(focus)
	return collValue(fmt.Sprintf("CASE WHEN %s IS NULL OR %s IS NULL THEN %s ELSE %s END",
		s, sep, t.d.EmptyCollection(), t.d.Split(s, sep)), core.TypeString), nil
}

// join concatenates the string items in order. An empty input gives empty.
func fnJoin(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	sep := "''"
	if len(call.Args) == 1 {
		s, _, err := t.stringArg(call, 0)
		if err != nil {
			return value{}, err
		}
		sep = s
	}
	if focus.empty {
		return focus, nil
	}
	e := t.ctx.NextAlias()
	return scalarValue(fmt.Sprintf("(SELECT %s FROM %s)",
		t.d.StringAgg(t.itemScalar(e+".item", focus.typ, core.TypeString), sep, e+".idx"),
		t.d.Enumerate(t.coll(focus), e)), core.TypeString), nil
}
