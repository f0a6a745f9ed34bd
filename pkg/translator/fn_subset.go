package translator

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

// single gives the only item, or empty for zero or several items.
func fnSingle(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if focus.empty || focus.form != formCollection {
		return focus, nil
	}
	c := t.coll(focus)
	res := collValue(fmt.Sprintf("CASE WHEN %s = 1 THEN %s ELSE %s END", t.d.Length(c), c, t.d.EmptyCollection()), focus.typ)
	res.fhirType = focus.fhirType
	res.single = true
	return res, nil
}

func fnFirst(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if focus.empty || focus.form != formCollection {
		return focus, nil
	}
	res := t.slice(focus, func(idx string) string { return idx + " = 0" })
	res.single = true
	return res, nil
}

func fnLast(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if focus.empty || focus.form != formCollection {
		return focus, nil
	}
	n := t.d.Length(t.coll(focus))
	res := t.slice(focus, func(idx string) string { return idx + " = " + n + " - 1" })
	res.single = true
	return res, nil
}

func fnTail(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if focus.empty {
		return focus, nil
	}
	return t.slice(focus, func(idx string) string { return idx + " >= 1" }), nil
}

// skip drops the first n items. A negative n gives empty.
func fnSkip(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	n, lit, err := t.count(call)
	if err != nil {
		return value{}, err
	}
	if lit != nil {
		switch {
		case *lit < 0:
			return t.emptyValue(), nil
		case *lit == 0:
			return focus, nil
		}
	}
	if focus.empty {
		return focus, nil
	}
	res := t.slice(focus, func(idx string) string { return idx + " >= " + n })
	if lit == nil {
		res.sql = fmt.Sprintf("CASE WHEN %s < 0 THEN %s ELSE %s END", n, t.d.EmptyCollection(), res.sql)
	}
	return res, nil
}

// take keeps the first n items. Zero or a negative n gives empty.
func fnTake(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	n, lit, err := t.count(call)
	if err != nil {
		return value{}, err
	}
	if (lit != nil && *lit <= 0) || focus.empty {
		return t.emptyValue(), nil
	}
	return t.slice(focus, func(idx string) string { return idx + " < " + n }), nil
}

// count reads the integer argument of skip and take. lit is set when the
// argument is an integer literal.
func (t *Translator) count(call *fhirpath.Invocation) (string, *int64, error) {
	v, err := t.arg(call.Args[0])
	if err != nil {
		return "", nil, err
	}
	if v.typ != core.TypeInteger && v.typ != core.TypeAny {
		return "", nil, newError(ErrUnsupported, call.Name, call.At, "count of type %s", v.typ)
	}
	if v.isLiteral {
		if i, err := strconv.ParseInt(v.literal, 10, 64); err == nil {
			return v.literal, &i, nil
		}
	}
	return t.scalar(v, core.TypeInteger), nil, nil
}

// intersect keeps the distinct items found in both collections, in first
// occurrence order.
func fnIntersect(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	other, err := t.arg(call.Args[0])
	if err != nil {
		return value{}, err
	}
	if focus.empty || other.empty {
		return t.emptyValue(), nil
	}
	fc := t.coll(focus)
	e, o, p := t.ctx.NextAlias(), t.ctx.NextAlias(), t.ctx.NextAlias()
	sql := fmt.Sprintf("(SELECT %s FROM %s WHERE EXISTS (SELECT 1 FROM %s WHERE %s) AND NOT EXISTS (SELECT 1 FROM %s WHERE %s.idx < %s.idx AND %s))",
		t.d.AggregateItems(e+".item", e+".idx"), t.d.Enumerate(fc, e),
		t.d.Enumerate(t.coll(other), o), t.d.JSONEquals(e+".item", o+".item"),
		t.d.Enumerate(fc, p), p, e, t.d.JSONEquals(p+".item", e+".item"))
	res := collValue(sql, focus.typ)
	res.fhirType = focus.fhirType
	return res, nil
}

// exclude removes every item found in the other collection. Duplicates of
// items that stay are kept.
func fnExclude(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	other, err := t.arg(call.Args[0])
	if err != nil {
		return value{}, err
	}
	if focus.empty || other.empty {
		return t.asCollection(focus), nil
	}
	o := t.ctx.NextAlias()
	oc := t.coll(other)
	return t.slice(focus, func(idx string) string {
		e := idx[:len(idx)-len(".idx")]
		return fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s WHERE %s)", t.d.Enumerate(oc, o), t.d.JSONEquals(e+".item", o+".item"))
	}), nil
}

func fnUnion(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	other, err := t.arg(call.Args[0])
	if err != nil {
		return value{}, err
	}
	return t.union(focus, other), nil
}
