package translator

import (
	"fmt"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

func fnEmpty(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	return constValue(t.isEmpty(focus), core.TypeBoolean), nil
}

func fnExists(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	if len(call.Args) == 0 {
		return constValue("(NOT "+t.isEmpty(focus)+")", core.TypeBoolean), nil
	}
	e := t.ctx.NextAlias()
	crit, err := t.iterate(call.Args[0], focus, e+".item", e+".idx")
	if err != nil {
		return value{}, err
	}
	return constValue(fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)",
		t.d.Enumerate(t.coll(focus), e), t.boolean(crit)), core.TypeBoolean), nil
}

// all is true when the criteria holds for every item, so also on empty input.
func fnAll(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	e := t.ctx.NextAlias()
	crit, err := t.iterate(call.Args[0], focus, e+".item", e+".idx")
	if err != nil {
		return value{}, err
	}
	return constValue(fmt.Sprintf("(SELECT COALESCE(%s, TRUE) FROM %s)",
		t.d.BoolAnd("COALESCE("+t.boolean(crit)+", FALSE)"), t.d.Enumerate(t.coll(focus), e)), core.TypeBoolean), nil
}

// boolAggregate builds allTrue, anyTrue, allFalse and anyFalse. Native
// aggregates are NULL over no rows, so the vacuous result is supplied
// explicitly: true for the "all" forms, false for the "any" forms. A
// collection holding any non-boolean item gives empty.
func boolAggregate(all bool, want string) Impl {
	return func(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
		e := t.ctx.NextAlias()
		item := e + ".item"
		match := t.d.ItemText(item) + " = '" + want + "'"

		agg, vacuous := t.d.BoolOr(match), "FALSE"
		if all {
			agg, vacuous = t.d.BoolAnd(match), "TRUE"
		}
		sql := fmt.Sprintf("(SELECT CASE WHEN %s IS FALSE THEN NULL ELSE COALESCE(%s, %s) END FROM %s)",
			t.d.BoolAnd(t.d.ItemIs(item, dialect.KindBoolean)), agg, vacuous, t.d.Enumerate(t.coll(focus), e))
		return scalarValue(sql, core.TypeBoolean), nil
	}
}

func fnSubsetOf(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	other, err := t.arg(call.Args[0])
	if err != nil {
		return value{}, err
	}
	return constValue(t.subset(focus, other), core.TypeBoolean), nil
}

func fnSupersetOf(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	other, err := t.arg(call.Args[0])
	if err != nil {
		return value{}, err
	}
	return constValue(t.subset(other, focus), core.TypeBoolean), nil
}

// subset is true when every item of a occurs in b.
func (t *Translator) subset(a, b value) string {
	ea, eb := t.ctx.NextAlias(), t.ctx.NextAlias()
	return fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s))",
		t.d.Enumerate(t.coll(a), ea), t.d.Enumerate(t.coll(b), eb), t.d.JSONEquals(ea+".item", eb+".item"))
}

func fnCount(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if focus.empty {
		return constValue("0", core.TypeInteger), nil
	}
	if focus.form == formScalar {
		return constValue(fmt.Sprintf("CASE WHEN %s IS NULL THEN 0 ELSE 1 END", focus.sql), core.TypeInteger), nil
	}
	return constValue(t.d.Length(t.coll(focus)), core.TypeInteger), nil
}

// distinct keeps the first occurrence of each item. Items are compared with
// JSONEquals rather than grouped, so the engine's default collation never
// merges strings.
func fnDistinct(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	c := t.coll(focus)
	e, o := t.ctx.NextAlias(), t.ctx.NextAlias()
	sql := fmt.Sprintf("(SELECT %s FROM %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s.idx < %s.idx AND %s))",
		t.d.AggregateItems(e+".item", e+".idx"), t.d.Enumerate(c, e),
		t.d.Enumerate(c, o), o, e, t.d.JSONEquals(o+".item", e+".item"))
	res := collValue(sql, focus.typ)
	res.fhirType = focus.fhirType
	return res, nil
}

func fnIsDistinct(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	c := t.coll(focus)
	e, o := t.ctx.NextAlias(), t.ctx.NextAlias()
	return constValue(fmt.Sprintf("(NOT EXISTS (SELECT 1 FROM %s, %s WHERE %s.idx < %s.idx AND %s))",
		t.d.Enumerate(c, e), t.d.Enumerate(c, o), o, e, t.d.JSONEquals(o+".item", e+".item")), core.TypeBoolean), nil
}
