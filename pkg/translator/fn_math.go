package translator

import (
	"fmt"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

// numeric checks that focus can be read as a number and returns its type.
func numeric(focus value, call *fhirpath.Invocation) (core.ValueType, error) {
	switch {
	case focus.typ.IsNumeric():
		return focus.typ, nil
	case focus.typ == core.TypeAny || focus.empty:
		return core.TypeDecimal, nil
	default:
		return 0, newError(ErrUnsupported, call.Name, call.At, "%s is not numeric", focus.typ)
	}
}

func fnAbs(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	typ, err := numeric(focus, call)
	if err != nil || focus.empty {
		return focus, err
	}
	return scalarValue("abs("+t.scalar(focus, typ)+")", typ), nil
}

// roundingFunc builds ceiling, floor and truncate, which all yield integers.
func roundingFunc(sqlFn string) Impl {
	return func(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
		typ, err := numeric(focus, call)
		if err != nil || focus.empty {
			return focus, err
		}
		if typ == core.TypeInteger {
			return scalarValue(t.scalar(focus, typ), typ), nil
		}
		return scalarValue(t.d.Cast(sqlFn+"("+t.scalar(focus, core.TypeDecimal)+")", core.TypeInteger), core.TypeInteger), nil
	}
}

func fnRound(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	if _, err := numeric(focus, call); err != nil || focus.empty {
		return focus, err
	}
	precision := "0"
	if len(call.Args) == 1 {
		p, err := t.arg(call.Args[0])
		if err != nil {
			return value{}, err
		}
		if p.typ != core.TypeInteger && p.typ != core.TypeAny {
			return value{}, newError(ErrUnsupported, call.Name, call.At, "precision of type %s", p.typ)
		}
		precision = t.scalar(p, core.TypeInteger)
	}
	return scalarValue(fmt.Sprintf("round(%s, CAST(%s AS INTEGER))", t.scalar(focus, core.TypeDecimal), precision), core.TypeDecimal), nil
}

// sum of an empty collection is 0.
func fnSum(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	typ, err := numeric(focus, call)
	if err != nil {
		return value{}, err
	}
	if focus.empty {
		return constValue("0", core.TypeInteger), nil
	}
	e := t.ctx.NextAlias()
	x := t.itemScalar(e+".item", focus.typ, typ)
	return constValue(fmt.Sprintf("(SELECT %s FROM %s)",
		t.d.Cast("COALESCE(SUM("+x+"), 0)", typ), t.d.Enumerate(t.coll(focus), e)), typ), nil
}

// extremum builds min and max over numbers, strings and temporals. Text
// compares by code point.
func extremum(agg string) Impl {
	return func(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
		typ := focus.typ
		switch {
		case typ.IsNumeric(), isText(typ):
		case typ == core.TypeAny:
			typ = core.TypeDecimal
		default:
			return value{}, newError(ErrUnsupported, call.Name, call.At, "%s values have no order", typ)
		}
		if focus.empty {
			return focus, nil
		}
		e := t.ctx.NextAlias()
		x := t.itemScalar(e+".item", focus.typ, typ)
		if isText(typ) {
			x = t.d.Collate(x)
		}
		return scalarValue(fmt.Sprintf("(SELECT %s(%s) FROM %s)", agg, x, t.d.Enumerate(t.coll(focus), e)), typ), nil
	}
}

func fnAvg(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	if _, err := numeric(focus, call); err != nil || focus.empty {
		return focus, err
	}
	e := t.ctx.NextAlias()
	x := t.itemScalar(e+".item", focus.typ, core.TypeDecimal)
	return scalarValue(fmt.Sprintf("(SELECT %s FROM %s)",
		t.divide("SUM("+x+")", t.d.Cast("COUNT("+x+")", core.TypeDecimal)), t.d.Enumerate(t.coll(focus), e)), core.TypeDecimal), nil
}
