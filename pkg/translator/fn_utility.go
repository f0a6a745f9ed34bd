package translator

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

func fnNot(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	if focus.empty {
		return focus, nil
	}
	return t.not(focus), nil
}

// trace returns its focus unchanged and logs the traced expression.
func fnTrace(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	name := call.Args[0].String()
	if lit, ok := call.Args[0].(*fhirpath.Literal); ok {
		name = lit.Value
	}
	target := "$this"
	if call.Target != nil {
		target = call.Target.String()
	}
	t.logger.Debug("trace",
		slog.String("name", name),
		slog.String("expression", target),
		slog.String("type", focus.typ.String()))
	return focus, nil
}

func fnNow(t *Translator, _ value, _ *fhirpath.Invocation) (value, error) {
	return constValue(t.d.CurrentDateTime(), core.TypeDateTime), nil
}

func fnToday(t *Translator, _ value, _ *fhirpath.Invocation) (value, error) {
	return constValue(t.d.CurrentDate(), core.TypeDate), nil
}

func fnTimeOfDay(t *Translator, _ value, _ *fhirpath.Invocation) (value, error) {
	return constValue(t.d.CurrentTime(), core.TypeTime), nil
}

// hasValue is true for a single primitive value.
func fnHasValue(t *Translator, focus value, _ *fhirpath.Invocation) (value, error) {
	switch {
	case focus.empty:
		return constValue("FALSE", core.TypeBoolean), nil
	case focus.form == formScalar:
		return constValue("(NOT "+t.isEmpty(focus)+")", core.TypeBoolean), nil
	case focus.form == formItem:
		return constValue("(NOT "+t.d.ItemIs(focus.sql, dialect.KindObject)+")", core.TypeBoolean), nil
	}
	c := t.coll(focus)
	return constValue(fmt.Sprintf("CASE WHEN %s = 1 THEN NOT %s ELSE FALSE END",
		t.d.Length(c), t.d.ItemIs(t.d.ElementAt(c, "0"), dialect.KindObject)), core.TypeBoolean), nil
}
