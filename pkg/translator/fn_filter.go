package translator

import (
	"fmt"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

func fnWhere(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	if focus.empty {
		return focus, nil
	}
	e := t.ctx.NextAlias()
	crit, err := t.iterate(call.Args[0], focus, e+".item", e+".idx")
	if err != nil {
		return value{}, err
	}
	sql := fmt.Sprintf("(SELECT %s FROM %s WHERE %s)",
		t.d.AggregateItems(e+".item", e+".idx"), t.d.Enumerate(t.coll(focus), e), t.boolean(crit))
	res := collValue(sql, focus.typ)
	res.fhirType = focus.fhirType
	return res, nil
}

// select concatenates the projection of every item, in item order.
func fnSelect(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	if focus.empty {
		return focus, nil
	}
	e := t.ctx.NextAlias()
	proj, err := t.iterate(call.Args[0], focus, e+".item", e+".idx")
	if err != nil {
		return value{}, err
	}
	sql := fmt.Sprintf("(SELECT %s FROM %s)",
		t.d.AggregateCollections(t.coll(proj), e+".idx"), t.d.Enumerate(t.coll(focus), e))
	res := collValue(sql, proj.typ)
	res.fhirType = proj.fhirType
	return res, nil
}

// aggregate folds the items in order with a recursive query. Row i of the
// accumulator holds $total after the first i items.
func fnAggregate(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	init := t.emptyValue()
	if len(call.Args) == 2 {
		v, err := t.arg(call.Args[1])
		if err != nil {
			return value{}, err
		}
		init = v
	}

	c := t.coll(focus)
	a := t.ctx.NextAlias()
	acc := "acc_" + a

	snap := t.ctx.Snapshot()
	this := value{sql: t.d.ElementAt(c, a+".i"), form: formItem, typ: focus.typ, fhirType: focus.fhirType, single: true}
	t.ctx.Bind(BindThis, t.fragmentOf(this))
	t.ctx.Bind(BindIndex, t.fragmentOf(value{sql: a + ".i", form: formScalar, typ: core.TypeInteger, single: true, notNull: true}))
	t.ctx.Bind(BindTotal, t.fragmentOf(value{sql: a + ".total", form: formCollection, typ: init.typ, fhirType: init.fhirType}))
	body, err := t.expr(call.Args[0], this)
	t.ctx.Restore(snap)
	if err != nil {
		return value{}, err
	}

	sql := fmt.Sprintf("(WITH RECURSIVE %s(i, total) AS (SELECT 0, %s UNION ALL SELECT %s.i + 1, %s FROM %s AS %s WHERE %s.i < %s) SELECT total FROM %s ORDER BY i DESC LIMIT 1)",
		acc, t.coll(init), a, t.coll(body), acc, a, a, t.d.Length(c), acc)
	res := collValue(sql, mergeType(init, body))
	res.fhirType = body.fhirType
	return res, nil
}
