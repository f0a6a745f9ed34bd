package translator

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
	"github.com/leapstack-labs/fhirsql/pkg/schema"
)

// Text shapes of temporal values stored as JSON strings.
const (
	dateShape     = `^\d{4}(-\d{2}(-\d{2})?)?$`
	dateTimeShape = `^\d{4}(-\d{2}(-\d{2})?)?T`
	timeShape     = `^\d{2}(:\d{2}(:\d{2}(\.\d+)?)?)?$`
)

func fnIs(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	name, err := typeArg(call)
	if err != nil {
		return value{}, err
	}
	return t.isType(focus, name), nil
}

func fnOfType(t *Translator, focus value, call *fhirpath.Invocation) (value, error) {
	name, err := typeArg(call)
	if err != nil {
		return value{}, err
	}
	return t.ofType(focus, name), nil
}

// typeArg reads a type specifier argument such as Quantity or System.String.
func typeArg(call *fhirpath.Invocation) (string, error) {
	switch n := call.Args[0].(type) {
	case *fhirpath.Identifier:
		return n.Name, nil
	case *fhirpath.Member:
		if _, ok := n.Target.(*fhirpath.Identifier); ok {
			return n.String(), nil
		}
	}
	return "", newError(ErrUnsupported, call.Name, call.At, "%s is not a type name", call.Args[0])
}

func bareTypeName(name string) string {
	for _, prefix := range []string{"System.", "FHIR."} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			return rest
		}
	}
	return name
}

// staticType decides a type test from what is known at compile time.
func staticType(v value, name string) (match, known bool) {
	want := core.ParseTypeName(name)
	bare := bareTypeName(name)
	switch {
	case v.typ == core.TypeAny || v.choice != nil:
		return false, false
	case v.fhirType != "" && v.fhirType == bare:
		return true, true
	case want == core.TypeComplex:
		if v.typ != core.TypeComplex {
			return false, true
		}
		// A datatype never turns into another one; resources are checked on
		// resourceType at run time.
		if v.fhirType != "" && !schema.IsResource(bare) && !isResourceType(v.fhirType) {
			return false, true
		}
		return false, false
	case v.typ == core.TypeComplex:
		return false, true
	default:
		return v.typ == want, true
	}
}

func isResourceType(name string) bool {
	return name == "Resource" || name == "DomainResource" || schema.IsResource(name)
}

// choiceKey returns the concrete member key of a choice value for a type.
func choiceKey(v value, name string) (string, string, bool) {
	bare := bareTypeName(name)
	want := core.ParseTypeName(name)
	for _, c := range v.choice.Choices {
		if strings.EqualFold(c, bare) || (want != core.TypeComplex && core.ParseTypeName(c) == want) {
			return schema.ChoiceKey(v.choice.Name, c), c, true
		}
	}
	return "", "", false
}

// narrow reads one concrete type of a choice path.
func (t *Translator) narrow(v value, name string) value {
	key, typeName, ok := choiceKey(v, name)
	if !ok {
		return t.emptyValue()
	}
	res := v
	res.keys = append(append([]string(nil), v.keys[:len(v.keys)-1]...), key)
	res.choice = nil
	res.typ = core.ParseTypeName(typeName)
	res.fhirType = typeName
	return res
}

// isType is the is operator: empty on empty input, otherwise whether the
// single item has the named type.
func (t *Translator) isType(v value, name string) value {
	if v.empty {
		return v
	}
	if v.choice != nil {
		n := t.narrow(v, name)
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN NULL ELSE NOT %s END", t.isEmpty(v), t.isEmpty(n)), core.TypeBoolean)
	}
	if match, known := staticType(v, name); known {
		lit := "FALSE"
		if match {
			lit = "TRUE"
		}
		if v.notNull || v.form == formItem {
			return constValue(lit, core.TypeBoolean)
		}
		return scalarValue(fmt.Sprintf("CASE WHEN %s THEN NULL ELSE %s END", t.isEmpty(v), lit), core.TypeBoolean)
	}
	item, guard := t.first(v)
	test := t.itemHasType(item, name)
	if guard == "" {
		return constValue(test, core.TypeBoolean)
	}
	return scalarValue(fmt.Sprintf("CASE WHEN %s THEN %s END", guard, test), core.TypeBoolean)
}

// ofType keeps the items of the named type. as behaves the same way.
func (t *Translator) ofType(v value, name string) value {
	if v.empty {
		return v
	}
	if v.choice != nil {
		return t.narrow(v, name)
	}
	if match, known := staticType(v, name); known {
		if match {
			return v
		}
		return t.emptyValue()
	}
	e := t.ctx.NextAlias()
	sql := fmt.Sprintf("(SELECT %s FROM %s WHERE %s)",
		t.d.AggregateItems(e+".item", e+".idx"), t.d.Enumerate(t.coll(v), e), t.itemHasType(e+".item", name))
	res := collValue(sql, core.ParseTypeName(name))
	res.single = v.single
	if res.typ == core.TypeComplex || res.typ == core.TypeQuantity {
		res.fhirType = bareTypeName(name)
	}
	return res
}

// itemHasType tests a JSON item against a type name at run time.
func (t *Translator) itemHasType(item, name string) string {
	text := t.d.ItemText(item)
	str := t.d.ItemIs(item, dialect.KindString)
	shape := func(p string) string {
		return "(" + str + " AND " + t.d.RegexMatches(text, t.d.StringLiteral(p)) + ")"
	}

	bare := bareTypeName(name)
	switch core.ParseTypeName(name) {
	case core.TypeBoolean:
		return t.d.ItemIs(item, dialect.KindBoolean)
	case core.TypeInteger:
		return t.d.ItemIs(item, dialect.KindInteger)
	case core.TypeDecimal:
		return fmt.Sprintf("(%s AND NOT %s)", t.d.ItemIs(item, dialect.KindNumber), t.d.ItemIs(item, dialect.KindInteger))
	case core.TypeString:
		return str
	case core.TypeDate:
		return shape(dateShape)
	case core.TypeDateTime:
		return shape(dateTimeShape)
	case core.TypeTime:
		return shape(timeShape)
	case core.TypeQuantity:
		return fmt.Sprintf("(%s AND %s IS NOT NULL)", t.d.ItemIs(item, dialect.KindObject), t.d.ItemField(item, "value"))
	}
	obj := t.d.ItemIs(item, dialect.KindObject)
	if schema.IsResource(bare) {
		return fmt.Sprintf("(%s AND %s = %s)", obj, t.d.ItemText(t.d.ItemField(item, "resourceType")), t.d.StringLiteral(bare))
	}
	return obj
}
