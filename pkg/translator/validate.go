package translator

import (
	"strings"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
	"github.com/leapstack-labs/fhirsql/pkg/schema"
)

// Validate rejects comparisons between kinds that have no implicit
// conversion, such as a time of day against a date. Types come from
// literals, the element tables and conversion functions; anything of
// unknown type passes.
func Validate(root fhirpath.Node, resourceType string) error {
	v := validator{resourceType: resourceType}
	_, err := v.walk(root, v.root())
	return err
}

type typeInfo struct {
	typ      core.ValueType
	fhirType string
}

var unknown = typeInfo{typ: core.TypeAny}

type validator struct {
	resourceType string
	this         *typeInfo
}

func (v *validator) root() typeInfo {
	return typeInfo{typ: core.TypeComplex, fhirType: v.resourceType}
}

// Result types of functions that do not return their focus type.
var functionTypes = map[string]core.ValueType{
	"empty": core.TypeBoolean, "exists": core.TypeBoolean, "all": core.TypeBoolean,
	"allTrue": core.TypeBoolean, "anyTrue": core.TypeBoolean, "allFalse": core.TypeBoolean,
	"anyFalse": core.TypeBoolean, "subsetOf": core.TypeBoolean, "supersetOf": core.TypeBoolean,
	"isDistinct": core.TypeBoolean, "is": core.TypeBoolean, "not": core.TypeBoolean,
	"hasValue": core.TypeBoolean, "startsWith": core.TypeBoolean, "endsWith": core.TypeBoolean,
	"contains": core.TypeBoolean, "matches": core.TypeBoolean,
	"count": core.TypeInteger, "length": core.TypeInteger, "indexOf": core.TypeInteger,
	"ceiling": core.TypeInteger, "floor": core.TypeInteger, "truncate": core.TypeInteger,
	"toBoolean": core.TypeBoolean, "toInteger": core.TypeInteger, "toDecimal": core.TypeDecimal,
	"toString": core.TypeString, "toQuantity": core.TypeQuantity, "toDate": core.TypeDate,
	"toDateTime": core.TypeDateTime, "toTime": core.TypeTime,
	"substring": core.TypeString, "upper": core.TypeString, "lower": core.TypeString,
	"replace": core.TypeString, "replaceMatches": core.TypeString, "trim": core.TypeString,
	"toChars": core.TypeString, "split": core.TypeString, "join": core.TypeString,
	"round": core.TypeDecimal, "avg": core.TypeDecimal,
	"now": core.TypeDateTime, "today": core.TypeDate, "timeOfDay": core.TypeTime,
}

// Functions returning (a subset of) their focus.
var focusFunctions = map[string]bool{
	"where": true, "distinct": true, "single": true, "first": true, "last": true,
	"tail": true, "skip": true, "take": true, "intersect": true, "exclude": true,
	"trace": true, "abs": true, "min": true, "max": true, "sum": true,
}

func (v *validator) walk(node fhirpath.Node, focus typeInfo) (typeInfo, error) {
	switch n := node.(type) {
	case *fhirpath.Literal:
		return literalType(n), nil

	case *fhirpath.Identifier:
		if n.Name == v.resourceType || schema.IsResource(n.Name) {
			return typeInfo{typ: core.TypeComplex, fhirType: n.Name}, nil
		}
		return memberType(focus, n.Name), nil

	case *fhirpath.Member:
		target, err := v.walk(n.Target, focus)
		if err != nil {
			return unknown, err
		}
		return memberType(target, n.Name), nil

	case *fhirpath.Invocation:
		target := focus
		if n.Target != nil {
			t, err := v.walk(n.Target, focus)
			if err != nil {
				return unknown, err
			}
			target = t
		}
		return v.invocation(n, target, focus)

	case *fhirpath.Indexer:
		if _, err := v.walk(n.Index, focus); err != nil {
			return unknown, err
		}
		return v.walk(n.Target, focus)

	case *fhirpath.Unary:
		return v.walk(n.Operand, focus)

	case *fhirpath.Union:
		l, err := v.walk(n.Left, focus)
		if err != nil {
			return unknown, err
		}
		r, err := v.walk(n.Right, focus)
		if err != nil {
			return unknown, err
		}
		if l.typ == r.typ {
			return l, nil
		}
		return unknown, nil

	case *fhirpath.TypeExpr:
		if _, err := v.walk(n.Operand, focus); err != nil {
			return unknown, err
		}
		if n.Op == fhirpath.TOKEN_IS {
			return typeInfo{typ: core.TypeBoolean}, nil
		}
		return typeInfo{typ: core.ParseTypeName(n.TypeName), fhirType: bareTypeName(n.TypeName)}, nil

	case *fhirpath.Variable:
		switch n.Name {
		case "$this":
			if v.this != nil {
				return *v.this, nil
			}
			return focus, nil
		case "$index":
			return typeInfo{typ: core.TypeInteger}, nil
		case "%resource", "%context", "%rootResource":
			return v.root(), nil
		}
		if _, ok := externalConstants[n.Name]; ok {
			return typeInfo{typ: core.TypeString}, nil
		}
		return unknown, nil

	case *fhirpath.Binary:
		return v.binary(n, focus)
	}
	return unknown, nil
}

func (v *validator) invocation(n *fhirpath.Invocation, target, scope typeInfo) (typeInfo, error) {
	argFocus := scope
	if v.this != nil {
		argFocus = *v.this
	}
	spec, ok := LookupFunction(n.Name)
	if ok && spec.Lambda {
		saved := v.this
		v.this = &target
		defer func() { v.this = saved }()
		argFocus = target
	}
	for _, a := range n.Args {
		if _, err := v.walk(a, argFocus); err != nil {
			return unknown, err
		}
	}

	switch {
	case n.Name == "ofType" || n.Name == "as":
		if name, err := typeArg(n); err == nil {
			return typeInfo{typ: core.ParseTypeName(name), fhirType: bareTypeName(name)}, nil
		}
		return unknown, nil
	case focusFunctions[n.Name]:
		return target, nil
	}
	if typ, ok := functionTypes[n.Name]; ok {
		return typeInfo{typ: typ}, nil
	}
	if strings.HasPrefix(n.Name, "convertsTo") {
		return typeInfo{typ: core.TypeBoolean}, nil
	}
	return unknown, nil
}

func (v *validator) binary(n *fhirpath.Binary, focus typeInfo) (typeInfo, error) {
	l, err := v.walk(n.Left, focus)
	if err != nil {
		return unknown, err
	}
	r, err := v.walk(n.Right, focus)
	if err != nil {
		return unknown, err
	}

	switch n.Op {
	case fhirpath.TOKEN_EQ, fhirpath.TOKEN_NE, fhirpath.TOKEN_EQUIV, fhirpath.TOKEN_NEQUIV,
		fhirpath.TOKEN_LT, fhirpath.TOKEN_GT, fhirpath.TOKEN_LE, fhirpath.TOKEN_GE:
		if reason := incompatible(l.typ, r.typ); reason != "" {
			return unknown, &IncompatibleError{Op: n.Op.String(), Left: l.typ, Right: r.typ, Reason: reason, Pos: n.At}
		}
		return typeInfo{typ: core.TypeBoolean}, nil
	case fhirpath.TOKEN_AND, fhirpath.TOKEN_OR, fhirpath.TOKEN_XOR, fhirpath.TOKEN_IMPLIES,
		fhirpath.TOKEN_IN, fhirpath.TOKEN_CONTAINS:
		return typeInfo{typ: core.TypeBoolean}, nil
	case fhirpath.TOKEN_AMP:
		return typeInfo{typ: core.TypeString}, nil
	case fhirpath.TOKEN_SLASH:
		return typeInfo{typ: core.TypeDecimal}, nil
	case fhirpath.TOKEN_DIV:
		return typeInfo{typ: core.TypeInteger}, nil
	}
	if l.typ.IsNumeric() && r.typ.IsNumeric() {
		return typeInfo{typ: core.PromoteNumeric(l.typ, r.typ)}, nil
	}
	return unknown, nil
}

// incompatible returns why values of kinds a and b cannot be compared, or
// "" when they can.
func incompatible(a, b core.ValueType) string {
	if a == core.TypeAny || b == core.TypeAny || a == b {
		return ""
	}
	pair := func(x, y core.ValueType) bool {
		return (a == x && b == y) || (a == y && b == x)
	}
	switch {
	case pair(core.TypeTime, core.TypeDate), pair(core.TypeTime, core.TypeDateTime):
		return "a time of day has no calendar date to compare with"
	case (a.IsTemporal() && (b.IsNumeric() || b == core.TypeBoolean)) ||
		(b.IsTemporal() && (a.IsNumeric() || a == core.TypeBoolean)):
		return "temporal values do not convert to numbers or booleans"
	case (a == core.TypeBoolean && b.IsNumeric()) || (b == core.TypeBoolean && a.IsNumeric()):
		return "booleans do not convert to numbers"
	}
	return ""
}

func literalType(n *fhirpath.Literal) typeInfo {
	switch n.Kind {
	case fhirpath.LiteralBoolean:
		return typeInfo{typ: core.TypeBoolean}
	case fhirpath.LiteralInteger:
		return typeInfo{typ: core.TypeInteger}
	case fhirpath.LiteralDecimal:
		return typeInfo{typ: core.TypeDecimal}
	case fhirpath.LiteralString:
		return typeInfo{typ: core.TypeString}
	case fhirpath.LiteralDate:
		return typeInfo{typ: core.TypeDate}
	case fhirpath.LiteralDateTime:
		return typeInfo{typ: core.TypeDateTime}
	case fhirpath.LiteralTime:
		return typeInfo{typ: core.TypeTime}
	case fhirpath.LiteralQuantity:
		return typeInfo{typ: core.TypeQuantity, fhirType: "Quantity"}
	default:
		return unknown
	}
}

func memberType(focus typeInfo, name string) typeInfo {
	if focus.fhirType == "" {
		return unknown
	}
	e, ok := schema.Lookup(focus.fhirType, name)
	if !ok {
		return unknown
	}
	return typeInfo{typ: e.ValueType(), fhirType: e.Type}
}
