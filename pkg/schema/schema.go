// Package schema holds FHIR R4 element metadata: the declared type and
// cardinality of each element of the common resources and datatypes.
//
// The translator uses it to decide when a path yields at most one value
// (singleton auto-unwrap), what FHIRPath type a path produces, and how a
// choice element such as Observation.value[x] maps onto JSON keys.
//
// Elements missing from the tables are not errors: callers treat them as
// collections of unknown type.
package schema

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/fhirsql/pkg/core"
)

// Unbounded is the Max of a repeating element (cardinality 0..*).
const Unbounded = -1

// Element describes one element of a FHIR type.
type Element struct {
	Name string
	// Type is the FHIR type code (string, HumanName, ...). Backbone elements
	// use the dotted path of their definition, e.g. Patient.contact.
	Type string
	Max  int
	// Choices lists the allowed types of a choice element (value[x]).
	Choices []string
}

// IsCollection reports whether the element may repeat.
func (e Element) IsCollection() bool {
	return e.Max == Unbounded
}

// IsChoice reports whether the element is a choice element.
func (e Element) IsChoice() bool {
	return len(e.Choices) > 0
}

// ValueType returns the FHIRPath value type of the element.
// Choice elements are TypeAny until narrowed with ofType or as.
func (e Element) ValueType() core.ValueType {
	if e.IsChoice() {
		return core.TypeAny
	}
	return core.ParseTypeName(e.Type)
}

// ChoiceKeys returns the JSON property names of a choice element in
// declaration order, e.g. valueQuantity, valueString.
func (e Element) ChoiceKeys() []string {
	keys := make([]string, len(e.Choices))
	for i, t := range e.Choices {
		keys[i] = ChoiceKey(e.Name, t)
	}
	return keys
}

// ChoiceKey returns the JSON property name of one type of a choice element.
func ChoiceKey(name, typeName string) string {
	if typeName == "" {
		return name
	}
	return name + strings.ToUpper(typeName[:1]) + typeName[1:]
}

// Lookup returns the element name of typeName. A concrete choice key
// (valueQuantity) resolves to a single-typed element.
func Lookup(typeName, name string) (Element, bool) {
	elems, ok := types[typeName]
	if !ok {
		return Element{}, false
	}
	if e, ok := elems[name]; ok {
		return e, true
	}
	for _, e := range elems {
		if !e.IsChoice() || !strings.HasPrefix(name, e.Name) {
			continue
		}
		for _, t := range e.Choices {
			if ChoiceKey(e.Name, t) == name {
				return Element{Name: name, Type: t, Max: e.Max}, true
			}
		}
	}
	return Element{}, false
}

// Resolve walks a dotted path from a resource type and returns the last
// element. It reports false when any step is unknown.
func Resolve(resourceType string, path ...string) (Element, bool) {
	current := resourceType
	var e Element
	for _, step := range path {
		next, ok := Lookup(current, step)
		if !ok {
			return Element{}, false
		}
		e = next
		current = next.Type
	}
	return e, len(path) > 0
}

// IsResource reports whether name is a known resource type.
func IsResource(name string) bool {
	return resources[name]
}

// IsKnownType reports whether name is a known resource or datatype.
func IsKnownType(name string) bool {
	_, ok := types[name]
	return ok || core.ParseTypeName(name) != core.TypeComplex
}

// Resources returns the known resource types, sorted.
func Resources() []string {
	out := make([]string, 0, len(resources))
	for r := range resources {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
