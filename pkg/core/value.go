package core

// ValueType is the closed set of FHIRPath value kinds a fragment can produce.
// Every fragment carries exactly one; TypeAny means the kind is only known at
// execution time (e.g. an element missing from the schema).
type ValueType int

// ValueType constants.
const (
	TypeAny ValueType = iota
	TypeBoolean
	TypeInteger
	TypeDecimal
	TypeString
	TypeDate
	TypeDateTime
	TypeTime
	TypeQuantity
	// TypeComplex covers FHIR datatypes and resources (JSON objects).
	TypeComplex
)

// String returns the FHIRPath System type name for the value type.
func (t ValueType) String() string {
	switch t {
	case TypeBoolean:
		return "Boolean"
	case TypeInteger:
		return "Integer"
	case TypeDecimal:
		return "Decimal"
	case TypeString:
		return "String"
	case TypeDate:
		return "Date"
	case TypeDateTime:
		return "DateTime"
	case TypeTime:
		return "Time"
	case TypeQuantity:
		return "Quantity"
	case TypeComplex:
		return "Complex"
	default:
		return "Any"
	}
}

// IsNumeric reports whether the type participates in arithmetic.
func (t ValueType) IsNumeric() bool {
	return t == TypeInteger || t == TypeDecimal
}

// IsTemporal reports whether the type is a date, date-time or time.
func (t ValueType) IsTemporal() bool {
	return t == TypeDate || t == TypeDateTime || t == TypeTime
}

// IsPrimitive reports whether values of this type are JSON scalars.
func (t ValueType) IsPrimitive() bool {
	switch t {
	case TypeBoolean, TypeInteger, TypeDecimal, TypeString, TypeDate, TypeDateTime, TypeTime:
		return true
	default:
		return false
	}
}

// PromoteNumeric returns the result type of an arithmetic operation on a and b.
// Integer op Integer stays Integer; any Decimal operand promotes to Decimal.
func PromoteNumeric(a, b ValueType) ValueType {
	if a == TypeInteger && b == TypeInteger {
		return TypeInteger
	}
	return TypeDecimal
}

// ParseTypeName maps a FHIRPath type specifier (System.X, FHIR.x, or bare) to a
// ValueType. Unknown names map to TypeComplex, which is how resources and
// complex datatypes are modelled.
func ParseTypeName(name string) ValueType {
	switch trimNamespace(name) {
	case "Boolean", "boolean":
		return TypeBoolean
	case "Integer", "integer", "positiveInt", "unsignedInt", "integer64":
		return TypeInteger
	case "Decimal", "decimal":
		return TypeDecimal
	case "String", "string", "code", "id", "uri", "url", "canonical", "oid", "uuid", "markdown", "base64Binary":
		return TypeString
	case "Date", "date":
		return TypeDate
	case "DateTime", "dateTime", "instant":
		return TypeDateTime
	case "Time", "time":
		return TypeTime
	case "Quantity", "Age", "Duration", "Distance", "Count", "SimpleQuantity", "MoneyQuantity":
		return TypeQuantity
	default:
		return TypeComplex
	}
}

func trimNamespace(name string) string {
	for _, prefix := range []string{"System.", "FHIR."} {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			return name[len(prefix):]
		}
	}
	return name
}
