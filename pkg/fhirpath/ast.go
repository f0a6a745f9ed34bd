package fhirpath

import (
	"strings"
)

// Node is a node of a parsed FHIRPath expression. The set of node types is
// closed; nodes are not modified after parsing.
type Node interface {
	node()
	Pos() Position
	String() string
}

// LiteralKind is the kind of a literal.
type LiteralKind int

// LiteralKind constants.
const (
	LiteralNull LiteralKind = iota // {}
	LiteralBoolean
	LiteralString
	LiteralInteger
	LiteralDecimal
	LiteralDate
	LiteralDateTime
	LiteralTime
	LiteralQuantity
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralBoolean:
		return "Boolean"
	case LiteralString:
		return "String"
	case LiteralInteger:
		return "Integer"
	case LiteralDecimal:
		return "Decimal"
	case LiteralDate:
		return "Date"
	case LiteralDateTime:
		return "DateTime"
	case LiteralTime:
		return "Time"
	case LiteralQuantity:
		return "Quantity"
	default:
		return "Null"
	}
}

// Literal is a constant value. Value holds the literal text without
// delimiters (no quotes, no '@'). Unit is set for quantities.
type Literal struct {
	Kind  LiteralKind
	Value string
	Unit  string
	At    Position
}

// Identifier is the first name of a path, e.g. Patient in Patient.name.
type Identifier struct {
	Name string
	At   Position
}

// Member is a member access on a target: Target.Name.
type Member struct {
	Target Node
	Name   string
	At     Position
}

// Invocation is a function call. Target is nil when the function is called
// without an explicit focus, e.g. inside where(exists()).
type Invocation struct {
	Target Node
	Name   string
	Args   []Node
	At     Position
}

// Indexer is Target[Index].
type Indexer struct {
	Target Node
	Index  Node
	At     Position
}

// Binary is an infix operator. Op is the operator token as written.
type Binary struct {
	Op    TokenType
	Left  Node
	Right Node
	At    Position
}

// Unary is a polarity operator (+ or -) applied to Operand.
type Unary struct {
	Op      TokenType
	Operand Node
	At      Position
}

// Union is Left | Right.
type Union struct {
	Left  Node
	Right Node
	At    Position
}

// Variable is $this, $index, $total or an external constant (%resource,
// %context, %ucum ...). External constants keep their '%' prefix in Name.
type Variable struct {
	Name string
	At   Position
}

// TypeExpr is an is/as operator with a type specifier.
type TypeExpr struct {
	Op       TokenType // TOKEN_IS or TOKEN_AS
	Operand  Node
	TypeName string
	At       Position
}

func (*Literal) node()    {}
func (*Identifier) node() {}
func (*Member) node()     {}
func (*Invocation) node() {}
func (*Indexer) node()    {}
func (*Binary) node()     {}
func (*Unary) node()      {}
func (*Union) node()      {}
func (*Variable) node()   {}
func (*TypeExpr) node()   {}

// Pos returns the node's start position.
func (n *Literal) Pos() Position    { return n.At }
func (n *Identifier) Pos() Position { return n.At }
func (n *Member) Pos() Position     { return n.At }
func (n *Invocation) Pos() Position { return n.At }
func (n *Indexer) Pos() Position    { return n.At }
func (n *Binary) Pos() Position     { return n.At }
func (n *Unary) Pos() Position      { return n.At }
func (n *Union) Pos() Position      { return n.At }
func (n *Variable) Pos() Position   { return n.At }
func (n *TypeExpr) Pos() Position   { return n.At }

func (n *Literal) String() string {
	switch n.Kind {
	case LiteralNull:
		return "{}"
	case LiteralString:
		return "'" + strings.ReplaceAll(n.Value, "'", `\'`) + "'"
	case LiteralDate, LiteralDateTime:
		return "@" + n.Value
	case LiteralTime:
		return "@T" + n.Value
	case LiteralQuantity:
		if isCalendarUnit(n.Unit) {
			return n.Value + " " + n.Unit
		}
		return n.Value + " '" + n.Unit + "'"
	default:
		return n.Value
	}
}

func (n *Identifier) String() string { return n.Name }

func (n *Member) String() string { return n.Target.String() + "." + n.Name }

func (n *Invocation) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	call := n.Name + "(" + strings.Join(args, ", ") + ")"
	if n.Target == nil {
		return call
	}
	return n.Target.String() + "." + call
}

func (n *Indexer) String() string { return n.Target.String() + "[" + n.Index.String() + "]" }

func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

func (n *Unary) String() string { return n.Op.String() + n.Operand.String() }

func (n *Union) String() string { return "(" + n.Left.String() + " | " + n.Right.String() + ")" }

func (n *Variable) String() string { return n.Name }

func (n *TypeExpr) String() string {
	return "(" + n.Operand.String() + " " + n.Op.String() + " " + n.TypeName + ")"
}

// calendarUnits are the unquoted time-valued quantity units.
var calendarUnits = map[string]bool{
	"year": true, "years": true,
	"month": true, "months": true,
	"week": true, "weeks": true,
	"day": true, "days": true,
	"hour": true, "hours": true,
	"minute": true, "minutes": true,
	"second": true, "seconds": true,
	"millisecond": true, "milliseconds": true,
}

func isCalendarUnit(s string) bool {
	return calendarUnits[s]
}
