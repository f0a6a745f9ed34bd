package fhirpath

import "fmt"

// TokenType identifies the lexical class of a token.
type TokenType int

// Token types.
const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Literals
	TOKEN_IDENT     // name or `delimited name`
	TOKEN_STRING    // 'text'
	TOKEN_INTEGER   // 42
	TOKEN_DECIMAL   // 4.2
	TOKEN_DATE      // @2020-01-01
	TOKEN_DATETIME  // @2020-01-01T10:00:00Z
	TOKEN_TIME      // @T10:00
	TOKEN_VARIABLE  // $this, $index, $total
	TOKEN_EXTERNAL  // %resource, %context, %`name`

	// Punctuation
	TOKEN_DOT
	TOKEN_COMMA
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_LBRACKET
	TOKEN_RBRACKET
	TOKEN_LBRACE
	TOKEN_RBRACE

	// Operators
	TOKEN_PLUS
	TOKEN_MINUS
	TOKEN_STAR
	TOKEN_SLASH
	TOKEN_AMP
	TOKEN_PIPE
	TOKEN_EQ
	TOKEN_NE
	TOKEN_EQUIV
	TOKEN_NEQUIV
	TOKEN_LT
	TOKEN_GT
	TOKEN_LE
	TOKEN_GE

	// Keywords
	TOKEN_AND
	TOKEN_OR
	TOKEN_XOR
	TOKEN_IMPLIES
	TOKEN_DIV
	TOKEN_MOD
	TOKEN_IS
	TOKEN_AS
	TOKEN_IN
	TOKEN_CONTAINS
	TOKEN_TRUE
	TOKEN_FALSE
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:  "ILLEGAL",
	TOKEN_EOF:      "EOF",
	TOKEN_IDENT:    "identifier",
	TOKEN_STRING:   "string",
	TOKEN_INTEGER:  "integer",
	TOKEN_DECIMAL:  "decimal",
	TOKEN_DATE:     "date",
	TOKEN_DATETIME: "datetime",
	TOKEN_TIME:     "time",
	TOKEN_VARIABLE: "variable",
	TOKEN_EXTERNAL: "external constant",
	TOKEN_DOT:      ".",
	TOKEN_COMMA:    ",",
	TOKEN_LPAREN:   "(",
	TOKEN_RPAREN:   ")",
	TOKEN_LBRACKET: "[",
	TOKEN_RBRACKET: "]",
	TOKEN_LBRACE:   "{",
	TOKEN_RBRACE:   "}",
	TOKEN_PLUS:     "+",
	TOKEN_MINUS:    "-",
	TOKEN_STAR:     "*",
	TOKEN_SLASH:    "/",
	TOKEN_AMP:      "&",
	TOKEN_PIPE:     "|",
	TOKEN_EQ:       "=",
	TOKEN_NE:       "!=",
	TOKEN_EQUIV:    "~",
	TOKEN_NEQUIV:   "!~",
	TOKEN_LT:       "<",
	TOKEN_GT:       ">",
	TOKEN_LE:       "<=",
	TOKEN_GE:       ">=",
	TOKEN_AND:      "and",
	TOKEN_OR:       "or",
	TOKEN_XOR:      "xor",
	TOKEN_IMPLIES:  "implies",
	TOKEN_DIV:      "div",
	TOKEN_MOD:      "mod",
	TOKEN_IS:       "is",
	TOKEN_AS:       "as",
	TOKEN_IN:       "in",
	TOKEN_CONTAINS: "contains",
	TOKEN_TRUE:     "true",
	TOKEN_FALSE:    "false",
}

// String returns a readable name for the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// keywords maps reserved words to their token type. Keywords are
// case-sensitive in FHIRPath.
var keywords = map[string]TokenType{
	"and":      TOKEN_AND,
	"or":       TOKEN_OR,
	"xor":      TOKEN_XOR,
	"implies":  TOKEN_IMPLIES,
	"div":      TOKEN_DIV,
	"mod":      TOKEN_MOD,
	"is":       TOKEN_IS,
	"as":       TOKEN_AS,
	"in":       TOKEN_IN,
	"contains": TOKEN_CONTAINS,
	"true":     TOKEN_TRUE,
	"false":    TOKEN_FALSE,
}

// Position is a location in the expression text.
type Position struct {
	Line   int // 1-based
	Column int // 1-based
	Offset int // 0-based byte offset
}

// Token is a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// Precedence levels, lowest binding first.
const (
	precNone = iota
	precImplies
	precOr // or, xor
	precAnd
	precMembership // in, contains
	precEquality   // = ~ != !~
	precInequality // < > <= >=
	precUnion      // |
	precType       // is, as
	precAdditive   // + - &
	precMultiplicative
	precUnary
	precPostfix // . [ ]
)

var infixPrecedence = map[TokenType]int{
	TOKEN_IMPLIES:  precImplies,
	TOKEN_OR:       precOr,
	TOKEN_XOR:      precOr,
	TOKEN_AND:      precAnd,
	TOKEN_IN:       precMembership,
	TOKEN_CONTAINS: precMembership,
	TOKEN_EQ:       precEquality,
	TOKEN_NE:       precEquality,
	TOKEN_EQUIV:    precEquality,
	TOKEN_NEQUIV:   precEquality,
	TOKEN_LT:       precInequality,
	TOKEN_GT:       precInequality,
	TOKEN_LE:       precInequality,
	TOKEN_GE:       precInequality,
	TOKEN_PIPE:     precUnion,
	TOKEN_IS:       precType,
	TOKEN_AS:       precType,
	TOKEN_PLUS:     precAdditive,
	TOKEN_MINUS:    precAdditive,
	TOKEN_AMP:      precAdditive,
	TOKEN_STAR:     precMultiplicative,
	TOKEN_SLASH:    precMultiplicative,
	TOKEN_DIV:      precMultiplicative,
	TOKEN_MOD:      precMultiplicative,
	TOKEN_DOT:      precPostfix,
	TOKEN_LBRACKET: precPostfix,
}
