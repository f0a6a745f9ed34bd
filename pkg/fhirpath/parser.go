// Package fhirpath parses FHIRPath expressions into an AST.
//
// # Usage
//
//	node, err := fhirpath.Parse("Patient.name.where(use = 'official').family")
//	if err != nil {
//	    // *ParseError or *LexError
//	}
//
// # Grammar Overview
//
// The parser is a Pratt parser over the FHIRPath operator table, lowest
// binding first:
//
//	implies
//	or xor
//	and
//	in contains
//	= ~ != !~
//	< > <= >=
//	|
//	is as
//	+ - &
//	* / div mod
//	unary + -
//	. [ ]   (member access, invocation, indexer)
//
// Input is normalized to Unicode NFC before lexing so that string literals
// compare equal regardless of the composition used by the author.
package fhirpath

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Parser parses FHIRPath into an AST.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	errors []error
}

// NewParser creates a parser for the given expression text.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(norm.NFC.String(input))}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete FHIRPath expression.
func Parse(input string) (Node, error) {
	p := NewParser(input)
	if p.check(TOKEN_EOF) {
		return nil, &ParseError{Pos: p.token.Pos, Message: ErrEmptyExpression}
	}

	node := p.parseExpression(precImplies)
	if !p.check(TOKEN_EOF) && len(p.errors) == 0 {
		p.addError(fmt.Sprintf(ErrTrailingInput, describe(p.token)))
	}

	// Lexical errors explain parse errors better than the parse errors they cause.
	if errs := p.lexer.Errors(); len(errs) > 0 {
		return nil, errs[0]
	}
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return node, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level expressions.
func MustParse(input string) Node {
	n, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return n
}

// ---------- Token Helpers ----------

func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(p.token), t))
	return false
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{Pos: p.token.Pos, Message: msg})
}

// describe renders a token for error messages.
func describe(tok Token) string {
	switch tok.Type {
	case TOKEN_EOF:
		return "end of input"
	case TOKEN_IDENT, TOKEN_INTEGER, TOKEN_DECIMAL:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	case TOKEN_STRING:
		return fmt.Sprintf("string '%s'", tok.Literal)
	default:
		return fmt.Sprintf("%q", tok.Type.String())
	}
}

// isIdentifierToken reports whether tok can name a member or function. The
// keywords as, contains, in and is double as identifiers, e.g. name.contains('x').
func isIdentifierToken(tok Token) bool {
	switch tok.Type {
	case TOKEN_IDENT, TOKEN_AS, TOKEN_CONTAINS, TOKEN_IN, TOKEN_IS:
		return true
	}
	return false
}

// ---------- Expressions ----------

func (p *Parser) parseExpression(minPrec int) Node {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}

	for {
		prec, ok := infixPrecedence[p.token.Type]
		if !ok || prec < minPrec {
			break
		}
		left = p.parseInfix(left, prec)
		if left == nil {
			return nil
		}
	}
	return left
}

func (p *Parser) parsePrefix() Node {
	switch p.token.Type {
	case TOKEN_PLUS, TOKEN_MINUS:
		op := p.token
		p.nextToken()
		operand := p.parseExpression(precUnary)
		if operand == nil {
			return nil
		}
		return &Unary{Op: op.Type, Operand: operand, At: op.Pos}
	default:
		return p.parseTerm()
	}
}

func (p *Parser) parseInfix(left Node, prec int) Node {
	op := p.token

	switch op.Type {
	case TOKEN_DOT:
		p.nextToken()
		return p.parseInvocation(left)

	case TOKEN_LBRACKET:
		p.nextToken()
		index := p.parseExpression(precImplies)
		if index == nil {
			return nil
		}
		if !p.expect(TOKEN_RBRACKET) {
			return nil
		}
		return &Indexer{Target: left, Index: index, At: op.Pos}

	case TOKEN_IS, TOKEN_AS:
		p.nextToken()
		name, ok := p.parseTypeSpecifier()
		if !ok {
			return nil
		}
		return &TypeExpr{Op: op.Type, Operand: left, TypeName: name, At: op.Pos}
	}

	p.nextToken()
	right := p.parseExpression(prec + 1)
	if right == nil {
		return nil
	}
	if op.Type == TOKEN_PIPE {
		return &Union{Left: left, Right: right, At: op.Pos}
	}
	return &Binary{Op: op.Type, Left: left, Right: right, At: op.Pos}
}

// parseInvocation parses the part after a dot: a member name or a call.
func (p *Parser) parseInvocation(target Node) Node {
	tok := p.token
	if !isIdentifierToken(tok) {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(tok), "identifier"))
		return nil
	}
	p.nextToken()

	if p.check(TOKEN_LPAREN) {
		args, ok := p.parseArguments()
		if !ok {
			return nil
		}
		return &Invocation{Target: target, Name: tok.Literal, Args: args, At: tok.Pos}
	}
	return &Member{Target: target, Name: tok.Literal, At: tok.Pos}
}

func (p *Parser) parseArguments() ([]Node, bool) {
	p.nextToken() // consume '('

	var args []Node
	if p.check(TOKEN_RPAREN) {
		p.nextToken()
		return args, true
	}
	for {
		arg := p.parseExpression(precImplies)
		if arg == nil {
			return nil, false
		}
		args = append(args, arg)
		if p.check(TOKEN_COMMA) {
			p.nextToken()
			continue
		}
		break
	}
	if !p.expect(TOKEN_RPAREN) {
		return nil, false
	}
	return args, true
}

// parseTypeSpecifier parses a qualified type name such as System.Integer.
func (p *Parser) parseTypeSpecifier() (string, bool) {
	if !isIdentifierToken(p.token) {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(p.token), "type name"))
		return "", false
	}
	parts := []string{p.token.Literal}
	p.nextToken()
	for p.check(TOKEN_DOT) && isIdentifierToken(p.peek) {
		p.nextToken()
		parts = append(parts, p.token.Literal)
		p.nextToken()
	}
	return strings.Join(parts, "."), true
}

func (p *Parser) parseTerm() Node {
	tok := p.token

	switch tok.Type {
	case TOKEN_TRUE, TOKEN_FALSE:
		p.nextToken()
		return &Literal{Kind: LiteralBoolean, Value: tok.Literal, At: tok.Pos}

	case TOKEN_STRING:
		p.nextToken()
		return &Literal{Kind: LiteralString, Value: tok.Literal, At: tok.Pos}

	case TOKEN_INTEGER, TOKEN_DECIMAL:
		p.nextToken()
		if unit, ok := p.parseQuantityUnit(); ok {
			return &Literal{Kind: LiteralQuantity, Value: tok.Literal, Unit: unit, At: tok.Pos}
		}
		kind := LiteralInteger
		if tok.Type == TOKEN_DECIMAL {
			kind = LiteralDecimal
		}
		return &Literal{Kind: kind, Value: tok.Literal, At: tok.Pos}

	case TOKEN_DATE:
		p.nextToken()
		return &Literal{Kind: LiteralDate, Value: tok.Literal, At: tok.Pos}

	case TOKEN_DATETIME:
		p.nextToken()
		return &Literal{Kind: LiteralDateTime, Value: tok.Literal, At: tok.Pos}

	case TOKEN_TIME:
		p.nextToken()
		return &Literal{Kind: LiteralTime, Value: tok.Literal, At: tok.Pos}

	case TOKEN_LBRACE:
		p.nextToken()
		if !p.expect(TOKEN_RBRACE) {
			return nil
		}
		return &Literal{Kind: LiteralNull, At: tok.Pos}

	case TOKEN_LPAREN:
		p.nextToken()
		inner := p.parseExpression(precImplies)
		if inner == nil {
			return nil
		}
		if !p.expect(TOKEN_RPAREN) {
			return nil
		}
		return inner

	case TOKEN_VARIABLE:
		p.nextToken()
		return &Variable{Name: tok.Literal, At: tok.Pos}

	case TOKEN_EXTERNAL:
		p.nextToken()
		return &Variable{Name: "%" + tok.Literal, At: tok.Pos}
	}

	if isIdentifierToken(tok) {
		p.nextToken()
		if p.check(TOKEN_LPAREN) {
			args, ok := p.parseArguments()
			if !ok {
				return nil
			}
			return &Invocation{Name: tok.Literal, Args: args, At: tok.Pos}
		}
		return &Identifier{Name: tok.Literal, At: tok.Pos}
	}

	if tok.Type != TOKEN_ILLEGAL {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(tok), "expression"))
	}
	return nil
}

// parseQuantityUnit consumes the unit following a number, if any: a quoted
// UCUM unit or an unquoted calendar duration keyword.
func (p *Parser) parseQuantityUnit() (string, bool) {
	switch {
	case p.check(TOKEN_STRING):
		unit := p.token.Literal
		p.nextToken()
		return unit, true
	case p.check(TOKEN_IDENT) && isCalendarUnit(p.token.Literal):
		unit := p.token.Literal
		p.nextToken()
		return unit, true
	}
	return "", false
}
