package fhirpath

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	dateLiteral     = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2})?)?$`)
	timeLiteral     = regexp.MustCompile(`^\d{2}(:\d{2}(:\d{2}(\.\d+)?)?)?$`)
	timezoneSuffix  = regexp.MustCompile(`(Z|[+-]\d{2}:\d{2})$`)
	dateTimeLiteral = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2})?)?T`)
)

// Lexer tokenizes FHIRPath input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)

	errors []error
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// Errors returns the lexical errors collected so far.
func (l *Lexer) Errors() []error {
	return l.errors
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col, Offset: l.pos}
}

func (l *Lexer) errorf(pos Position, msg string) {
	l.errors = append(l.errors, &LexError{Pos: pos, Message: msg})
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()
	single := func(t TokenType) Token {
		tok := Token{Type: t, Literal: string(l.ch), Pos: pos}
		l.readChar()
		return tok
	}
	double := func(t TokenType, lit string) Token {
		l.readChar()
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	switch l.ch {
	case 0:
		return Token{Type: TOKEN_EOF, Pos: pos}
	case '.':
		return single(TOKEN_DOT)
	case ',':
		return single(TOKEN_COMMA)
	case '(':
		return single(TOKEN_LPAREN)
	case ')':
		return single(TOKEN_RPAREN)
	case '[':
		return single(TOKEN_LBRACKET)
	case ']':
		return single(TOKEN_RBRACKET)
	case '{':
		return single(TOKEN_LBRACE)
	case '}':
		return single(TOKEN_RBRACE)
	case '+':
		return single(TOKEN_PLUS)
	case '-':
		return single(TOKEN_MINUS)
	case '*':
		return single(TOKEN_STAR)
	case '/':
		return single(TOKEN_SLASH)
	case '&':
		return single(TOKEN_AMP)
	case '|':
		return single(TOKEN_PIPE)
	case '=':
		return single(TOKEN_EQ)
	case '~':
		return single(TOKEN_EQUIV)
	case '!':
		switch l.peekChar() {
		case '=':
			return double(TOKEN_NE, "!=")
		case '~':
			return double(TOKEN_NEQUIV, "!~")
		}
		l.errorf(pos, "unexpected character '!'")
		return single(TOKEN_ILLEGAL)
	case '<':
		if l.peekChar() == '=' {
			return double(TOKEN_LE, "<=")
		}
		return single(TOKEN_LT)
	case '>':
		if l.peekChar() == '=' {
			return double(TOKEN_GE, ">=")
		}
		return single(TOKEN_GT)
	case '\'':
		lit, ok := l.readDelimited('\'')
		if !ok {
			l.errorf(pos, ErrUnterminatedString)
			return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
		}
		return Token{Type: TOKEN_STRING, Literal: lit, Pos: pos}
	case '`':
		lit, ok := l.readDelimited('`')
		if !ok {
			l.errorf(pos, ErrUnterminatedIdent)
			return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
		}
		return Token{Type: TOKEN_IDENT, Literal: lit, Pos: pos}
	case '@':
		return l.readTemporal(pos)
	case '$':
		l.readChar()
		if !isLetter(l.ch) {
			l.errorf(pos, "expected variable name after '$'")
			return Token{Type: TOKEN_ILLEGAL, Literal: "$", Pos: pos}
		}
		return Token{Type: TOKEN_VARIABLE, Literal: "$" + l.readIdentifier(), Pos: pos}
	case '%':
		l.readChar()
		switch {
		case l.ch == '`':
			lit, ok := l.readDelimited('`')
			if !ok {
				l.errorf(pos, ErrUnterminatedIdent)
				return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
			}
			return Token{Type: TOKEN_EXTERNAL, Literal: lit, Pos: pos}
		case l.ch == '\'':
			lit, ok := l.readDelimited('\'')
			if !ok {
				l.errorf(pos, ErrUnterminatedString)
				return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
			}
			return Token{Type: TOKEN_EXTERNAL, Literal: lit, Pos: pos}
		case isLetter(l.ch):
			return Token{Type: TOKEN_EXTERNAL, Literal: l.readIdentifier(), Pos: pos}
		}
		l.errorf(pos, "expected constant name after '%'")
		return Token{Type: TOKEN_ILLEGAL, Literal: "%", Pos: pos}
	}

	switch {
	case isLetter(l.ch):
		lit := l.readIdentifier()
		if t, ok := keywords[lit]; ok {
			return Token{Type: t, Literal: lit, Pos: pos}
		}
		return Token{Type: TOKEN_IDENT, Literal: lit, Pos: pos}
	case isDigit(l.ch):
		return l.readNumber(pos)
	}

	l.errorf(pos, "unexpected character "+strconv.QuoteRune(rune(l.ch)))
	return single(TOKEN_ILLEGAL)
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for l.ch != 0 && (l.ch != '*' || l.peekChar() != '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
			continue
		}
		return
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads an integer or decimal literal. A dot only belongs to the
// number when a digit follows, so 1.toString() lexes as 1 . toString ( ).
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TOKEN_DECIMAL, Literal: l.input[start:l.pos], Pos: pos}
	}
	return Token{Type: TOKEN_INTEGER, Literal: l.input[start:l.pos], Pos: pos}
}

// readDelimited reads a quoted string or backtick identifier, decoding
// FHIRPath escapes. ok is false when the closing delimiter is missing.
func (l *Lexer) readDelimited(delim byte) (string, bool) {
	l.readChar()

	var b strings.Builder
	for l.ch != 0 {
		switch l.ch {
		case delim:
			l.readChar()
			return b.String(), true
		case '\\':
			l.readChar()
			l.readEscape(&b)
		default:
			b.WriteByte(l.ch)
			l.readChar()
		}
	}
	return b.String(), false
}

func (l *Lexer) readEscape(b *strings.Builder) {
	pos := l.currentPos()
	switch l.ch {
	case '\'', '"', '`', '\\', '/':
		b.WriteByte(l.ch)
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'u':
		if l.readPos+4 > len(l.input) {
			l.errorf(pos, ErrInvalidEscape)
			return
		}
		code, err := strconv.ParseUint(l.input[l.readPos:l.readPos+4], 16, 32)
		if err != nil {
			l.errorf(pos, ErrInvalidEscape)
			return
		}
		b.WriteRune(rune(code))
		for range 4 {
			l.readChar()
		}
	case 0:
		return
	default:
		l.errorf(pos, ErrInvalidEscape)
		b.WriteByte(l.ch)
	}
	l.readChar()
}

// readTemporal reads @date, @dateTime and @Ttime literals. The literal text
// excludes the leading '@' (and the 'T' for times).
func (l *Lexer) readTemporal(pos Position) Token {
	l.readChar() // skip '@'

	start := l.pos
	for isTemporalChar(l.ch) {
		if l.ch == '.' && !isDigit(l.peekChar()) {
			break
		}
		l.readChar()
	}
	lit := l.input[start:l.pos]

	switch {
	case strings.HasPrefix(lit, "T"):
		t := lit[1:]
		if !timeLiteral.MatchString(t) {
			l.errorf(pos, "invalid time literal @"+lit)
			return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
		}
		return Token{Type: TOKEN_TIME, Literal: t, Pos: pos}
	case dateTimeLiteral.MatchString(lit):
		idx := strings.IndexByte(lit, 'T')
		rest := timezoneSuffix.ReplaceAllString(lit[idx+1:], "")
		if rest != "" && !timeLiteral.MatchString(rest) {
			l.errorf(pos, "invalid datetime literal @"+lit)
			return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
		}
		return Token{Type: TOKEN_DATETIME, Literal: lit, Pos: pos}
	case dateLiteral.MatchString(lit):
		return Token{Type: TOKEN_DATE, Literal: lit, Pos: pos}
	}
	l.errorf(pos, "invalid date literal @"+lit)
	return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
}

func isTemporalChar(ch byte) bool {
	return isDigit(ch) || ch == '-' || ch == ':' || ch == '.' || ch == 'T' || ch == 'Z' || ch == '+'
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
