package fhirpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
	}{
		{"a.b", []TokenType{TOKEN_IDENT, TOKEN_DOT, TOKEN_IDENT}},
		{"1.5", []TokenType{TOKEN_DECIMAL}},
		{"1.abs()", []TokenType{TOKEN_INTEGER, TOKEN_DOT, TOKEN_IDENT, TOKEN_LPAREN, TOKEN_RPAREN}},
		{"a != b !~ c ~ d", []TokenType{TOKEN_IDENT, TOKEN_NE, TOKEN_IDENT, TOKEN_NEQUIV, TOKEN_IDENT, TOKEN_EQUIV, TOKEN_IDENT}},
		{"<= >= < >", []TokenType{TOKEN_LE, TOKEN_GE, TOKEN_LT, TOKEN_GT}},
		{"a div b mod c", []TokenType{TOKEN_IDENT, TOKEN_DIV, TOKEN_IDENT, TOKEN_MOD, TOKEN_IDENT}},
		{"true and false", []TokenType{TOKEN_TRUE, TOKEN_AND, TOKEN_FALSE}},
		{"$this %resource %`ext-name`", []TokenType{TOKEN_VARIABLE, TOKEN_EXTERNAL, TOKEN_EXTERNAL}},
		{"@2020 @2020-01-01T @T12", []TokenType{TOKEN_DATE, TOKEN_DATETIME, TOKEN_TIME}},
		{"{} | &", []TokenType{TOKEN_LBRACE, TOKEN_RBRACE, TOKEN_PIPE, TOKEN_AMP}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			l := NewLexer(tt.input)
			var got []TokenType
			for {
				tok := l.NextToken()
				if tok.Type == TOKEN_EOF {
					break
				}
				got = append(got, tok.Type)
			}
			assert.Equal(t, tt.want, got)
			assert.Empty(t, l.Errors())
		})
	}
}

func TestLexerStringEscapes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'plain'`, "plain"},
		{`'tab\there'`, "tab\there"},
		{`'quote\'s'`, "quote's"},
		{`'slash\/ and \\'`, `slash/ and \`},
		{`'é'`, "é"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			l := NewLexer(tt.input)
			tok := l.NextToken()
			assert.Equal(t, TOKEN_STRING, tok.Type)
			assert.Equal(t, tt.want, tok.Literal)
			assert.Empty(t, l.Errors())
		})
	}
}

func TestLexerTemporalLiteralText(t *testing.T) {
	l := NewLexer("@T10:30:00.5")
	tok := l.NextToken()
	assert.Equal(t, TOKEN_TIME, tok.Type)
	assert.Equal(t, "10:30:00.5", tok.Literal)

	l = NewLexer("@2021-03-04T05:06:07Z")
	tok = l.NextToken()
	assert.Equal(t, TOKEN_DATETIME, tok.Type)
	assert.Equal(t, "2021-03-04T05:06:07Z", tok.Literal)
}
