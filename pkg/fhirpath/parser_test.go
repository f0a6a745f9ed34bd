package fhirpath_test

import (
	"testing"

	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShape(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"path", "Patient.name.family", "Patient.name.family"},
		{"delimited identifier", "Patient.`given`", "Patient.given"},
		{"multiplicative binds tighter", "1 + 2 * 3", "(1 + (2 * 3))"},
		{"left associative", "1 - 2 - 3", "((1 - 2) - 3)"},
		{"and binds tighter than or", "a and b or c", "((a and b) or c)"},
		{"implies lowest", "a implies b or c", "(a implies (b or c))"},
		{"union below equality", "a | b = c", "((a | b) = c)"},
		{"unary minus", "-5", "-5"},
		{"unary on invocation", "-5.abs()", "-5.abs()"},
		{"integer invocation", "1.toString()", "1.toString()"},
		{"decimal", "0.1 + 0.2", "(0.1 + 0.2)"},
		{"where with lambda", "name.where(use = 'official')", "name.where((use = 'official'))"},
		{"multiple args", "name.given.substring(1, 2)", "name.given.substring(1, 2)"},
		{"indexer", "name[0].family", "name[0].family"},
		{"keyword as function", "name.family.contains('an')", "name.family.contains('an')"},
		{"contains operator", "'abc' contains 'b'", "('abc' contains 'b')"},
		{"is operator", "value is Quantity", "(value is Quantity)"},
		{"qualified type", "value as System.Integer", "(value as System.Integer)"},
		{"ucum quantity", "5 'mg'", "5 'mg'"},
		{"calendar quantity", "3 days", "3 days"},
		{"date", "@2020-01-01", "@2020-01-01"},
		{"date invocation", "@2020-01-01.toString()", "@2020-01-01.toString()"},
		{"datetime with zone", "@2020-01-01T10:00:00.000+01:00", "@2020-01-01T10:00:00.000+01:00"},
		{"time", "@T10:30", "@T10:30"},
		{"empty", "{}", "{}"},
		{"variables", "$this.length() > $index", "($this.length() > $index)"},
		{"external constant", "%resource.id", "%resource.id"},
		{"parentheses", "(1 + 2) * 3", "((1 + 2) * 3)"},
		{"comments", "1 /* one */ + // two\n 2", "(1 + 2)"},
		{"string escape", `'it\'s'`, `'it\'s'`},
		{"bare function", "where(exists())", "where(exists())"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := fhirpath.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.String())
		})
	}
}

func TestParseNodeTypes(t *testing.T) {
	node := fhirpath.MustParse("-5")
	unary, ok := node.(*fhirpath.Unary)
	require.True(t, ok, "polarity must parse to a Unary node, got %T", node)
	assert.Equal(t, fhirpath.TOKEN_MINUS, unary.Op)

	lit, ok := unary.Operand.(*fhirpath.Literal)
	require.True(t, ok)
	assert.Equal(t, fhirpath.LiteralInteger, lit.Kind)
	assert.Equal(t, "5", lit.Value)

	node = fhirpath.MustParse("a | b")
	_, ok = node.(*fhirpath.Union)
	assert.True(t, ok, "got %T", node)

	node = fhirpath.MustParse("5.5 'mg'")
	lit, ok = node.(*fhirpath.Literal)
	require.True(t, ok)
	assert.Equal(t, fhirpath.LiteralQuantity, lit.Kind)
	assert.Equal(t, "5.5", lit.Value)
	assert.Equal(t, "mg", lit.Unit)

	node = fhirpath.MustParse("a != b")
	bin, ok := node.(*fhirpath.Binary)
	require.True(t, ok)
	assert.Equal(t, fhirpath.TOKEN_NE, bin.Op)

	node = fhirpath.MustParse("Patient.name.take(1)")
	inv, ok := node.(*fhirpath.Invocation)
	require.True(t, ok)
	assert.Equal(t, "take", inv.Name)
	require.Len(t, inv.Args, 1)
	_, ok = inv.Target.(*fhirpath.Member)
	assert.True(t, ok)
}

func TestParseNormalizesUnicode(t *testing.T) {
	// e + combining acute accent composes to a single code point.
	node, err := fhirpath.Parse("'Jose\u0301'")
	require.NoError(t, err)
	lit := node.(*fhirpath.Literal)
	assert.Equal(t, "Jos\u00e9", lit.Value)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		lexErr  bool
		wantMsg string
	}{
		{"empty", "   ", false, "empty expression"},
		{"unterminated string", "'abc", true, "unterminated string literal"},
		{"dangling dot", "Patient.", false, "expected identifier"},
		{"trailing input", "a b", false, "after end of expression"},
		{"unclosed call", "name.where(use = 'x'", false, "expected )"},
		{"bad date", "@20-01", true, "invalid date literal"},
		{"bad character", "a # b", true, "unexpected character"},
		{"bang alone", "a ! b", true, "unexpected character '!'"},
		{"unclosed brace", "{", false, "expected }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fhirpath.Parse(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)

			if tt.lexErr {
				var lexErr *fhirpath.LexError
				assert.ErrorAs(t, err, &lexErr)
			} else {
				var parseErr *fhirpath.ParseError
				assert.ErrorAs(t, err, &parseErr)
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := fhirpath.Parse("Patient.name.\n  where(")
	require.Error(t, err)

	var parseErr *fhirpath.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 2, parseErr.Pos.Line)
}
