package runner

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []any
	}{
		{"empty", `[]`, []any{}},
		{"strings", `["Peter","James"]`, []any{"Peter", "James"}},
		{"exact decimal", `[0.3000000000]`, []any{dec("0.3")}},
		{"large integer", `[9223372036854775807]`, []any{dec("9223372036854775807")}},
		{"mixed", `[true,"x",1]`, []any{true, "x", dec("1")}},
		{"object", `[{"family":"Chalmers","given":["Peter"]}]`, []any{
			map[string]any{"family": "Chalmers", "given": []any{"Peter"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.text)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s", Render(got))
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, text := range []string{`"x"`, `{"a":1}`, `[1`, `[1] [2]`, ``} {
		_, err := Decode(text)
		assert.Error(t, err, text)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"decimal scale", dec("0.30"), dec("0.3"), true},
		{"integer and decimal", dec("1"), dec("1.0"), true},
		{"different numbers", dec("0.1"), dec("0.10000001"), false},
		{"number and string", dec("1"), "1", false},
		{"order matters", []any{"a", "b"}, []any{"b", "a"}, false},
		{"length", []any{"a"}, []any{"a", "a"}, false},
		{"objects", map[string]any{"a": dec("1")}, map[string]any{"a": dec("1.00")}, true},
		{"missing key", map[string]any{"a": nil}, map[string]any{"b": nil}, false},
		{"booleans", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize([]any{1, int64(2), 0.5, json.Number("1.25"), map[string]any{"k": []any{true}}})
	require.NoError(t, err)
	assert.True(t, Equal([]any{dec("1"), dec("2"), dec("0.5"), dec("1.25"), map[string]any{"k": []any{true}}}, got))

	_, err = Normalize(struct{}{})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	v := []any{dec("0.30"), "a\"b", nil, map[string]any{"z": true, "a": []any{}}}
	assert.Equal(t, `[0.3,"a\"b",null,{"a":[],"z":true}]`, Render(v))
}
