package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Decode parses a JSON collection as returned by a compiled statement.
// Numbers become decimal.Decimal so no precision is lost.
func Decode(text string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode result: trailing data after collection")
	}

	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("decode result: expected a JSON array, got %s", text)
	}
	out, err := Normalize(items)
	if err != nil {
		return nil, err
	}
	return out.([]any), nil
}

// Normalize converts Go values into the form Decode produces: every number
// a decimal.Decimal, every array []any, every object map[string]any.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, decimal.Decimal:
		return x, nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return nil, fmt.Errorf("decode number %q: %w", x, err)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// Equal compares normalized values. Numbers compare by value, so 1.0
// equals 1 and 0.30 equals 0.3.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Render prints a normalized value as compact JSON with object keys sorted
// and decimals written exactly.
func Render(v any) string {
	var buf bytes.Buffer
	render(&buf, v)
	return buf.String()
}

func render(buf *bytes.Buffer, v any) {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case string:
		b, _ := json.Marshal(x)
		buf.Write(b)
	case decimal.Decimal:
		buf.WriteString(x.String())
	case []any:
		buf.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			render(buf, item)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			render(buf, k)
			buf.WriteByte(':')
			render(buf, x[k])
		}
		buf.WriteByte('}')
	default:
		fmt.Fprintf(buf, "%v", x)
	}
}
