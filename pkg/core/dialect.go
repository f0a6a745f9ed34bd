package core

import (
	"strconv"
	"strings"
)

// DialectConfig is the static description of a SQL engine.
// This is pure data - shared by the SQL dialect and the database adapter.
type DialectConfig struct {
	// Name is the registry key (duckdb, postgres).
	Name string

	Identifiers IdentifierConfig

	Placeholder PlaceholderStyle

	// JSONType is the SQL type resource documents and collections are stored as.
	JSONType string

	// DecimalType is the exact numeric type used for FHIRPath Decimal values.
	DecimalType string

	// IntegerType is the SQL type used for FHIRPath Integer values.
	IntegerType string
}

// PlaceholderStyle is the bind parameter syntax of an engine.
type PlaceholderStyle int

// Placeholder styles.
const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1
)

// IdentifierConfig describes identifier quoting.
type IdentifierConfig struct {
	Quote    string // Quote character: ", `
	QuoteEnd string // End quote character (usually same as Quote)
	Escape   string // Escape sequence for a quote inside an identifier: "", ``
}

// QuoteIdentifier quotes name using the configured quote characters.
func (c IdentifierConfig) QuoteIdentifier(name string) string {
	if c.Quote == "" {
		return name
	}
	end := c.QuoteEnd
	if end == "" {
		end = c.Quote
	}
	return c.Quote + strings.ReplaceAll(name, end, c.Escape) + end
}

// Format returns the n-th (1-based) bind parameter.
func (p PlaceholderStyle) Format(n int) string {
	if p == PlaceholderDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
