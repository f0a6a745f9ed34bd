// Package duckdb provides the DuckDB SQL dialect definition.
// This package is pure Go with no database driver dependencies.
package duckdb

import "github.com/leapstack-labs/fhirsql/pkg/core"

// Config is the DuckDB dialect configuration.
// This is pure data - accessible by both Adapter and Dialect.
var Config = &core.DialectConfig{
	Name:        "duckdb",
	Placeholder: core.PlaceholderQuestion,
	Identifiers: core.IdentifierConfig{
		Quote:    `"`,
		QuoteEnd: `"`,
		Escape:   `""`,
	},
	JSONType:    "JSON",
	DecimalType: "DECIMAL(38,10)",
	IntegerType: "BIGINT",
}
