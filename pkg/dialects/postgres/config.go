// Package postgres provides the PostgreSQL SQL dialect definition.
// This package is pure Go with no database driver dependencies.
package postgres

import "github.com/leapstack-labs/fhirsql/pkg/core"

// Config is the PostgreSQL dialect configuration.
// This is pure data - accessible by both Adapter and Dialect.
var Config = &core.DialectConfig{
	Name:        "postgres",
	Placeholder: core.PlaceholderDollar,
	Identifiers: core.IdentifierConfig{
		Quote:    `"`,
		QuoteEnd: `"`,
		Escape:   `""`,
	},
	JSONType:    "jsonb",
	DecimalType: "NUMERIC",
	IntegerType: "BIGINT",
}
