package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// ErrNoResultSet is returned by Query when the statement produced no result
// columns (DDL and other non-query statements). It is not a fetch failure.
var ErrNoResultSet = errors.New("statement returned no result set")

// Adapter defines the interface that all database adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the database.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the database connection.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	// Returns ErrNoResultSet if the statement has no result columns.
	Query(ctx context.Context, sql string) (*Rows, error)

	// LoadResources (re)creates table with (id, resource) columns and inserts
	// the given FHIR resources. The id column is taken from each resource.
	LoadResources(ctx context.Context, table string, resources []json.RawMessage) error

	// DialectConfig returns the static dialect configuration.
	DialectConfig() *DialectConfig
}

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Options  map[string]string
	Params   map[string]any
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
