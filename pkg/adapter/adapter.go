// Package adapter provides the execution layer compiled SQL runs on.
//
// The contract lives in pkg/core (core.Adapter); this package holds the
// adapter registry, a database/sql base implementation shared by the
// concrete adapters in pkg/adapters/, and the retry policy applied to
// transient failures.
package adapter

import (
	"fmt"

	"github.com/leapstack-labs/fhirsql/pkg/core"
)

type (
	// Adapter is the execution boundary, see core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// ErrNoResultSet is returned by Query for statements without result columns.
var ErrNoResultSet = core.ErrNoResultSet

// ExecutionError is a failure reported by the engine. It carries the SQL
// that was sent.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute: %v\nSQL: %s", e.Err, e.SQL)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
