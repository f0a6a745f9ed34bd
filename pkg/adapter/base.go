package adapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leapstack-labs/fhirsql/pkg/core"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Query and LoadResources implementations.
type BaseSQLAdapter struct {
	DB      *sql.DB
	Cfg     core.AdapterConfig
	Logger  *slog.Logger
	Dialect *core.DialectConfig
	Retry   RetryPolicy
}

var errNotConnected = errors.New("database connection not established")

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		b.logger().Debug("closing database connection")
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.DB == nil {
		return errNotConnected
	}
	err := Do(ctx, b.Retry, b.Logger, func(ctx context.Context) error {
		_, err := b.DB.ExecContext(ctx, sqlStr)
		return err
	})
	if err != nil {
		return &ExecutionError{SQL: sqlStr, Err: err}
	}
	return nil
}

// Query executes a SQL statement that returns rows. A statement without
// result columns yields ErrNoResultSet.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*core.Rows, error) {
	if b.DB == nil {
		return nil, errNotConnected
	}

	var rows *sql.Rows
	err := Do(ctx, b.Retry, b.Logger, func(ctx context.Context) error {
		//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
		r, err := b.DB.QueryContext(ctx, sqlStr)
		if err != nil {
			return err
		}
		rows = r
		return nil
	})
	if err != nil {
		return nil, &ExecutionError{SQL: sqlStr, Err: err}
	}

	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, &ExecutionError{SQL: sqlStr, Err: err}
	}
	if len(cols) == 0 {
		_ = rows.Close()
		return nil, ErrNoResultSet
	}
	return &core.Rows{Rows: rows}, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// DialectConfig returns the engine description set by the concrete adapter.
func (b *BaseSQLAdapter) DialectConfig() *core.DialectConfig {
	return b.Dialect
}

// LoadResources replaces table with one (id, resource) row per resource.
// Resources without an id get a random one.
func (b *BaseSQLAdapter) LoadResources(ctx context.Context, table string, resources []json.RawMessage) error {
	ids, err := b.PrepareResourceTable(ctx, table, resources)
	if err != nil || len(resources) == 0 {
		return err
	}

	quoted := b.Dialect.Identifiers.QuoteIdentifier(table)
	insert := fmt.Sprintf("INSERT INTO %s (id, resource) VALUES (%s, CAST(%s AS %s))", //nolint:gosec // identifier is quoted
		quoted, b.Dialect.Placeholder.Format(1), b.Dialect.Placeholder.Format(2), b.Dialect.JSONType)

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return &ExecutionError{SQL: insert, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for i, raw := range resources {
		if _, err := stmt.ExecContext(ctx, ids[i], string(raw)); err != nil {
			_ = tx.Rollback()
			return &ExecutionError{SQL: insert, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("load resources: %w", err)
	}

	b.logger().Debug("loaded resources", slog.String("table", table), slog.Int("count", len(resources)))
	return nil
}

// PrepareResourceTable validates the resources, then drops and recreates
// table with (id, resource) columns. It returns the id of each resource.
func (b *BaseSQLAdapter) PrepareResourceTable(ctx context.Context, table string, resources []json.RawMessage) ([]string, error) {
	if b.DB == nil {
		return nil, errNotConnected
	}
	if b.Dialect == nil {
		return nil, errors.New("load resources: adapter has no dialect configuration")
	}

	ids := make([]string, len(resources))
	for i, raw := range resources {
		var head struct {
			ID           string `json:"id"`
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("load resources: resource %d: %w", i, err)
		}
		if head.ResourceType == "" {
			return nil, fmt.Errorf("load resources: resource %d has no resourceType", i)
		}
		ids[i] = head.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
	}

	quoted := b.Dialect.Identifiers.QuoteIdentifier(table)
	if err := b.Exec(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (id VARCHAR, resource %s)", quoted, b.Dialect.JSONType)
	if err := b.Exec(ctx, create); err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	return ids, nil
}
