// Package postgres provides a PostgreSQL database adapter.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	pgdialect "github.com/leapstack-labs/fhirsql/pkg/dialects/postgres"
)

// Adapter implements core.Adapter for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:  logger,
			Dialect: pgdialect.Config,
			Retry:   adapter.DefaultRetryPolicy,
		},
	}
}

// Connect establishes a connection to PostgreSQL. Connection failures
// classified as transient are retried.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	connCfg, err := pgx.ParseConfig(buildPostgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("invalid postgres configuration: %w", err)
	}

	a.Logger.Debug("connecting to postgres", slog.String("host", connCfg.Host), slog.String("database", connCfg.Database))

	db := stdlib.OpenDB(*connCfg)
	err = adapter.Do(ctx, a.Retry, a.Logger, db.PingContext)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// LoadResources replaces table using COPY.
func (a *Adapter) LoadResources(ctx context.Context, table string, resources []json.RawMessage) error {
	ids, err := a.PrepareResourceTable(ctx, table, resources)
	if err != nil || len(resources) == 0 {
		return err
	}

	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows := make([][]any, len(resources))
	for i, raw := range resources {
		rows[i] = []any{ids[i], raw}
	}

	err = conn.Raw(func(driverConn any) error {
		pgxConn := driverConn.(*stdlib.Conn).Conn()
		_, err := pgxConn.CopyFrom(ctx, pgx.Identifier{table}, []string{"id", "resource"}, pgx.CopyFromRows(rows))
		return err
	})
	if err != nil {
		return &adapter.ExecutionError{SQL: "COPY " + a.Dialect.Identifiers.QuoteIdentifier(table) + " FROM STDIN", Err: err}
	}

	a.Logger.Debug("loaded resources", slog.String("table", table), slog.Int("count", len(resources)))
	return nil
}

// buildPostgresDSN constructs a PostgreSQL connection string. A Database
// value that already is a URL or key=value DSN is used as is.
func buildPostgresDSN(cfg adapter.Config) string {
	if strings.HasPrefix(cfg.Database, "postgres://") || strings.HasPrefix(cfg.Database, "postgresql://") || strings.Contains(cfg.Database, "=") {
		return cfg.Database
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, dsnValue(cfg.Database), sslmode)

	if cfg.Username != "" {
		dsn += " user=" + dsnValue(cfg.Username)
	}
	if cfg.Password != "" {
		dsn += " password=" + dsnValue(cfg.Password)
	}
	for _, k := range []string{"application_name", "connect_timeout", "search_path"} {
		if v, ok := cfg.Options[k]; ok {
			dsn += " " + k + "=" + dsnValue(v)
		}
	}
	return dsn
}

// dsnValue quotes a key=value DSN value when needed.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	return "'" + strings.ReplaceAll(v, `'`, `\'`) + "'"
}

var _ adapter.Adapter = (*Adapter)(nil)
