// Package warehouse wraps the PostgreSQL target: connection pooling,
// schema management for the raw tables, and the batched insert primitive
// the bulk loader is built on.
package warehouse

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/config"
	"github.com/olistflow/olistflow/pkg/dataset"
	"github.com/olistflow/olistflow/pkg/errors"
)

// Warehouse is a PostgreSQL warehouse handle.
type Warehouse struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect establishes a pooled connection to the warehouse.
func Connect(ctx context.Context, cfg config.WarehouseConfig, logger *zap.Logger) (*Warehouse, error) {
	poolCfg, err := pgxpool.ParseConfig(connString(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid warehouse configuration")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach warehouse")
	}

	logger.Info("warehouse connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database))

	return &Warehouse{
		pool:   pool,
		logger: logger.With(zap.String("component", "warehouse")),
	}, nil
}

func connString(cfg config.WarehouseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Database, sslMode)
}

// Close releases the connection pool.
func (w *Warehouse) Close() {
	w.pool.Close()
}

// Pool exposes the underlying pool for read-side query packages.
func (w *Warehouse) Pool() *pgxpool.Pool {
	return w.pool
}

// Version returns the server version string.
func (w *Warehouse) Version(ctx context.Context) (string, error) {
	var version string
	if err := w.pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeQuery, "failed to query server version")
	}
	return version, nil
}

// RawTables lists the *_raw tables present in the public schema.
func (w *Warehouse) RawTables(ctx context.Context) ([]string, error) {
	rows, err := w.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_name LIKE '%_raw'
		ORDER BY table_name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to list raw tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableExists reports whether a table exists in the public schema.
func (w *Warehouse) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := w.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to check table existence")
	}
	return exists, nil
}

// RowCount returns the number of rows in a table.
func (w *Warehouse) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + pgx.Identifier{table}.Sanitize()
	if err := w.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeQuery,
			"failed to count rows").WithDetail("table", table)
	}
	return count, nil
}

// CountQuery runs an arbitrary single-value count query. Used by the
// data quality suite.
func (w *Warehouse) CountQuery(ctx context.Context, query string) (int64, error) {
	var count int64
	if err := w.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeQuery, "count query failed")
	}
	return count, nil
}

// TruncateCascade empties a table and any tables referencing it.
func (w *Warehouse) TruncateCascade(ctx context.Context, table string) error {
	query := "TRUNCATE TABLE " + pgx.Identifier{table}.Sanitize() + " CASCADE"
	if _, err := w.pool.Exec(ctx, query); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery,
			"failed to truncate table").WithDetail("table", table)
	}
	return nil
}

// InsertRows inserts rows into table with ON CONFLICT DO NOTHING. The
// rows must match columns positionally; nil values become SQL NULL.
// Returns the number of rows actually inserted (conflicts excluded).
func (w *Warehouse) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query, args := buildInsert(table, columns, rows)
	tag, err := w.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeQuery,
			"batch insert failed").WithDetail("table", table).WithDetail("rows", len(rows))
	}
	return tag.RowsAffected(), nil
}

// buildInsert renders a multi-row INSERT ... ON CONFLICT DO NOTHING
// statement with positional placeholders.
func buildInsert(table string, columns []string, rows [][]any) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(pgx.Identifier{col}.Sanitize())
	}
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	placeholder := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", placeholder)
			placeholder++
			args = append(args, row[j])
		}
		sb.WriteByte(')')
	}

	sb.WriteString(" ON CONFLICT DO NOTHING")
	return sb.String(), args
}

// EnsureSchema creates the raw tables if they are missing. With force
// set, the public schema is dropped and rebuilt first.
func (w *Warehouse) EnsureSchema(ctx context.Context, force bool) error {
	existing, err := w.RawTables(ctx)
	if err != nil {
		return err
	}

	if len(existing) > 0 && !force {
		w.logger.Info("schema already exists, skipping creation",
			zap.Int("tables", len(existing)))
		return nil
	}

	if len(existing) > 0 && force {
		w.logger.Warn("dropping existing schema", zap.Int("tables", len(existing)))
		if _, err := w.pool.Exec(ctx, "DROP SCHEMA public CASCADE; CREATE SCHEMA public"); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to drop schema")
		}
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, dataset.SchemaSQL()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to create schema")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit schema")
	}

	w.logger.Info("schema created", zap.Int("tables", len(dataset.Catalog)))
	return nil
}
