// Package warehouse runs SQL against Snowflake and hands rows back as
// column-keyed records.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/config"
	"github.com/jmoiron/sqlx"
	"github.com/snowflakedb/gosnowflake"
)

// Executor runs one statement with positional ? binds.
type Executor interface {
	Execute(ctx context.Context, sql string, binds ...any) ([]normalize.Record, error)
}

// SQLExecutor is an Executor over a database/sql connection pool.
type SQLExecutor struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ Executor = (*SQLExecutor)(nil)

// NewSQLExecutor wraps an open pool.
func NewSQLExecutor(db *sqlx.DB, logger *slog.Logger) *SQLExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLExecutor{db: db, logger: logger}
}

// Open connects to Snowflake with the configured credentials.
func Open(cfg config.SnowflakeConfig, logger *slog.Logger) (*SQLExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   NormalizeAccount(cfg.Account),
		User:      cfg.Username,
		Password:  cfg.Password,
		Warehouse: cfg.Warehouse,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Role:      cfg.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build snowflake dsn: %w", err)
	}

	db, err := sqlx.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return NewSQLExecutor(db, logger), nil
}

// Close releases the pool.
func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

// Execute runs sql and scans every row into a record.
func (e *SQLExecutor) Execute(ctx context.Context, sql string, binds ...any) ([]normalize.Record, error) {
	start := time.Now()

	rows, err := e.db.QueryxContext(ctx, sql, binds...)
	if err != nil {
		e.logger.Error("statement failed", "error", err, "binds", len(binds))
		return nil, err
	}
	defer rows.Close()

	var out []normalize.Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, normalize.Record(row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	e.logger.Debug("statement executed", "rows", len(out), "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// NormalizeAccount reduces a pasted account URL to the bare account locator.
func NormalizeAccount(account string) string {
	a := strings.TrimSpace(account)
	a = strings.TrimPrefix(a, "https://")
	a = strings.TrimPrefix(a, "http://")
	if i := strings.Index(a, "/"); i >= 0 {
		a = a[:i]
	}
	return strings.TrimSuffix(a, ".snowflakecomputing.com")
}

// ConnectionInfo is what TestConnection reports.
type ConnectionInfo struct {
	Version  string `json:"version"`
	Database string `json:"database"`
}

// TestConnection runs a trivial query to prove the credentials work.
func TestConnection(ctx context.Context, exec Executor) (*ConnectionInfo, error) {
	rows, err := exec.Execute(ctx, "SELECT CURRENT_VERSION() AS VERSION, CURRENT_DATABASE() AS DB")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("connection test returned no rows")
	}
	idx := normalize.IndexRecord(rows[0])
	return &ConnectionInfo{
		Version:  normalize.Text(idx.Get("VERSION")),
		Database: normalize.Text(idx.Get("DB")),
	}, nil
}
