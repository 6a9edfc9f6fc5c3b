// Package audit records every SQL statement an operator executes together
// with the statement that undoes it.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/infrastructure/config"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/warehouse"
)

var (
	ErrNotFound = errors.New("query log not found")
	ErrEmptySQL = errors.New("executed SQL is required")
)

// Action types.
const (
	ActionSQL             = "sql"
	ActionRollbackFromLog = "rollback-from-log"
)

// Page size bounds for List.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Repository defines the audit log storage interface.
type Repository interface {
	// Append stores a new entry. Implementations that can learn the
	// generated id write it back to entry.ID.
	Append(ctx context.Context, entry *Entry) error

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]Entry, error)

	// Count returns how many entries match the filter, ignoring pagination.
	Count(ctx context.Context, filter Filter) (int, error)

	// Get returns one entry or ErrNotFound.
	Get(ctx context.Context, id int64) (*Entry, error)

	Close() error
}

// Entry is one executed statement.
type Entry struct {
	ID          int64          `json:"logId"`
	ExecutedAt  time.Time      `json:"executedAt"`
	ActionType  string         `json:"actionType"`
	Kind        string         `json:"kind,omitempty"`
	SalesID     string         `json:"salesId,omitempty"`
	LineNumber  *int64         `json:"lineNumber,omitempty"`
	EntryID     string         `json:"entryId,omitempty"`
	ExecutedSQL string         `json:"executedSql"`
	RollbackSQL string         `json:"rollbackSql,omitempty"`
	ExecutedBy  string         `json:"executedBy"`
	Metadata    map[string]any `json:"extraMetadata,omitempty"`
}

// Filter narrows List and Count.
type Filter struct {
	SalesID    string // substring, case-insensitive
	ActionType string
	Kind       string
	Limit      int
	Offset     int
}

// Normalized trims the text filters and clamps pagination.
func (f Filter) Normalized() Filter {
	out := Filter{
		SalesID:    strings.TrimSpace(f.SalesID),
		ActionType: strings.TrimSpace(f.ActionType),
		Kind:       strings.TrimSpace(f.Kind),
		Limit:      f.Limit,
		Offset:     f.Offset,
	}
	switch {
	case out.Limit == 0:
		out.Limit = DefaultPageSize
	case out.Limit < 1:
		out.Limit = 1
	case out.Limit > MaxPageSize:
		out.Limit = MaxPageSize
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

// Options configure a repository.
type Options struct {
	DefaultExecutor string
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DefaultExecutor == "" {
		o.DefaultExecutor = "ui"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// prepare validates an entry and fills its defaults in place.
func prepare(entry *Entry, opts Options) error {
	if strings.TrimSpace(entry.ExecutedSQL) == "" {
		return ErrEmptySQL
	}
	if entry.ActionType == "" {
		entry.ActionType = ActionSQL
	}
	if entry.ExecutedBy == "" {
		entry.ExecutedBy = opts.DefaultExecutor
	}
	return nil
}

// EncodeMetadata serializes metadata for storage. Values that cannot be
// encoded are logged and stored as an empty object.
func EncodeMetadata(metadata map[string]any, logger *slog.Logger) string {
	if metadata == nil {
		return "{}"
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		if logger != nil {
			logger.Warn("could not serialize query log metadata, storing empty object", "error", err)
		}
		return "{}"
	}
	return string(data)
}

func decodeMetadata(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// New opens the backend named by cfg. The warehouse backend needs exec and
// the fully qualified log table.
func New(cfg config.AuditConfig, table string, exec warehouse.Executor, logger *slog.Logger) (Repository, error) {
	opts := Options{DefaultExecutor: cfg.DefaultExecutor, Logger: logger}
	switch cfg.Backend {
	case "", config.AuditBackendSQLite:
		return NewSQLiteRepository(cfg.DatabasePath, opts)
	case config.AuditBackendWarehouse:
		if exec == nil {
			return nil, fmt.Errorf("audit: warehouse backend requires a warehouse connection")
		}
		return NewWarehouseRepository(exec, table, opts)
	default:
		return nil, fmt.Errorf("audit: unknown backend %q", cfg.Backend)
	}
}
