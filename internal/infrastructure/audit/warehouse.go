package audit

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/warehouse"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

const warehouseColumns = "LOG_ID, EXECUTED_AT, ACTION_TYPE, KIND, SALES_ID, LINE_NUMBER, ENTRY_ID, " +
	"EXECUTED_SQL, ROLLBACK_SQL, EXECUTED_BY, EXTRA_METADATA"

// WarehouseRepository keeps the audit log in a Snowflake table next to the
// data it describes.
type WarehouseRepository struct {
	exec  warehouse.Executor
	table string
	opts  Options

	mu      sync.Mutex
	ensured bool
}

// Compile-time check that WarehouseRepository implements Repository
var _ Repository = (*WarehouseRepository)(nil)

// NewWarehouseRepository creates a repository writing to table.
func NewWarehouseRepository(exec warehouse.Executor, table string, opts Options) (*WarehouseRepository, error) {
	if table == "" {
		table = "ZLOGS_QUERYS"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	return &WarehouseRepository{exec: exec, table: table, opts: opts.withDefaults()}, nil
}

// Close is a no-op; the executor owns the connection.
func (w *WarehouseRepository) Close() error {
	return nil
}

// ensureTable creates the log table on first use. A failed attempt is
// retried on the next call.
func (w *WarehouseRepository) ensureTable(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ensured {
		return nil
	}

	_, err := w.exec.Execute(ctx, `CREATE TABLE IF NOT EXISTS `+w.table+` (
  LOG_ID NUMBER AUTOINCREMENT START 1 INCREMENT 1,
  EXECUTED_AT TIMESTAMP_LTZ DEFAULT CURRENT_TIMESTAMP(),
  ACTION_TYPE STRING,
  KIND STRING,
  SALES_ID STRING,
  LINE_NUMBER NUMBER,
  ENTRY_ID STRING,
  EXECUTED_SQL STRING,
  ROLLBACK_SQL STRING,
  EXECUTED_BY STRING,
  EXTRA_METADATA VARIANT
)`)
	if err != nil {
		return fmt.Errorf("failed to ensure audit table %s: %w", w.table, err)
	}
	w.ensured = true
	return nil
}

// Append inserts an entry. The generated id is not read back.
func (w *WarehouseRepository) Append(ctx context.Context, entry *Entry) error {
	if err := prepare(entry, w.opts); err != nil {
		return err
	}
	if err := w.ensureTable(ctx); err != nil {
		return err
	}

	var lineNumber any
	if entry.LineNumber != nil {
		lineNumber = *entry.LineNumber
	}
	_, err := w.exec.Execute(ctx, `INSERT INTO `+w.table+` (
  ACTION_TYPE, KIND, SALES_ID, LINE_NUMBER, ENTRY_ID,
  EXECUTED_SQL, ROLLBACK_SQL, EXECUTED_BY, EXTRA_METADATA
)
SELECT ?, ?, ?, ?, ?, ?, ?, ?, PARSE_JSON(?)`,
		entry.ActionType,
		nilIfEmpty(entry.Kind),
		nilIfEmpty(entry.SalesID),
		lineNumber,
		nilIfEmpty(entry.EntryID),
		entry.ExecutedSQL,
		nilIfEmpty(entry.RollbackSQL),
		entry.ExecutedBy,
		EncodeMetadata(entry.Metadata, w.opts.Logger),
	)
	if err != nil {
		return fmt.Errorf("failed to append query log: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (w *WarehouseRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if err := w.ensureTable(ctx); err != nil {
		return nil, err
	}
	filter = filter.Normalized()
	where, binds := warehouseWhere(filter)

	sql := "SELECT " + warehouseColumns + "\nFROM " + w.table + where +
		"\nORDER BY EXECUTED_AT DESC\nLIMIT " + strconv.Itoa(filter.Limit) +
		"\nOFFSET " + strconv.Itoa(filter.Offset)

	rows, err := w.exec.Execute(ctx, sql, binds...)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromRow(row))
	}
	return entries, nil
}

// Count returns the number of matching entries.
func (w *WarehouseRepository) Count(ctx context.Context, filter Filter) (int, error) {
	if err := w.ensureTable(ctx); err != nil {
		return 0, err
	}
	where, binds := warehouseWhere(filter.Normalized())

	rows, err := w.exec.Execute(ctx, "SELECT COUNT(*) AS TOTAL FROM "+w.table+where, binds...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	total, _ := normalize.LineNumber(normalize.IndexRecord(rows[0]).Get("TOTAL"))
	return int(total), nil
}

// Get retrieves one entry by id.
func (w *WarehouseRepository) Get(ctx context.Context, id int64) (*Entry, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	if err := w.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := w.exec.Execute(ctx, "SELECT "+warehouseColumns+" FROM "+w.table+" WHERE LOG_ID = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	entry := entryFromRow(rows[0])
	return &entry, nil
}

func warehouseWhere(filter Filter) (string, []any) {
	var (
		clauses []string
		binds   []any
	)
	if filter.SalesID != "" {
		clauses = append(clauses, "SALES_ID ILIKE ?")
		binds = append(binds, "%"+filter.SalesID+"%")
	}
	if filter.ActionType != "" {
		clauses = append(clauses, "ACTION_TYPE = ?")
		binds = append(binds, filter.ActionType)
	}
	if filter.Kind != "" {
		clauses = append(clauses, "KIND = ?")
		binds = append(binds, filter.Kind)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(clauses, " AND "), binds
}

func entryFromRow(row normalize.Record) Entry {
	idx := normalize.IndexRecord(row)

	entry := Entry{
		ActionType:  normalize.Text(idx.Get("ACTION_TYPE")),
		Kind:        normalize.Text(idx.Get("KIND")),
		SalesID:     normalize.Text(idx.Get("SALES_ID")),
		EntryID:     normalize.Text(idx.Get("ENTRY_ID")),
		ExecutedSQL: normalize.Text(idx.Get("EXECUTED_SQL")),
		RollbackSQL: normalize.Text(idx.Get("ROLLBACK_SQL")),
		ExecutedBy:  normalize.Text(idx.Get("EXECUTED_BY")),
		Metadata:    decodeMetadata(normalize.Text(idx.Get("EXTRA_METADATA"))),
	}
	if id, ok := normalize.LineNumber(idx.Get("LOG_ID")); ok {
		entry.ID = id
	}
	if n, ok := normalize.LineNumber(idx.Get("LINE_NUMBER")); ok {
		entry.LineNumber = &n
	}
	switch v := idx.Get("EXECUTED_AT").(type) {
	case time.Time:
		entry.ExecutedAt = v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			entry.ExecutedAt = t
		}
	}
	return entry
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
