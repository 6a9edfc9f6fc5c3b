package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository keeps the audit log in a local SQLite file.
type SQLiteRepository struct {
	db   *sql.DB
	opts Options
	now  func() time.Time
}

// Compile-time check that SQLiteRepository implements Repository
var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (or creates) the database at dbPath and brings
// its schema up to date.
func NewSQLiteRepository(dbPath string, opts Options) (*SQLiteRepository, error) {
	opts = opts.withDefaults()

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer keeps appends ordered and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := runMigrations(ctx, db, opts.Logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	if version, err := schemaVersion(ctx, db); err == nil {
		opts.Logger.Debug("audit store ready", "path", dbPath, "schema_version", version)
	}

	return &SQLiteRepository{db: db, opts: opts, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

// Append inserts an entry and records its generated id.
func (s *SQLiteRepository) Append(ctx context.Context, entry *Entry) error {
	if err := prepare(entry, s.opts); err != nil {
		return err
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = s.now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
	INSERT INTO query_logs
	(executed_at, action_type, kind, sales_id, line_number, entry_id,
	 executed_sql, rollback_sql, executed_by, extra_metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ExecutedAt,
		entry.ActionType,
		nullString(entry.Kind),
		nullString(entry.SalesID),
		entry.LineNumber,
		nullString(entry.EntryID),
		entry.ExecutedSQL,
		nullString(entry.RollbackSQL),
		entry.ExecutedBy,
		EncodeMetadata(entry.Metadata, s.opts.Logger),
	)
	if err != nil {
		return fmt.Errorf("failed to append query log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read query log id: %w", err)
	}
	entry.ID = id
	return nil
}

const sqliteColumns = `log_id, executed_at, action_type, kind, sales_id, line_number, entry_id,
	       executed_sql, rollback_sql, executed_by, extra_metadata`

// List returns matching entries, newest first.
func (s *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	filter = filter.Normalized()
	where, args := sqliteWhere(filter)

	query := "SELECT " + sqliteColumns + "\n\tFROM query_logs" + where +
		"\n\tORDER BY executed_at DESC, log_id DESC\n\tLIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Count returns the number of matching entries.
func (s *SQLiteRepository) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := sqliteWhere(filter.Normalized())

	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_logs"+where, args...).Scan(&total)
	return total, err
}

// Get retrieves one entry by id.
func (s *SQLiteRepository) Get(ctx context.Context, id int64) (*Entry, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteColumns+" FROM query_logs WHERE log_id = ?", id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry                                     Entry
		kind, salesID, entryID, rollback, payload sql.NullString
		lineNumber                                sql.NullInt64
	)
	err := row.Scan(
		&entry.ID,
		&entry.ExecutedAt,
		&entry.ActionType,
		&kind,
		&salesID,
		&lineNumber,
		&entryID,
		&entry.ExecutedSQL,
		&rollback,
		&entry.ExecutedBy,
		&payload,
	)
	if err != nil {
		return nil, err
	}

	entry.Kind = kind.String
	entry.SalesID = salesID.String
	entry.EntryID = entryID.String
	entry.RollbackSQL = rollback.String
	if lineNumber.Valid {
		n := lineNumber.Int64
		entry.LineNumber = &n
	}
	entry.Metadata = decodeMetadata(payload.String)
	return &entry, nil
}

func sqliteWhere(filter Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.SalesID != "" {
		clauses = append(clauses, "sales_id LIKE ?")
		args = append(args, "%"+filter.SalesID+"%")
	}
	if filter.ActionType != "" {
		clauses = append(clauses, "action_type = ?")
		args = append(args, filter.ActionType)
	}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, filter.Kind)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "\n\tWHERE " + strings.Join(clauses, " AND "), args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
