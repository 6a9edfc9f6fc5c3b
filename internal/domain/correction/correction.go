// Package correction turns reconciliation results into reviewable SQL
// statements, each paired with a rollback.
//
// Generation is pure: nothing here executes SQL or writes the audit log.
// Lines that cannot be corrected safely (blank composite key, key change)
// become non-actionable statements instead of errors so a batch never aborts
// on one bad line.
package correction

import (
	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/payload"
	"github.com/erpsync/salesline-reconciler/internal/domain/reconciler"
	"github.com/erpsync/salesline-reconciler/internal/domain/saleslinepk"
	"github.com/erpsync/salesline-reconciler/internal/domain/sqltext"
)

// Kind is the statement type.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
)

// Reasons attached to statements.
const (
	ReasonMissingInSnowflake = string(reconciler.StatusMissingInSnowflake)
	ReasonPKMismatch         = "PK_MISMATCH"
)

const (
	// NotGeneratedMarker prefixes the SQL of every non-actionable statement.
	NotGeneratedMarker = "-- NOT GENERATED"
	// NoRollback is the rollback text of statements that change nothing.
	NoRollback = "-- N/A"
)

// Snapshot captures the headline values of a line.
type Snapshot struct {
	Amount    any `json:"amount"`
	InvoiceID any `json:"invoiceId"`
	Canal     any `json:"canal"`
}

// Preview summarizes a statement for operator review.
type Preview struct {
	CompositeKey    string    `json:"compositeKey,omitempty"`
	NewCompositeKey string    `json:"newCompositeKey,omitempty"`
	InvoiceID       any       `json:"invoiceId,omitempty"`
	Amount          any       `json:"amount,omitempty"`
	Canal           any       `json:"canal,omitempty"`
	DataAreaID      any       `json:"dataAreaId,omitempty"`
	Columns         []string  `json:"columns,omitempty"`
	Before          *Snapshot `json:"before,omitempty"`
	After           *Snapshot `json:"after,omitempty"`
	Warning         string    `json:"warning,omitempty"`
}

// Statement is one generated correction.
type Statement struct {
	Kind            Kind     `json:"kind"`
	LineNumber      int64    `json:"lineNumber"`
	SalesID         string   `json:"salesId"`
	Reason          string   `json:"reason"`
	EntryID         string   `json:"entryId,omitempty"`
	SQL             string   `json:"sql"`
	RollbackSQL     string   `json:"rollbackSql"`
	AffectedColumns []string `json:"affectedColumns"`
	Preview         Preview  `json:"preview"`
	Actionable      bool     `json:"actionable"`
}

// Config holds generator settings.
type Config struct {
	// Table is the fully qualified processed-line table.
	Table string
	// DefaultDataAreaID fills DATAAREAID when the source line has none.
	DefaultDataAreaID string
}

var insertExcluded = map[string]struct{}{
	payload.ColSnowflakeCreatedAt: {},
	payload.ColSnowflakeUpdatedAt: {},
	payload.ColSyncStartDateTime:  {},
}

var updateExcluded = map[string]struct{}{
	payload.ColSalesLinePK:        {},
	payload.ColSnowflakeCreatedAt: {},
	payload.ColSnowflakeUpdatedAt: {},
	payload.ColSyncStartDateTime:  {},
}

// Generator builds correction statements.
type Generator struct {
	config Config
	mapper *payload.Mapper
}

// NewGenerator creates a generator.
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		config: cfg,
		mapper: payload.NewMapper(payload.Config{DefaultDataAreaID: cfg.DefaultDataAreaID}),
	}
}

// BuildInsertStatements emits one INSERT per line that exists only in the
// source and carries source data.
func (g *Generator) BuildInsertStatements(salesID string, lines []reconciler.LineComparison) []Statement {
	statements := []Statement{}
	for _, line := range lines {
		if line.Status != reconciler.StatusMissingInSnowflake || line.OData == nil || line.OData.Raw == nil {
			continue
		}
		statements = append(statements, g.insertFor(salesID, line))
	}
	return statements
}

func (g *Generator) insertFor(salesID string, line reconciler.LineComparison) Statement {
	row := g.mapper.FromSource(salesID, line.LineNumber, line.OData.Raw)
	key := normalize.Text(row[payload.ColSalesLinePK])

	// The mapper stamps sales id and line number, so also require the source
	// itself to carry at least one key component.
	if saleslinepk.IsBlank(key) || saleslinepk.IsBlank(saleslinepk.Derive(line.OData.Raw)) {
		return Statement{
			Kind:            KindInsert,
			LineNumber:      line.LineNumber,
			SalesID:         salesID,
			Reason:          ReasonMissingInSnowflake,
			SQL:             sqltext.New().Comment("NOT GENERATED: line %d has no data for any SALESLINEPK component", line.LineNumber).String(),
			RollbackSQL:     NoRollback,
			AffectedColumns: []string{},
			Preview: Preview{
				Warning: "not enough source data to derive SALESLINEPK",
			},
		}
	}

	columns := make([]string, 0, len(payload.Columns))
	values := make([]string, 0, len(payload.Columns))
	for _, col := range payload.Columns {
		if _, skip := insertExcluded[col]; skip {
			continue
		}
		v, present := row[col]
		if !present {
			continue
		}
		columns = append(columns, col)
		values = append(values, sqltext.Literal(v, payload.ColumnType(col)))
	}

	keyLiteral := sqltext.Quote(key)
	sql := sqltext.Insert(
		sqltext.New().Comment("Suggested insert for SALESLINEPK %s", key),
		g.config.Table, columns, values)
	rollback := sqltext.Delete(sqltext.New(), g.config.Table, payload.ColSalesLinePK, keyLiteral)

	return Statement{
		Kind:            KindInsert,
		LineNumber:      line.LineNumber,
		SalesID:         salesID,
		Reason:          ReasonMissingInSnowflake,
		EntryID:         key,
		SQL:             sql,
		RollbackSQL:     rollback,
		AffectedColumns: columns,
		Preview: Preview{
			CompositeKey: key,
			InvoiceID:    row[payload.ColInvoiceID],
			Amount:       row[payload.ColLineAmount],
			Canal:        row[payload.ColCanal],
			DataAreaID:   row[payload.ColDataAreaID],
		},
		Actionable: true,
	}
}

// BuildUpdateStatements emits one UPDATE per line whose persisted row drifts
// from the source. Lines whose recomputed key differs from the persisted key
// produce a non-actionable PK_MISMATCH statement; lines with no drift produce
// nothing.
func (g *Generator) BuildUpdateStatements(lines []reconciler.LineComparison) []Statement {
	statements := []Statement{}
	for _, line := range lines {
		if line.OData == nil || line.OData.Raw == nil || line.Snowflake == nil || line.Snowflake.Raw == nil {
			continue
		}
		current := normalize.IndexRecord(line.Snowflake.Raw)
		currentKey := normalize.Text(current.Get(payload.ColSalesLinePK))
		if currentKey == "" {
			continue
		}
		if stmt, ok := g.updateFor(line, current, currentKey); ok {
			statements = append(statements, stmt)
		}
	}
	return statements
}

func (g *Generator) updateFor(line reconciler.LineComparison, current normalize.Index, currentKey string) (Statement, bool) {
	salesID := normalize.Text(normalize.Lookup(line.OData.Raw, "SalesId"))
	if salesID == "" {
		salesID = normalize.Text(current.Get(payload.ColSalesID))
	}

	target := g.mapper.FromSource(salesID, line.LineNumber, line.OData.Raw)
	targetKey := normalize.Text(target[payload.ColSalesLinePK])

	if targetKey != currentKey {
		return Statement{
			Kind:            KindUpdate,
			LineNumber:      line.LineNumber,
			SalesID:         salesID,
			Reason:          ReasonPKMismatch,
			EntryID:         currentKey,
			SQL:             sqltext.New().Comment("NOT GENERATED: SALESLINEPK would change; recreate the line with an insert instead").String(),
			RollbackSQL:     NoRollback,
			AffectedColumns: []string{},
			Preview: Preview{
				CompositeKey:    currentKey,
				NewCompositeKey: targetKey,
				Warning:         "recomputed SALESLINEPK differs from the persisted key",
			},
		}, true
	}

	var set, undo []sqltext.Assignment
	var columns []string
	for _, col := range payload.Columns {
		if _, skip := updateExcluded[col]; skip {
			continue
		}
		desired, present := target[col]
		if !present {
			continue
		}
		existing := current.Get(col)
		colType := payload.ColumnType(col)
		if normalize.ValuesEqual(existing, desired, colType) {
			continue
		}
		columns = append(columns, col)
		set = append(set, sqltext.Assignment{Column: col, Value: sqltext.Literal(desired, colType)})
		undo = append(undo, sqltext.Assignment{Column: col, Value: sqltext.Literal(existing, colType)})
	}
	if len(set) == 0 {
		return Statement{}, false
	}

	keyLiteral := sqltext.Quote(currentKey)
	sql := sqltext.Update(
		sqltext.New().Comment("Suggested update for SALESLINEPK %s", currentKey),
		g.config.Table, set, payload.ColSalesLinePK, keyLiteral)
	rollback := sqltext.Update(
		sqltext.New().Comment("Rollback for SALESLINEPK %s", currentKey),
		g.config.Table, undo, payload.ColSalesLinePK, keyLiteral)

	return Statement{
		Kind:            KindUpdate,
		LineNumber:      line.LineNumber,
		SalesID:         salesID,
		Reason:          string(line.Status),
		EntryID:         currentKey,
		SQL:             sql,
		RollbackSQL:     rollback,
		AffectedColumns: columns,
		Preview: Preview{
			CompositeKey: currentKey,
			Columns:      columns,
			Before: &Snapshot{
				Amount:    current.Get(payload.ColLineAmount),
				InvoiceID: current.Get(payload.ColInvoiceID),
				Canal:     current.Get(payload.ColCanal),
			},
			After: &Snapshot{
				Amount:    target[payload.ColLineAmount],
				InvoiceID: target[payload.ColInvoiceID],
				Canal:     target[payload.ColCanal],
			},
		},
		Actionable: true,
	}, true
}
