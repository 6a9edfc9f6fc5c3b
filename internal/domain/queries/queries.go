// Package queries builds the warehouse SQL the service runs: BASE-vs-VIEW
// aggregate comparisons, the per-order line detail, and filtered line
// downloads. Builders only return text and positional binds; they never
// execute anything.
package queries

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	ErrInvalidDateRange = errors.New("invalid date range: from is after to")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
	ErrLimitExceeded    = errors.New("requested limit exceeds the configured maximum")
	ErrInvalidLimit     = errors.New("limit must be a positive integer")
	ErrUnknownSource    = errors.New("unknown line source")
	ErrInvalidTolerance = errors.New("tolerance must be zero or positive")
	ErrSalesIDRequired  = errors.New("salesId is required")
)

// DateLayout is the wire format of every date bind.
const DateLayout = "2006-01-02"

// DefaultTolerance is the per-triplet amount tolerance.
const DefaultTolerance = 0.005

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// Limits caps the rows of a line download.
type Limits struct {
	Default int
	Max     int
}

// Config names the tables and constants the builders use.
type Config struct {
	BaseTable       string
	ViewTable       string
	ProcessedTable  string
	LedgerAccount   int
	VistaLimits     Limits
	ProcessedLimits Limits
}

// DefaultConfig returns the production table layout.
func DefaultConfig() Config {
	return Config{
		BaseTable:       "CORE.ERP_ACCOUNTING_TRANSACTION",
		ViewTable:       "CORE.VW_VENTA_COSTO_LINEAS",
		ProcessedTable:  "CORE.ERP_PROCESSED_SALESLINE",
		LedgerAccount:   400000,
		VistaLimits:     Limits{Default: 50000, Max: 500000},
		ProcessedLimits: Limits{Default: 50000, Max: 500000},
	}
}

// Query is SQL text plus positional binds.
type Query struct {
	Name  string
	SQL   string
	Binds []any
}

// Builder renders queries for one table configuration.
type Builder struct {
	config  Config
	sources map[Source]sourceDef
}

// NewBuilder validates table names and creates a builder.
func NewBuilder(cfg Config) (*Builder, error) {
	for _, table := range []string{cfg.BaseTable, cfg.ViewTable, cfg.ProcessedTable} {
		if !identifier.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	if cfg.LedgerAccount <= 0 {
		return nil, fmt.Errorf("invalid ledger account %d", cfg.LedgerAccount)
	}
	return &Builder{config: cfg, sources: lineSources(cfg)}, nil
}

// Window is an inclusive accounting-date range.
type Window struct {
	From time.Time
	To   time.Time
}

// DefaultWindow spans 2020-01-01 through yesterday.
func DefaultWindow(now time.Time) Window {
	today := now.UTC().Truncate(24 * time.Hour)
	return Window{
		From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   today.AddDate(0, 0, -1),
	}
}

// ParseWindow reads YYYY-MM-DD bounds; a blank bound keeps its default.
func ParseWindow(from, to string, now time.Time) (Window, error) {
	w := DefaultWindow(now)
	if from != "" {
		t, err := time.Parse(DateLayout, from)
		if err != nil {
			return Window{}, fmt.Errorf("%w: from=%q", ErrInvalidDate, from)
		}
		w.From = t
	}
	if to != "" {
		t, err := time.Parse(DateLayout, to)
		if err != nil {
			return Window{}, fmt.Errorf("%w: to=%q", ErrInvalidDate, to)
		}
		w.To = t
	}
	return w, w.Validate()
}

// Validate rejects windows whose start is after their end.
func (w Window) Validate() error {
	if w.From.After(w.To) {
		return ErrInvalidDateRange
	}
	return nil
}

func (w Window) binds() []any {
	return []any{w.From.Format(DateLayout), w.To.Format(DateLayout)}
}

// ChannelComparison totals ledger amounts per channel in BASE (sign inverted)
// and in the view over w.
func (b *Builder) ChannelComparison(w Window) (Query, error) {
	if err := w.Validate(); err != nil {
		return Query{}, err
	}
	sql := fmt.Sprintf(channelComparisonSQL, b.config.BaseTable, b.config.ViewTable)
	binds := append(w.binds(), b.config.LedgerAccount, b.config.LedgerAccount)
	return Query{Name: "channel-comparison", SQL: sql, Binds: binds}, nil
}

// OrderMismatches lists (canal, salesId, invoiceId) triplets whose BASE and
// view totals disagree by more than tolerance or exist on one side only.
func (b *Builder) OrderMismatches(w Window, tolerance float64) (Query, error) {
	if err := w.Validate(); err != nil {
		return Query{}, err
	}
	if tolerance < 0 {
		return Query{}, ErrInvalidTolerance
	}
	sql := fmt.Sprintf(orderMismatchSQL, b.config.BaseTable, b.config.ViewTable)
	binds := append(w.binds(), tolerance, b.config.LedgerAccount, b.config.LedgerAccount)
	return Query{Name: "order-mismatches", SQL: sql, Binds: binds}, nil
}

// LineDetailBySalesID selects every processed line of one order.
func (b *Builder) LineDetailBySalesID(salesID string) (Query, error) {
	if salesID == "" {
		return Query{}, ErrSalesIDRequired
	}
	return Query{
		Name:  "line-detail",
		SQL:   fmt.Sprintf(lineDetailSQL, b.config.ProcessedTable),
		Binds: []any{salesID},
	}, nil
}

const channelComparisonSQL = `WITH
DATE_WINDOW AS (
  SELECT TO_DATE(?) AS D_FROM, TO_DATE(?) AS D_TO
),
BASE_F AS (
  SELECT
    COALESCE(TRIM(UPPER(b.GAPCANALDIMENSION)), '__NULL__') AS CANAL_NORM,
    CAST(b.ACCOUNTINGCURRENCYAMOUNT AS NUMBER(38,6))       AS AMT
  FROM %[1]s b
  WHERE TO_NUMBER(REGEXP_REPLACE(b.LEDGERACCOUNT::STRING, '[^0-9]', '')) = ?
    AND b.ACCOUNTINGDATE BETWEEN (SELECT D_FROM FROM DATE_WINDOW) AND (SELECT D_TO FROM DATE_WINDOW)
    AND NULLIF(TRIM(COALESCE(b.SALESID::STRING, '')), '') IS NOT NULL
),
VIEW_F AS (
  SELECT
    COALESCE(TRIM(UPPER(v.GAPCANALDIMENSION)), '__NULL__') AS CANAL_NORM,
    CAST(v.ACCOUNTINGCURRENCYAMOUNT AS NUMBER(38,6))       AS AMT
  FROM %[2]s v
  WHERE v.LEDGERACCOUNT = ?
    AND v.ACCOUNTINGDATE BETWEEN (SELECT D_FROM FROM DATE_WINDOW) AND (SELECT D_TO FROM DATE_WINDOW)
    AND NULLIF(TRIM(COALESCE(v.SALESID::STRING, '')), '') IS NOT NULL
),
BASE_AGG AS (
  SELECT CANAL_NORM, (SUM(AMT) * (-1))::NUMBER(38,6) AS BASE_TOTAL
  FROM BASE_F
  GROUP BY CANAL_NORM
),
VIEW_AGG AS (
  SELECT CANAL_NORM, SUM(AMT)::NUMBER(38,6) AS VIEW_TOTAL
  FROM VIEW_F
  GROUP BY CANAL_NORM
)
SELECT
  COALESCE(b.CANAL_NORM, v.CANAL_NORM) AS CANAL,
  b.BASE_TOTAL,
  v.VIEW_TOTAL,
  (COALESCE(b.BASE_TOTAL, 0::NUMBER(38,6)) - COALESCE(v.VIEW_TOTAL, 0::NUMBER(38,6)))::NUMBER(38,6) AS DIFF_BASE_VIEW,
  CASE
    WHEN COALESCE(b.BASE_TOTAL, 0::NUMBER(38,6)) = 0::NUMBER(38,6) THEN NULL
    ELSE ((COALESCE(b.BASE_TOTAL, 0::NUMBER(38,6)) - COALESCE(v.VIEW_TOTAL, 0::NUMBER(38,6)))
           / NULLIF(b.BASE_TOTAL, 0::NUMBER(38,6)))
  END AS PCT_BASE_VIEW
FROM BASE_AGG b
FULL OUTER JOIN VIEW_AGG v
  ON COALESCE(b.CANAL_NORM, '__NULL__') = COALESCE(v.CANAL_NORM, '__NULL__')
ORDER BY CANAL`

const orderMismatchSQL = `WITH
DATE_WINDOW AS (
  SELECT TO_DATE(?) AS D_FROM, TO_DATE(?) AS D_TO, CAST(? AS NUMBER(10,6)) AS TOL
),
BASE_RAW AS (
  SELECT
    COALESCE(TRIM(UPPER(b.GAPCANALDIMENSION)), '__NULL__') AS CANAL_NORM,
    COALESCE(TRIM(UPPER(b.SALESID)), '__NULL__')           AS SALESID_NORM,
    COALESCE(TRIM(UPPER(b.INVOICEID)), '__NULL__')         AS INVOICEID_NORM,
    CAST(b.ACCOUNTINGCURRENCYAMOUNT AS NUMBER(38,6))       AS AMT
  FROM %[1]s b
  WHERE TO_NUMBER(REGEXP_REPLACE(b.LEDGERACCOUNT::STRING, '[^0-9]', '')) = ?
    AND b.ACCOUNTINGDATE BETWEEN (SELECT D_FROM FROM DATE_WINDOW) AND (SELECT D_TO FROM DATE_WINDOW)
),
BASE_GRP AS (
  SELECT CANAL_NORM, SALESID_NORM, INVOICEID_NORM,
         (SUM(AMT) * (-1))::NUMBER(38,6) AS BASE_AMT
  FROM BASE_RAW
  GROUP BY 1, 2, 3
),
VIEW_RAW AS (
  SELECT
    COALESCE(TRIM(UPPER(v.GAPCANALDIMENSION)), '__NULL__') AS CANAL_NORM,
    COALESCE(TRIM(UPPER(v.SALESID)), '__NULL__')           AS SALESID_NORM,
    COALESCE(TRIM(UPPER(v.INVOICEID)), '__NULL__')         AS INVOICEID_NORM,
    CAST(v.ACCOUNTINGCURRENCYAMOUNT AS NUMBER(38,6))       AS AMT
  FROM %[2]s v
  WHERE v.LEDGERACCOUNT = ?
    AND v.ACCOUNTINGDATE BETWEEN (SELECT D_FROM FROM DATE_WINDOW) AND (SELECT D_TO FROM DATE_WINDOW)
),
VIEW_GRP AS (
  SELECT CANAL_NORM, SALESID_NORM, INVOICEID_NORM,
         SUM(AMT)::NUMBER(38,6) AS VIEW_AMT
  FROM VIEW_RAW
  GROUP BY 1, 2, 3
),
PAIR AS (
  SELECT
    COALESCE(b.CANAL_NORM, v.CANAL_NORM)         AS CANAL_NORM,
    COALESCE(b.SALESID_NORM, v.SALESID_NORM)     AS SALESID_NORM,
    COALESCE(b.INVOICEID_NORM, v.INVOICEID_NORM) AS INVOICEID_NORM,
    b.BASE_AMT, v.VIEW_AMT,
    (COALESCE(b.BASE_AMT, 0) - COALESCE(v.VIEW_AMT, 0))::NUMBER(38,6) AS DIFF_AMT
  FROM BASE_GRP b
  FULL OUTER JOIN VIEW_GRP v
    ON  COALESCE(b.CANAL_NORM, '__NULL__')     = COALESCE(v.CANAL_NORM, '__NULL__')
    AND COALESCE(b.SALESID_NORM, '__NULL__')   = COALESCE(v.SALESID_NORM, '__NULL__')
    AND COALESCE(b.INVOICEID_NORM, '__NULL__') = COALESCE(v.INVOICEID_NORM, '__NULL__')
),
MISMATCH AS (
  SELECT
    p.*,
    CASE
      WHEN p.VIEW_AMT IS NULL AND p.BASE_AMT IS NOT NULL THEN 'ONLY_IN_BASE'
      WHEN p.BASE_AMT IS NULL AND p.VIEW_AMT IS NOT NULL THEN 'ONLY_IN_VIEW'
      WHEN ABS(p.DIFF_AMT) > (SELECT TOL FROM DATE_WINDOW) THEN 'AMOUNT_MISMATCH'
      ELSE 'MATCH_OK'
    END AS MATCH_STATUS
  FROM PAIR p
)
SELECT
  CANAL_NORM     AS CANAL,
  SALESID_NORM   AS SALESID,
  INVOICEID_NORM AS INVOICEID,
  BASE_AMT,
  VIEW_AMT,
  DIFF_AMT,
  MATCH_STATUS
FROM MISMATCH
WHERE MATCH_STATUS <> 'MATCH_OK' AND SALESID <> ''
ORDER BY CANAL, SALESID, INVOICEID`

const lineDetailSQL = `SELECT *
FROM %s
WHERE TRIM(UPPER(SALESID)) = TRIM(UPPER(?))
ORDER BY LINECREATIONSEQUENCENUMBER`
