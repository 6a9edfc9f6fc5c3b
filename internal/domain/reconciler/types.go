package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
)

// ErrSalesIDRequired is returned before any fetch when the sales id is blank.
var ErrSalesIDRequired = errors.New("salesId is required")

// Status classifies one aligned line.
type Status string

const (
	StatusMatch Status = "MATCH"
	// StatusMissingInOData marks a line present only in the warehouse.
	StatusMissingInOData Status = "MISSING_IN_ODATA"
	// StatusMissingInSnowflake marks a line present only in the ERP source.
	StatusMissingInSnowflake Status = "MISSING_IN_SNOWFLAKE"
	StatusAmountMismatch     Status = "AMOUNT_MISMATCH"
	StatusInvoiceMismatch    Status = "INVOICE_MISMATCH"
	StatusCanalMismatch      Status = "CANAL_MISMATCH"
)

// SourceFetcher returns the ERP lines of one sales order.
type SourceFetcher interface {
	FetchSourceLines(ctx context.Context, salesID string) ([]normalize.Record, error)
}

// WarehouseFetcher returns the processed warehouse lines of one sales order.
type WarehouseFetcher interface {
	FetchWarehouseLines(ctx context.Context, salesID string) ([]normalize.Record, error)
}

// SourceSide is the ERP view of an aligned line.
type SourceSide struct {
	Amount    *float64         `json:"amount"`
	ItemID    string           `json:"itemId,omitempty"`
	InvoiceID string           `json:"invoiceId,omitempty"`
	Canal     string           `json:"canal,omitempty"`
	Raw       normalize.Record `json:"raw"`
}

// WarehouseSide is the warehouse view of an aligned line.
type WarehouseSide struct {
	Amount      *float64         `json:"amount"`
	InvoiceID   string           `json:"invoiceId,omitempty"`
	Canal       string           `json:"canal,omitempty"`
	SalesLinePK string           `json:"salesLinePk,omitempty"`
	Raw         normalize.Record `json:"raw"`
}

// LineComparison is the outcome for one line number.
type LineComparison struct {
	LineNumber      int64          `json:"lineNumber"`
	Status          Status         `json:"status"`
	Issues          []string       `json:"issues"`
	ODataAmount     *float64       `json:"odataAmount"`
	SnowflakeAmount *float64       `json:"snowflakeAmount"`
	DiffAmount      *float64       `json:"diffAmount"`
	OData           *SourceSide    `json:"odata"`
	Snowflake       *WarehouseSide `json:"snowflake"`
}

// Summary groups line numbers by detected issue.
type Summary struct {
	ODataLineCount     int     `json:"odataLineCount"`
	SnowflakeLineCount int     `json:"snowflakeLineCount"`
	MissingInOData     []int64 `json:"missingInOData"`
	MissingInSnowflake []int64 `json:"missingInSnowflake"`
	AmountMismatches   []int64 `json:"amountMismatches"`
	ItemMismatches     []int64 `json:"itemMismatches"`
	InvoiceMismatches  []int64 `json:"invoiceMismatches"`
	DateMismatches     []int64 `json:"dateMismatches"`
	CanalMismatches    []int64 `json:"canalMismatches"`
}

// Sources reports raw fetch sizes and how many rows had no usable line number.
type Sources struct {
	ODataRawCount         int `json:"odataRawCount"`
	SnowflakeRawCount     int `json:"snowflakeRawCount"`
	ODataUnkeyedCount     int `json:"odataUnkeyedCount"`
	SnowflakeUnkeyedCount int `json:"snowflakeUnkeyedCount"`
}

// Report is the reconciliation result for one sales order.
type Report struct {
	SalesID     string           `json:"salesId"`
	Summary     Summary          `json:"summary"`
	Lines       []LineComparison `json:"lines"`
	Sources     Sources          `json:"sources"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// StatusCounts tallies lines by status.
func (r *Report) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, l := range r.Lines {
		counts[l.Status]++
	}
	return counts
}
