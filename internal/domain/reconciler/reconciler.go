// Package reconciler aligns ERP and warehouse sales lines by line number and
// classifies every line.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Reconciler fetches both sides of a sales order and compares them.
type Reconciler struct {
	source    SourceFetcher
	warehouse WarehouseFetcher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a reconciler. A nil logger falls back to slog.Default().
func New(source SourceFetcher, warehouse WarehouseFetcher, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		source:    source,
		warehouse: warehouse,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile fetches both sides concurrently and returns the comparison report.
// Fetch errors are returned as-is; no partial report is produced.
func (r *Reconciler) Reconcile(ctx context.Context, salesID string) (*Report, error) {
	salesID = strings.TrimSpace(salesID)
	if salesID == "" {
		return nil, ErrSalesIDRequired
	}

	var sourceLines, warehouseRows []normalize.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lines, err := r.source.FetchSourceLines(gctx, salesID)
		if err != nil {
			return err
		}
		sourceLines = lines
		return nil
	})
	g.Go(func() error {
		rows, err := r.warehouse.FetchWarehouseLines(gctx, salesID)
		if err != nil {
			return err
		}
		warehouseRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		r.logger.Error("reconciliation fetch failed", "sales_id", salesID, "error", err)
		return nil, err
	}

	report := Compare(salesID, sourceLines, warehouseRows, r.now().UTC())

	r.logger.Info("reconciled sales order",
		"sales_id", salesID,
		"odata_lines", report.Summary.ODataLineCount,
		"snowflake_lines", report.Summary.SnowflakeLineCount,
		"missing_in_odata", len(report.Summary.MissingInOData),
		"missing_in_snowflake", len(report.Summary.MissingInSnowflake),
		"amount_mismatches", len(report.Summary.AmountMismatches))
	if report.Sources.ODataUnkeyedCount > 0 || report.Sources.SnowflakeUnkeyedCount > 0 {
		r.logger.Warn("lines without a line number were not aligned",
			"sales_id", salesID,
			"odata_unkeyed", report.Sources.ODataUnkeyedCount,
			"snowflake_unkeyed", report.Sources.SnowflakeUnkeyedCount)
	}

	return report, nil
}

// Compare aligns sourceLines and warehouseRows by line number. Rows without
// an integral line number are counted in Sources but not aligned. When a line
// number repeats on one side, the later row wins.
func Compare(salesID string, sourceLines, warehouseRows []normalize.Record, generatedAt time.Time) *Report {
	sourceByLine := make(map[int64]*SourceSide)
	warehouseByLine := make(map[int64]*WarehouseSide)
	sources := Sources{
		ODataRawCount:     len(sourceLines),
		SnowflakeRawCount: len(warehouseRows),
	}

	for _, raw := range sourceLines {
		idx := normalize.IndexRecord(raw)
		line, ok := normalize.LineNumber(idx.First("LineCreationSequenceNumber", "LineNumber"))
		if !ok {
			sources.ODataUnkeyedCount++
			continue
		}
		sourceByLine[line] = sourceSide(idx, raw)
	}

	for _, raw := range warehouseRows {
		idx := normalize.IndexRecord(raw)
		line, ok := normalize.LineNumber(idx.First("LINECREATIONSEQUENCENUMBER", "LINE_NO", "LINENUM"))
		if !ok {
			sources.SnowflakeUnkeyedCount++
			continue
		}
		warehouseByLine[line] = warehouseSide(idx, raw)
	}

	keys := make([]int64, 0, len(sourceByLine)+len(warehouseByLine))
	for k := range sourceByLine {
		keys = append(keys, k)
	}
	for k := range warehouseByLine {
		if _, dup := sourceByLine[k]; !dup {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	summary := Summary{
		ODataLineCount:     len(sourceByLine),
		SnowflakeLineCount: len(warehouseByLine),
		MissingInOData:     []int64{},
		MissingInSnowflake: []int64{},
		AmountMismatches:   []int64{},
		ItemMismatches:     []int64{},
		InvoiceMismatches:  []int64{},
		DateMismatches:     []int64{},
		CanalMismatches:    []int64{},
	}

	lines := make([]LineComparison, 0, len(keys))
	for _, key := range keys {
		lc := compareLine(key, sourceByLine[key], warehouseByLine[key], &summary)
		lines = append(lines, lc)
	}

	return &Report{
		SalesID:     salesID,
		Summary:     summary,
		Lines:       lines,
		Sources:     sources,
		GeneratedAt: generatedAt,
	}
}

func compareLine(key int64, src *SourceSide, wh *WarehouseSide, summary *Summary) LineComparison {
	lc := LineComparison{
		LineNumber: key,
		Issues:     []string{},
		OData:      src,
		Snowflake:  wh,
	}

	srcAmount, whAmount := decimal.Zero, decimal.Zero
	if src != nil {
		lc.ODataAmount = src.Amount
		srcAmount = amountDecimal(src.Amount)
	}
	if wh != nil {
		lc.SnowflakeAmount = wh.Amount
		whAmount = amountDecimal(wh.Amount)
	}
	diff := whAmount.Sub(srcAmount)
	diffFloat := diff.InexactFloat64()
	lc.DiffAmount = &diffFloat

	flag := func(s Status, issue string, bucket *[]int64) {
		if lc.Status == "" {
			lc.Status = s
		}
		lc.Issues = append(lc.Issues, issue)
		*bucket = append(*bucket, key)
	}

	switch {
	case src == nil:
		flag(StatusMissingInOData, "line exists only in Snowflake", &summary.MissingInOData)
	case wh == nil:
		flag(StatusMissingInSnowflake, "line exists only in OData", &summary.MissingInSnowflake)
	default:
		if src.Amount != nil && wh.Amount != nil && !normalize.WithinTolerance(srcAmount, whAmount) {
			flag(StatusAmountMismatch, fmt.Sprintf("amount differs by %.2f", diffFloat), &summary.AmountMismatches)
		}
		if src.InvoiceID != "" && wh.InvoiceID != "" && src.InvoiceID != wh.InvoiceID {
			flag(StatusInvoiceMismatch,
				fmt.Sprintf("invoice differs (OData %s vs Snowflake %s)", src.InvoiceID, wh.InvoiceID),
				&summary.InvoiceMismatches)
		}
		srcCanal := comparisonCanal(src)
		if srcCanal != "" && wh.Canal != "" && srcCanal != wh.Canal {
			flag(StatusCanalMismatch,
				fmt.Sprintf("canal differs (OData %s vs Snowflake %s)", srcCanal, wh.Canal),
				&summary.CanalMismatches)
		}
	}

	if lc.Status == "" {
		lc.Status = StatusMatch
	}
	return lc
}

func sourceSide(idx normalize.Index, raw normalize.Record) *SourceSide {
	side := &SourceSide{Raw: raw}
	if amount, ok := normalize.Amount(idx.Get("AccountingCurrencyAmount"), idx.Get("LineAmount")); ok {
		side.Amount = &amount
	}
	side.ItemID, _ = normalize.String(idx.Get("ItemNumber"), idx.Get("ItemId"))
	side.InvoiceID, _ = normalize.String(idx.Get("InvoiceId"))
	side.Canal, _ = normalize.String(idx.Get("GAPCanalDimension"))
	return side
}

func warehouseSide(idx normalize.Index, raw normalize.Record) *WarehouseSide {
	side := &WarehouseSide{Raw: raw}
	if amount, ok := normalize.Amount(idx.Get("LINEAMOUNT"), idx.Get("LINEAMOUNTMST")); ok {
		side.Amount = &amount
	}
	side.InvoiceID, _ = normalize.String(idx.Get("INVOICEID"))
	side.Canal, _ = normalize.String(idx.Get("CANAL"))
	side.SalesLinePK = normalize.Text(idx.Get("SALESLINEPK"))
	return side
}

// amountDecimal treats a missing amount as zero.
func amountDecimal(amount *float64) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*amount)
}

// comparisonCanal prefers an explicit Canal field over the dimension value.
func comparisonCanal(src *SourceSide) string {
	if canal, ok := normalize.String(normalize.Lookup(src.Raw, "Canal")); ok {
		return canal
	}
	return src.Canal
}
