package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/erpsync/salesline-reconciler/internal/application/service"
	"github.com/erpsync/salesline-reconciler/internal/domain/correction"
	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/reconciler"
	"github.com/erpsync/salesline-reconciler/internal/export"
)

// WriteJSON prints v as indented JSON
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintReport prints a reconciliation report as a line table
func PrintReport(w io.Writer, report *reconciler.Report) {
	fmt.Fprintf(w, "Sales order %s (generated %s)\n", report.SalesID, report.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "ERP lines: %d (unkeyed %d) | Warehouse lines: %d (unkeyed %d)\n\n",
		report.Summary.ODataLineCount, report.Sources.ODataUnkeyedCount,
		report.Summary.SnowflakeLineCount, report.Sources.SnowflakeUnkeyedCount)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tSTATUS\tERP AMOUNT\tWAREHOUSE AMOUNT\tDIFF\tISSUES")
	for _, line := range report.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			line.LineNumber,
			line.Status,
			formatAmount(line.ODataAmount),
			formatAmount(line.SnowflakeAmount),
			formatAmount(line.DiffAmount),
			strings.Join(line.Issues, ", "))
	}
	_ = tw.Flush()

	counts := report.StatusCounts()
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Match=%d MissingInERP=%d MissingInWarehouse=%d Amount=%d Invoice=%d Canal=%d\n",
		counts[reconciler.StatusMatch],
		counts[reconciler.StatusMissingInOData],
		counts[reconciler.StatusMissingInSnowflake],
		counts[reconciler.StatusAmountMismatch],
		counts[reconciler.StatusInvoiceMismatch],
		counts[reconciler.StatusCanalMismatch])
}

// PrintCorrections prints every generated statement with its rollback
func PrintCorrections(w io.Writer, bundle *service.CorrectionBundle) {
	fmt.Fprintf(w, "Corrections for %s (run %s): %d inserts, %d updates, %d actionable\n",
		bundle.SalesID, bundle.RunID, len(bundle.Inserts), len(bundle.Updates), len(bundle.Actionable()))

	for _, group := range [][]correction.Statement{bundle.Inserts, bundle.Updates} {
		for _, st := range group {
			state := "actionable"
			if !st.Actionable {
				state = "review only"
			}
			fmt.Fprintf(w, "\n-- [%s] line %d: %s (%s)\n", st.Kind, st.LineNumber, st.Reason, state)
			if st.Preview.Warning != "" {
				fmt.Fprintf(w, "-- warning: %s\n", st.Preview.Warning)
			}
			fmt.Fprintln(w, st.SQL)
			fmt.Fprintf(w, "-- rollback:\n%s\n", st.RollbackSQL)
		}
	}
}

// PrintAggregate prints an aggregate query result as a table
func PrintAggregate(w io.Writer, result *service.AggregateResult) {
	fmt.Fprintf(w, "%s %s..%s: %d rows\n\n", result.Query, result.From, result.To, result.Count)
	PrintRows(w, export.Columns(nil, result.Rows), result.Rows)
}

// PrintRows prints warehouse rows under the given columns
func PrintRows(w io.Writer, columns []string, rows []normalize.Record) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			cells[i] = normalize.Text(row[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

// PrintLogPage prints one page of the audit log
func PrintLogPage(w io.Writer, page *service.LogPage) {
	fmt.Fprintf(w, "Showing %d of %d (offset %d)\n\n", len(page.Logs), page.Total, page.Offset)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEXECUTED AT\tACTION\tKIND\tSALES ID\tLINE\tBY\tROLLBACK")
	for _, e := range page.Logs {
		line := ""
		if e.LineNumber != nil {
			line = strconv.FormatInt(*e.LineNumber, 10)
		}
		rollback := "no"
		if strings.TrimSpace(e.RollbackSQL) != "" && e.RollbackSQL != correction.NoRollback {
			rollback = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.ExecutedAt.Format("2006-01-02 15:04:05"), e.ActionType, e.Kind, e.SalesID, line, e.ExecutedBy, rollback)
	}
	_ = tw.Flush()
}

func formatAmount(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
