package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/domain/correction"
	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/queries"
	"github.com/erpsync/salesline-reconciler/internal/domain/reconciler"
	"github.com/erpsync/salesline-reconciler/internal/export"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/audit"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/config"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/metrics"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/warehouse"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSQLRequired   = errors.New("sql is required")
	ErrInvalidLogID  = errors.New("logId must be a positive integer")
	ErrLogNotFound   = errors.New("query log not found")
	ErrNoRollback    = errors.New("this log has no rollback available")
	ErrNotActionable = errors.New("statement is not actionable")
	ErrReadOnly      = errors.New("ERP source does not accept updates")
)

// SourceUpdater writes field changes back to the ERP record of a sales order.
type SourceUpdater interface {
	Patch(ctx context.Context, salesID string, changes map[string]any) error
}

// Dependencies are the collaborators a Service needs. Metrics may be nil.
type Dependencies struct {
	Source    reconciler.SourceFetcher
	Updater   SourceUpdater
	Warehouse warehouse.Executor
	Audit     audit.Repository
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// Service runs reconciliation, correction and audit workflows.
type Service struct {
	reconciler *reconciler.Reconciler
	source     reconciler.SourceFetcher
	updater    SourceUpdater
	generator  *correction.Generator
	queries    *queries.Builder
	exec       warehouse.Executor
	audit      audit.Repository
	metrics    *metrics.Recorder
	logger     *slog.Logger
	tolerance  float64
	now        func() time.Time
}

// New wires a service from configuration. cfg must have defaults applied.
func New(cfg *config.Config, deps Dependencies) (*Service, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	builder, err := queries.NewBuilder(queries.Config{
		BaseTable:       cfg.Tables.Base,
		ViewTable:       cfg.Tables.View,
		ProcessedTable:  cfg.Tables.Processed,
		LedgerAccount:   cfg.Reconciliation.LedgerAccount,
		VistaLimits:     queries.Limits{Default: cfg.Downloads.Vista.Default, Max: cfg.Downloads.Vista.Max},
		ProcessedLimits: queries.Limits{Default: cfg.Downloads.Processed.Default, Max: cfg.Downloads.Processed.Max},
	})
	if err != nil {
		return nil, err
	}

	lines := warehouse.NewLineRepository(deps.Warehouse, builder)

	return &Service{
		reconciler: reconciler.New(deps.Source, lines, logger),
		source:     deps.Source,
		updater:    deps.Updater,
		generator: correction.NewGenerator(correction.Config{
			Table:             cfg.Tables.Processed,
			DefaultDataAreaID: cfg.Reconciliation.DefaultDataAreaID,
		}),
		queries:   builder,
		exec:      deps.Warehouse,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    logger,
		tolerance: cfg.Reconciliation.MismatchTolerance,
		now:       time.Now,
	}, nil
}

// Analyze reconciles one sales order.
func (s *Service) Analyze(ctx context.Context, salesID string) (*reconciler.Report, error) {
	report, err := s.reconciler.Reconcile(ctx, salesID)
	if err != nil {
		if !errors.Is(err, reconciler.ErrSalesIDRequired) {
			s.metrics.ObserveReconciliation(nil, err)
		}
		return nil, err
	}

	counts := make(map[string]int)
	for status, n := range report.StatusCounts() {
		counts[string(status)] = n
	}
	s.metrics.ObserveReconciliation(counts, nil)
	return report, nil
}

// SearchSource returns the raw ERP lines of one sales order.
func (s *Service) SearchSource(ctx context.Context, salesID string) ([]normalize.Record, error) {
	salesID = strings.TrimSpace(salesID)
	if salesID == "" {
		return nil, reconciler.ErrSalesIDRequired
	}
	return s.source.FetchSourceLines(ctx, salesID)
}

// UpdateSource patches the ERP record of one sales order.
func (s *Service) UpdateSource(ctx context.Context, salesID string, changes map[string]any) error {
	if s.updater == nil {
		return ErrReadOnly
	}
	salesID = strings.TrimSpace(salesID)
	if salesID == "" {
		return reconciler.ErrSalesIDRequired
	}
	if err := s.updater.Patch(ctx, salesID, changes); err != nil {
		return err
	}
	s.logger.Info("ERP record updated", "sales_id", salesID, "fields", len(changes))
	return nil
}

// CorrectionBundle is the reviewable output of one corrections run.
type CorrectionBundle struct {
	RunID       string                 `json:"runId"`
	SalesID     string                 `json:"salesId"`
	Summary     reconciler.Summary     `json:"summary"`
	GeneratedAt time.Time              `json:"generatedAt"`
	Inserts     []correction.Statement `json:"inserts"`
	Updates     []correction.Statement `json:"updates"`
}

// Actionable returns every statement that may be executed, inserts first.
func (b *CorrectionBundle) Actionable() []correction.Statement {
	var out []correction.Statement
	for _, group := range [][]correction.Statement{b.Inserts, b.Updates} {
		for _, st := range group {
			if st.Actionable {
				out = append(out, st)
			}
		}
	}
	return out
}

// Corrections reconciles an order and generates insert and update scripts.
func (s *Service) Corrections(ctx context.Context, salesID string) (*CorrectionBundle, error) {
	report, err := s.Analyze(ctx, salesID)
	if err != nil {
		return nil, err
	}

	bundle := &CorrectionBundle{
		RunID:       uuid.NewString(),
		SalesID:     report.SalesID,
		Summary:     report.Summary,
		GeneratedAt: s.now().UTC(),
		Inserts:     s.generator.BuildInsertStatements(report.SalesID, report.Lines),
		Updates:     s.generator.BuildUpdateStatements(report.Lines),
	}

	s.logger.Info("generated correction scripts",
		"run_id", bundle.RunID,
		"sales_id", bundle.SalesID,
		"inserts", len(bundle.Inserts),
		"updates", len(bundle.Updates),
		"actionable", len(bundle.Actionable()))
	return bundle, nil
}

// AggregateResult is the output of a BASE-vs-VIEW query.
type AggregateResult struct {
	Query       string             `json:"query"`
	From        string             `json:"from"`
	To          string             `json:"to"`
	Count       int                `json:"count"`
	Rows        []normalize.Record `json:"data"`
	GeneratedAt time.Time          `json:"timestamp"`
}

// ChannelComparison totals BASE and VIEW amounts per channel over the
// window [from, to]. Empty bounds take the default window.
func (s *Service) ChannelComparison(ctx context.Context, from, to string) (*AggregateResult, error) {
	window, err := queries.ParseWindow(from, to, s.now())
	if err != nil {
		return nil, err
	}
	q, err := s.queries.ChannelComparison(window)
	if err != nil {
		return nil, err
	}
	return s.aggregate(ctx, q, window)
}

// OrderMismatches lists (canal, salesId, invoiceId) triplets whose totals
// differ. A nil tolerance uses the configured one.
func (s *Service) OrderMismatches(ctx context.Context, from, to string, tolerance *float64) (*AggregateResult, error) {
	window, err := queries.ParseWindow(from, to, s.now())
	if err != nil {
		return nil, err
	}
	tol := s.tolerance
	if tolerance != nil {
		tol = *tolerance
	}
	q, err := s.queries.OrderMismatches(window, tol)
	if err != nil {
		return nil, err
	}
	return s.aggregate(ctx, q, window)
}

func (s *Service) aggregate(ctx context.Context, q queries.Query, window queries.Window) (*AggregateResult, error) {
	rows, err := s.run(ctx, q)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []normalize.Record{}
	}
	return &AggregateResult{
		Query:       q.Name,
		From:        window.From.Format(queries.DateLayout),
		To:          window.To.Format(queries.DateLayout),
		Count:       len(rows),
		Rows:        rows,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// DownloadTimings reports where a line download spent its time.
type DownloadTimings struct {
	BuildMs     int64 `json:"buildMs"`
	QueryMs     int64 `json:"queryMs"`
	TotalMs     int64 `json:"totalMs"`
	ColumnCount int   `json:"columnCount"`
}

// LineDownload is the result of DownloadLines.
type LineDownload struct {
	Metadata queries.LineDownloadMetadata `json:"metadata"`
	Columns  []string                     `json:"columns"`
	Rows     []normalize.Record           `json:"rows"`
	Count    int                          `json:"count"`
	Timings  DownloadTimings              `json:"metrics"`
}

// DownloadLines runs a bounded line download.
func (s *Service) DownloadLines(ctx context.Context, req queries.LineDownloadRequest) (*LineDownload, error) {
	start := time.Now()
	q, meta, err := s.queries.LineDownload(req)
	if err != nil {
		return nil, err
	}
	built := time.Now()

	rows, err := s.run(ctx, q)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []normalize.Record{}
	}
	done := time.Now()

	columns := export.Columns(meta.Columns, rows)

	s.logger.Info("line download",
		"source", meta.Source,
		"rows", len(rows),
		"limit", meta.Limit,
		"all_columns", meta.IncludeAllColumns)

	return &LineDownload{
		Metadata: meta,
		Columns:  columns,
		Rows:     rows,
		Count:    len(rows),
		Timings: DownloadTimings{
			BuildMs:     built.Sub(start).Milliseconds(),
			QueryMs:     done.Sub(built).Milliseconds(),
			TotalMs:     done.Sub(start).Milliseconds(),
			ColumnCount: len(columns),
		},
	}, nil
}

// TestWarehouse checks the warehouse connection.
func (s *Service) TestWarehouse(ctx context.Context) (*warehouse.ConnectionInfo, error) {
	return warehouse.TestConnection(ctx, s.exec)
}

// run executes a built query and records its latency.
func (s *Service) run(ctx context.Context, q queries.Query) ([]normalize.Record, error) {
	start := time.Now()
	rows, err := s.exec.Execute(ctx, q.SQL, q.Binds...)
	s.metrics.ObserveQuery(q.Name, time.Since(start), err)
	if err != nil {
		s.logger.Error("warehouse query failed", "query", q.Name, "error", err)
		return nil, fmt.Errorf("%s: %w", q.Name, err)
	}
	return rows, nil
}

// LogPage is one page of the audit log.
type LogPage struct {
	Logs   []audit.Entry `json:"logs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// QueryLogs lists audit entries and counts the full match set concurrently.
func (s *Service) QueryLogs(ctx context.Context, filter audit.Filter) (*LogPage, error) {
	filter = filter.Normalized()
	page := &LogPage{Limit: filter.Limit, Offset: filter.Offset}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logs, err := s.audit.List(gctx, filter)
		page.Logs = logs
		return err
	})
	g.Go(func() error {
		total, err := s.audit.Count(gctx, filter)
		page.Total = total
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if page.Logs == nil {
		page.Logs = []audit.Entry{}
	}
	return page, nil
}
