package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erpsync/salesline-reconciler/internal/adapters/odata"
	"github.com/erpsync/salesline-reconciler/internal/api/dto"
	"github.com/erpsync/salesline-reconciler/internal/application/service"
	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/queries"
	"github.com/erpsync/salesline-reconciler/internal/domain/reconciler"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/audit"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/warehouse"
)

// ReconciliationService is what the handlers need from the application layer.
type ReconciliationService interface {
	Analyze(ctx context.Context, salesID string) (*reconciler.Report, error)
	Corrections(ctx context.Context, salesID string) (*service.CorrectionBundle, error)
	ChannelComparison(ctx context.Context, from, to string) (*service.AggregateResult, error)
	OrderMismatches(ctx context.Context, from, to string, tolerance *float64) (*service.AggregateResult, error)
	DownloadLines(ctx context.Context, req queries.LineDownloadRequest) (*service.LineDownload, error)
	Execute(ctx context.Context, req service.ExecuteRequest) (*service.ExecuteResult, error)
	RollbackFromLog(ctx context.Context, logID int64, executedBy string) (*service.RollbackResult, error)
	QueryLogs(ctx context.Context, filter audit.Filter) (*service.LogPage, error)
	TestWarehouse(ctx context.Context) (*warehouse.ConnectionInfo, error)
	SearchSource(ctx context.Context, salesID string) ([]normalize.Record, error)
	UpdateSource(ctx context.Context, salesID string, changes map[string]any) error
}

var _ ReconciliationService = (*service.Service)(nil)

// Base provides shared functionality for all handlers.
type Base struct {
	svc    ReconciliationService
	logger *slog.Logger
}

// NewBase creates a new base handler with the given service.
func NewBase(svc ReconciliationService, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{svc: svc, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps a service error onto a status code and body.
func (b *Base) WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		b.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	b.WriteError(w, status, body)
}

var badRequestErrors = []error{
	reconciler.ErrSalesIDRequired,
	queries.ErrSalesIDRequired,
	queries.ErrInvalidDate,
	queries.ErrInvalidDateRange,
	queries.ErrInvalidLimit,
	queries.ErrLimitExceeded,
	queries.ErrUnknownSource,
	queries.ErrInvalidTolerance,
	service.ErrSQLRequired,
	service.ErrInvalidLogID,
	service.ErrNoRollback,
	service.ErrNotActionable,
	service.ErrReadOnly,
	odata.ErrSalesIDRequired,
	odata.ErrNoChanges,
}

func classify(err error) (int, dto.APIError) {
	if errors.Is(err, service.ErrLogNotFound) {
		return http.StatusNotFound, dto.NotFoundError("query log")
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, dto.ValidationError(err.Error())
		}
	}

	var statusErr *odata.StatusError
	if errors.As(err, &statusErr) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusInternalServerError, dto.UpstreamError(err.Error())
	}
	return http.StatusInternalServerError, dto.NewAPIError(dto.ErrCodeInternalError, err.Error())
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}
