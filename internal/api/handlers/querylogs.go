package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/erpsync/salesline-reconciler/internal/api/dto"
	"github.com/erpsync/salesline-reconciler/internal/application/service"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/audit"
)

// QueryLogsHandler serves statement execution and the audit log.
type QueryLogsHandler struct {
	*Base
}

// NewQueryLogsHandler creates a new query logs handler.
func NewQueryLogsHandler(svc ReconciliationService, logger *slog.Logger) *QueryLogsHandler {
	return &QueryLogsHandler{
		Base: NewBase(svc, logger),
	}
}

// List handles GET /api/query-logs.
func (h *QueryLogsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		SalesID:    q.Get("salesId"),
		ActionType: q.Get("actionType"),
		Kind:       q.Get("kind"),
		Limit:      ParseIntParam(r, "limit", audit.DefaultPageSize),
		Offset:     ParseIntParam(r, "offset", 0),
	}

	page, err := h.svc.QueryLogs(r.Context(), filter)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

// Rollback handles POST /api/query-logs/{logId}/rollback.
func (h *QueryLogsHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	logID, err := strconv.ParseInt(chi.URLParam(r, "logId"), 10, 64)
	if err != nil || logID <= 0 {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(service.ErrInvalidLogID.Error()))
		return
	}

	var body dto.RollbackRequest
	if err := decodeBody(r, &body); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}

	result, err := h.svc.RollbackFromLog(r.Context(), logID, body.ExecutedBy)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.RollbackResponse{
		Success:     true,
		SourceLogID: result.SourceLogID,
		Rows:        result.Rows,
		LogID:       result.LogID,
	})
}

// Execute handles POST /api/query/execute.
func (h *QueryLogsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var body dto.ExecuteRequest
	if err := decodeBody(r, &body); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}

	result, err := h.svc.Execute(r.Context(), service.ExecuteRequest{
		SQL:         body.Query,
		RollbackSQL: body.RollbackSQL,
		ActionType:  body.ActionType,
		Kind:        body.Kind,
		SalesID:     body.SalesID,
		LineNumber:  body.LineNumber,
		EntryID:     body.EntryID,
		ExecutedBy:  body.ExecutedBy,
		Metadata:    body.Metadata,
	})
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.ExecuteResponse{
		Success: true,
		Count:   result.Count,
		Rows:    result.Rows,
		LogID:   result.LogID,
	})
}
