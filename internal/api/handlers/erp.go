package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/erpsync/salesline-reconciler/internal/api/dto"
	"github.com/go-chi/chi/v5"
)

// ERPHandler exposes the ERP OData lines of an order and patches them.
type ERPHandler struct {
	*Base
}

// NewERPHandler creates a new ERP handler.
func NewERPHandler(svc ReconciliationService, logger *slog.Logger) *ERPHandler {
	return &ERPHandler{
		Base: NewBase(svc, logger),
	}
}

// Search handles GET /api/odata/{salesId}.
func (h *ERPHandler) Search(w http.ResponseWriter, r *http.Request) {
	salesID := strings.TrimSpace(chi.URLParam(r, "salesId"))
	lines, err := h.svc.SearchSource(r.Context(), salesID)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.SourceLinesResponse{
		Success: true,
		SalesID: salesID,
		Count:   len(lines),
		Lines:   lines,
	})
}

// Update handles PATCH /api/odata/{salesId}.
func (h *ERPHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.SourceUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}

	salesID := strings.TrimSpace(chi.URLParam(r, "salesId"))
	if err := h.svc.UpdateSource(r.Context(), salesID, req.Changes); err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.SourceUpdateResponse{
		Success: true,
		SalesID: salesID,
		Fields:  len(req.Changes),
	})
}
