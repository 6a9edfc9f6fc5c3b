package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ReconciliationHandler serves per-order comparison and correction SQL.
type ReconciliationHandler struct {
	*Base
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(svc ReconciliationService, logger *slog.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		Base: NewBase(svc, logger),
	}
}

// Analyze handles GET /api/reconciliation/{salesId}.
func (h *ReconciliationHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Analyze(r.Context(), chi.URLParam(r, "salesId"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}

// Corrections handles GET /api/corrections/{salesId}.
func (h *ReconciliationHandler) Corrections(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.svc.Corrections(r.Context(), chi.URLParam(r, "salesId"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, bundle)
}
