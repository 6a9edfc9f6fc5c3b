package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erpsync/salesline-reconciler/internal/api/dto"
)

// AggregatesHandler serves the BASE-vs-VIEW comparisons.
type AggregatesHandler struct {
	*Base
}

// NewAggregatesHandler creates a new aggregates handler.
func NewAggregatesHandler(svc ReconciliationService, logger *slog.Logger) *AggregatesHandler {
	return &AggregatesHandler{
		Base: NewBase(svc, logger),
	}
}

// Channels handles GET /api/aggregates/channels?from=&to=.
func (h *AggregatesHandler) Channels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.ChannelComparison(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// Mismatches handles GET /api/aggregates/mismatches?from=&to=&tolerance=.
func (h *AggregatesHandler) Mismatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var tolerance *float64
	if raw := strings.TrimSpace(q.Get("tolerance")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError("tolerance must be a number"))
			return
		}
		tolerance = &v
	}

	result, err := h.svc.OrderMismatches(r.Context(), q.Get("from"), q.Get("to"), tolerance)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}
