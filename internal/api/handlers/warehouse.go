package handlers

import (
	"log/slog"
	"net/http"

	"github.com/erpsync/salesline-reconciler/internal/api/dto"
)

// WarehouseHandler reports warehouse connectivity.
type WarehouseHandler struct {
	*Base
}

// NewWarehouseHandler creates a new warehouse handler.
func NewWarehouseHandler(svc ReconciliationService, logger *slog.Logger) *WarehouseHandler {
	return &WarehouseHandler{
		Base: NewBase(svc, logger),
	}
}

// Test handles GET /api/warehouse/test.
func (h *WarehouseHandler) Test(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.TestWarehouse(r.Context())
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.WarehouseStatusResponse{
		Success:  true,
		Version:  info.Version,
		Database: info.Database,
	})
}
