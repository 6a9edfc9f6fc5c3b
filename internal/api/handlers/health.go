package handlers

import (
	"net/http"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/api/dto"
)

// HealthHandler answers liveness probes. It never touches the warehouse;
// /api/warehouse/test does that.
type HealthHandler struct {
	started time.Time
	now     func() time.Time
}

// NewHealthHandler creates a health handler that reports uptime from now.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now(), now: time.Now}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	resp := dto.HealthResponse{
		Status:        "ok",
		Service:       dto.ServiceName,
		Timestamp:     now.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
	}
	(&Base{}).WriteJSON(w, http.StatusOK, resp)
}
