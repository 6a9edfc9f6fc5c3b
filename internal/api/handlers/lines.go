package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/api/dto"
	"github.com/erpsync/salesline-reconciler/internal/domain/queries"
	"github.com/erpsync/salesline-reconciler/internal/export"
)

// LinesHandler serves bounded line downloads as JSON, CSV or XLSX.
type LinesHandler struct {
	*Base
	now func() time.Time
}

// NewLinesHandler creates a new lines handler.
func NewLinesHandler(svc ReconciliationService, logger *slog.Logger) *LinesHandler {
	return &LinesHandler{
		Base: NewBase(svc, logger),
		now:  time.Now,
	}
}

// Download handles GET /api/lines.
func (h *LinesHandler) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError(queries.ErrInvalidLimit.Error()))
			return
		}
	}

	req := queries.LineDownloadRequest{
		Source:            q.Get("source"),
		Limit:             limit,
		IncludeAllColumns: ParseBoolParam(r, "includeAllColumns", false),
		Filters:           make(map[string]string),
	}
	for name := range q {
		if !dto.LineDownloadReserved[name] {
			req.Filters[name] = q.Get(name)
		}
	}

	result, err := h.svc.DownloadLines(r.Context(), req)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	if format == export.FormatJSON {
		h.WriteJSON(w, http.StatusOK, result)
		return
	}

	name := export.Filename(string(result.Metadata.Source), format, h.now())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)

	if format == export.FormatCSV {
		err = export.WriteCSV(w, result.Columns, result.Rows)
	} else {
		err = export.WriteXLSX(w, "", result.Columns, result.Rows)
	}
	if err != nil {
		h.logger.Error("failed to write line export", "format", format, "error", err)
	}
}
