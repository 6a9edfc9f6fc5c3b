package handlers_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erpsync/salesline-reconciler/internal/api/handlers"
	"github.com/erpsync/salesline-reconciler/internal/application/service"
	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/queries"
)

func lineDownloadFixture() *service.LineDownload {
	return &service.LineDownload{
		Metadata: queries.LineDownloadMetadata{Source: queries.SourceVista, Limit: 10},
		Columns:  []string{"SALESID", "CANAL"},
		Rows: []normalize.Record{
			{"SALESID": "SO-1", "CANAL": "WEB"},
			{"SALESID": "SO-2", "CANAL": "STORE"},
		},
		Count: 2,
	}
}

func TestLinesHandler_Download(t *testing.T) {
	t.Run("json by default with filters passed through", func(t *testing.T) {
		svc := new(mockService)
		svc.On("DownloadLines", mock.Anything, queries.LineDownloadRequest{
			Source:            "vista",
			Limit:             10,
			IncludeAllColumns: true,
			Filters:           map[string]string{"canal": "WEB", "salesId": "SO"},
		}).Return(lineDownloadFixture(), nil)
		h := handlers.NewLinesHandler(svc, nil)

		rec := serve(http.MethodGet, "/api/lines", h.Download,
			"/api/lines?source=vista&limit=10&includeAllColumns=true&canal=WEB&salesId=SO", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, float64(2), body["count"])
		svc.AssertExpectations(t)
	})

	t.Run("csv attachment", func(t *testing.T) {
		svc := new(mockService)
		svc.On("DownloadLines", mock.Anything, mock.Anything).Return(lineDownloadFixture(), nil)
		h := handlers.NewLinesHandler(svc, nil)

		rec := serve(http.MethodGet, "/api/lines", h.Download, "/api/lines?format=csv", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="lineas_vista_`)
		body := strings.TrimPrefix(rec.Body.String(), "\ufeff")
		assert.True(t, strings.HasPrefix(body, "SALESID;CANAL\n"))
		assert.Contains(t, body, "SO-2;STORE")
	})

	t.Run("xlsx attachment", func(t *testing.T) {
		svc := new(mockService)
		svc.On("DownloadLines", mock.Anything, mock.Anything).Return(lineDownloadFixture(), nil)
		h := handlers.NewLinesHandler(svc, nil)

		rec := serve(http.MethodGet, "/api/lines", h.Download, "/api/lines?format=excel", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
		assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))
	})

	t.Run("unknown format", func(t *testing.T) {
		svc := new(mockService)
		h := handlers.NewLinesHandler(svc, nil)

		rec := serve(http.MethodGet, "/api/lines", h.Download, "/api/lines?format=pdf", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "DownloadLines", mock.Anything, mock.Anything)
	})

	t.Run("non-numeric limit", func(t *testing.T) {
		svc := new(mockService)
		h := handlers.NewLinesHandler(svc, nil)

		rec := serve(http.MethodGet, "/api/lines", h.Download, "/api/lines?limit=lots", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("limit above ceiling", func(t *testing.T) {
		svc := new(mockService)
		svc.On("DownloadLines", mock.Anything, mock.Anything).Return(nil, queries.ErrLimitExceeded)
		h := handlers.NewLinesHandler(svc, nil)

		rec := serve(http.MethodGet, "/api/lines", h.Download, "/api/lines?limit=999999", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
