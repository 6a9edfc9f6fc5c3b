package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erpsync/salesline-reconciler/internal/api/dto"
	"github.com/erpsync/salesline-reconciler/internal/api/handlers"
	"github.com/erpsync/salesline-reconciler/internal/application/service"
	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/audit"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/warehouse"
)

func TestQueryLogsHandler_List(t *testing.T) {
	svc := new(mockService)
	svc.On("QueryLogs", mock.Anything, audit.Filter{SalesID: "SO-1", Kind: "update", Limit: 10, Offset: 20}).
		Return(&service.LogPage{
			Logs:   []audit.Entry{{ID: 7, SalesID: "SO-1", ExecutedSQL: "UPDATE t SET a = 1"}},
			Total:  21,
			Limit:  10,
			Offset: 20,
		}, nil)
	h := handlers.NewQueryLogsHandler(svc, nil)

	rec := serve(http.MethodGet, "/api/query-logs", h.List, "/api/query-logs?salesId=SO-1&kind=update&limit=10&offset=20", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var page service.LogPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 21, page.Total)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, int64(7), page.Logs[0].ID)
	svc.AssertExpectations(t)
}

func TestQueryLogsHandler_Rollback(t *testing.T) {
	const pattern = "/api/query-logs/{logId}/rollback"

	t.Run("runs the stored rollback", func(t *testing.T) {
		svc := new(mockService)
		svc.On("RollbackFromLog", mock.Anything, int64(12), "ana").
			Return(&service.RollbackResult{SourceLogID: 12, Rows: 1, LogID: 13}, nil)
		h := handlers.NewQueryLogsHandler(svc, nil)

		rec := serve(http.MethodPost, pattern, h.Rollback, "/api/query-logs/12/rollback", `{"executedBy":"ana"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		var body dto.RollbackResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.True(t, body.Success)
		assert.Equal(t, int64(13), body.LogID)
	})

	t.Run("empty body is allowed", func(t *testing.T) {
		svc := new(mockService)
		svc.On("RollbackFromLog", mock.Anything, int64(12), "").
			Return(&service.RollbackResult{SourceLogID: 12}, nil)
		h := handlers.NewQueryLogsHandler(svc, nil)

		rec := serve(http.MethodPost, pattern, h.Rollback, "/api/query-logs/12/rollback", "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{name: "non-numeric id", target: "/api/query-logs/abc/rollback", status: http.StatusBadRequest},
		{name: "zero id", target: "/api/query-logs/0/rollback", status: http.StatusBadRequest},
		{name: "unknown log", target: "/api/query-logs/5/rollback", err: service.ErrLogNotFound, status: http.StatusNotFound},
		{name: "no rollback stored", target: "/api/query-logs/5/rollback", err: service.ErrNoRollback, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			if tt.err != nil {
				svc.On("RollbackFromLog", mock.Anything, int64(5), "").Return(nil, tt.err)
			}
			h := handlers.NewQueryLogsHandler(svc, nil)

			rec := serve(http.MethodPost, pattern, h.Rollback, tt.target, "")

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestQueryLogsHandler_Execute(t *testing.T) {
	t.Run("maps the body onto the service request", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Execute", mock.Anything, mock.MatchedBy(func(req service.ExecuteRequest) bool {
			return req.SQL == "UPDATE t SET a = 1" &&
				req.RollbackSQL == "UPDATE t SET a = 0" &&
				req.SalesID == "SO-1" &&
				req.LineNumber != nil && *req.LineNumber == 2 &&
				req.Metadata["kind"] == "update"
		})).Return(&service.ExecuteResult{Count: 1, Rows: []normalize.Record{{"number of rows updated": 1}}, LogID: 44}, nil)
		h := handlers.NewQueryLogsHandler(svc, nil)

		body := `{"query":"UPDATE t SET a = 1","rollbackSql":"UPDATE t SET a = 0","salesId":"SO-1","lineNumber":2,"metadata":{"kind":"update"}}`
		rec := serve(http.MethodPost, "/api/query/execute", h.Execute, "/api/query/execute", body)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, float64(44), resp["logId"])
		svc.AssertExpectations(t)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		svc := new(mockService)
		h := handlers.NewQueryLogsHandler(svc, nil)

		rec := serve(http.MethodPost, "/api/query/execute", h.Execute, "/api/query/execute", `{"query":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing SQL", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Execute", mock.Anything, mock.Anything).Return(nil, service.ErrSQLRequired)
		h := handlers.NewQueryLogsHandler(svc, nil)

		rec := serve(http.MethodPost, "/api/query/execute", h.Execute, "/api/query/execute", `{"query":"  "}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("warehouse rejects the statement", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.New("SQL compilation error"))
		h := handlers.NewQueryLogsHandler(svc, nil)

		rec := serve(http.MethodPost, "/api/query/execute", h.Execute, "/api/query/execute", `{"query":"UPDATE x"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "SQL compilation error")
	})
}

func TestWarehouseHandler_Test(t *testing.T) {
	t.Run("reports version and database", func(t *testing.T) {
		svc := new(mockService)
		svc.On("TestWarehouse", mock.Anything).Return(&warehouse.ConnectionInfo{Version: "8.1.0", Database: "ERP"}, nil)
		h := handlers.NewWarehouseHandler(svc, nil)

		rec := serve(http.MethodGet, "/api/warehouse/test", h.Test, "/api/warehouse/test", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var body dto.WarehouseStatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, dto.WarehouseStatusResponse{Success: true, Version: "8.1.0", Database: "ERP"}, body)
	})

	t.Run("connection failure", func(t *testing.T) {
		svc := new(mockService)
		svc.On("TestWarehouse", mock.Anything).Return(nil, errors.New("390100: incorrect username or password"))
		h := handlers.NewWarehouseHandler(svc, nil)

		rec := serve(http.MethodGet, "/api/warehouse/test", h.Test, "/api/warehouse/test", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
