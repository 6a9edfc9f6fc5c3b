package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	"github.com/erpsync/salesline-reconciler/internal/application/service"
	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/queries"
	"github.com/erpsync/salesline-reconciler/internal/domain/reconciler"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/audit"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/warehouse"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Analyze(ctx context.Context, salesID string) (*reconciler.Report, error) {
	args := m.Called(ctx, salesID)
	report, _ := args.Get(0).(*reconciler.Report)
	return report, args.Error(1)
}

func (m *mockService) Corrections(ctx context.Context, salesID string) (*service.CorrectionBundle, error) {
	args := m.Called(ctx, salesID)
	bundle, _ := args.Get(0).(*service.CorrectionBundle)
	return bundle, args.Error(1)
}

func (m *mockService) ChannelComparison(ctx context.Context, from, to string) (*service.AggregateResult, error) {
	args := m.Called(ctx, from, to)
	result, _ := args.Get(0).(*service.AggregateResult)
	return result, args.Error(1)
}

func (m *mockService) OrderMismatches(ctx context.Context, from, to string, tolerance *float64) (*service.AggregateResult, error) {
	args := m.Called(ctx, from, to, tolerance)
	result, _ := args.Get(0).(*service.AggregateResult)
	return result, args.Error(1)
}

func (m *mockService) DownloadLines(ctx context.Context, req queries.LineDownloadRequest) (*service.LineDownload, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*service.LineDownload)
	return result, args.Error(1)
}

func (m *mockService) Execute(ctx context.Context, req service.ExecuteRequest) (*service.ExecuteResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*service.ExecuteResult)
	return result, args.Error(1)
}

func (m *mockService) RollbackFromLog(ctx context.Context, logID int64, executedBy string) (*service.RollbackResult, error) {
	args := m.Called(ctx, logID, executedBy)
	result, _ := args.Get(0).(*service.RollbackResult)
	return result, args.Error(1)
}

func (m *mockService) QueryLogs(ctx context.Context, filter audit.Filter) (*service.LogPage, error) {
	args := m.Called(ctx, filter)
	page, _ := args.Get(0).(*service.LogPage)
	return page, args.Error(1)
}

func (m *mockService) TestWarehouse(ctx context.Context) (*warehouse.ConnectionInfo, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*warehouse.ConnectionInfo)
	return info, args.Error(1)
}

func (m *mockService) SearchSource(ctx context.Context, salesID string) ([]normalize.Record, error) {
	args := m.Called(ctx, salesID)
	lines, _ := args.Get(0).([]normalize.Record)
	return lines, args.Error(1)
}

func (m *mockService) UpdateSource(ctx context.Context, salesID string, changes map[string]any) error {
	args := m.Called(ctx, salesID, changes)
	return args.Error(0)
}

// serve routes one request through a chi router so URL params resolve.
func serve(method, pattern string, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
