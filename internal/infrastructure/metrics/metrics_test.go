package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveHTTP("GET", "/health", 200, time.Millisecond)
		r.ObserveReconciliation(map[string]int{"MATCH": 1}, nil)
		r.ObserveQuery("line-detail", time.Second, nil)
		r.ObserveStatement("sql", errors.New("x"))
	})
	assert.Nil(t, r.Registry())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecorder_Reconciliation(t *testing.T) {
	r := New()

	r.ObserveReconciliation(map[string]int{"MATCH": 3, "AMOUNT_MISMATCH": 1}, nil)
	r.ObserveReconciliation(nil, errors.New("odata down"))

	assert.Equal(t, 3.0, testutil.ToFloat64(r.lineOutcomes.WithLabelValues("MATCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.lineOutcomes.WithLabelValues("AMOUNT_MISMATCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconciliations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconciliations.WithLabelValues("error")))
}

func TestRecorder_HandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveHTTP("GET", "", 404, 10*time.Millisecond)
	r.ObserveStatement("rollback-from-log", nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `salesline_reconciler_http_requests_total{method="GET",route="unmatched",status="404"} 1`))
	assert.Contains(t, body, `salesline_reconciler_executed_statements_total{action="rollback-from-log",result="ok"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
