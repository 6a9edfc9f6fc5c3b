package middleware_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erpsync/salesline-reconciler/internal/api/middleware"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/metrics"
)

func respond(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		requestID string
		wantLevel string
	}{
		{name: "success is info", status: http.StatusOK, requestID: "req-42", wantLevel: "level=INFO"},
		{name: "client error is warn", status: http.StatusBadRequest, wantLevel: "level=WARN"},
		{name: "server error is error", status: http.StatusBadGateway, wantLevel: "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			wrapped := middleware.Logging(logger)(respond(tt.status, "body"))

			req := httptest.NewRequest(http.MethodGet, "/api/lines", nil)
			if tt.requestID != "" {
				req.Header.Set(middleware.RequestIDHeader, tt.requestID)
			}
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "body", rec.Body.String())
			assert.Contains(t, buf.String(), tt.wantLevel)
			assert.Contains(t, buf.String(), "bytes=4")

			id := rec.Header().Get(middleware.RequestIDHeader)
			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, id)
			} else {
				assert.Len(t, id, 36)
			}
		})
	}
}

func TestLogging_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	wrapped := middleware.Logging(slog.New(slog.NewTextHandler(&buf, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Contains(t, buf.String(), "status=200")
}

func TestCORS(t *testing.T) {
	cfg := middleware.DefaultCORSConfig()
	wrapped := middleware.CORS(cfg)(respond(http.StatusOK, ""))

	serve := func(method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/lines", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allowed origin gets credentials and exposed headers", func(t *testing.T) {
		rec := serve(http.MethodGet, "http://localhost:5173")

		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("unknown origin gets nothing", func(t *testing.T) {
		rec := serve(http.MethodGet, "http://evil.example")

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		rec := serve(http.MethodOptions, "http://localhost:3000")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "GET, POST, PATCH, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("wildcard admits any origin without credentials", func(t *testing.T) {
		open := middleware.CORS(middleware.CORSConfig{AllowedOrigins: []string{"*"}})(respond(http.StatusOK, ""))
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://erp.example.com")
		rec := httptest.NewRecorder()

		open.ServeHTTP(rec, req)

		assert.Equal(t, "https://erp.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestMetrics(t *testing.T) {
	recorder := metrics.New()

	r := chi.NewRouter()
	r.Use(middleware.Metrics(recorder))
	r.Get("/api/reconciliation/{salesId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"SO-1", "SO-2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reconciliation/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	count, err := testutil.GatherAndCount(recorder.Registry(), "salesline_reconciler_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
