package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/erpsync/salesline-reconciler/internal/infrastructure/metrics"
)

// Metrics records request counts and latency by chi route pattern, so
// /api/reconciliation/SO-1 and /api/reconciliation/SO-2 share a series.
func Metrics(recorder *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := wrap(w)

			next.ServeHTTP(rec, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			recorder.ObserveHTTP(r.Method, route, rec.Status(), time.Since(start))
		})
	}
}
