// Package metrics exposes Prometheus counters and histograms for the HTTP
// surface, reconciliation outcomes and warehouse queries.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salesline_reconciler"

// Recorder owns a private registry. A nil *Recorder records nothing, so
// callers never need to guard their calls.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	lineOutcomes     *prometheus.CounterVec
	reconciliations  *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	statementsLogged *prometheus.CounterVec
}

// New creates a recorder with Go runtime and process collectors attached.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		lineOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_lines_total",
			Help:      "Aligned sales lines by comparison status.",
		}, []string{"status"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliation runs by result.",
		}, []string{"result"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "warehouse_query_duration_seconds",
			Help:      "Warehouse query latency by query name and result.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"query", "result"}),
		statementsLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executed_statements_total",
			Help:      "Operator-approved statements executed, by action type and result.",
		}, []string{"action", "result"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.lineOutcomes,
		r.reconciliations,
		r.queryDuration,
		r.statementsLogged,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request.
func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveReconciliation records a run and, on success, the per-status line
// counts it produced.
func (r *Recorder) ObserveReconciliation(statusCounts map[string]int, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.reconciliations.WithLabelValues("error").Inc()
		return
	}
	r.reconciliations.WithLabelValues("ok").Inc()
	for status, n := range statusCounts {
		r.lineOutcomes.WithLabelValues(status).Add(float64(n))
	}
}

// ObserveQuery records one warehouse query.
func (r *Recorder) ObserveQuery(name string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.queryDuration.WithLabelValues(name, result(err)).Observe(elapsed.Seconds())
}

// ObserveStatement records one executed operator statement.
func (r *Recorder) ObserveStatement(action string, err error) {
	if r == nil {
		return
	}
	r.statementsLogged.WithLabelValues(action, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
