/*
Package metrics exposes Prometheus collectors for the ledger and the API.

PURPOSE:
  Metrics implements ledger.Observer, so every committed or rejected ledger
  transaction is counted without the Core knowing about Prometheus.
  Instrument wraps the HTTP router with request counters and latency
  histograms labelled by chi route pattern.

EXPOSED SERIES (namespace "yn"):
  ledger_commits_total{reason}            committed transactions
  ledger_journal_entries_total{type}      journal rows written
  ledger_credited_yn_total                YN paid out
  ledger_debited_yn_total                 YN spent
  ledger_rejections_total{code}           failed transactions by error code
  http_requests_total{method,route,status}
  http_request_duration_seconds{method,route}
  http_inflight_requests

SEE ALSO:
  - ledger/ledger.go: Observer
  - api/server.go: /metrics route
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ynaut/reward-ledger/ledger"
)

const namespace = "yn"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	commits    *prometheus.CounterVec
	entries    *prometheus.CounterVec
	credited   prometheus.Counter
	debited    prometheus.Counter
	rejections *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

var _ ledger.Observer = (*Metrics)(nil)

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "commits_total",
			Help:      "Committed ledger transactions by first journal reason.",
		}, []string{"reason"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "journal_entries_total",
			Help:      "Journal entries written by type.",
		}, []string{"type"}),
		credited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "credited_yn_total",
			Help:      "Total YN credited.",
		}),
		debited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "debited_yn_total",
			Help:      "Total YN debited.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Rejected ledger transactions by error code.",
		}, []string{"code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "HTTP requests currently being served.",
		}),
	}

	m.registry.MustRegister(
		m.commits,
		m.entries,
		m.credited,
		m.debited,
		m.rejections,
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// LEDGER OBSERVER
// =============================================================================

// Committed records a successful ledger transaction.
func (m *Metrics) Committed(res ledger.Result) {
	if len(res.Transactions) == 0 {
		return
	}
	m.commits.WithLabelValues(string(res.Transactions[0].Reason)).Inc()
	for _, tx := range res.Transactions {
		m.entries.WithLabelValues(string(tx.Type)).Inc()
		switch tx.Type {
		case ledger.TxCredit:
			m.credited.Add(float64(tx.Delta.Int64()))
		case ledger.TxDebit:
			m.debited.Add(float64(tx.Delta.Neg().Int64()))
		}
	}
}

// Rejected records a failed ledger transaction.
func (m *Metrics) Rejected(err error) {
	m.rejections.WithLabelValues(ledger.Code(err)).Inc()
}

// =============================================================================
// HTTP
// =============================================================================

// Instrument is chi middleware recording request count and latency.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded: unmatched paths share one
// label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
