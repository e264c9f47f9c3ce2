// Package metrics holds the prometheus collectors shared by the quest binaries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quest"

type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	opLatency  *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec

	keeperActions *prometheus.CounterVec
	keeperLeader  prometheus.Gauge

	relayPublished prometheus.Counter
	relayBatches   *prometheus.CounterVec
	relayLag       prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by name and result code (ok on success).",
		}, []string{"op", "code"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency including the store transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		keeperActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "actions_total",
			Help:      "Crank attempts by action and outcome (done, raced, failed).",
		}, []string{"action", "outcome"}),
		keeperLeader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "leader",
			Help:      "1 while this keeper holds the crank lease.",
		}),
		relayPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_published_total",
			Help:      "Outbox events published to the queue.",
		}),
		relayBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "batches_total",
			Help:      "Relay batches by outcome (published, failed).",
		}, []string{"outcome"}),
		relayLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "last_event_age_seconds",
			Help:      "Age of the newest event published in the last batch.",
		}),
	}
	m.registry.MustRegister(
		m.operations,
		m.opLatency,
		m.httpRequests,
		m.keeperActions,
		m.keeperLeader,
		m.relayPublished,
		m.relayBatches,
		m.relayLag,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation implements quest.Observer.
func (m *Metrics) ObserveOperation(op, code string, elapsed time.Duration) {
	if code == "" {
		code = "ok"
	}
	m.operations.WithLabelValues(op, code).Inc()
	m.opLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) HTTPRequest(route string, status int) {
	m.httpRequests.WithLabelValues(route, statusLabel(status)).Inc()
}

func (m *Metrics) KeeperAction(action, outcome string) {
	m.keeperActions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) KeeperLeader(leader bool) {
	if leader {
		m.keeperLeader.Set(1)
		return
	}
	m.keeperLeader.Set(0)
}

func (m *Metrics) RelayBatch(published int, newest time.Time, now time.Time) {
	m.relayBatches.WithLabelValues("published").Inc()
	m.relayPublished.Add(float64(published))
	if !newest.IsZero() {
		m.relayLag.Set(now.Sub(newest).Seconds())
	}
}

func (m *Metrics) RelayFailed() {
	m.relayBatches.WithLabelValues("failed").Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// NewServer returns an http.Server exposing GET /metrics on addr.
func NewServer(addr string, m *Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
