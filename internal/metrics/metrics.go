// Package metrics defines the Prometheus instrumentation surface shared by
// the HTTP server and the auth handlers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcome label values.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeError              = "error"
)

// Metrics holds every collector the service exports. A nil *Metrics is a
// valid no-op receiver so tests can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	logins          *prometheus.CounterVec
	sessionsIssued  prometheus.Counter
	sessionsRevoked prometheus.Counter
	scopedIssued    *prometheus.CounterVec
	scopedConsumed  *prometheus.CounterVec
	originRejected  prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a Metrics with its own registry, including the standard Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		sessionsIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "sessions_issued_total",
			Help:      "Sessions issued.",
		}),
		sessionsRevoked: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked by logout or logout-all.",
		}),
		scopedIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "scoped_tokens_issued_total",
			Help:      "One-time scoped tokens issued, by purpose.",
		}, []string{"purpose"}),
		scopedConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "scoped_tokens_consumed_total",
			Help:      "One-time scoped tokens consumed, by purpose.",
		}, []string{"purpose"}),
		originRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "origin_rejected_total",
			Help:      "Requests rejected by the cross-origin policy.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "http_requests_total",
			Help:      "HTTP requests by path and status class.",
		}, []string{"path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gatehouse",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

func (m *Metrics) SessionRevoked() {
	if m == nil {
		return
	}
	m.sessionsRevoked.Inc()
}

func (m *Metrics) ScopedTokenIssued(purpose string) {
	if m == nil {
		return
	}
	m.scopedIssued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) ScopedTokenConsumed(purpose string) {
	if m == nil {
		return
	}
	m.scopedConsumed.WithLabelValues(purpose).Inc()
}

func (m *Metrics) OriginRejected() {
	if m == nil {
		return
	}
	m.originRejected.Inc()
}

// HTTPRequest records one served request. status is collapsed to its class
// ("2xx", "4xx", ...) to bound cardinality.
func (m *Metrics) HTTPRequest(path string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(path).Observe(seconds)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
