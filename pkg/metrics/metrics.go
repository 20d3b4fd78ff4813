package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mockserver"

// Outcome label values.
const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
	OutcomeError     = "error"
)

// DefaultBuckets are latency buckets in seconds.
var DefaultBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds the server's collectors.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	MatchHitsTotal     *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	EvaluationErrors   *prometheus.CounterVec
	BoundListeners     prometheus.Gauge
	Mocks              prometheus.Gauge
}

// New creates a Metrics value with a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of dispatched mock requests.",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of mock request dispatch in seconds.",
			Buckets:   DefaultBuckets,
		}, []string{"outcome"}),
		MatchHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_hits_total",
			Help:      "Number of requests served by each mock.",
		}, []string{"mock"}),
		EvaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of predicate and response expression evaluation in seconds.",
			Buckets:   DefaultBuckets,
		}, []string{"kind"}),
		EvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Number of failed predicate and response evaluations.",
		}, []string{"kind"}),
		BoundListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bound_listeners",
			Help:      "Number of ports with a bound listener.",
		}),
		Mocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mocks",
			Help:      "Number of registered mocks.",
		}),
	}
	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.MatchHitsTotal,
		m.EvaluationDuration,
		m.EvaluationErrors,
		m.BoundListeners,
		m.Mocks,
	)
	registerRuntime(reg, time.Now())
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDispatch records one dispatched request. mock is empty for
// unmatched requests.
func (m *Metrics) ObserveDispatch(outcome, mock string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.RequestDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if mock != "" {
		m.MatchHitsTotal.WithLabelValues(mock).Inc()
	}
}

// ObserveEvaluation records one expression evaluation of the given kind.
func (m *Metrics) ObserveEvaluation(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.EvaluationDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.EvaluationErrors.WithLabelValues(kind).Inc()
	}
}

// SetBoundListeners sets the bound listener gauge.
func (m *Metrics) SetBoundListeners(n int) {
	if m == nil {
		return
	}
	m.BoundListeners.Set(float64(n))
}

// SetMocks sets the registered mocks gauge.
func (m *Metrics) SetMocks(n int) {
	if m == nil {
		return
	}
	m.Mocks.Set(float64(n))
}

// ForgetMock drops the per-mock series of a removed mock.
func (m *Metrics) ForgetMock(mock string) {
	if m == nil {
		return
	}
	m.MatchHitsTotal.DeleteLabelValues(mock)
}
