package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concept_studio"

// Outcome labels shared by the external call counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics collects workflow and external call instrumentation. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	AnalysisCalls  *prometheus.CounterVec
	ImageCalls     *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	Transitions    *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AnalysisCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_calls_total",
			Help:      "Text-analysis calls by persona and outcome.",
		}, []string{"persona", "outcome"}),
		ImageCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_generations_total",
			Help:      "Image generation calls by outcome.",
		}, []string{"outcome"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of calls to external services.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
		}, []string{"service"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Workflow step transitions by operation and result.",
		}, []string{"operation", "result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
	}

	m.registry.MustRegister(
		m.AnalysisCalls,
		m.ImageCalls,
		m.CallDuration,
		m.Transitions,
		m.ActiveSessions,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAnalysis records one text-analysis call.
func (m *Metrics) ObserveAnalysis(persona string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisCalls.WithLabelValues(persona, outcome(ok)).Inc()
	m.CallDuration.WithLabelValues("analysis").Observe(elapsed.Seconds())
}

// ObserveImage records one image generation call.
func (m *Metrics) ObserveImage(ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ImageCalls.WithLabelValues(outcome(ok)).Inc()
	m.CallDuration.WithLabelValues("image").Observe(elapsed.Seconds())
}

// ObserveTransition records an attempted workflow operation.
func (m *Metrics) ObserveTransition(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.Transitions.WithLabelValues(operation, result).Inc()
}

// SetActiveSessions updates the in-memory session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
