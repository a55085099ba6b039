package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Labels carries the dimensional context of a product event.
type Labels struct {
	UserID         int64
	OrganizationID int64
	Source         string
	Context        string
}

// Recorder is the interface for the product metrics sink. Emission is
// best-effort: callers never let a recording failure affect the operation
// being recorded.
type Recorder interface {
	RecordEvent(eventType string, labels Labels)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) RecordEvent(eventType string, labels Labels) {}

// PrometheusRecorder implements Recorder on top of Prometheus counters.
// Per-tenant ids are deliberately not used as label values to keep
// cardinality bounded; the audit log carries the per-tenant detail.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	EventsTotal        *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	PolicyDenialsTotal *prometheus.CounterVec
}

// NewPrometheusRecorder creates and registers the lifecycle metrics.
func NewPrometheusRecorder(registry *prometheus.Registry) *PrometheusRecorder {
	m := &PrometheusRecorder{
		registry: registry,
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veridian_events_total",
				Help: "Total number of product events",
			},
			[]string{"event_type", "source"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veridian_lifecycle_transitions_total",
				Help: "Total number of organization lifecycle transitions",
			},
			[]string{"transition"},
		),
		PolicyDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veridian_policy_denials_total",
				Help: "Total number of denied policy authorizations",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(m.EventsTotal, m.TransitionsTotal, m.PolicyDenialsTotal)
	return m
}

// RecordEvent counts a product event.
func (m *PrometheusRecorder) RecordEvent(eventType string, labels Labels) {
	m.EventsTotal.WithLabelValues(eventType, labels.Source).Inc()
}

// RecordTransition counts a lifecycle transition.
func (m *PrometheusRecorder) RecordTransition(transition string) {
	m.TransitionsTotal.WithLabelValues(transition).Inc()
}

// RecordDenial counts a policy denial by its stable code.
func (m *PrometheusRecorder) RecordDenial(code string) {
	m.PolicyDenialsTotal.WithLabelValues(code).Inc()
}

// Handler returns the Prometheus scrape handler for the recorder's registry.
func (m *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
