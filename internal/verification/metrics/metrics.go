package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the verification engine.
type Metrics struct {
	VerificationsTotal *prometheus.CounterVec
	Duration           prometheus.Histogram
}

// New creates and registers all verification metrics.
func New() *Metrics {
	return &Metrics{
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustdoc_verifications_total",
			Help: "Total verification requests, labeled by outcome",
		}, []string{"outcome"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustdoc_verification_duration_seconds",
			Help:    "Latency of verification adjudication in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncOutcome records one verification with the given outcome label.
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records adjudication latency.
func (m *Metrics) ObserveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.Duration.Observe(seconds)
}
