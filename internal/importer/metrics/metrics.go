package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the import pipeline.
type Metrics struct {
	JobsTotal *prometheus.CounterVec
	RowsTotal *prometheus.CounterVec
}

// New creates and registers all importer metrics.
func New() *Metrics {
	return &Metrics{
		JobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustdoc_import_jobs_total",
			Help: "Import jobs reaching a terminal state, labeled by status",
		}, []string{"status"}),
		RowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustdoc_import_rows_total",
			Help: "Processed import rows, labeled by outcome",
		}, []string{"outcome"}),
	}
}

// IncJob records one job reaching the given terminal status.
func (m *Metrics) IncJob(status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
}

// IncRow records one processed row with the given outcome label.
func (m *Metrics) IncRow(outcome string) {
	if m == nil {
		return
	}
	m.RowsTotal.WithLabelValues(outcome).Inc()
}
