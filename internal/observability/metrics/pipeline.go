package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// PipelineMetrics observes sync batches and the files processed in them.
type PipelineMetrics struct {
	service string

	itemsTotal     *prometheus.CounterVec
	itemDuration   *prometheus.HistogramVec
	itemsInFlight  prometheus.Gauge
	degradedTotal  *prometheus.CounterVec
	batchesTotal   *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	deletionsTotal *prometheus.CounterVec
}

func NewPipelineMetrics(service string, reg prometheus.Registerer) *PipelineMetrics {
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "items_total",
			Help:      "Processed sync items by outcome.",
		},
		[]string{"service", "outcome"},
	)
	itemDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "item_duration_seconds",
			Help:      "Per-file extract, classify and merge duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "outcome"},
	)
	itemsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "items_in_flight",
			Help:      "Files currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "degraded_classifications_total",
			Help:      "Files archived with fallback metadata.",
		},
		[]string{"service"},
	)
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "batches_total",
			Help:      "Finished sync batches by result.",
		},
		[]string{"service", "result"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Sync batch duration in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service"},
	)
	deletionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "deletions_total",
			Help:      "Records removed because their file disappeared.",
		},
		[]string{"service"},
	)

	reg.MustRegister(itemsTotal, itemDuration, itemsInFlight, degradedTotal, batchesTotal, batchDuration, deletionsTotal)

	return &PipelineMetrics{
		service:        service,
		itemsTotal:     itemsTotal,
		itemDuration:   itemDuration,
		itemsInFlight:  itemsInFlight,
		degradedTotal:  degradedTotal,
		batchesTotal:   batchesTotal,
		batchDuration:  batchDuration,
		deletionsTotal: deletionsTotal,
	}
}

// Handler serves a standalone registry, used by the worker.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartItem() {
	m.itemsInFlight.Inc()
}

func (m *PipelineMetrics) FinishItem(outcome string, duration time.Duration) {
	m.itemsInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.itemsTotal.WithLabelValues(m.service, outcome).Inc()
	m.itemDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveDegraded() {
	m.degradedTotal.WithLabelValues(m.service).Inc()
}

func (m *PipelineMetrics) ObserveBatch(report domain.BatchReport) {
	result := "completed"
	switch {
	case report.Cancelled:
		result = "cancelled"
	case report.NoChanges:
		result = "no_changes"
	case len(report.Failed) > 0:
		result = "partial"
	}
	m.batchesTotal.WithLabelValues(m.service, result).Inc()
	if !report.FinishedAt.IsZero() && !report.StartedAt.IsZero() {
		m.batchDuration.WithLabelValues(m.service).Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}
	if report.Deleted > 0 {
		m.deletionsTotal.WithLabelValues(m.service).Add(float64(report.Deleted))
	}
}
