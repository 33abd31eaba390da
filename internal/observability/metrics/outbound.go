package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboundMetrics counts retries and tracks open breakers of outbound calls.
type OutboundMetrics struct {
	retries     *prometheus.CounterVec
	breakerOpen *prometheus.GaugeVec
}

func NewOutboundMetrics(reg prometheus.Registerer) *OutboundMetrics {
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "outbound",
			Name:      "retries_total",
			Help:      "Retried outbound attempts by component and operation.",
		},
		[]string{"component", "operation"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "archive",
			Subsystem: "outbound",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is open.",
		},
		[]string{"component", "operation"},
	)
	reg.MustRegister(retries, breakerOpen)
	return &OutboundMetrics{retries: retries, breakerOpen: breakerOpen}
}

func (m *OutboundMetrics) ObserveRetry(component, operation string) {
	m.retries.WithLabelValues(component, operation).Inc()
}

func (m *OutboundMetrics) ObserveBreakerState(component, operation string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.breakerOpen.WithLabelValues(component, operation).Set(v)
}
