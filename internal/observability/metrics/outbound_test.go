package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestOutboundMetricsTracksRetriesAndBreakers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboundMetrics(reg)

	m.ObserveRetry("classifier", "ollama.chat")
	m.ObserveRetry("classifier", "ollama.chat")
	m.ObserveBreakerState("nats", "nats.publish_batch", true)
	m.ObserveBreakerState("relay", "telegram.send", true)
	m.ObserveBreakerState("relay", "telegram.send", false)

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["archive_outbound_retries_total|classifier|ollama.chat"])
	assert.Equal(t, 1.0, got["archive_outbound_breaker_open|nats|nats.publish_batch"])
	assert.Equal(t, 0.0, got["archive_outbound_breaker_open|relay|telegram.send"])
}
