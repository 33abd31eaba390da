package resilience

import (
	"log/slog"
	"time"
)

// Config tunes one Executor. Zero values fall back to DefaultConfig.
type Config struct {
	// Component labels logs and metrics: "classifier", "nats", "relay".
	Component string

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// RateLimitPerSecond <= 0 disables limiting.
	RateLimitPerSecond float64
	RateBurst          int

	Logger   *slog.Logger
	Observer Observer
}

// Observer is told about retries and breaker transitions.
type Observer interface {
	ObserveRetry(component, operation string)
	ObserveBreakerState(component, operation string, open bool)
}

func DefaultConfig() Config {
	return Config{
		Component:           "outbound",
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// ClassifierConfig is the policy for model calls made during analysis: a
// token bucket shared by classification and chat, and longer backoff since
// a local model that is busy loading recovers in seconds, not milliseconds.
func ClassifierConfig(attempts int, ratePerSecond float64, burst int) Config {
	c := DefaultConfig()
	c.Component = "classifier"
	c.RetryMaxAttempts = attempts
	c.RetryInitialBackoff = 250 * time.Millisecond
	c.RetryMaxBackoff = 2 * time.Second
	c.BreakerMinRequests = 5
	c.RateLimitPerSecond = ratePerSecond
	c.RateBurst = burst
	return c
}

// TransportConfig is the policy for short fire-and-forget calls such as
// event publishing and relay replies.
func TransportConfig(component string) Config {
	c := DefaultConfig()
	c.Component = component
	return c
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.Component == "" {
		out.Component = def.Component
	}
	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	if out.RateLimitPerSecond < 0 {
		out.RateLimitPerSecond = 0
	}
	if out.RateLimitPerSecond > 0 && out.RateBurst <= 0 {
		out.RateBurst = 1
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}
