package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor guards the archive's outbound calls (model requests, event
// publishing, relay replies). Every attempt takes a token from the shared
// bucket; the attempts of one call run inside a breaker keyed by operation.
type Executor struct {
	cfg     Config
	limiter *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	cfg = cfg.normalize()
	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateBurst)
	}
	return &Executor{
		cfg:      cfg,
		limiter:  limiter,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute runs fn under the executor's policy. A nil classifier treats every
// error as permanent.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("%s %s: nil call", e.cfg.Component, operation)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unnamed"
	}
	if classifier == nil {
		classifier = func(error) ErrorClassification { return Permanent }
	}

	if !e.cfg.BreakerEnabled {
		return e.attempt(ctx, op, fn, classifier)
	}
	_, err := e.breaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.attempt(ctx, op, fn, classifier)
	})
	return err
}

// BreakerOpen reports whether calls for operation are currently rejected.
func (e *Executor) BreakerOpen(operation string) bool {
	e.mu.Lock()
	cb, ok := e.breakers[operation]
	e.mu.Unlock()
	return ok && cb.State() == gobreaker.StateOpen
}

func (e *Executor) attempt(ctx context.Context, op string, fn func(context.Context) error, classify ErrorClassifier) error {
	var err error
	for n := 1; n <= e.cfg.RetryMaxAttempts; n++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}
		if e.limiter != nil {
			if werr := e.limiter.Wait(ctx); werr != nil {
				return fmt.Errorf("rate limit wait: %w", werr)
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if !classify(err).Retryable || n == e.cfg.RetryMaxAttempts {
			return err
		}

		wait := e.backoff(n)
		e.cfg.Logger.Warn("outbound_retry_scheduled",
			"component", e.cfg.Component,
			"operation", op,
			"attempt", n,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.cfg.Observer != nil {
			e.cfg.Observer.ObserveRetry(e.cfg.Component, op)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
	return err
}

// backoff is the delay after attempt n (1-based), capped at RetryMaxBackoff.
func (e *Executor) backoff(n int) time.Duration {
	d := float64(e.cfg.RetryInitialBackoff)
	for i := 1; i < n; i++ {
		d *= e.cfg.RetryMultiplier
		if d >= float64(e.cfg.RetryMaxBackoff) {
			return e.cfg.RetryMaxBackoff
		}
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *Executor) breaker(op string, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        e.cfg.Component + "." + op,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= e.cfg.BreakerMinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			e.cfg.Logger.Warn("outbound_breaker_state_changed",
				"component", e.cfg.Component,
				"operation", op,
				"from", from.String(),
				"to", to.String(),
			)
			if e.cfg.Observer != nil {
				e.cfg.Observer.ObserveBreakerState(e.cfg.Component, op, to == gobreaker.StateOpen)
			}
		},
	})
	e.breakers[op] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
