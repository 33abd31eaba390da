package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures are not retried but still count against the breaker.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored covers caller cancellation and client-side rejections.
	Ignored = ErrorClassification{}
)

// ClassifyCommon handles the cases every outbound transport treats alike:
// cancellation, an open breaker and network errors. ok is false when the
// caller has to decide.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Ignored, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, true
	}
	return ErrorClassification{}, false
}

// ClassifyHTTPStatus maps a response status: timeouts, 429 and 5xx are
// transient, anything else is the caller's fault and ignored by the breaker.
func ClassifyHTTPStatus(statusCode int) ErrorClassification {
	if IsRetryableHTTPStatus(statusCode) {
		return Transient
	}
	return Ignored
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return statusCode >= 500 && statusCode != http.StatusNotImplemented
}

// WrapTemporary marks err as domain.ErrTemporary when classify considers it
// retryable or the breaker rejected the call.
func WrapTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classify(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
