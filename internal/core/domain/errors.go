package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrPolicyNotFound          = errors.New("retention policy not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrTemporary               = errors.New("temporary failure")
	ErrExtraction              = errors.New("content extraction failed")
	ErrClassificationTransport = errors.New("classification transport failed")
	ErrClassificationParse     = errors.New("classification response not parseable")
	ErrUnsupportedCapability   = errors.New("unsupported capability")
	ErrPersistence             = errors.New("persistence failed")
	ErrBatchInProgress         = errors.New("sync batch already in progress")
	ErrRecordIDExhausted       = errors.New("record id space exhausted")
	ErrUnauthorized            = errors.New("unauthorized")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
