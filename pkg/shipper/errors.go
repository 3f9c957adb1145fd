package shipper

import (
	"errors"
	"fmt"
)

// QuoteError is returned by a carrier that failed to produce a quote.
type QuoteError struct {
	Carrier   string
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *QuoteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s quote error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s quote error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *QuoteError) Unwrap() error {
	return e.Cause
}

// Is matches another QuoteError carrying the same code.
func (e *QuoteError) Is(target error) bool {
	t, ok := target.(*QuoteError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewQuoteError creates a new QuoteError.
func NewQuoteError(carrier, code, message string) *QuoteError {
	return &QuoteError{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *QuoteError) WithCause(err error) *QuoteError {
	e.Cause = err
	return e
}

// WithRetryable marks the error as retryable.
func (e *QuoteError) WithRetryable(retryable bool) *QuoteError {
	e.Retryable = retryable
	return e
}

var (
	// ErrInvalidAddress indicates the destination cannot be quoted.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrServiceUnavailable indicates the carrier is temporarily unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRateLimitExceeded indicates the carrier rate limit was exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCarrierNotFound indicates the requested carrier is not registered.
	ErrCarrierNotFound = errors.New("carrier not found")

	// ErrNoQuotes indicates that no carrier returned a quote.
	ErrNoQuotes = errors.New("no carrier returned a quote")
)

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var quoteErr *QuoteError
	if errors.As(err, &quoteErr) {
		return quoteErr.Retryable
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimitExceeded)
}
