package llm

import (
	"errors"
)

// Model invocation failures are classified at the point they occur: the
// retry loop in Invoke keys off these wrappers, retrying transient failures
// with backoff and surfacing fatal ones immediately.

// TransientError marks a failure that may clear on retry: network errors,
// 429 rate limits, 5xx responses, undecodable bodies.
type TransientError struct {
	cause error
}

func (e *TransientError) Error() string {
	return e.cause.Error()
}

func (e *TransientError) Unwrap() error {
	return e.cause
}

// NewTransientError wraps an error as retryable.
func NewTransientError(err error) error {
	return &TransientError{cause: err}
}

// FatalError marks a failure no retry can fix: bad requests, auth
// rejections, any 4xx other than 429.
type FatalError struct {
	cause error
}

func (e *FatalError) Error() string {
	return e.cause.Error()
}

func (e *FatalError) Unwrap() error {
	return e.cause
}

// NewFatalError wraps an error as non-retryable.
func NewFatalError(err error) error {
	return &FatalError{cause: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err is classified as non-retryable.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
