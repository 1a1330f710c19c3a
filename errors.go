package gort

import (
	"fmt"
	"time"
)

var (
	// ErrInvalidConfiguration is a sentinel for the error that
	// occurs when a throttler or client is built or reconfigured
	// with invalid parameters
	ErrInvalidConfiguration = &ConfigurationError{}

	// ErrRequestFailed is a sentinel for the error that
	// describes a single failed request attempt
	ErrRequestFailed = &RequestError{}

	// ErrRetriesExhausted is a sentinel for the error that
	// occurs when a request kept failing with transient errors
	// until no more attempts were allowed
	ErrRetriesExhausted = &RetriesExhausted{}
)

// ConfigurationError is returned when a throttler or client is built
// or reconfigured with invalid parameters.
//
// Configuration errors are never retried.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ConfigurationError: %v %v", e.Param, e.Reason)
}

func (e *ConfigurationError) Is(tgt error) bool {
	_, ok := tgt.(*ConfigurationError)
	return ok
}

// RequestError describes a single failed request attempt.
//
// For failures that carry an HTTP response, StatusCode holds the
// response status and Body the drained response payload.
// If the server dictated a retry delay (ex. through a Retry-After
// header), RetryInAvailable will be true and RetryIn will hold
// the required wait.
//
// For transport-level failures with no response at all,
// StatusCode is zero and Err holds the underlying error.
type RequestError struct {
	StatusCode       int
	RetryInAvailable bool
	RetryIn          time.Duration
	Body             []byte
	Err              error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("RequestError: request failed: %v", e.Err)
	}
	return fmt.Sprintf("RequestError: request failed with status %v", e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Is(tgt error) bool {
	_, ok := tgt.(*RequestError)
	return ok
}

// Transient reports whether the failed attempt is worth retrying.
//
// Failures without an HTTP status code (transport-level errors)
// are considered transient.
func (e *RequestError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	return IsTransientStatus(e.StatusCode, e.RetryInAvailable)
}

// RetriesExhausted is returned when a request kept failing with
// transient errors and the maximum number of attempts was reached.
//
// The last attempt's error is wrapped and can be inspected
// with errors.As.
type RetriesExhausted struct {
	AttemptsNumber int
	WaitedFor      time.Duration
	LastErr        error
}

func (e *RetriesExhausted) Error() string {
	return fmt.Sprintf(
		"RetriesExhausted: request failed after %v attempts in %v ms: %v",
		e.AttemptsNumber,
		e.WaitedFor.Milliseconds(),
		e.LastErr,
	)
}

func (e *RetriesExhausted) Unwrap() error {
	return e.LastErr
}

func (e *RetriesExhausted) Is(tgt error) bool {
	_, ok := tgt.(*RetriesExhausted)
	return ok
}
