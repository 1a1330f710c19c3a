package gort

import (
	"errors"
	"net/http"
)

// IsTransientStatus reports whether a request that failed with the
// given HTTP status code is worth retrying.
//
// Transient failures are:
//
// - status 408 (request timeout)
//
// - status 429 (too many requests)
//
// - any 5xx server error
//
// - status 403 when the server provided a retry delay, for providers
// that report quota exhaustion as "forbidden"
//
// Everything else, including other 4xx statuses, is fatal and
// must not be retried.
func IsTransientStatus(statusCode int, retryDelayAvailable bool) bool {
	if statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= 500 && statusCode <= 599 {
		return true
	}
	if statusCode == http.StatusForbidden && retryDelayAvailable {
		return true
	}
	return false
}

// classifyAttemptError decides whether an attempt error is worth
// retrying and extracts the failure details when available.
//
// Configuration errors are never retried.
// Errors that do not describe an HTTP response at all (connection
// resets, timeouts and other transport failures) are considered
// transient, like the statusless RequestError they are equivalent to.
func classifyAttemptError(err error) (bool, *RequestError) {
	var configurationError *ConfigurationError
	if errors.As(err, &configurationError) {
		return false, nil
	}

	var requestError *RequestError
	if errors.As(err, &requestError) {
		return requestError.Transient(), requestError
	}

	return true, nil
}
