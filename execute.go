package gort

import (
	"fmt"
	"math"
	"time"
)

// AttemptFunc is a single request attempt executed under the retry
// policy of a throttler.
//
// The attempt parameter is the zero-based number of the current attempt.
//
// Returning a *RequestError allows the retry policy to classify the
// failure by status code and to honor server-dictated retry delays.
// Returning a *ConfigurationError makes the failure fatal; any other
// error is treated as a transport-level transient failure.
type AttemptFunc func(attempt int) error

// retryHooks carries the runtime dependencies of the retry loop,
// so that standalone and composite throttlers can share it.
type retryHooks struct {
	Sleep   func(d time.Duration)
	Jitter  func() float64
	Logger  Logger
	OnEvent func(evt ThrottleEvent)
}

func (hooks *retryHooks) emitEvent(evt ThrottleEvent) {
	if hooks.OnEvent == nil {
		return
	}
	hooks.OnEvent(evt)
}

// Execute runs fn under the throttling and retry policy.
func (instance *requestThrottlerDefaultImpl) Execute(fn AttemptFunc, maxRetries int, backoffFactor float64) error {
	return executeWithRetries(instance, retryHooks{
		Sleep:   instance.sleep,
		Jitter:  instance.JitterFunc,
		Logger:  instance.Logger,
		OnEvent: instance.OnEvent,
	}, fn, maxRetries, backoffFactor)
}

// executeWithRetries is the retry loop shared by all throttler kinds.
//
// It runs up to maxRetries+1 attempts. Before every attempt the
// throttler is asked to apply its current wait; after a successful
// attempt the request is recorded into the window and the loop ends.
//
// Failed attempts are classified: fatal errors propagate immediately,
// transient errors trigger a wait and a new attempt until no more
// attempts are allowed, at which point the last error is wrapped
// in a RetriesExhausted.
//
// The wait between attempts is the server-dictated retry delay when
// the failure carries one, or a local exponential backoff
// (backoffFactor^(attempt+1) seconds plus a random jitter in [0,1),
// redrawn on every attempt) otherwise.
func executeWithRetries(
	throttler RequestThrottler,
	hooks retryHooks,
	fn AttemptFunc,
	maxRetries int,
	backoffFactor float64,
) error {
	if maxRetries < 0 {
		return &ConfigurationError{
			Param:  "maxRetries",
			Reason: fmt.Sprintf("should be zero or positive (given: %v)", maxRetries),
		}
	}
	if backoffFactor <= 0 {
		return &ConfigurationError{
			Param:  "backoffFactor",
			Reason: fmt.Sprintf("should be greater than 0 (given: %v)", backoffFactor),
		}
	}

	attempts := maxRetries + 1
	waitedFor := time.Duration(0)

	for attempt := 0; attempt < attempts; attempt++ {
		waitedFor += throttler.Throttle()

		err := fn(attempt)
		if err == nil {
			throttler.RecordRequest()
			return nil
		}

		transient, requestError := classifyAttemptError(err)

		statusCode := 0
		if requestError != nil {
			statusCode = requestError.StatusCode
		}

		hooks.emitEvent(ThrottleEvent{
			Kind:       EventRequestFailed,
			Attempt:    attempt,
			StatusCode: statusCode,
			Err:        err,
		})

		if !transient {
			hooks.Logger.Warning(fmt.Sprintf(
				"request failed with a non-retriable error at attempt %v: %v",
				attempt+1, err,
			))
			return err
		}

		if attempt == attempts-1 {
			hooks.Logger.Warning(fmt.Sprintf(
				"request failed and no more attempts are allowed: %v", err,
			))
			return &RetriesExhausted{
				AttemptsNumber: attempts,
				WaitedFor:      waitedFor,
				LastErr:        err,
			}
		}

		var retryIn time.Duration
		serverDelay := false
		if requestError != nil && requestError.RetryInAvailable {
			// the server dictated the wait: honor it exactly.
			retryIn = requestError.RetryIn
			serverDelay = true
		} else {
			backoff := math.Pow(backoffFactor, float64(attempt+1)) + hooks.Jitter()
			retryIn = time.Duration(backoff * float64(time.Second))
		}

		hooks.Logger.Debug(fmt.Sprintf(
			"request failed at attempt %v, waiting %v ms before retrying: %v",
			attempt+1, retryIn.Milliseconds(), err,
		))
		hooks.emitEvent(ThrottleEvent{
			Kind:        EventRetryBackoff,
			Attempt:     attempt,
			Wait:        retryIn,
			StatusCode:  statusCode,
			ServerDelay: serverDelay,
			Err:         err,
		})

		if retryIn > 0 {
			hooks.Sleep(retryIn)
			waitedFor += retryIn
		}
	}

	// the loop always returns from within
	return nil
}
