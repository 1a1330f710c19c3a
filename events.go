package gort

import "time"

// ThrottleEventKind identifies the reason behind a ThrottleEvent.
type ThrottleEventKind string

const (
	// EventSoftThrottle is the graduated slowdown applied between
	// the soft and full throttle thresholds.
	EventSoftThrottle ThrottleEventKind = "soft-throttle"

	// EventFullThrottle is the extra cushion applied on the last
	// slot before the full throttle threshold.
	EventFullThrottle ThrottleEventKind = "full-throttle"

	// EventOverflowBackoff is the proportional backoff applied
	// at or past the full throttle threshold.
	EventOverflowBackoff ThrottleEventKind = "overflow-backoff"

	// EventRetryBackoff is a wait applied before reattempting
	// a failed request.
	EventRetryBackoff ThrottleEventKind = "retry-backoff"

	// EventRequestFailed signals a failed request attempt.
	EventRequestFailed ThrottleEventKind = "request-failed"
)

// ThrottleEvent is the structured notification delivered through the
// OnEvent callback every time a throttler decides to slow down,
// back off or retry.
//
// The callback runs outside of the internal lock but on the calling
// goroutine: it should return quickly and never call back
// into the throttler.
type ThrottleEvent struct {
	Kind ThrottleEventKind

	// Position is the window position the decision was computed against.
	Position int

	// PositionOverridden is true when Position came from the configured
	// PositionProvider instead of the locally tracked request count.
	PositionOverridden bool

	// Attempt is the zero-based attempt number, for retry-related events.
	Attempt int

	// Wait is the amount of time the throttler decided to wait.
	Wait time.Duration

	// StatusCode is the HTTP status code of the failed attempt, if any.
	StatusCode int

	// ServerDelay is true when Wait was dictated by the server through
	// a retry delay header instead of being computed locally.
	ServerDelay bool

	// Err carries the attempt error for failure-related events.
	Err error
}
