package gort

import (
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// RequestThrottler is the parent interface for all kinds
// of request throttlers.
//
// You are encouraged to use this type when storing references
// to your throttlers in order to allow for easier implementations switch.
type RequestThrottler interface {
	// NextWait computes how long the caller should wait before
	// sending a new request, without applying the wait.
	// Use it when you want to compose the decision with your own
	// (ex. cancellable) sleep primitive.
	NextWait() time.Duration

	// Throttle computes the required wait and applies it on the
	// calling goroutine, returning the amount of time actually waited.
	Throttle() time.Duration

	// RecordRequest tracks a completed request into the sliding window.
	RecordRequest()

	// Execute runs fn under the throttling and retry policy:
	// every attempt is throttled first, successful attempts are
	// recorded, transient failures are waited out and retried
	// up to maxRetries additional attempts.
	//
	// You can check the returned error with errors.Is against
	// the sentinels gort.ErrRetriesExhausted, gort.ErrRequestFailed
	// or gort.ErrInvalidConfiguration, or you can cast it to the
	// gort.RetriesExhausted / gort.RequestError types
	// if you need additional info.
	Execute(fn AttemptFunc, maxRetries int, backoffFactor float64) error

	// IsComposite returns true if the throttler is a CompositeRequestThrottler.
	IsComposite() bool
}

// StandaloneRequestThrottler is the specialized interface for the
// standard request throttlers created with gort.New(...).
//
// Note that all types implementing StandaloneRequestThrottler also
// implement RequestThrottler: you are encouraged to use that type
// when storing references to your throttlers in order to allow
// for easier implementations switch.
type StandaloneRequestThrottler interface {
	// NextWait computes how long the caller should wait before
	// sending a new request, without applying the wait.
	NextWait() time.Duration

	// Throttle computes the required wait and applies it on the
	// calling goroutine, returning the amount of time actually waited.
	Throttle() time.Duration

	// RecordRequest tracks a completed request into the sliding window.
	RecordRequest()

	// Execute runs fn under the throttling and retry policy.
	Execute(fn AttemptFunc, maxRetries int, backoffFactor float64) error

	// IsComposite is "inherited" from RequestThrottler
	// and always returns false for this type.
	IsComposite() bool

	// Stats returns runtime statistics useful to evaluate system status,
	// performance and overhead.
	Stats() RuntimeStatistics

	// Reconfigure atomically replaces the request budget and the window
	// width, revalidating them and recomputing the throttling thresholds.
	//
	// It allows adapting at runtime to the quota that the remote server
	// actually advertises. The tracked request timestamps and counters
	// are preserved.
	Reconfigure(maxRequestsInWindow int, window time.Duration) error
}

// CompositeRequestThrottler is the specialized interface for the
// composite request throttlers created with gort.NewComposite(...).
//
// Note that all types implementing CompositeRequestThrottler also
// implement RequestThrottler: you are encouraged to use that type
// when storing references to your throttlers in order to allow
// for easier implementations switch.
type CompositeRequestThrottler interface {
	// NextWait computes how long the caller should wait before
	// sending a new request, without applying the wait.
	// For a composite throttler this is the highest of the waits
	// required by the composed throttlers.
	NextWait() time.Duration

	// Throttle computes the required wait and applies it on the
	// calling goroutine, returning the amount of time actually waited.
	Throttle() time.Duration

	// RecordRequest tracks a completed request into the sliding window
	// of every composed throttler.
	RecordRequest()

	// Execute runs fn under the throttling and retry policy.
	Execute(fn AttemptFunc, maxRetries int, backoffFactor float64) error

	// IsComposite is "inherited" from RequestThrottler
	// and always returns true for this type.
	IsComposite() bool

	// Stats returns runtime statistics useful to evaluate system status,
	// performance and overhead.
	//
	// In the case of a composite throttler, the statistics of all
	// the composed throttlers are returned.
	Stats() CompositeRuntimeStatistics
}

// RuntimeStatistics holds runtime statistics
// for a single request throttler.
type RuntimeStatistics struct {
	// RequestsInWindow is the number of tracked requests
	// currently inside the sliding window.
	RequestsInWindow int

	// TotalRequests is the number of requests recorded
	// since the throttler was created.
	TotalRequests uint64

	// WindowStart is the reference start time of the current
	// pacing window.
	WindowStart time.Time
}

// CompositeRuntimeStatistics holds runtime statistics
// for a composite request throttler.
type CompositeRuntimeStatistics struct {

	// ThrottlersStats holds the statistics for each composed throttler
	ThrottlersStats []RuntimeStatistics
}

// requestThrottlerDefaultImpl holds all the required
// runtime data together with the parsed configuration.
type requestThrottlerDefaultImpl struct {
	Logger Logger
	Config *throttlerEffectiveConfig

	// Time functions can be overridden for testing.
	TimeFunc  func() time.Time
	SleepFunc func(d time.Duration)

	// JitterFunc draws the random jitter term of the retry backoff.
	JitterFunc func() float64

	// PositionProvider optionally overrides the locally tracked
	// window position, one decision at a time.
	PositionProvider PositionProvider

	// OnEvent, when set, receives a ThrottleEvent for every
	// slowdown, backoff and retry decision.
	OnEvent func(evt ThrottleEvent)

	// a lock provides thread safety.
	Lock sync.Mutex

	// a deque implementation is used to represent the sliding window
	// as we need to operate on both sides of it.
	// It holds the timestamps of the tracked requests in epoch
	// milliseconds, most recent at the front.
	Timestamps *deque.Deque

	// WindowStartTime is the reference start of the current
	// pacing window, in epoch milliseconds.
	WindowStartTime uint64

	// TotalRequests counts every request recorded since creation.
	TotalRequests uint64
}

// throttlerEffectiveConfig holds the validated and parsed configuration
// that was obtained from the user-provided configuration.
type throttlerEffectiveConfig struct {
	// max number of requests allowed in the window
	MaxRequestsInWindow int

	// window width in milliseconds
	Window uint64

	// slowdown thresholds as fractions of the max
	ThrottleStartFraction float64
	FullThrottleFraction  float64

	// pacing mode
	FixedWindowPacing bool

	// derived trigger counts, see recalculateThrottleThresholds
	ThrottleTriggerCount     int
	FullThrottleTriggerCount int
}

func newTimestampsQueue(config *throttlerEffectiveConfig) *deque.Deque {
	// set a minimum capacity on the queue
	// to avoid dynamically resizing and improve performance.
	minQueueCapacity := config.MaxRequestsInWindow * 2
	return deque.New(minQueueCapacity, minQueueCapacity)
}

func (instance *requestThrottlerDefaultImpl) currentTime() time.Time {
	// hook time provider here to allow easier testing
	return instance.TimeFunc()
}

func (instance *requestThrottlerDefaultImpl) sleep(d time.Duration) {
	// hook time provider here to allow easier testing.
	// negative waits are clamped to no wait at all.
	if d <= 0 {
		return
	}
	instance.SleepFunc(d)
}

func (instance *requestThrottlerDefaultImpl) emitEvent(evt ThrottleEvent) {
	if instance.OnEvent == nil {
		return
	}
	instance.OnEvent(evt)
}

func (instance *requestThrottlerDefaultImpl) IsComposite() bool {
	return false
}

// RecordRequest tracks a completed request into the sliding window.
//
// The throttler only counts what actually went through: requests
// that were never sent, or whose attempts all failed, do not
// consume window slots.
func (instance *requestThrottlerDefaultImpl) RecordRequest() {
	t := instance.currentTime()

	instance.Lock.Lock()
	defer instance.Lock.Unlock()

	now := uint64(t.UnixMilli())
	instance.pruneStaleRequests(now)
	instance.recordRequestAt(now)
}

// Stats returns runtime statistics useful to evaluate system status,
// performance and overhead.
//
// The window content is reported as last observed: timestamps that
// expired since the last operation are still counted.
func (instance *requestThrottlerDefaultImpl) Stats() RuntimeStatistics {
	instance.Lock.Lock()
	defer instance.Lock.Unlock()

	return RuntimeStatistics{
		RequestsInWindow: instance.Timestamps.Len(),
		TotalRequests:    instance.TotalRequests,
		WindowStart:      time.UnixMilli(int64(instance.WindowStartTime)),
	}
}

// Reconfigure atomically replaces the request budget and the window
// width, revalidating them and recomputing the throttling thresholds.
func (instance *requestThrottlerDefaultImpl) Reconfigure(maxRequestsInWindow int, window time.Duration) error {
	if maxRequestsInWindow <= 0 {
		return &ConfigurationError{
			Param:  "MaxRequestsInWindow",
			Reason: fmt.Sprintf("should be greater than 0 (given: %v)", maxRequestsInWindow),
		}
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		return &ConfigurationError{
			Param:  "Window",
			Reason: fmt.Sprintf("should be at least 1ms (given: %v)", window),
		}
	}

	instance.Lock.Lock()
	defer instance.Lock.Unlock()

	instance.Config.MaxRequestsInWindow = maxRequestsInWindow
	instance.Config.Window = uint64(windowMillis)
	recalculateThrottleThresholds(instance.Config)

	instance.Logger.Info(fmt.Sprintf(
		"throttler reconfigured for max %v requests in %v ms",
		maxRequestsInWindow, windowMillis,
	))

	return nil
}
