package gort

import (
	"sync"
	"time"
)

type compositeRequestThrottlerDefaultImpl struct {
	Logger     Logger
	Throttlers []*requestThrottlerDefaultImpl
	Lock       sync.Mutex

	TimeFunc   func() time.Time
	SleepFunc  func(d time.Duration)
	JitterFunc func() float64
	OnEvent    func(evt ThrottleEvent)
}

func (instance *compositeRequestThrottlerDefaultImpl) currentTime() time.Time {
	// hook time provider here to allow easier testing
	return instance.TimeFunc()
}

func (instance *compositeRequestThrottlerDefaultImpl) sleep(d time.Duration) {
	// hook time provider here to allow easier testing.
	// negative waits are clamped to no wait at all.
	if d <= 0 {
		return
	}
	instance.SleepFunc(d)
}

// NextWait computes how long the caller should wait before sending
// a new request, without applying the wait.
//
// Every composed throttler is evaluated on the same time snapshot
// and the highest of the component waits is returned: a request may
// proceed only when every composed budget has room for it, so the
// most restrictive component dictates the pace.
func (instance *compositeRequestThrottlerDefaultImpl) NextWait() time.Duration {
	t := instance.currentTime()

	instance.Lock.Lock()

	now := uint64(t.UnixMilli())

	var highest *throttleDecision
	var highestOwner *requestThrottlerDefaultImpl

	for _, throttler := range instance.Throttlers {
		throttler.Lock.Lock()
		decision := throttler.computeThrottleDecision(now)
		throttler.Lock.Unlock()

		if highest == nil || decision.TotalWait() > highest.TotalWait() {
			highest = decision
			highestOwner = throttler
		}
	}

	instance.Lock.Unlock()

	if highest == nil {
		return 0
	}

	if highest.TotalWait() > 0 {
		highestOwner.notifyThrottleDecision(highest)
	}

	return highest.TotalWait()
}

// Throttle computes the required wait and applies it on the calling
// goroutine, returning the amount of time actually waited.
func (instance *compositeRequestThrottlerDefaultImpl) Throttle() time.Duration {
	wait := instance.NextWait()
	if wait > 0 {
		instance.sleep(wait)
	}
	return wait
}

// RecordRequest tracks a completed request into the sliding window
// of every composed throttler, using the same timestamp for all.
func (instance *compositeRequestThrottlerDefaultImpl) RecordRequest() {
	t := instance.currentTime()

	instance.Lock.Lock()
	defer instance.Lock.Unlock()

	now := uint64(t.UnixMilli())

	for _, throttler := range instance.Throttlers {
		throttler.Lock.Lock()
		throttler.pruneStaleRequests(now)
		throttler.recordRequestAt(now)
		throttler.Lock.Unlock()
	}
}

// Execute runs fn under the throttling and retry policy.
//
// The throttling applied before every attempt honors all the
// composed budgets at once.
func (instance *compositeRequestThrottlerDefaultImpl) Execute(fn AttemptFunc, maxRetries int, backoffFactor float64) error {
	return executeWithRetries(instance, retryHooks{
		Sleep:   instance.sleep,
		Jitter:  instance.JitterFunc,
		Logger:  instance.Logger,
		OnEvent: instance.OnEvent,
	}, fn, maxRetries, backoffFactor)
}

// Stats returns runtime statistics useful to evaluate system status,
// performance and overhead.
//
// In the case of a composite throttler, the statistics of all
// the composed throttlers are returned.
func (instance *compositeRequestThrottlerDefaultImpl) Stats() CompositeRuntimeStatistics {
	instance.Lock.Lock()
	defer instance.Lock.Unlock()

	num := len(instance.Throttlers)
	out := CompositeRuntimeStatistics{
		ThrottlersStats: make([]RuntimeStatistics, num),
	}

	for i, throttler := range instance.Throttlers {
		out.ThrottlersStats[i] = throttler.Stats()
	}

	return out
}

func (instance *compositeRequestThrottlerDefaultImpl) IsComposite() bool {
	return true
}
