package gort

import (
	"fmt"
	"time"
)

// throttleDecision carries the outcome of a single throttling decision.
//
// Each of the three slowdown rules contributes its own term so that
// logging and emitted events can report exactly which rules fired;
// the effective wait is the sum of all fired terms,
// as the rules apply sequentially, not alternatively.
type throttleDecision struct {
	Position           int
	PositionOverridden bool

	SoftThrottleWait time.Duration
	FullThrottleWait time.Duration
	OverflowWait     time.Duration
}

func (d *throttleDecision) TotalWait() time.Duration {
	return d.SoftThrottleWait + d.FullThrottleWait + d.OverflowWait
}

func (d *throttleDecision) String() string {
	return fmt.Sprintf(
		"ThrottleDecision[position: %v, soft: %v ms, full: %v ms, overflow: %v ms]",
		d.Position,
		d.SoftThrottleWait.Milliseconds(),
		d.FullThrottleWait.Milliseconds(),
		d.OverflowWait.Milliseconds(),
	)
}

// computeThrottleDecision evaluates the graduated throttling policy
// against the current window status.
//
// All rules are evaluated on the same time snapshot, taken once
// at the start of the decision. When the pacing window turns out
// to be exactly exhausted, it is restarted from the current time:
// the restart affects subsequent decisions, never the current one.
//
// The caller must hold the instance lock.
func (instance *requestThrottlerDefaultImpl) computeThrottleDecision(now uint64) *throttleDecision {
	instance.pruneStaleRequests(now)

	out := &throttleDecision{}

	position := instance.windowPosition()
	if instance.PositionProvider != nil {
		if override, ok := instance.PositionProvider.RequestPosition(); ok {
			position = override
			out.PositionOverridden = true
		}
	}
	out.Position = position

	config := instance.Config
	windowSize := time.Duration(config.Window) * time.Millisecond

	elapsed := time.Duration(int64(now)-int64(instance.WindowStartTime)) * time.Millisecond

	// an over-long window degrades "remaining" to the overshoot amount
	// instead of going negative, so that delays never invert sign.
	remaining := windowSize - elapsed
	if remaining < 0 {
		remaining = -remaining
	}

	if remaining == 0 {
		instance.WindowStartTime = now
	}

	// soft throttle: graduated slowdown between the two trigger counts.
	if position >= config.ThrottleTriggerCount && position < config.FullThrottleTriggerCount {
		var wait time.Duration
		if config.FixedWindowPacing {
			wait = remaining
		} else {
			// leaky bucket pacing: spread the remaining window time
			// evenly over the remaining request slots.
			remainingSlots := config.FullThrottleTriggerCount - position
			if remainingSlots < 1 {
				remainingSlots = 1
			}
			wait = remaining / time.Duration(remainingSlots)
		}
		if wait > windowSize {
			wait = windowSize
		}
		out.SoftThrottleWait = wait
	}

	// full throttle cushion: one slot away from the hard threshold,
	// wait out the remaining window time plus a 10% safety margin.
	if position == config.FullThrottleTriggerCount-1 {
		out.FullThrottleWait = remaining * 11 / 10
	}

	// overflow backoff: at or past the hard threshold with window time
	// still to burn, back off proportionally to it.
	if position >= config.FullThrottleTriggerCount && elapsed < windowSize {
		out.OverflowWait = (windowSize - elapsed) * 3 / 2
	}

	return out
}

// notifyThrottleDecision logs the fired rules and emits the
// corresponding events. It must be called outside of the lock.
func (instance *requestThrottlerDefaultImpl) notifyThrottleDecision(decision *throttleDecision) {
	if decision.SoftThrottleWait > 0 {
		instance.Logger.Debug(fmt.Sprintf(
			"approaching the request limit at position %v, slowing down for %v ms",
			decision.Position, decision.SoftThrottleWait.Milliseconds(),
		))
		instance.emitEvent(ThrottleEvent{
			Kind:               EventSoftThrottle,
			Position:           decision.Position,
			PositionOverridden: decision.PositionOverridden,
			Wait:               decision.SoftThrottleWait,
		})
	}

	if decision.FullThrottleWait > 0 {
		instance.Logger.Info(fmt.Sprintf(
			"one slot away from the request limit at position %v, waiting %v ms",
			decision.Position, decision.FullThrottleWait.Milliseconds(),
		))
		instance.emitEvent(ThrottleEvent{
			Kind:               EventFullThrottle,
			Position:           decision.Position,
			PositionOverridden: decision.PositionOverridden,
			Wait:               decision.FullThrottleWait,
		})
	}

	if decision.OverflowWait > 0 {
		instance.Logger.Warning(fmt.Sprintf(
			"request budget exhausted at position %v, backing off for %v ms",
			decision.Position, decision.OverflowWait.Milliseconds(),
		))
		instance.emitEvent(ThrottleEvent{
			Kind:               EventOverflowBackoff,
			Position:           decision.Position,
			PositionOverridden: decision.PositionOverridden,
			Wait:               decision.OverflowWait,
		})
	}
}

// NextWait computes how long the caller should wait before sending
// a new request, without applying the wait.
//
// It refreshes the window (pruning stale timestamps and restarting
// an exactly exhausted pacing window) but does not track any request:
// completed requests enter the window through RecordRequest.
func (instance *requestThrottlerDefaultImpl) NextWait() time.Duration {
	t := instance.currentTime()

	instance.Lock.Lock()
	decision := instance.computeThrottleDecision(uint64(t.UnixMilli()))
	instance.Lock.Unlock()

	instance.notifyThrottleDecision(decision)

	return decision.TotalWait()
}

// Throttle computes the required wait and applies it on the calling
// goroutine, returning the amount of time actually waited.
func (instance *requestThrottlerDefaultImpl) Throttle() time.Duration {
	wait := instance.NextWait()
	if wait > 0 {
		instance.sleep(wait)
	}
	return wait
}
