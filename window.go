package gort

// The sliding window is represented by a deque of request timestamps
// in epoch milliseconds, most recent at the front.
// All methods in this file require the instance lock to be held.

// pruneStaleRequests removes every tracked timestamp that fell outside
// of the lower window bound.
//
// A timestamp sitting exactly on the lower bound is still considered
// part of the window.
//
// Pruning twice in a row leaves the window unchanged.
func (instance *requestThrottlerDefaultImpl) pruneStaleRequests(now uint64) {
	if now <= instance.Config.Window {
		return
	}
	removeBefore := now - instance.Config.Window

	queue := instance.Timestamps
	for queue.Len() > 0 && queue.Back().(uint64) < removeBefore {
		queue.PopBack()
	}
}

// windowPosition returns the number of tracked requests currently
// inside the window. The caller is expected to have pruned
// the window first.
func (instance *requestThrottlerDefaultImpl) windowPosition() int {
	return instance.Timestamps.Len()
}

// recordRequestAt tracks a completed request.
//
// When the request enters an empty window, the pacing window
// is restarted from that request.
func (instance *requestThrottlerDefaultImpl) recordRequestAt(now uint64) {
	instance.Timestamps.PushFront(now)
	instance.TotalRequests++

	if instance.Timestamps.Len() == 1 {
		instance.WindowStartTime = now
	}
}
