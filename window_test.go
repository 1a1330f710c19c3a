package gort

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeMillis(t *testing.T) {
	ti := buildDefaultInstance(t)

	t1 := ti.CurrentTime
	assert.Equal(t, ti.CurrentTime, uint64(ti.Instance.currentTime().UnixMilli()))

	ti.TimeTravel(123)
	assert.Equal(t, t1+123, ti.CurrentTime)

	assert.Equal(t, t1+123, uint64(ti.Instance.currentTime().UnixMilli()))
}

func TestRecordRequestTracksTimestamps(t *testing.T) {
	ti := buildDefaultInstance(t)

	// start at t = 1000000 with an empty window
	assert.Equal(t, "", ti.HashTimestamps())
	assert.Equal(t, 0, ti.Instance.windowPosition())

	ti.Instance.RecordRequest()
	ti.AssertWindowStatus(t, 1, "1000000")

	ti.TimeTravel(500) // goto 1000500
	ti.Instance.RecordRequest()
	ti.AssertWindowStatus(t, 2, "1000500", "1000000")

	ti.TimeTravel(500) // goto 1001000
	ti.Instance.RecordRequest()
	ti.AssertWindowStatus(t, 3, "1001000", "1000500", "1000000")

	assert.Equal(t, 3, ti.Instance.windowPosition())
}

func TestRecordRequestIntoEmptyWindowRestartsPacing(t *testing.T) {
	ti := buildDefaultInstance(t)

	assert.Equal(t, uint64(1000000), ti.Instance.WindowStartTime)

	ti.TimeTravel(3000) // goto 1003000
	ti.Instance.RecordRequest()

	// first request of an empty window: pacing restarts from it
	assert.Equal(t, uint64(1003000), ti.Instance.WindowStartTime)

	ti.TimeTravel(1000) // goto 1004000
	ti.Instance.RecordRequest()

	// the window was not empty anymore: no restart
	assert.Equal(t, uint64(1003000), ti.Instance.WindowStartTime)
	ti.AssertWindowStatus(t, 2, "1004000", "1003000")
}

func TestPruneStaleRequests(t *testing.T) {
	ti := buildDefaultInstance(t)

	// window size is 10000 ms
	ti.Instance.RecordRequest()
	ti.TimeTravel(500) // goto 1000500
	ti.Instance.RecordRequest()
	ti.TimeTravel(4500) // goto 1005000
	ti.Instance.RecordRequest()
	ti.AssertWindowStatus(t, 3, "1005000", "1000500", "1000000")

	// nothing is stale yet
	ti.TimeTravel(4999) // goto 1009999
	ti.Instance.pruneStaleRequests(ti.CurrentTime)
	ti.AssertWindowStatus(t, 3, "1005000", "1000500", "1000000")

	// a timestamp sitting exactly on the lower bound is still in
	ti.TimeTravel(1) // goto 1010000, lower bound is 1000000
	ti.Instance.pruneStaleRequests(ti.CurrentTime)
	ti.AssertWindowStatus(t, 3, "1005000", "1000500", "1000000")

	// one more millisecond pushes the oldest timestamp out
	ti.TimeTravel(1) // goto 1010001, lower bound is 1000001
	ti.Instance.pruneStaleRequests(ti.CurrentTime)
	ti.AssertWindowStatus(t, 3, "1005000", "1000500")

	ti.TimeTravel(500) // goto 1010501, lower bound is 1000501
	ti.Instance.pruneStaleRequests(ti.CurrentTime)
	ti.AssertWindowStatus(t, 3, "1005000")

	// pruning twice in a row changes nothing
	ti.Instance.pruneStaleRequests(ti.CurrentTime)
	ti.AssertWindowStatus(t, 3, "1005000")

	// far enough in the future the window empties completely,
	// but the total count is left untouched
	ti.TimeTravel(100000)
	ti.Instance.pruneStaleRequests(ti.CurrentTime)
	ti.AssertWindowStatus(t, 3, "")
	assert.Equal(t, 0, ti.Instance.windowPosition())
	assert.Equal(t, uint64(3), ti.Instance.TotalRequests)
}

func TestPruneNearEpochDoesNotUnderflow(t *testing.T) {
	ti := buildDefaultInstance(t)

	// with now lower than the window width there is no lower bound yet
	ti.Instance.pruneStaleRequests(500)
	ti.AssertWindowStatus(t, 0, "")

	ti.Instance.RecordRequest()
	ti.Instance.pruneStaleRequests(500)
	ti.AssertWindowStatus(t, 1, "1000000")
}

func TestWindowPositionAfterPruning(t *testing.T) {
	ti := buildDefaultInstance(t)

	recordRequests(ti, 5)
	assert.Equal(t, 5, ti.Instance.windowPosition())

	ti.TimeTravel(5000) // goto 1005000
	recordRequests(ti, 3)
	assert.Equal(t, 8, ti.Instance.windowPosition())

	// the first batch expires at 1010001
	ti.TimeTravel(5001)
	ti.Instance.pruneStaleRequests(ti.CurrentTime)
	assert.Equal(t, 3, ti.Instance.windowPosition())

	ti.AssertWindowStatus(t, 8, "1005000", "1005000", "1005000")
}

func TestStats(t *testing.T) {
	ti := buildDefaultInstance(t)

	stats := ti.Instance.Stats()
	assert.Equal(t, 0, stats.RequestsInWindow)
	assert.Equal(t, uint64(0), stats.TotalRequests)
	assert.Equal(t, int64(1000000), stats.WindowStart.UnixMilli())

	recordRequests(ti, 4)
	ti.TimeTravel(2000)
	ti.Instance.RecordRequest()

	stats = ti.Instance.Stats()
	assert.Equal(t, 5, stats.RequestsInWindow)
	assert.Equal(t, uint64(5), stats.TotalRequests)
	assert.Equal(t, int64(1000000), stats.WindowStart.UnixMilli())

	// expired timestamps leave the window, the total survives
	ti.TimeTravel(100000)
	ti.Instance.NextWait()

	stats = ti.Instance.Stats()
	assert.Equal(t, 0, stats.RequestsInWindow)
	assert.Equal(t, uint64(5), stats.TotalRequests)
}
