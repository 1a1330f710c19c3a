package gort

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	defaultTestMaxRequests = 10
	defaultTestWindow      = time.Duration(10) * time.Second
)

type genericTestableInstance interface {
	ThrottlerInstance() RequestThrottler
	TimeTravel(diff int64)
	TimeSet(to uint64)
	AssertCurrentTime(t *testing.T, expected uint64)
}

// testableInstanceBase is the virtual runtime shared by the standalone
// and composite harnesses: a controllable clock, a fixed jitter draw
// and the captured events. Its hook methods are handed to the
// throttler under test as TimeFunc/SleepFunc/JitterFunc/OnEvent.
type testableInstanceBase struct {
	CurrentTime uint64
	Jitter      float64
	Events      []ThrottleEvent
}

func (b *testableInstanceBase) TimeSet(to uint64) {
	b.CurrentTime = to
}
func (b *testableInstanceBase) TimeTravel(diff int64) {
	b.CurrentTime = uint64(int64(b.CurrentTime) + diff)
}
func (b *testableInstanceBase) AssertCurrentTime(t *testing.T, expected uint64) {
	assert.Equal(t, uint64(expected), b.CurrentTime, "the current time is expected to be %v and is instead %v", expected, b.CurrentTime)
}
func (b *testableInstanceBase) EventsOfKind(kind ThrottleEventKind) []ThrottleEvent {
	out := make([]ThrottleEvent, 0, len(b.Events))
	for _, e := range b.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (b *testableInstanceBase) now() time.Time {
	return time.Unix(
		int64(b.CurrentTime)/int64(1000),
		(int64(b.CurrentTime)%int64(1000))*int64(1000000),
	)
}

func (b *testableInstanceBase) sleep(d time.Duration) {
	newTime := b.CurrentTime + uint64(d.Milliseconds())
	fmt.Printf("testable instance is waiting from %v to %v\n", b.CurrentTime, newTime)
	b.CurrentTime = newTime
}

func (b *testableInstanceBase) drawJitter() float64 {
	return b.Jitter
}

func (b *testableInstanceBase) captureEvent(e ThrottleEvent) {
	b.Events = append(b.Events, e)
}

type testableInstance struct {
	testableInstanceBase
	Instance *requestThrottlerDefaultImpl
}

type compositeTestableInstance struct {
	testableInstanceBase
	Instance *compositeRequestThrottlerDefaultImpl
}

type testLogger struct {
	Messages []string
}

func (l *testLogger) Debug(text string) {
	l.Messages = append(l.Messages, fmt.Sprintf("[d] %v", text))
}
func (l *testLogger) Info(text string) {
	l.Messages = append(l.Messages, fmt.Sprintf("[i] %v", text))
}
func (l *testLogger) Warning(text string) {
	l.Messages = append(l.Messages, fmt.Sprintf("[w] %v", text))
}
func (l *testLogger) Error(text string) {
	l.Messages = append(l.Messages, fmt.Sprintf("[e] %v", text))
}

func (ti *testableInstance) ThrottlerInstance() RequestThrottler {
	return ti.Instance
}
func (ti *testableInstance) HashTimestamps() string {
	out := ""
	for i := 0; i < ti.Instance.Timestamps.Len(); i++ {

		el := ti.Instance.Timestamps.At(i).(uint64)
		out = out + fmt.Sprintf("%v, ", el)
	}
	if len(out) > 0 {
		out = strings.TrimRight(out, ", ")
	}
	return out
}
func (ti *testableInstance) AssertWindowStatus(t *testing.T, total interface{}, timestampsHash ...string) {
	totalConv := toUint64(total)
	assert.Equal(t, totalConv, ti.Instance.TotalRequests)
	assert.Equal(t, strings.Join(timestampsHash, ", "), ti.HashTimestamps())
}

func buildInstance(t *testing.T, configurer func(config *Config)) *testableInstance {
	ti := testableInstance{
		testableInstanceBase: testableInstanceBase{
			CurrentTime: 1000000,
		},
	}

	config := Config{
		MaxRequestsInWindow: defaultTestMaxRequests,
		Window:              defaultTestWindow,
		TimeFunc:            ti.now,
		SleepFunc:           ti.sleep,
		JitterFunc:          ti.drawJitter,
		OnEvent:             ti.captureEvent,
	}

	if configurer != nil {
		configurer(&config)
	}

	instance, err := New(&config)

	if t != nil {
		assert.NotNil(t, instance)
		assert.Nil(t, err)
	}

	ti.Instance = instance.(*requestThrottlerDefaultImpl)

	return &ti
}

func buildDefaultInstance(t *testing.T) *testableInstance {
	return buildInstance(t, nil)
}

// recordRequests records the given number of requests at the instance
// current time, as if they had just gone through.
func recordRequests(ti *testableInstance, num int) {
	for i := 0; i < num; i++ {
		ti.Instance.RecordRequest()
	}
}

// applyConstantRequestRate drives a steady request rate through the
// throttler, one request every interval milliseconds, and returns the
// total amount of time the throttler forced the caller to wait.
func applyConstantRequestRate(ti genericTestableInstance, count int, interval int64) time.Duration {
	total := time.Duration(0)
	for i := 0; i < count; i++ {
		total += ti.ThrottlerInstance().Throttle()
		ti.ThrottlerInstance().RecordRequest()
		ti.TimeTravel(interval)
	}
	return total
}

func toUint64(any interface{}) uint64 {
	switch v := any.(type) {
	case uint64:
		return v
	case int:
		return uint64(v)
	default:
		panic("invalid type could not be converted to uint64")
	}
}

func (ti *compositeTestableInstance) ThrottlerInstance() RequestThrottler {
	return ti.Instance
}
func (ti *compositeTestableInstance) HashTimestamps() string {
	out := ""
	for throttlerIndex := 0; throttlerIndex < len(ti.Instance.Throttlers); throttlerIndex++ {
		instance := ti.Instance.Throttlers[throttlerIndex]
		for i := 0; i < instance.Timestamps.Len(); i++ {

			el := instance.Timestamps.At(i).(uint64)
			out = out + fmt.Sprintf("%d:%v, ", throttlerIndex, el)
		}
	}

	if len(out) > 0 {
		out = strings.TrimRight(out, ", ")
	}
	return out
}
func (ti *compositeTestableInstance) AssertWindowStatus(t *testing.T, total interface{}, timestampsHash ...string) {
	num := len(ti.Instance.Throttlers)
	totalConv, isMultiple := total.([]uint64)
	if !isMultiple {
		totalConv = make([]uint64, num)
		for i := 0; i < num; i++ {
			totalConv[i] = toUint64(total)
		}
	}

	for throttlerIndex := 0; throttlerIndex < num; throttlerIndex++ {
		assert.Equal(t, totalConv[throttlerIndex], ti.Instance.Throttlers[throttlerIndex].TotalRequests)
	}
	assert.Equal(t, strings.Join(timestampsHash, ", "), ti.HashTimestamps())
}

func buildCompositeInstance(t *testing.T, configurer func(config *CompositeConfig)) *compositeTestableInstance {
	ti := compositeTestableInstance{
		testableInstanceBase: testableInstanceBase{
			CurrentTime: 1000000,
		},
	}

	config := CompositeConfig{
		Throttlers: []Config{
			{
				MaxRequestsInWindow: defaultTestMaxRequests,
				Window:              defaultTestWindow,
			},
			{
				MaxRequestsInWindow: 4,
				Window:              time.Second,
			},
		},
		TimeFunc:   ti.now,
		SleepFunc:  ti.sleep,
		JitterFunc: ti.drawJitter,
		OnEvent:    ti.captureEvent,
	}

	if configurer != nil {
		configurer(&config)
	}

	instance, err := NewComposite(&config)

	if t != nil {
		assert.NotNil(t, instance)
		assert.Nil(t, err)
	}

	ti.Instance = instance.(*compositeRequestThrottlerDefaultImpl)

	return &ti
}

func buildDefaultCompositeInstance(t *testing.T) *compositeTestableInstance {
	return buildCompositeInstance(t, nil)
}
