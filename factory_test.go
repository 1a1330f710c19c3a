package gort

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterfacesAreCorrectlyImplemented(t *testing.T) {

	isRequestThrottler := func(i RequestThrottler) {}
	isStandaloneRequestThrottler := func(i StandaloneRequestThrottler) {}
	isCompositeRequestThrottler := func(i CompositeRequestThrottler) {}

	standaloneInstance, _ := New(&Config{
		MaxRequestsInWindow: 100,
		Window:              1 * time.Minute,
	})

	compositeInstance, _ := NewComposite(&CompositeConfig{
		Throttlers: []Config{
			{
				MaxRequestsInWindow: 100,
				Window:              1 * time.Minute,
			},
		},
	})

	isStandaloneRequestThrottler(standaloneInstance)
	isRequestThrottler(standaloneInstance)

	isCompositeRequestThrottler(compositeInstance)
	isRequestThrottler(compositeInstance)

	assert.False(t, standaloneInstance.IsComposite())
	assert.True(t, compositeInstance.IsComposite())
}

func TestFactoryBuilderWithMinimalParams(t *testing.T) {
	instance, err := New(&Config{
		MaxRequestsInWindow: 1000,
		Window:              time.Duration(60) * time.Second,
	})

	assert.Nil(t, err)
	assert.NotNil(t, instance)
}

func TestValidateConfigurationAppliesDefaults(t *testing.T) {
	parsed, err := validateConfiguration(&Config{
		MaxRequestsInWindow: 10,
		Window:              time.Duration(10) * time.Second,
	}, nil)

	assert.Nil(t, err)

	assert.Equal(t, 10, parsed.MaxRequestsInWindow)
	assert.Equal(t, uint64(10000), parsed.Window)
	assert.Equal(t, 0.75, parsed.ThrottleStartFraction)
	assert.Equal(t, 0.90, parsed.FullThrottleFraction)
	assert.False(t, parsed.FixedWindowPacing)

	assert.Equal(t, 8, parsed.ThrottleTriggerCount)
	assert.Equal(t, 9, parsed.FullThrottleTriggerCount)
}

func TestThrottleThresholdRounding(t *testing.T) {
	cases := []struct {
		max         int
		start       float64
		full        float64
		softTrigger int
		fullTrigger int
	}{
		{max: 10, softTrigger: 8, fullTrigger: 9},
		{max: 7, softTrigger: 6, fullTrigger: 7},
		{max: 100, softTrigger: 75, fullTrigger: 90},
		{max: 3, softTrigger: 3, fullTrigger: 3},
		{max: 1, softTrigger: 1, fullTrigger: 1},
		{max: 10, start: 0.5, full: 1.0, softTrigger: 5, fullTrigger: 10},
		{max: 16, start: 0.5, full: 0.8, softTrigger: 8, fullTrigger: 13},
	}

	for _, c := range cases {
		c := c
		t.Run(fmt.Sprintf("max %d start %v full %v", c.max, c.start, c.full), func(t *testing.T) {
			parsed, err := validateConfiguration(&Config{
				MaxRequestsInWindow:   c.max,
				Window:                time.Duration(10) * time.Second,
				ThrottleStartFraction: c.start,
				FullThrottleFraction:  c.full,
			}, nil)

			assert.Nil(t, err)
			assert.Equal(t, c.softTrigger, parsed.ThrottleTriggerCount)
			assert.Equal(t, c.fullTrigger, parsed.FullThrottleTriggerCount)
		})
	}
}

func TestFullThrottleFractionMayReachOne(t *testing.T) {
	parsed, err := validateConfiguration(&Config{
		MaxRequestsInWindow:   10,
		Window:                time.Duration(10) * time.Second,
		ThrottleStartFraction: 0.5,
		FullThrottleFraction:  1.0,
	}, nil)

	assert.Nil(t, err)
	assert.Equal(t, 5, parsed.ThrottleTriggerCount)
	assert.Equal(t, 10, parsed.FullThrottleTriggerCount)
}

func TestValidateConfiguration(t *testing.T) {
	expectFailure(t, &Config{}, "MaxRequestsInWindow")
	expectFailure(t, &Config{
		MaxRequestsInWindow: -5,
	}, "MaxRequestsInWindow")
	expectFailure(t, &Config{
		MaxRequestsInWindow: 100,
	}, "Window")
	expectFailure(t, &Config{
		MaxRequestsInWindow: 100,
		Window:              -1 * time.Second,
	}, "Window")
	expectFailure(t, &Config{
		MaxRequestsInWindow: 100,
		Window:              500 * time.Microsecond,
	}, "Window")
	expectFailure(t, &Config{
		MaxRequestsInWindow:   100,
		Window:                time.Second,
		ThrottleStartFraction: -0.1,
	}, "ThrottleStartFraction")
	expectFailure(t, &Config{
		MaxRequestsInWindow:   100,
		Window:                time.Second,
		ThrottleStartFraction: 1.0,
	}, "ThrottleStartFraction")
	expectFailure(t, &Config{
		MaxRequestsInWindow:   100,
		Window:                time.Second,
		ThrottleStartFraction: 1.5,
	}, "ThrottleStartFraction")
	expectFailure(t, &Config{
		MaxRequestsInWindow:  100,
		Window:               time.Second,
		FullThrottleFraction: -0.2,
	}, "FullThrottleFraction")
	expectFailure(t, &Config{
		MaxRequestsInWindow:  100,
		Window:               time.Second,
		FullThrottleFraction: 1.01,
	}, "FullThrottleFraction")
	expectFailure(t, &Config{
		MaxRequestsInWindow:   100,
		Window:                time.Second,
		ThrottleStartFraction: 0.8,
		FullThrottleFraction:  0.5,
	}, "should be greater than ThrottleStartFraction")
	expectFailure(t, &Config{
		MaxRequestsInWindow:   100,
		Window:                time.Second,
		ThrottleStartFraction: 0.9,
	}, "should be greater than ThrottleStartFraction")
}

func TestFactoryBuilderAcceptsCustomLogger(t *testing.T) {

	customLoggerInstance := testLogger{
		Messages: make([]string, 0),
	}

	instance, err := New(&Config{
		MaxRequestsInWindow: 1000,
		Window:              time.Duration(60) * time.Second,
		Logger:              &customLoggerInstance,
	})

	assert.Nil(t, err)
	assert.NotNil(t, instance)

	typedInstance := instance.(*requestThrottlerDefaultImpl)
	assert.Same(t, &customLoggerInstance, typedInstance.Logger)
	assert.NotEmpty(t, customLoggerInstance.Messages)

	// expectations are low
	typedInstance.Logger.Debug("logger does not die on direct usage")
	typedInstance.Logger.Info("logger does not die on direct usage")
	typedInstance.Logger.Warning("logger does not die on direct usage")
	typedInstance.Logger.Error("logger does not die on direct usage")
}

func TestCompositeFactoryBuilderMinimalParameters(t *testing.T) {
	instance, err := NewComposite(
		&CompositeConfig{
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
		})

	assert.Nil(t, err)
	assert.NotNil(t, instance)
}

func TestCompositeFactoryBuilderAcceptsCustomLogger(t *testing.T) {

	customLoggerInstance := testLogger{
		Messages: make([]string, 0),
	}

	instance, err := NewComposite(&CompositeConfig{
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
		Logger: &customLoggerInstance,
	})

	assert.Nil(t, err)
	assert.NotNil(t, instance)

	typedInstance := instance.(*compositeRequestThrottlerDefaultImpl)
	assert.Same(t, &customLoggerInstance, typedInstance.Logger)

	// the composed throttlers inherit the parent logger
	for _, composed := range typedInstance.Throttlers {
		assert.Same(t, &customLoggerInstance, composed.Logger)
	}
}

func TestValidateCompositeConfiguration(t *testing.T) {
	expectCompositeFailure(t, &CompositeConfig{}, "at least one")
	expectCompositeFailure(t, &CompositeConfig{
		Throttlers: []Config{
			{},
		},
	}, "at index 0")
	expectCompositeFailure(t, &CompositeConfig{
		Throttlers: []Config{
			{
				MaxRequestsInWindow: defaultTestMaxRequests,
				Window:              defaultTestWindow,
			},
			{
				MaxRequestsInWindow: defaultTestMaxRequests,
			},
		},
	}, "at index 1")
}

func TestCompositeFactoryRejectsTimeFuncsOnComposedThrottlers(t *testing.T) {
	expectCompositeFailure(t, &CompositeConfig{
		Throttlers: []Config{
			{
				MaxRequestsInWindow: defaultTestMaxRequests,
				Window:              defaultTestWindow,
				TimeFunc:            time.Now,
			},
		},
	}, "TimeFunc")

	expectCompositeFailure(t, &CompositeConfig{
		Throttlers: []Config{
			{
				MaxRequestsInWindow: defaultTestMaxRequests,
				Window:              defaultTestWindow,
				SleepFunc:           time.Sleep,
			},
		},
	}, "SleepFunc")

	expectCompositeFailure(t, &CompositeConfig{
		Throttlers: []Config{
			{
				MaxRequestsInWindow: defaultTestMaxRequests,
				Window:              defaultTestWindow,
				JitterFunc:          func() float64 { return 0 },
			},
		},
	}, "JitterFunc")
}

func TestReconfigureRecomputesThresholds(t *testing.T) {
	ti := buildDefaultInstance(t)

	recordRequests(ti, 3)

	err := ti.Instance.Reconfigure(20, 2*time.Second)
	assert.Nil(t, err)

	assert.Equal(t, 20, ti.Instance.Config.MaxRequestsInWindow)
	assert.Equal(t, uint64(2000), ti.Instance.Config.Window)
	assert.Equal(t, 15, ti.Instance.Config.ThrottleTriggerCount)
	assert.Equal(t, 18, ti.Instance.Config.FullThrottleTriggerCount)

	// the tracked state survives the reconfiguration
	ti.AssertWindowStatus(t, 3, "1000000", "1000000", "1000000")
}

func TestReconfigureValidatesArguments(t *testing.T) {
	ti := buildDefaultInstance(t)

	err := ti.Instance.Reconfigure(0, time.Second)
	assert.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.Contains(t, err.Error(), "MaxRequestsInWindow")

	err = ti.Instance.Reconfigure(10, 0)
	assert.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.Contains(t, err.Error(), "Window")

	// failed reconfigurations leave the configuration untouched
	assert.Equal(t, defaultTestMaxRequests, ti.Instance.Config.MaxRequestsInWindow)
	assert.Equal(t, uint64(10000), ti.Instance.Config.Window)
}

func TestReconfigureChangesThrottlingBehavior(t *testing.T) {
	ti := buildDefaultInstance(t)

	// at position 8 out of 10 the slowdown applies
	recordRequests(ti, 8)
	assert.Greater(t, int64(ti.Instance.NextWait()), int64(0))

	// after raising the budget the same position is far from the limit
	err := ti.Instance.Reconfigure(100, 10*time.Second)
	assert.Nil(t, err)

	assert.Equal(t, time.Duration(0), ti.Instance.NextWait())
}

func expectFailure(t *testing.T, config *Config, message string) {
	instance, err := New(config)

	assert.Nil(t, instance)
	assert.NotNil(t, err)

	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.Contains(t, err.Error(), message)
}

func expectCompositeFailure(t *testing.T, config *CompositeConfig, message string) {
	instance, err := NewComposite(config)

	assert.Nil(t, instance)
	assert.NotNil(t, err)

	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.Contains(t, err.Error(), message)
}
