package gort

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	defaultThrottleStartFraction = 0.75
	defaultFullThrottleFraction  = 0.90
)

// Config holds the basic configuration for a request throttler instance
type Config struct {

	// MaxRequestsInWindow is the absolute maximum number of requests
	// that you want to allow in the specified time window.
	MaxRequestsInWindow int

	// Window is the width of the time window.
	// It should match the window over which the remote service
	// enforces its own rate limit.
	Window time.Duration

	// ThrottleStartFraction is the fraction of MaxRequestsInWindow
	// at which the gradual slowdown begins.
	// It must be greater than 0 and lower than 1.
	//
	// When not specified, a default value of 0.75 is assumed.
	ThrottleStartFraction float64

	// FullThrottleFraction is the fraction of MaxRequestsInWindow
	// at which the throttler switches to full backoff.
	// It must be greater than ThrottleStartFraction and
	// not greater than 1.
	//
	// When not specified, a default value of 0.90 is assumed.
	FullThrottleFraction float64

	// FixedWindowPacing disables the default leaky bucket pacing:
	// instead of spreading the remaining window time over the
	// remaining request slots, every slowed-down request waits
	// for the whole remaining window time.
	FixedWindowPacing bool

	// PositionProvider optionally supplies an authoritative window
	// position, for example parsed from the quota headers returned
	// by the remote server.
	// When it reports a value, that value replaces the locally
	// tracked request count for a single throttling decision.
	PositionProvider PositionProvider

	// Time-related functions can be overriden to allow for easier testing
	// you should usually not override these.
	TimeFunc  func() time.Time
	SleepFunc func(d time.Duration)

	// JitterFunc draws the random jitter term of the retry backoff
	// and must return a value in the range [0, 1).
	// It can be overridden to make retries deterministic in tests;
	// you should usually not override it.
	JitterFunc func() float64

	// you can pass your custom logger if you'd like to
	// but it's not required
	Logger Logger

	// OnEvent, when provided, is invoked with a ThrottleEvent every
	// time the throttler decides to slow down, back off or retry.
	// The callback runs outside of the internal lock but on the
	// calling goroutine: it should return quickly.
	OnEvent func(evt ThrottleEvent)
}

type CompositeConfig struct {

	// Throttlers is a required parameter holding the configurations
	// of the single throttlers you want to compose together.
	//
	// A typical setup pairs a short burst budget with a longer
	// sustained one, ex. 10 requests per second plus 100 requests
	// per minute.
	Throttlers []Config

	// Time-related functions can be overriden to allow for easier testing
	// you should usually not override these.
	TimeFunc  func() time.Time
	SleepFunc func(d time.Duration)

	// JitterFunc draws the random jitter term of the retry backoff
	// and must return a value in the range [0, 1).
	JitterFunc func() float64

	// you can pass your custom logger if you'd like to
	// but it's not required
	Logger Logger

	// OnEvent, when provided, is invoked with a ThrottleEvent every
	// time the throttler decides to slow down, back off or retry.
	OnEvent func(evt ThrottleEvent)
}

// New returns an instance of gort.RequestThrottler
// built with the specified configuration.
//
// A non-nil error is returned in case of invalid configuration.
func New(config *Config) (StandaloneRequestThrottler, error) {
	effectiveLogger := config.Logger
	if effectiveLogger == nil {
		effectiveLogger = &defaultLogger{}
	} else {
		effectiveLogger.Info("binding provided logger to RequestThrottler")
	}

	parsedConfig, err := validateConfiguration(config, effectiveLogger)
	if err != nil {
		return nil, err
	}

	out := requestThrottlerDefaultImpl{
		Config:           parsedConfig,
		TimeFunc:         config.TimeFunc,
		SleepFunc:        config.SleepFunc,
		JitterFunc:       config.JitterFunc,
		PositionProvider: config.PositionProvider,
		OnEvent:          config.OnEvent,
		Logger:           effectiveLogger,
	}

	if out.TimeFunc == nil {
		out.TimeFunc = time.Now
	}
	if out.SleepFunc == nil {
		out.SleepFunc = time.Sleep
	}
	if out.JitterFunc == nil {
		out.JitterFunc = rand.Float64
	}

	out.Timestamps = newTimestampsQueue(parsedConfig)
	out.WindowStartTime = uint64(out.TimeFunc().UnixMilli())

	return &out, nil
}

// validateConfiguration will parse the user-provided configuration
// to the required format for runtime while also validating it.
func validateConfiguration(config *Config, logger Logger) (*throttlerEffectiveConfig, error) {
	if logger == nil {
		logger = &defaultLogger{}
	}

	out := throttlerEffectiveConfig{
		FixedWindowPacing: config.FixedWindowPacing,
	}

	if config.MaxRequestsInWindow <= 0 {
		return nil, &ConfigurationError{
			Param:  "MaxRequestsInWindow",
			Reason: fmt.Sprintf("should be greater than 0 (given: %v)", config.MaxRequestsInWindow),
		}
	}
	out.MaxRequestsInWindow = config.MaxRequestsInWindow

	windowMillis := config.Window.Milliseconds()
	if windowMillis <= 0 {
		return nil, &ConfigurationError{
			Param:  "Window",
			Reason: fmt.Sprintf("should be at least 1ms (given: %v)", config.Window),
		}
	}
	out.Window = uint64(windowMillis)

	throttleStartFraction := config.ThrottleStartFraction
	if throttleStartFraction == 0 {
		throttleStartFraction = defaultThrottleStartFraction
	}
	if throttleStartFraction < 0 || throttleStartFraction >= 1.0 {
		return nil, &ConfigurationError{
			Param:  "ThrottleStartFraction",
			Reason: fmt.Sprintf("should be greater than 0 and lower than 1.0 (given: %v)", config.ThrottleStartFraction),
		}
	}
	out.ThrottleStartFraction = throttleStartFraction

	fullThrottleFraction := config.FullThrottleFraction
	if fullThrottleFraction == 0 {
		fullThrottleFraction = defaultFullThrottleFraction
	}
	if fullThrottleFraction < 0 || fullThrottleFraction > 1.0 {
		return nil, &ConfigurationError{
			Param:  "FullThrottleFraction",
			Reason: fmt.Sprintf("should be greater than 0 and not greater than 1.0 (given: %v)", config.FullThrottleFraction),
		}
	}
	if fullThrottleFraction <= throttleStartFraction {
		return nil, &ConfigurationError{
			Param:  "FullThrottleFraction",
			Reason: fmt.Sprintf("should be greater than ThrottleStartFraction (given: %v over %v)", fullThrottleFraction, throttleStartFraction),
		}
	}
	out.FullThrottleFraction = fullThrottleFraction

	recalculateThrottleThresholds(&out)

	return &out, nil
}

// recalculateThrottleThresholds derives the two trigger counts from
// the request budget and the configured fractions, rounding up so the
// thresholds never fire later than the nominal fraction.
//
// It must run again every time one of those inputs changes:
// stale trigger counts would let the throttler overshoot the budget.
func recalculateThrottleThresholds(config *throttlerEffectiveConfig) {
	config.ThrottleTriggerCount = int(math.Ceil(float64(config.MaxRequestsInWindow) * config.ThrottleStartFraction))
	config.FullThrottleTriggerCount = int(math.Ceil(float64(config.MaxRequestsInWindow) * config.FullThrottleFraction))
}

// NewComposite returns an instance of gort.RequestThrottler
// built with the specified configuration, combining multiple
// throttling policies into a single instance.
//
// A non-nil error is returned in case of invalid configuration.
func NewComposite(config *CompositeConfig) (CompositeRequestThrottler, error) {
	effectiveLogger := config.Logger
	if effectiveLogger == nil {
		effectiveLogger = &defaultLogger{}
	} else {
		effectiveLogger.Info("binding provided logger to composite RequestThrottler")
	}

	if err := validateCompositeConfiguration(config); err != nil {
		return nil, err
	}

	out := compositeRequestThrottlerDefaultImpl{
		Logger:     effectiveLogger,
		TimeFunc:   config.TimeFunc,
		SleepFunc:  config.SleepFunc,
		JitterFunc: config.JitterFunc,
		OnEvent:    config.OnEvent,
	}

	if out.TimeFunc == nil {
		out.TimeFunc = time.Now
	}
	if out.SleepFunc == nil {
		out.SleepFunc = time.Sleep
	}
	if out.JitterFunc == nil {
		out.JitterFunc = rand.Float64
	}

	subTimeFunc := func() time.Time {
		return out.TimeFunc()
	}
	subSleepFunc := func(d time.Duration) {
		out.SleepFunc(d)
	}
	subJitterFunc := func() float64 {
		return out.JitterFunc()
	}

	throttlers := make([]*requestThrottlerDefaultImpl, len(config.Throttlers))
	for i, config := range config.Throttlers {
		if config.TimeFunc != nil {
			return nil, &ConfigurationError{
				Param:  "TimeFunc",
				Reason: "cannot be specified on a composed throttler. Please specify it on the parent throttler instead",
			}
		}
		config.TimeFunc = subTimeFunc

		if config.SleepFunc != nil {
			return nil, &ConfigurationError{
				Param:  "SleepFunc",
				Reason: "cannot be specified on a composed throttler. Please specify it on the parent throttler instead",
			}
		}
		config.SleepFunc = subSleepFunc

		if config.JitterFunc != nil {
			return nil, &ConfigurationError{
				Param:  "JitterFunc",
				Reason: "cannot be specified on a composed throttler. Please specify it on the parent throttler instead",
			}
		}
		config.JitterFunc = subJitterFunc

		if config.Logger == nil {
			config.Logger = effectiveLogger
		}
		if config.OnEvent == nil {
			config.OnEvent = out.OnEvent
		}

		throttler, err := New(&config)
		if err != nil {
			return nil, fmt.Errorf("error building throttler at index %d: %w", i, err)
		}
		throttlers[i] = throttler.(*requestThrottlerDefaultImpl)
	}

	out.Throttlers = throttlers

	return &out, nil
}

// validateCompositeConfiguration validates the composite-level
// configuration. The composed configurations are validated
// one by one while building the single throttlers.
func validateCompositeConfiguration(config *CompositeConfig) error {
	if len(config.Throttlers) < 1 {
		return &ConfigurationError{
			Param:  "Throttlers",
			Reason: "composite request throttler requires at least one component configuration",
		}
	}
	return nil
}
