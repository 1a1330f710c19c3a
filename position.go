package gort

import (
	"net/http"
	"strconv"
	"sync"
)

// PositionProvider supplies an authoritative window position
// to a throttler.
//
// Implementations report, through the second return value, whether
// they currently hold a position: when they do, the reported value
// replaces the locally tracked request count for a single
// throttling decision.
type PositionProvider interface {
	RequestPosition() (int, bool)
}

const (
	defaultLimitHeader     = "X-RateLimit-Limit"
	defaultRemainingHeader = "X-RateLimit-Remaining"
)

// RateLimitHeaderProvider extracts the quota advertised by a remote
// server through its rate limit headers and feeds it back to a
// throttler as a window position.
//
// Wire it to a Client as a ResponseObserver and to a throttler as
// its PositionProvider to close the loop.
//
// Each observed response arms exactly one position override:
// once consumed by a throttling decision the provider stays silent
// until the next response carrying both headers is observed,
// so a stale header can never pin the position.
//
// The zero value is not usable, build it with NewRateLimitHeaderProvider.
type RateLimitHeaderProvider struct {
	limitHeader     string
	remainingHeader string

	lock     sync.Mutex
	armed    bool
	position int
}

// NewRateLimitHeaderProvider builds a RateLimitHeaderProvider reading
// the given limit and remaining header names.
//
// Pass empty strings to use the common X-RateLimit-Limit and
// X-RateLimit-Remaining names.
func NewRateLimitHeaderProvider(limitHeader string, remainingHeader string) *RateLimitHeaderProvider {
	if limitHeader == "" {
		limitHeader = defaultLimitHeader
	}
	if remainingHeader == "" {
		remainingHeader = defaultRemainingHeader
	}
	return &RateLimitHeaderProvider{
		limitHeader:     limitHeader,
		remainingHeader: remainingHeader,
	}
}

// Observe inspects a response for quota headers.
//
// Responses missing either header, or carrying unparsable values,
// are ignored and leave the current state untouched.
func (p *RateLimitHeaderProvider) Observe(res *http.Response) {
	if res == nil {
		return
	}

	limitRaw := res.Header.Get(p.limitHeader)
	remainingRaw := res.Header.Get(p.remainingHeader)
	if limitRaw == "" || remainingRaw == "" {
		return
	}

	limit, err := strconv.Atoi(limitRaw)
	if err != nil {
		return
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return
	}

	position := limit - remaining
	if position < 0 {
		position = 0
	}

	p.lock.Lock()
	p.armed = true
	p.position = position
	p.lock.Unlock()
}

// RequestPosition consumes the armed position override, if any.
func (p *RateLimitHeaderProvider) RequestPosition() (int, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.armed {
		return 0, false
	}

	p.armed = false
	return p.position, true
}
