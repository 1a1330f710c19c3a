// A client-side, sliding-window request throttler that slows callers down gradually before a rate limit is hit.
//
// Features:
//
// - Sliding window tracking of outgoing requests with automatic pruning
//
// - Graduated slowdown between configurable thresholds, with leaky-bucket or fixed-window pacing
//
// - Proportional backoff when the window is saturated, based on the time left in the window
//
// - Automatic retry of transient failures with exponential backoff and jitter
//
// - Retry delays dictated by the server (Retry-After) are honored exactly
//
// - Window position can be overridden from the quota headers returned by the server
//
// - Composable throttlers to respect multiple rate limit budgets at once
//
// - Throttled HTTP client with per-attempt request decoration and response observers
//
// - Structured event hook and pluggable logging for observability
//
// - Thread safe
//
package gort
