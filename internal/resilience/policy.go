// Package resilience implements the client-side failure-handling core:
// retry decision logic, exponential backoff with jitter, per-endpoint
// circuit breakers, and shared retry-state tracking.
package resilience

import (
	"errors"
	"math/rand/v2"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// RetryConfig controls the retry loop of a single call site. Construct once
// and treat as immutable.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
}

// DefaultRetryConfig returns the standard retry settings: 3 retries,
// 1s base delay, 30s cap, jitter on.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Jitter:     true,
	}
}

// RetryHinter is implemented by errors that carry an explicit server-provided
// retryable flag. When ok is true the flag overrides status-code policy.
type RetryHinter interface {
	RetryHint() (retryable, ok bool)
}

// RetryAfterHinter is implemented by errors that carry an explicit
// server-provided wait time in seconds.
type RetryAfterHinter interface {
	RetryAfterHint() (seconds float64, ok bool)
}

// RateLimit is the throttling signal extracted from a Retry-After response
// header. The value is always in seconds on the wire; conversion to a
// duration happens once, in RetryDelay.
type RateLimit struct {
	RetryAfterSeconds float64
}

// ShouldRetry reports whether a failed call should be retried. An explicit
// retryable flag on the error is authoritative regardless of status code.
// Otherwise: 429 and 502/503/504 retry, any other 4xx does not, any 5xx
// retries, and a transport-level failure (status 0) retries. Unknown codes
// do not retry. Pure and total for all integer inputs.
func ShouldRetry(err error, statusCode int) bool {
	var hinter RetryHinter
	if errors.As(err, &hinter) {
		if retryable, ok := hinter.RetryHint(); ok {
			return retryable
		}
	}

	switch {
	case statusCode == 0:
		return true
	case statusCode == 429:
		return true
	case statusCode >= 400 && statusCode < 500:
		return false
	case statusCode >= 500 && statusCode < 600:
		return true
	default:
		return false
	}
}

// BackoffDelay computes the exponential backoff delay for the given retry
// attempt (0-indexed: the first retry is attempt 0). The pre-jitter value is
// min(base*2^attempt, max) and is monotonically non-decreasing in attempt.
// With jitter a uniformly random amount in [0, 0.25*delay) is added, so the
// result never exceeds 1.25x the cap.
func BackoffDelay(attempt int, base, max time.Duration, jitter bool) time.Duration {
	if base <= 0 {
		base = defaultBaseDelay
	}
	if max < base {
		max = base
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := max
	// Guard the shift: beyond 62 doublings the cap always wins.
	if attempt < 62 {
		d := base << uint(attempt)
		if d > 0 && d < max {
			delay = d
		}
	}

	if jitter {
		delay += time.Duration(rand.Float64() * 0.25 * float64(delay))
	}
	return delay
}

// RetryDelay selects the wait before the next retry attempt. Server-specified
// wait times always override client-computed backoff: a rate-limit header
// hint wins, then an explicit wait time carried by the error, then
// exponential backoff per cfg.
func RetryDelay(err error, rateLimit *RateLimit, attempt int, cfg RetryConfig) time.Duration {
	if rateLimit != nil && rateLimit.RetryAfterSeconds > 0 {
		return time.Duration(rateLimit.RetryAfterSeconds * float64(time.Second))
	}

	var hinter RetryAfterHinter
	if errors.As(err, &hinter) {
		if seconds, ok := hinter.RetryAfterHint(); ok && seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
	}

	return BackoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter)
}
