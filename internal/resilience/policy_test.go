package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// hintedError is a test double carrying explicit server-provided hints.
type hintedError struct {
	retryable     *bool
	retryAfter    float64
	hasRetryAfter bool
}

func (e *hintedError) Error() string { return "hinted error" }

func (e *hintedError) RetryHint() (bool, bool) {
	if e.retryable == nil {
		return false, false
	}
	return *e.retryable, true
}

func (e *hintedError) RetryAfterHint() (float64, bool) {
	return e.retryAfter, e.hasRetryAfter
}

func boolPtr(b bool) *bool { return &b }

func TestShouldRetry_StatusPolicy(t *testing.T) {
	plain := errors.New("request failed")

	for _, status := range []int{429, 502, 503, 504} {
		if !ShouldRetry(plain, status) {
			t.Errorf("ShouldRetry(status %d) = false, want true", status)
		}
	}

	for status := 500; status <= 599; status++ {
		if !ShouldRetry(plain, status) {
			t.Errorf("ShouldRetry(status %d) = false, want true", status)
		}
	}

	for status := 400; status <= 499; status++ {
		if status == 429 {
			continue
		}
		if ShouldRetry(plain, status) {
			t.Errorf("ShouldRetry(status %d) = true, want false", status)
		}
	}

	// Transport-level failure carries no status.
	if !ShouldRetry(plain, 0) {
		t.Error("ShouldRetry(status 0) = false, want true")
	}

	// Unexpected values never retry (and never panic).
	for _, status := range []int{-1, 100, 204, 301, 600, 700, 1<<31 - 1} {
		if ShouldRetry(plain, status) {
			t.Errorf("ShouldRetry(status %d) = true, want false", status)
		}
	}
}

func TestShouldRetry_ExplicitFlagWins(t *testing.T) {
	// A retryable=true override makes a 4xx retryable.
	if !ShouldRetry(&hintedError{retryable: boolPtr(true)}, 400) {
		t.Error("retryable=true on 400: got false, want true")
	}

	// A retryable=false override makes a 5xx non-retryable.
	if ShouldRetry(&hintedError{retryable: boolPtr(false)}, 503) {
		t.Error("retryable=false on 503: got true, want false")
	}

	// The hint survives error wrapping.
	wrapped := fmt.Errorf("sending chat: %w", &hintedError{retryable: boolPtr(false)})
	if ShouldRetry(wrapped, 500) {
		t.Error("wrapped retryable=false on 500: got true, want false")
	}

	// An unset flag falls through to status policy.
	if ShouldRetry(&hintedError{}, 404) {
		t.Error("unset flag on 404: got true, want false")
	}
	if !ShouldRetry(&hintedError{}, 500) {
		t.Error("unset flag on 500: got false, want true")
	}
}

func TestBackoffDelay_NoJitter(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for attempt := 0; attempt <= 10; attempt++ {
		got := BackoffDelay(attempt, time.Second, 30*time.Second, false)
		if got != want[attempt] {
			t.Errorf("BackoffDelay(attempt %d) = %v, want %v", attempt, got, want[attempt])
		}
	}
}

func TestBackoffDelay_Monotonic(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 40; attempt++ {
		d := BackoffDelay(attempt, 250*time.Millisecond, time.Minute, false)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	for trial := 0; trial < 1000; trial++ {
		attempt := trial % 8
		base := BackoffDelay(attempt, time.Second, 30*time.Second, false)
		got := BackoffDelay(attempt, time.Second, 30*time.Second, true)
		if got < base || got > base+base/4 {
			t.Fatalf("attempt %d: jittered delay %v outside [%v, %v]", attempt, got, base, base+base/4)
		}
	}
}

func TestRetryDelay_Priority(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	// Rate-limit hint wins over everything, regardless of attempt or config.
	errWithHint := &hintedError{retryAfter: 2, hasRetryAfter: true}
	got := RetryDelay(errWithHint, &RateLimit{RetryAfterSeconds: 7}, 5, cfg)
	if got != 7*time.Second {
		t.Errorf("rate-limit hint: delay = %v, want 7s", got)
	}

	// Absent a rate-limit hint, the error's own wait time is used.
	got = RetryDelay(errWithHint, nil, 5, cfg)
	if got != 2*time.Second {
		t.Errorf("error hint: delay = %v, want 2s", got)
	}

	// Absent both, fall through to exponential backoff.
	got = RetryDelay(errors.New("boom"), nil, 2, cfg)
	if got != 4*time.Second {
		t.Errorf("backoff fallback: delay = %v, want 4s", got)
	}

	// A zero-valued rate limit does not override.
	got = RetryDelay(errors.New("boom"), &RateLimit{}, 0, cfg)
	if got != time.Second {
		t.Errorf("zero rate limit: delay = %v, want 1s", got)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 3 || cfg.BaseDelay != time.Second || cfg.MaxDelay != 30*time.Second || !cfg.Jitter {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
