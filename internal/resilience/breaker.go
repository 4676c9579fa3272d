package resilience

import (
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTime     = 30 * time.Second
	maxRecoveryTime         = 5 * time.Minute
)

// BreakerStatus is the externally visible state of a circuit breaker.
type BreakerStatus struct {
	IsOpen       bool
	RecoveryTime time.Duration
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker tracks consecutive failures for one logical endpoint and gates new
// attempts. It opens after a threshold of consecutive failures, stays open
// for a recovery window, then allows exactly one trial request (half-open).
// A trial success closes the breaker; a trial failure reopens it with a
// doubled recovery window, capped at five minutes.
//
// Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	baseRecovery     time.Duration

	state        breakerState
	failures     int
	recovery     time.Duration
	openedAt     time.Time
	trialPending bool

	now func() time.Time
}

// NewBreaker creates a closed breaker. failureThreshold <= 0 defaults to 5
// consecutive failures; recoveryTime <= 0 defaults to 30s.
func NewBreaker(failureThreshold int, recoveryTime time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if recoveryTime <= 0 {
		recoveryTime = defaultRecoveryTime
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		baseRecovery:     recoveryTime,
		recovery:         recoveryTime,
		now:              time.Now,
	}
}

// Allow reports whether a request may proceed. While open it returns false
// until the recovery window elapses, then admits a single trial request.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.recovery {
			return false
		}
		b.state = stateHalfOpen
		b.trialPending = true
		return true
	case stateHalfOpen:
		// One trial at a time.
		if b.trialPending {
			return false
		}
		b.trialPending = true
		return true
	}
	return false
}

// RecordSuccess records a successful call. In half-open state it closes the
// breaker and resets the failure count and recovery window.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialPending = false
	if b.state != stateClosed {
		b.state = stateClosed
		b.recovery = b.baseRecovery
	}
}

// RecordFailure records a failed call. In closed state it opens the breaker
// once the consecutive-failure threshold is reached; a failed half-open
// trial reopens immediately with a doubled recovery window.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = stateOpen
			b.openedAt = b.now()
		}
	case stateHalfOpen:
		b.state = stateOpen
		b.openedAt = b.now()
		b.recovery = min(b.recovery*2, maxRecoveryTime)
		b.trialPending = false
	case stateOpen:
		// Rejected callers may still report failures; ignore.
	}
}

// Status returns the current open flag and recovery window.
func (b *Breaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		IsOpen:       b.state == stateOpen,
		RecoveryTime: b.recovery,
	}
}

// Reset forces the breaker back to closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failures = 0
	b.recovery = b.baseRecovery
	b.trialPending = false
}

// BreakerSet keys breakers by logical endpoint so independent endpoints fail
// independently. Safe for concurrent use.
type BreakerSet struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTime     time.Duration
	breakers         map[string]*Breaker
}

// NewBreakerSet creates an empty set; new breakers inherit the given
// threshold and recovery window (zero values select the defaults).
func NewBreakerSet(failureThreshold int, recoveryTime time.Duration) *BreakerSet {
	return &BreakerSet{
		failureThreshold: failureThreshold,
		recoveryTime:     recoveryTime,
		breakers:         make(map[string]*Breaker),
	}
}

// Get returns the breaker for the given endpoint key, creating it closed on
// first use.
func (s *BreakerSet) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = NewBreaker(s.failureThreshold, s.recoveryTime)
		s.breakers[key] = b
	}
	return b
}

// Status returns the status of the breaker for key without creating one.
func (s *BreakerSet) Status(key string) BreakerStatus {
	s.mu.Lock()
	b, ok := s.breakers[key]
	s.mu.Unlock()
	if !ok {
		return BreakerStatus{}
	}
	return b.Status()
}
