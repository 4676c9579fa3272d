package resilience

import "sync"

// TrackerEntry is the retry state of one logical request, shared by every
// observer of the same key.
type TrackerEntry struct {
	RetryCount         int
	IsRetrying         bool
	MaxRetriesExceeded bool
}

// Tracker holds per-request retry state keyed by an opaque request key
// (e.g. "search:habeas corpus"). It is an explicit store with a defined
// lifecycle: create one at application start and inject it into consumers,
// so multiple UI surfaces referencing the same logical request observe
// consistent counters and tests can reset between cases.
//
// Mutations never fail; each mutation notifies subscribers with a snapshot
// of the changed entry. Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	maxRetries int
	entries    map[string]*TrackerEntry
	subs       map[int]func(key string, e TrackerEntry)
	nextSub    int
}

// NewTracker creates an empty tracker. maxRetries <= 0 defaults to 3.
func NewTracker(maxRetries int) *Tracker {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Tracker{
		maxRetries: maxRetries,
		entries:    make(map[string]*TrackerEntry),
		subs:       make(map[int]func(string, TrackerEntry)),
	}
}

// Subscribe registers a callback invoked after every mutation with the
// affected key and its new state. The returned function unsubscribes.
func (t *Tracker) Subscribe(fn func(key string, e TrackerEntry)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Get returns a snapshot of the entry for key; a zero entry if never touched.
func (t *Tracker) Get(key string) TrackerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return *e
	}
	return TrackerEntry{}
}

// Reset zeroes the counters and flags for key.
func (t *Tracker) Reset(key string) {
	t.mutate(key, func(e *TrackerEntry) {
		*e = TrackerEntry{}
	})
}

// IncrementRetry bumps the retry counter for key, setting the exceeded flag
// once the counter reaches the configured maximum.
func (t *Tracker) IncrementRetry(key string) {
	t.mutate(key, func(e *TrackerEntry) {
		e.RetryCount++
		if e.RetryCount >= t.maxRetries {
			e.MaxRetriesExceeded = true
		}
	})
}

// StartRetry marks key as having a retry in flight.
func (t *Tracker) StartRetry(key string) {
	t.mutate(key, func(e *TrackerEntry) {
		e.IsRetrying = true
	})
}

// EndRetry clears the in-flight flag for key.
func (t *Tracker) EndRetry(key string) {
	t.mutate(key, func(e *TrackerEntry) {
		e.IsRetrying = false
	})
}

// SetMaxExceeded forces the exceeded flag, used when an external retry loop
// reports exhaustion.
func (t *Tracker) SetMaxExceeded(key string) {
	t.mutate(key, func(e *TrackerEntry) {
		e.MaxRetriesExceeded = true
	})
}

// UpdateRetryCount overwrite-syncs the counter from an authoritative source.
// The caller may have already retried internally; the tracker must reflect
// the true count rather than double-count.
func (t *Tracker) UpdateRetryCount(key string, count int) {
	t.mutate(key, func(e *TrackerEntry) {
		e.RetryCount = count
		e.MaxRetriesExceeded = count >= t.maxRetries
	})
}

func (t *Tracker) mutate(key string, fn func(*TrackerEntry)) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &TrackerEntry{}
		t.entries[key] = e
	}
	fn(e)
	snapshot := *e
	subs := make([]func(string, TrackerEntry), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	// Notify outside the lock so a subscriber may call back into the tracker.
	for _, fn := range subs {
		fn(key, snapshot)
	}
}
