// Package throttle records per-connection "do not use before <T>"
// deadlines derived from server throttle signals.
package throttle

import (
	"sync"
	"time"
)

// defaultRetryAfter is used when a throttle signal carries no explicit
// interval.
const defaultRetryAfter = 30 * time.Second

// Tracker is a many-writer, many-reader map keyed by connection name, with
// per-key monotonic writes.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]time.Time), now: time.Now}
}

// IsThrottled reports whether name is still inside its notBefore window.
func (t *Tracker) IsThrottled(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	notBefore, ok := t.entries[name]
	if !ok {
		return false
	}
	return t.now().Before(notBefore)
}

// Record sets notBefore = max(current, now + retryAfter). If retryAfter is
// zero, the 30s fallback applies. Record never moves an existing
// notBefore earlier; only Clear removes an entry before it expires, and
// IsThrottled's comparison against "now" lets an expired entry stop
// mattering.
func (t *Tracker) Record(name string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	candidate := t.now().Add(retryAfter)

	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.entries[name]; !ok || candidate.After(current) {
		t.entries[name] = candidate
	}
}

// Clear removes any throttle entry for name, used when a response carries
// no throttle signal.
func (t *Tracker) Clear(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, name)
}

// NotBefore returns the recorded deadline for name, if any.
func (t *Tracker) NotBefore(name string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nb, ok := t.entries[name]
	return nb, ok
}

// ForEachLive snapshots entries and invokes callback for each, outside the
// lock.
func (t *Tracker) ForEachLive(callback func(name string, notBefore time.Time)) {
	t.mu.RLock()
	snapshot := make(map[string]time.Time, len(t.entries))
	for k, v := range t.entries {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	for name, nb := range snapshot {
		callback(name, nb)
	}
}
