// Package progress implements the thread-safe processed/succeeded/failed
// counter with overall and rolling-window rate and ETA.
package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultWindow is the rolling-window span used for the instant rate.
	DefaultWindow = 30 * time.Second
	// MaxSamples bounds the sample queue.
	MaxSamples = 1000
	// maxETA caps the reported ETA.
	maxETA = 7 * 24 * time.Hour
)

type sample struct {
	at        time.Time
	processed int64
}

// Tracker is the progress counter shared across a tiered import.
type Tracker struct {
	total     int64
	succeeded int64
	failed    int64
	start     time.Time
	window    time.Duration

	mu      sync.Mutex
	samples []sample
	now     func() time.Time
}

// NewTracker returns a tracker for total records, using the default
// window.
func NewTracker(total int) *Tracker {
	return NewTrackerWithWindow(total, DefaultWindow)
}

// NewTrackerWithWindow is NewTracker with an explicit rolling window.
func NewTrackerWithWindow(total int, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{total: int64(total), start: time.Now(), window: window, now: time.Now}
}

// Record increments the succeeded/failed counters atomically and enqueues
// a rolling-window sample.
func (t *Tracker) Record(succeeded, failed int) {
	if succeeded > 0 {
		atomic.AddInt64(&t.succeeded, int64(succeeded))
	}
	if failed > 0 {
		atomic.AddInt64(&t.failed, int64(failed))
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	processed := atomic.LoadInt64(&t.succeeded) + atomic.LoadInt64(&t.failed)
	t.samples = append(t.samples, sample{at: now, processed: processed})
	t.pruneLocked(now)
}

// pruneLocked drops samples older than the window, always keeping at
// least 2 so the instant-rate calculation has two points. Must be
// called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.samples)-2 && t.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.samples = t.samples[i:]
	}
	if len(t.samples) > MaxSamples {
		t.samples = t.samples[len(t.samples)-MaxSamples:]
	}
}

// Snapshot is a point-in-time progress report.
type Snapshot struct {
	Processed   int64
	Remaining   int64
	Succeeded   int64
	Failed      int64
	Elapsed     time.Duration
	OverallRate float64 // records/second
	InstantRate float64 // records/second within the window
	ETA         time.Duration
}

// Snapshot computes the current progress report.
func (t *Tracker) Snapshot() Snapshot {
	now := t.now()
	succeeded := atomic.LoadInt64(&t.succeeded)
	failed := atomic.LoadInt64(&t.failed)
	processed := succeeded + failed
	elapsed := now.Sub(t.start)
	remaining := t.total - processed
	if remaining < 0 {
		remaining = 0
	}

	overallRate := 0.0
	if elapsed > 0 {
		overallRate = float64(processed) / elapsed.Seconds()
	}

	t.mu.Lock()
	instantRate := t.instantRateLocked(overallRate)
	t.mu.Unlock()

	eta := time.Duration(maxETA)
	if overallRate > 1e-9 {
		eta = time.Duration(float64(remaining) / overallRate * float64(time.Second))
		if eta > maxETA {
			eta = maxETA
		}
	}

	return Snapshot{
		Processed:   processed,
		Remaining:   remaining,
		Succeeded:   succeeded,
		Failed:      failed,
		Elapsed:     elapsed,
		OverallRate: overallRate,
		InstantRate: instantRate,
		ETA:         eta,
	}
}

// instantRateLocked computes records-in-window / window-seconds, falling
// back to overallRate if the window's actual span is under 0.1s.
// Must be called with mu held.
func (t *Tracker) instantRateLocked(overallRate float64) float64 {
	if len(t.samples) < 2 {
		return overallRate
	}
	first := t.samples[0]
	last := t.samples[len(t.samples)-1]
	span := last.at.Sub(first.at).Seconds()
	if span < 0.1 {
		return overallRate
	}
	delta := last.processed - first.processed
	return float64(delta) / span
}
