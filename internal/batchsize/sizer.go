// Package batchsize implements the optional per-entity adaptive batch
// sizer. It is not wired into internal/bulk by default (see DESIGN.md)
// callers that want adaptive sizing call Sizer.Current before building
// a batch and Sizer.Observe after it completes.
package batchsize

// Sizer maintains a current batch size within [Min, Max] targeting a fixed
// wall-clock duration per batch.
type Sizer struct {
	Min, Max      int
	TargetSeconds float64

	current int
}

// NewSizer returns a sizer starting at the midpoint of [min, max].
func NewSizer(min, max int, targetSeconds float64) *Sizer {
	start := (min + max) / 2
	if start < min {
		start = min
	}
	return &Sizer{Min: min, Max: max, TargetSeconds: targetSeconds, current: start}
}

// Current returns the batch size to use for the next batch.
func (s *Sizer) Current() int { return s.current }

// Observe updates the current size from the just-completed batch's size
// and elapsed wall-clock time. Zero-elapsed or zero-batch inputs
// are no-ops.
func (s *Sizer) Observe(batchSize int, elapsedSeconds float64) {
	if batchSize <= 0 || elapsedSeconds <= 0 {
		return
	}
	recordsPerSecond := float64(batchSize) / elapsedSeconds
	target := recordsPerSecond * s.TargetSeconds
	next := (float64(s.current) + target) / 2
	s.current = clamp(int(next), s.Min, s.Max)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
