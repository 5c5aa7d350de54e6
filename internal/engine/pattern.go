// Package engine implements the pattern/scheduler engine: it generates
// per-cycle finger sequences and drives burst-on/burst-off transitions
// against a monotonic clock.
package engine

import (
	"errors"
	"fmt"
)

// ErrPatternInvariantViolation is returned by NewPattern when the
// left/right/timing lengths disagree. Construction-time violations are
// fatal; there is no partial pattern to fall back to.
var ErrPatternInvariantViolation = errors.New("engine: pattern invariant violated")

// Pattern holds one cycle's worth of finger sequences and per-step timing.
type Pattern struct {
	LeftSequence    []int
	RightSequence   []int
	TimingMs        []float64
	BurstDurationMs float64
}

// NewPattern validates and constructs a Pattern. len(left) == len(right)
// == len(timing) must hold; violating it is a construction-time error.
func NewPattern(left, right []int, timingMs []float64, burstDurationMs float64) (Pattern, error) {
	if len(left) != len(right) || len(left) != len(timingMs) {
		return Pattern{}, fmt.Errorf("%w: len(left)=%d len(right)=%d len(timing)=%d",
			ErrPatternInvariantViolation, len(left), len(right), len(timingMs))
	}
	return Pattern{
		LeftSequence:    left,
		RightSequence:   right,
		TimingMs:        timingMs,
		BurstDurationMs: burstDurationMs,
	}, nil
}

// Len returns the number of steps in one cycle.
func (p Pattern) Len() int {
	return len(p.LeftSequence)
}
