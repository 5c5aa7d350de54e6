package engine

import (
	"fmt"
	"math/rand"
)

// Generate produces a Pattern from params using patternType's strategy and
// rng for any randomness. rng must not be nil; callers seed it once at
// session start and the engine reseeds nothing between cycles -- repeated
// calls against the same *rand.Rand keep advancing it, which is what
// produces fresh jitter and fresh rndp permutations each cycle.
func Generate(patternType PatternType, params GeneratorParams, rng *rand.Rand) (Pattern, error) {
	n := params.NumFingers
	if n <= 0 {
		return Pattern{}, fmt.Errorf("%w: num_fingers must be positive, got %d", ErrPatternInvariantViolation, n)
	}

	var left, right []int
	switch patternType {
	case Rndp:
		left = shuffled(n, rng)
		if params.MirrorPattern {
			right = append([]int(nil), left...)
		} else {
			right = shuffled(n, rng)
		}
	case Sequential:
		left = sequence(n)
		if params.Reverse {
			reverseInts(left)
		}
		if params.MirrorPattern {
			right = append([]int(nil), left...)
		} else {
			right = append([]int(nil), left...)
			reverseInts(right)
		}
	case Mirrored:
		if params.Randomize {
			left = shuffled(n, rng)
		} else {
			left = sequence(n)
		}
		right = append([]int(nil), left...)
	default:
		return Pattern{}, fmt.Errorf("engine: unknown pattern type %v", patternType)
	}

	timing := generateTiming(n, params, rng)
	return NewPattern(left, right, timing, params.TimeOnMs)
}

// sequence returns [0, n).
func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// shuffled returns a Fisher-Yates shuffle of [0, n).
func shuffled(n int, rng *rand.Rand) []int {
	out := sequence(n)
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// generateTiming applies +/- jitter_percent uniformly per element around
// the base inter-burst interval. With jitter_percent == 0 every entry
// equals the base interval exactly.
func generateTiming(n int, params GeneratorParams, rng *rand.Rand) []float64 {
	base := params.InterBurstIntervalMs()
	out := make([]float64, n)
	if params.JitterPercent == 0 {
		for i := range out {
			out[i] = base
		}
		return out
	}

	j := params.JitterPercent / 100
	for i := range out {
		// uniform(-j, +j)
		delta := j * (2*rng.Float64() - 1)
		out[i] = base * (1 + delta)
	}
	return out
}
