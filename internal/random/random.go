// Package random provides the seedable random source shared by model
// selection and budget sampling.
package random

import (
	"math/rand"
	"time"
)

// New returns a random source seeded with seed, or with the current time
// when seed is 0.
func New(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// WeightedIndex draws an index with probability proportional to its weight.
// Negative weights count as zero. It returns -1 when no weight is positive.
func WeightedIndex(r *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}

	x := r.Float64() * total
	acc := 0.0
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if x < acc {
			return i
		}
	}
	return last
}
