// Package budget draws the per-seed generation budget (max new tokens).
package budget

import (
	"math/rand"
	"sort"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/random"
)

// DefaultFallback is the budget used when nothing better is configured
const DefaultFallback = 2048

// Histogram maps a token budget to its relative weight
type Histogram map[int]float64

// Buckets returns the token counts in ascending order
func (h Histogram) Buckets() []int {
	buckets := make([]int, 0, len(h))
	for b := range h {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	return buckets
}

// Sampler picks a token budget per seed
type Sampler struct {
	histograms map[string]Histogram
	rng        *rand.Rand
}

// NewSampler creates a sampler over histograms keyed by size class
func NewSampler(histograms map[string]Histogram, rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = random.New(0)
	}
	return &Sampler{histograms: histograms, rng: rng}
}

// Sample returns the token budget for one seed generated by profile.
//
// fixed returns fallback. long_cot returns the profile ceiling. profile draws
// a bucket from the size-class histogram and falls back when there is none;
// the draw is clamped to the ceiling.
func (s *Sampler) Sample(profile domain.ModelProfile, mode domain.CtxMode, fallback int) (int, error) {
	switch mode {
	case domain.CtxFixed:
		return fallback, nil

	case domain.CtxLongCoT:
		if profile.MaxCoT > 0 {
			return profile.MaxCoT, nil
		}
		return fallback, nil

	case domain.CtxProfile, "":
		chosen, ok := s.draw(profile.SizeClass)
		if !ok {
			return fallback, nil
		}
		return Clamp(chosen, profile), nil

	default:
		return 0, errors.NewUnknownCtxModeError(string(mode))
	}
}

func (s *Sampler) draw(sizeClass string) (int, bool) {
	if sizeClass == "" {
		sizeClass = domain.DefaultSizeClass
	}
	hist := s.histograms[sizeClass]
	if len(hist) == 0 {
		return 0, false
	}

	buckets := hist.Buckets()
	weights := make([]float64, len(buckets))
	for i, b := range buckets {
		weights[i] = hist[b]
	}

	idx := random.WeightedIndex(s.rng, weights)
	if idx < 0 {
		return 0, false
	}
	return buckets[idx], true
}

// Clamp caps tokens at the profile ceiling; a profile without a ceiling
// leaves tokens unchanged.
func Clamp(tokens int, profile domain.ModelProfile) int {
	if profile.MaxCoT > 0 && tokens > profile.MaxCoT {
		return profile.MaxCoT
	}
	return tokens
}
