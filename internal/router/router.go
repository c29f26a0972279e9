// Package router picks the model that generates the next seed.
package router

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/random"
)

// defaultWeight is used by the weighted strategy for models without a ceiling
const defaultWeight = 4096

// Selector chooses a model per call under a fixed rotation strategy.
// It is not safe for concurrent use; the scheduler owns it for the run.
type Selector struct {
	pool     []domain.ModelProfile
	strategy domain.Strategy
	rng      *rand.Rand

	// calls drives round_robin and is shared by every role
	calls int
	usage map[string]int
}

// NewSelector creates a selector over a non-empty pool
func NewSelector(pool []domain.ModelProfile, strategy domain.Strategy, rng *rand.Rand) (*Selector, error) {
	if len(pool) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyModelPool, "model pool is empty")
	}
	if _, err := domain.ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = random.New(0)
	}

	models := make([]domain.ModelProfile, len(pool))
	copy(models, pool)

	return &Selector{
		pool:     models,
		strategy: strategy,
		rng:      rng,
		usage:    make(map[string]int),
	}, nil
}

// Pick returns a model that serves role. When no model in the pool has the
// role, the whole pool is eligible.
func (s *Selector) Pick(role domain.Role) domain.ModelProfile {
	candidates := s.candidates(role)

	var chosen domain.ModelProfile
	switch s.strategy {
	case domain.StrategyRoundRobin:
		chosen = candidates[s.calls%len(candidates)]
		s.calls++
	case domain.StrategyWeighted:
		weights := make([]float64, len(candidates))
		for i, m := range candidates {
			weights[i] = float64(weightOf(m))
		}
		idx := random.WeightedIndex(s.rng, weights)
		if idx < 0 {
			idx = s.rng.Intn(len(candidates))
		}
		chosen = candidates[idx]
	case domain.StrategyFixed:
		chosen = candidates[0]
	default:
		chosen = candidates[s.rng.Intn(len(candidates))]
	}

	s.usage[chosen.ID]++
	return chosen
}

// candidates filters the pool by role, falling back to the whole pool
func (s *Selector) candidates(role domain.Role) []domain.ModelProfile {
	var filtered []domain.ModelProfile
	for _, m := range s.pool {
		if m.HasRole(role) {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		return s.pool
	}
	return filtered
}

func weightOf(m domain.ModelProfile) int {
	if m.MaxCoT > 0 {
		return m.MaxCoT
	}
	return defaultWeight
}

// Strategy returns the rotation strategy
func (s *Selector) Strategy() domain.Strategy {
	return s.strategy
}

// Pool returns a copy of the eligible models
func (s *Selector) Pool() []domain.ModelProfile {
	out := make([]domain.ModelProfile, len(s.pool))
	copy(out, s.pool)
	return out
}

// Describe returns a one-line summary for the generation plan
func (s *Selector) Describe() string {
	return fmt.Sprintf("%s over %d models: [%s]",
		s.strategy, len(s.pool), strings.Join(domain.ModelIDs(s.pool), ", "))
}

// Usage is how often a model was picked
type Usage struct {
	Model string
	Picks int
}

// UsageStats returns pick counts, most used first, ties by model id
func (s *Selector) UsageStats() []Usage {
	stats := make([]Usage, 0, len(s.usage))
	for id, n := range s.usage {
		stats = append(stats, Usage{Model: id, Picks: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Picks != stats[j].Picks {
			return stats[i].Picks > stats[j].Picks
		}
		return stats[i].Model < stats[j].Model
	})
	return stats
}
