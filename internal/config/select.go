package config

import (
	"math"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// missingVRAM ranks models without a VRAM estimate last
const missingVRAM = 99

// FilterModels returns the models that fit tier and match backendFilter, in
// configuration order. Unknown tiers count as consumer_8gb; the filter "all"
// keeps every backend.
func (c *Config) FilterModels(tier domain.GPUTier, backendFilter domain.BackendKind) []domain.ModelProfile {
	var out []domain.ModelProfile
	for _, m := range c.Models {
		if !m.GPUTier.FitsWithin(tier) {
			continue
		}
		if backendFilter != domain.BackendAll && m.Backend != backendFilter {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ResolveModel finds id among every configured model
func (c *Config) ResolveModel(id string) (domain.ModelProfile, error) {
	return ResolveModel(c.Models, id)
}

// ResolveModel finds id in models
func ResolveModel(models []domain.ModelProfile, id string) (domain.ModelProfile, error) {
	for _, m := range models {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.ModelProfile{}, errors.NewUnknownModelError(id, domain.ModelIDs(models))
}

// SelectSkills returns the skills named by ids in configuration order, or
// every skill when ids is empty
func (c *Config) SelectSkills(ids []string) ([]domain.Skill, error) {
	if len(ids) == 0 {
		return c.Skills, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var out []domain.Skill
	for _, s := range c.Skills {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errors.NewNoMatchingSkillsError(ids, domain.SkillIDs(c.Skills))
	}
	return out, nil
}

// DefaultVerifier picks the eligible model with the smallest VRAM estimate.
// Ties keep configuration order.
func DefaultVerifier(eligible []domain.ModelProfile) (domain.ModelProfile, bool) {
	best, bestVRAM, found := domain.ModelProfile{}, math.Inf(1), false
	for _, m := range eligible {
		v := m.VRAMEst
		if v <= 0 {
			v = missingVRAM
		}
		if v < bestVRAM {
			best, bestVRAM, found = m, v, true
		}
	}
	return best, found
}
