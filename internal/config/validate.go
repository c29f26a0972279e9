package config

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/cotsynth/internal/dataset"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// StyleSet reports whether a reasoning style exists. *prompt.Catalogue
// implements it.
type StyleSet interface {
	Has(style string) bool
}

// Validate checks the configuration. Enum errors keep their own codes; every
// other problem is a CONFIG-002 error listing all findings.
func (c *Config) Validate(styles StyleSet) error {
	g := c.Generation
	if _, err := domain.ParseStrategy(g.ModelStrategy); err != nil {
		return err
	}
	if _, err := domain.ParseCtxMode(g.CtxMode); err != nil {
		return err
	}
	if _, err := domain.ParseBackendFilter(g.BackendFilter); err != nil {
		return err
	}
	if _, err := dataset.NewWriters(g.OutputFormat, g.OutputDir); err != nil {
		return err
	}

	var problems []string
	if g.SamplesPerSeed < 1 {
		problems = append(problems, "generation.samples_per_seed must be at least 1")
	}
	if g.CheckpointEvery < 1 {
		problems = append(problems, "generation.checkpoint_every must be at least 1")
	}
	if g.MaxRetries < 1 {
		problems = append(problems, "generation.max_retries must be at least 1")
	}
	if g.FallbackMaxNewTokens < 1 {
		problems = append(problems, "generation.fallback_max_new_tokens must be positive")
	}
	if g.RetryDelay < 0 {
		problems = append(problems, "generation.retry_delay must not be negative")
	}
	if g.Temperature < 0 || g.TopP < 0 || g.TopK < 0 || g.RepetitionPenalty < 0 {
		problems = append(problems, "generation sampling settings must not be negative")
	}

	if len(c.Models) == 0 {
		problems = append(problems, "no models configured")
	}
	seenModels := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if seenModels[m.ID] {
			problems = append(problems, fmt.Sprintf("duplicate model id %q", m.ID))
		}
		seenModels[m.ID] = true
	}

	if len(c.Skills) == 0 {
		problems = append(problems, "no skills configured")
	}
	seenSkills := make(map[string]bool, len(c.Skills))
	for _, s := range c.Skills {
		if err := s.Validate(); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if seenSkills[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate skill id %q", s.ID))
		}
		seenSkills[s.ID] = true
		if styles != nil && !styles.Has(s.CoTStyle) {
			problems = append(problems, fmt.Sprintf("skill %q: unknown cot_style %q", s.ID, s.CoTStyle))
		}
	}

	for class, h := range c.CtxProfiles {
		for tokens, weight := range h {
			if tokens <= 0 || weight < 0 {
				problems = append(problems, fmt.Sprintf("ctx_profiles.%s: bucket %d has weight %g", class, tokens, weight))
			}
		}
	}

	if len(problems) > 0 {
		return errors.NewConfigInvalidError(strings.Join(problems, "; ")).
			WithSuggestion("Fix the listed entries in " + c.describePath())
	}
	return nil
}

func (c *Config) describePath() string {
	if c.path == "" {
		return "the configuration"
	}
	return c.path
}
