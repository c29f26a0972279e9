package pipeline

import (
	"fmt"

	"github.com/felixgeelhaar/cotsynth/internal/checkpoint"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
)

// SkillPlan is the work of one skill
type SkillPlan struct {
	Skill domain.Skill
	// Seeds is the number of distinct seeds drawn for the skill
	Seeds int
	// Records is Seeds times the samples per seed
	Records int
	// Done is the number of those records already in the checkpoint log
	Done int
	// Todo holds the seed variants still to generate
	Todo []domain.Seed
}

// Plan expands every skill's seeds into variants and drops the variants
// whose ids are already in prior. It does not touch the output directory.
func (p *Pipeline) Plan(prior []domain.Record) ([]SkillPlan, error) {
	done := checkpoint.DoneIDs(prior)

	plans := make([]SkillPlan, 0, len(p.opts.Skills))
	for _, skill := range p.opts.Skills {
		base, err := p.deps.Seeds.Seeds(skill, p.opts.MaxSeeds)
		if err != nil {
			return nil, fmt.Errorf("seeds for skill %s: %w", skill.ID, err)
		}

		sp := SkillPlan{Skill: skill, Seeds: len(base)}
		for _, seed := range base {
			for v := 0; v < p.opts.SamplesPerSeed; v++ {
				variant := seed.Variant(v)
				sp.Records++
				if _, ok := done[variant.ID]; ok {
					sp.Done++
					continue
				}
				sp.Todo = append(sp.Todo, variant)
			}
		}
		plans = append(plans, sp)
	}
	return plans, nil
}

// TotalRecords sums the records of plans
func TotalRecords(plans []SkillPlan) int {
	total := 0
	for _, sp := range plans {
		total += sp.Records
	}
	return total
}
