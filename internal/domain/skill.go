package domain

import (
	"fmt"
	"strings"
)

// Skill is one target capability of the dataset: where its seeds come from
// and which reasoning style its records use
type Skill struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Category   string   `yaml:"category" json:"category"`
	Band       []string `yaml:"band" json:"band"`
	Benchmarks []string `yaml:"benchmarks" json:"benchmarks"`
	CoTStyle   string   `yaml:"cot_style" json:"cot_style"`
	Stages     []string `yaml:"stages" json:"stages"`
	SeedSource string   `yaml:"seed_source" json:"seed_source"`
}

// Validate checks the fields every skill needs
func (s Skill) Validate() error {
	var missing []string
	if s.ID == "" {
		missing = append(missing, "id")
	}
	if s.CoTStyle == "" {
		missing = append(missing, "cot_style")
	}
	if s.SeedSource == "" {
		missing = append(missing, "seed_source")
	}
	if len(missing) > 0 {
		return fmt.Errorf("skill %q: missing %s", s.ID, strings.Join(missing, ", "))
	}
	return nil
}

// Stamp copies the skill metadata onto a seed
func (s Skill) Stamp(seed Seed) Seed {
	seed.SkillID = s.ID
	seed.Category = s.Category
	seed.CoTStyle = s.CoTStyle
	seed.Band = cloneStrings(s.Band)
	seed.Benchmarks = cloneStrings(s.Benchmarks)
	seed.Stages = cloneStrings(s.Stages)
	return seed
}

// SkillIDs returns the ids of skills in order
func SkillIDs(skills []Skill) []string {
	ids := make([]string, len(skills))
	for i, s := range skills {
		ids[i] = s.ID
	}
	return ids
}
