package domain

import "fmt"

// Seed is one unit of input content plus the task metadata of its skill.
// Seeds are created by a seed source and only read afterwards.
type Seed struct {
	ID          string
	Language    string
	Query       string
	SeedText    string
	SeedURL     string
	Constraints string
	CoTStyle    string

	SkillID    string
	Category   string
	Band       []string
	Benchmarks []string
	Stages     []string
}

// Variant returns a copy of the seed for the n-th sample of it.
// Variant 0 keeps the original id.
func (s Seed) Variant(n int) Seed {
	v := s
	if n > 0 {
		v.ID = fmt.Sprintf("%s_v%d", s.ID, n)
	}
	v.Band = cloneStrings(s.Band)
	v.Benchmarks = cloneStrings(s.Benchmarks)
	v.Stages = cloneStrings(s.Stages)
	return v
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
