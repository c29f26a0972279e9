package seeds

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mathSkill = domain.Skill{
	ID:         "math_reasoning",
	Category:   "reasoning",
	Band:       []string{"core"},
	Benchmarks: []string{"gsm8k"},
	CoTStyle:   "step_by_step_math",
	Stages:     []string{"sft"},
	SeedSource: "math_problems",
}

func TestSeedID(t *testing.T) {
	id := SeedID("math", "2+2?", "")
	assert.Regexp(t, regexp.MustCompile(`^math_[0-9a-f]{12}$`), id)
	assert.Equal(t, id, SeedID("math", "2+2?", ""))
	assert.NotEqual(t, id, SeedID("math", "2+3?", ""))
	assert.NotEqual(t, id, SeedID("logic", "2+2?", ""))
}

func TestBuiltinSources(t *testing.T) {
	b, err := Builtin(log.Nop())
	require.NoError(t, err)

	for _, src := range []string{
		"math_problems", "logic_puzzles", "hindi_wikipedia", "wikipedia_vital", "news_articles",
		"story_seeds", "labeled_text", "concept_pairs", "wiktionary", "parallel_corpus",
	} {
		assert.True(t, b.Has(src), src)
	}
}

func TestBankSeeds(t *testing.T) {
	b, err := Builtin(log.Nop())
	require.NoError(t, err)

	seeds, err := b.Seeds(mathSkill, 0)
	require.NoError(t, err)
	require.Len(t, seeds, 8)

	first := seeds[0]
	assert.Equal(t, "en", first.Language)
	assert.Equal(t, "math_reasoning", first.SkillID)
	assert.Equal(t, "step_by_step_math", first.CoTStyle)
	assert.Equal(t, []string{"gsm8k"}, first.Benchmarks)
	assert.Equal(t, "synthetic/math", first.SeedURL)
	assert.Equal(t, SeedID("math_reasoning", first.Query, first.SeedText), first.ID)

	assert.Equal(t, "hi", seeds[3].Language)

	ids := map[string]bool{}
	for _, s := range seeds {
		ids[s.ID] = true
	}
	assert.Len(t, ids, 8, "ids are unique")
}

func TestBankSeedsLimitAndComposite(t *testing.T) {
	b, err := Builtin(log.Nop())
	require.NoError(t, err)

	seeds, err := b.Seeds(mathSkill, 3)
	require.NoError(t, err)
	assert.Len(t, seeds, 3)

	vital := domain.Skill{ID: "vital", CoTStyle: "semantic_chain", SeedSource: "wikipedia_vital"}
	seeds, err = b.Seeds(vital, 0)
	require.NoError(t, err)
	assert.Len(t, seeds, 7)
	assert.Equal(t, "synthetic/semantic", seeds[0].SeedURL)
	assert.Equal(t, "wikipedia/Fall_of_Roman_Empire", seeds[6].SeedURL)
}

func TestBankUnknownSourceFallsBack(t *testing.T) {
	b, err := Builtin(log.Nop())
	require.NoError(t, err)

	seeds, err := b.Seeds(domain.Skill{ID: "odd", CoTStyle: "x", SeedSource: "nowhere"}, 0)
	require.NoError(t, err)
	require.Len(t, seeds, 3)
	assert.Equal(t, "synthetic/semantic", seeds[0].SeedURL)
}

func TestLoadCustom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"query":"Why is the sky blue?","seed_text":"Rayleigh scattering","language":"en","source":"wiki/Sky"}`+"\n"+
			"\n"+
			`{"query":"सारांश लिखें","text":"लंबा पाठ","language":"hi","constraints":"2 lines"}`+"\n"+
			`{"query":"bare"}`+"\n"), 0o644))

	c, err := LoadCustom(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	seeds, err := c.Seeds(mathSkill, 0)
	require.NoError(t, err)
	require.Len(t, seeds, 3)

	assert.Equal(t, "wiki/Sky", seeds[0].SeedURL)
	assert.Equal(t, "लंबा पाठ", seeds[1].SeedText)
	assert.Equal(t, "2 lines", seeds[1].Constraints)
	assert.Equal(t, "custom", seeds[2].SeedURL)
	assert.Equal(t, "en", seeds[2].Language)
	assert.Equal(t, "math_reasoning", seeds[2].SkillID)

	limited, _ := c.Seeds(mathSkill, 1)
	assert.Len(t, limited, 1)
}

func TestLoadCustomErrors(t *testing.T) {
	_, err := LoadCustom(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))

	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"query\":\"ok\"}\n{not json\n"), 0o644))
	_, err = LoadCustom(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileUnmarshal))
	assert.Contains(t, err.Error(), "bad.jsonl:2")
}
