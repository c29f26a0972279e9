package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStyles = []string{
	"alignment_trace", "analytical_reasoning", "causal_graph", "code_reasoning",
	"compression_trace", "deductive_chain", "ethical_framework", "evidence_chain",
	"label_reason", "legal_analysis", "linguistic_parse", "mapping_chain",
	"narrative_plan", "retrieval_reason", "rewrite_trace", "scientific_method",
	"semantic_chain", "span_trace", "step_by_step_math",
}

func TestBuiltinHasEveryStyle(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, allStyles, c.Styles())
}

func TestBuildEveryStyleUsesEnvelope(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	seed := domain.Seed{
		ID:          "s1",
		Language:    "hi",
		Query:       "Explain the passage",
		SeedText:    "The monsoon arrived late.",
		Constraints: "3 sentences",
	}

	for _, style := range c.Styles() {
		t.Run(style, func(t *testing.T) {
			system, user, err := c.Build(style, seed)
			require.NoError(t, err)
			assert.NotEmpty(t, system)
			assert.NotContains(t, system, "{{")
			assert.NotContains(t, user, "{{")
			assert.Contains(t, user, "Format your response EXACTLY as:")
			assert.Contains(t, user, "<reasoning>\n1. ")
			assert.True(t, strings.HasSuffix(user, "<answer>\nYour final, clean answer here.\n</answer>"))
		})
	}
}

func TestBuildRendersSeedFields(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	system, user, err := c.Build("linguistic_parse", domain.Seed{
		Language: "ta",
		Query:    "Parse it",
		SeedText: "வணக்கம்",
	})
	require.NoError(t, err)
	assert.Contains(t, system, "analysing Tamil text")
	assert.Contains(t, user, "Analyse this Tamil sentence:\n\n\"வணக்கம்\"\n\nTask: Parse it")
	assert.Contains(t, user, "2. POS-tag each token")
}

func TestBuildOptionalSections(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	_, user, err := c.Build("deductive_chain", domain.Seed{Query: "Is Socrates mortal?"})
	require.NoError(t, err)
	assert.NotContains(t, user, "Premises:")

	_, user, err = c.Build("deductive_chain", domain.Seed{Query: "Is Socrates mortal?", SeedText: "All men are mortal."})
	require.NoError(t, err)
	assert.Contains(t, user, "Premises:\nAll men are mortal.")

	_, user, err = c.Build("narrative_plan", domain.Seed{Query: "Write a fable", Constraints: "under 200 words"})
	require.NoError(t, err)
	assert.Contains(t, user, "Constraints: under 200 words")
}

func TestBuildUnknownStyleFallsBack(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)
	assert.False(t, c.Has("interpretive_dance"))

	system, user, err := c.Build("interpretive_dance", domain.Seed{Query: "Why?", SeedText: "Because."})
	require.NoError(t, err)
	assert.Contains(t, system, "step by step")
	assert.Contains(t, user, "Why?\n\nContext:\nBecause.")
	assert.Contains(t, user, "<reasoning>")
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
styles:
  step_by_step_math:
    system: "Terse tutor."
    user: "Q: {{.Query}}"
    instruction: "1. Solve"
  riddle:
    system: "Riddler."
    user: "{{.Query}}"
    instruction: "1. Think sideways"
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.Has("riddle"))
	assert.True(t, c.Has("causal_graph"))

	system, user, err := c.Build("step_by_step_math", domain.Seed{Query: "1+1"})
	require.NoError(t, err)
	assert.Equal(t, "Terse tutor.", system)
	assert.True(t, strings.HasPrefix(user, "Q: 1+1\n"))
	assert.Contains(t, user, "<reasoning>\n1. Solve\n</reasoning>")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("styles: [unterminated"), 0o644))
	_, err = Load(bad)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileUnmarshal))

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("styles:\n  x:\n    system: s\n"), 0o644))
	_, err = Load(empty)
	assert.True(t, errors.IsConfig(err))
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Hindi", LanguageName("hi"))
	assert.Equal(t, "Punjabi", LanguageName("pa"))
	assert.Equal(t, "English", LanguageName(""))
	assert.Equal(t, "fr", LanguageName("fr"))
}
