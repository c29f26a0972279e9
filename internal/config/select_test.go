package config

import (
	"testing"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	return cfg
}

func TestFilterModels(t *testing.T) {
	cfg := sampleConfig(t)

	tests := []struct {
		name   string
		tier   domain.GPUTier
		filter domain.BackendKind
		want   []string
	}{
		{"consumer all", domain.TierConsumer8GB, domain.BackendAll, []string{"qwen3-1.7b"}},
		{"mid all", domain.TierMid16GB, domain.BackendAll, []string{"qwen3-1.7b", "qwen3-8b-gguf"}},
		{"datacenter all", domain.TierDatacenter80GB, domain.BackendAll, []string{"qwen3-1.7b", "qwen3-8b-gguf", "llama-70b"}},
		{"datacenter gguf", domain.TierDatacenter80GB, domain.BackendGGUF, []string{"qwen3-8b-gguf"}},
		{"unknown tier is consumer", "quantum", domain.BackendAll, []string{"qwen3-1.7b"}},
		{"no match", domain.TierConsumer8GB, domain.BackendHF, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.FilterModels(tt.tier, tt.filter)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, domain.ModelIDs(got))
		})
	}
}

func TestResolveModel(t *testing.T) {
	cfg := sampleConfig(t)

	m, err := cfg.ResolveModel("llama-70b")
	require.NoError(t, err)
	assert.Equal(t, "4bit", m.Quant)

	_, err = cfg.ResolveModel("gpt-5")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownModel))
	assert.Contains(t, err.Error(), "gpt-5")
}

func TestSelectSkills(t *testing.T) {
	cfg := sampleConfig(t)

	all, err := cfg.SelectSkills(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := cfg.SelectSkills([]string{"logic", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []string{"logic"}, domain.SkillIDs(some))

	_, err = cfg.SelectSkills([]string{"poetry"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoMatchingSkills))
}

func TestDefaultVerifier(t *testing.T) {
	_, ok := DefaultVerifier(nil)
	assert.False(t, ok)

	pool := []domain.ModelProfile{
		{ID: "no-estimate"},
		{ID: "big", VRAMEst: 40},
		{ID: "small", VRAMEst: 2},
		{ID: "small-too", VRAMEst: 2},
	}
	m, ok := DefaultVerifier(pool)
	require.True(t, ok)
	assert.Equal(t, "small", m.ID)

	m, ok = DefaultVerifier(pool[:1])
	require.True(t, ok)
	assert.Equal(t, "no-estimate", m.ID)
}
