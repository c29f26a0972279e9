package router

import (
	"testing"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() []domain.ModelProfile {
	return []domain.ModelProfile{
		{ID: "qwen3-1.7b", Backend: domain.BackendOllama, MaxCoT: 4096},
		{ID: "llama3.2-3b", Backend: domain.BackendOllama, MaxCoT: 12288},
		{ID: "judge-1b", Backend: domain.BackendOllama, MaxCoT: 1024, Roles: []domain.Role{domain.RoleVerifier}},
	}
}

func TestNewSelector(t *testing.T) {
	tests := []struct {
		name     string
		pool     []domain.ModelProfile
		strategy domain.Strategy
		wantCode errors.ErrorCode
	}{
		{name: "valid", pool: testPool(), strategy: domain.StrategyRandom},
		{name: "empty pool", pool: nil, strategy: domain.StrategyRandom, wantCode: errors.ErrCodeEmptyModelPool},
		{name: "unknown strategy", pool: testPool(), strategy: "zigzag", wantCode: errors.ErrCodeUnknownStrategy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSelector(tt.pool, tt.strategy, random.New(1))
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestPickFixed(t *testing.T) {
	s, err := NewSelector(testPool(), domain.StrategyFixed, random.New(1))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.Equal(t, "qwen3-1.7b", s.Pick(domain.RoleGenerator).ID)
	}
	assert.Equal(t, "judge-1b", s.Pick(domain.RoleVerifier).ID)
}

func TestPickRoundRobinSharesCounter(t *testing.T) {
	s, err := NewSelector(testPool(), domain.StrategyRoundRobin, random.New(1))
	require.NoError(t, err)

	// generators are qwen, llama; the counter advances once per call
	assert.Equal(t, "qwen3-1.7b", s.Pick(domain.RoleGenerator).ID)
	assert.Equal(t, "llama3.2-3b", s.Pick(domain.RoleGenerator).ID)
	assert.Equal(t, "judge-1b", s.Pick(domain.RoleVerifier).ID)
	assert.Equal(t, "llama3.2-3b", s.Pick(domain.RoleGenerator).ID)
	assert.Equal(t, "qwen3-1.7b", s.Pick(domain.RoleGenerator).ID)
}

func TestPickRoleFallsBackToWholePool(t *testing.T) {
	pool := []domain.ModelProfile{{ID: "a"}, {ID: "b"}}
	s, err := NewSelector(pool, domain.StrategyFixed, random.New(1))
	require.NoError(t, err)

	assert.Equal(t, "a", s.Pick(domain.RoleVerifier).ID)
}

func TestPickRandomOnlyGenerators(t *testing.T) {
	s, err := NewSelector(testPool(), domain.StrategyRandom, random.New(3))
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < 500; i++ {
		seen[s.Pick(domain.RoleGenerator).ID]++
	}
	assert.Zero(t, seen["judge-1b"])
	assert.InDelta(t, 250, seen["qwen3-1.7b"], 60)
	assert.InDelta(t, 250, seen["llama3.2-3b"], 60)
}

func TestPickWeightedFavoursLargerCeiling(t *testing.T) {
	s, err := NewSelector(testPool(), domain.StrategyWeighted, random.New(11))
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < 4000; i++ {
		seen[s.Pick(domain.RoleGenerator).ID]++
	}
	// 4096 : 12288 = 1 : 3
	assert.InDelta(t, 1000, seen["qwen3-1.7b"], 150)
	assert.InDelta(t, 3000, seen["llama3.2-3b"], 150)
}

func TestPickWeightedDefaultWeight(t *testing.T) {
	pool := []domain.ModelProfile{{ID: "a"}, {ID: "b", MaxCoT: 4096}}
	s, err := NewSelector(pool, domain.StrategyWeighted, random.New(5))
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < 2000; i++ {
		seen[s.Pick(domain.RoleGenerator).ID]++
	}
	assert.InDelta(t, 1000, seen["a"], 150)
}

func TestPickIsReproducibleWithSeed(t *testing.T) {
	a, _ := NewSelector(testPool(), domain.StrategyRandom, random.New(77))
	b, _ := NewSelector(testPool(), domain.StrategyRandom, random.New(77))
	for i := 0; i < 50; i++ {
		require.Equal(t, a.Pick(domain.RoleGenerator).ID, b.Pick(domain.RoleGenerator).ID)
	}
}

func TestDescribeAndUsage(t *testing.T) {
	s, err := NewSelector(testPool(), domain.StrategyRoundRobin, random.New(1))
	require.NoError(t, err)

	assert.Equal(t, "round_robin over 3 models: [qwen3-1.7b, llama3.2-3b, judge-1b]", s.Describe())

	s.Pick(domain.RoleGenerator)
	s.Pick(domain.RoleGenerator)
	s.Pick(domain.RoleGenerator)

	assert.Equal(t, []Usage{
		{Model: "qwen3-1.7b", Picks: 2},
		{Model: "llama3.2-3b", Picks: 1},
	}, s.UsageStats())
}

func TestPoolIsCopied(t *testing.T) {
	pool := testPool()
	s, err := NewSelector(pool, domain.StrategyFixed, random.New(1))
	require.NoError(t, err)

	pool[0].ID = "mutated"
	assert.Equal(t, "qwen3-1.7b", s.Pick(domain.RoleGenerator).ID)

	out := s.Pool()
	out[0].ID = "mutated"
	assert.Equal(t, "qwen3-1.7b", s.Pool()[0].ID)
}
