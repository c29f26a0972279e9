package verify

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/cotsynth/internal/backend"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type stubJudge struct {
	replies []string
	errs    []error
	loadErr error

	loaded  []string
	prompts []string
	options []backend.Options
	onCall  func(n int)
}

func (s *stubJudge) Load(_ context.Context, p domain.ModelProfile) error {
	s.loaded = append(s.loaded, p.ID)
	return s.loadErr
}

func (s *stubJudge) Generate(_ context.Context, msgs []backend.Message, opts backend.Options) (string, error) {
	n := len(s.prompts)
	s.prompts = append(s.prompts, msgs[len(msgs)-1].Content)
	s.options = append(s.options, opts)
	if s.onCall != nil {
		s.onCall(n)
	}
	var err error
	if n < len(s.errs) {
		err = s.errs[n]
	}
	reply := ""
	if len(s.replies) > 0 {
		reply = s.replies[n%len(s.replies)]
	}
	return reply, err
}

func records(model string, n int) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.Record{
			SynthID:            "s" + string(rune('a'+i)),
			Model:              model,
			Query:              "What is 2+2?",
			SyntheticReasoning: "2 plus 2 is 4",
			SyntheticAnswer:    "4",
		}
	}
	return out
}

var judge = domain.ModelProfile{ID: "judge-1b", Backend: domain.BackendOllama}

func TestVerifyNonNumericReplyIsSentinel(t *testing.T) {
	b := &stubJudge{replies: []string{"excellent reasoning"}}
	out, err := New(b, log.Nop()).Verify(context.Background(), records("gen-8b", 2), judge)
	require.NoError(t, err)

	require.Len(t, out, 2)
	for _, r := range out {
		assert.True(t, r.Verified)
		assert.Equal(t, -1.0, r.VerificationScore)
	}
	assert.Equal(t, []string{"judge-1b"}, b.loaded)
}

func TestVerifyScoresAndClamps(t *testing.T) {
	b := &stubJudge{replies: []string{"Score: 7.5/10", "12", "0"}}
	in := records("gen-8b", 3)
	out, err := New(b, log.Nop()).Verify(context.Background(), in, judge)
	require.NoError(t, err)

	assert.Equal(t, 7.5, out[0].VerificationScore)
	assert.Equal(t, 10.0, out[1].VerificationScore)
	assert.Equal(t, 0.0, out[2].VerificationScore)

	// inputs are not modified
	for _, r := range in {
		assert.False(t, r.Verified)
	}
}

func TestVerifyRequestShape(t *testing.T) {
	b := &stubJudge{replies: []string{"8"}}
	rec := records("gen-8b", 1)
	rec[0].SyntheticReasoning = strings.Repeat("é", 3000)
	rec[0].SyntheticAnswer = strings.Repeat("x", 900)

	_, err := New(b, log.Nop()).Verify(context.Background(), rec, judge)
	require.NoError(t, err)

	require.Len(t, b.options, 1)
	assert.Equal(t, 16, b.options[0].MaxNewTokens)
	assert.Equal(t, 0.1, b.options[0].Temperature)
	assert.Equal(t, 0.9, b.options[0].TopP)

	prompt := b.prompts[0]
	assert.Contains(t, prompt, "Query: What is 2+2?")
	assert.Contains(t, prompt, "Respond with ONLY a number 0-10.")
	assert.Equal(t, MaxReasoningRunes, strings.Count(prompt, "é"))
	assert.Contains(t, prompt, strings.Repeat("x", MaxAnswerRunes)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("x", MaxAnswerRunes+1))
}

func TestVerifyBackendErrorIsSentinel(t *testing.T) {
	b := &stubJudge{replies: []string{"9"}, errs: []error{stderrors.New("timeout")}}
	out, err := New(b, log.Nop()).Verify(context.Background(), records("gen-8b", 2), judge)
	require.NoError(t, err)

	assert.True(t, out[0].Verified)
	assert.Equal(t, -1.0, out[0].VerificationScore)
	assert.Equal(t, 9.0, out[1].VerificationScore)
}

func TestVerifySkipsWhenJudgeGenerated(t *testing.T) {
	b := &stubJudge{replies: []string{"9"}}
	in := append(records("gen-8b", 1), records("judge-1b", 1)...)

	out, err := New(b, log.Nop()).Verify(context.Background(), in, judge)
	require.NoError(t, err)

	assert.Equal(t, in, out)
	assert.Empty(t, b.loaded)
	assert.Empty(t, b.prompts)
}

func TestVerifyEmpty(t *testing.T) {
	b := &stubJudge{}
	out, err := New(b, log.Nop()).Verify(context.Background(), nil, judge)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, b.loaded)
}

func TestVerifyLoadFailure(t *testing.T) {
	b := &stubJudge{loadErr: stderrors.New("pull failed")}
	in := records("gen-8b", 2)

	out, err := New(b, log.Nop()).Verify(context.Background(), in, judge)
	require.Error(t, err)
	assert.Equal(t, in, out)
}

func TestVerifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &stubJudge{replies: []string{"6"}}
	b.onCall = func(n int) {
		if n == 1 {
			cancel()
		}
	}

	out, err := New(b, log.Nop()).Verify(ctx, records("gen-8b", 3), judge)
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, out[0].Verified)
	assert.Equal(t, 6.0, out[0].VerificationScore)
	assert.False(t, out[1].Verified)
	assert.False(t, out[2].Verified)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"8", 8},
		{"  I'd say 6.5 out of 10", 6.5},
		{"-3", 3},
		{"100", 10},
		{"", -1},
		{"great", -1},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseScore(tt.raw))
		})
	}
}

func TestParseScore_InRangeOrSentinel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.String().Draw(t, "raw")
		got := ParseScore(raw)
		if got != domain.UnscoredVerification && (got < 0 || got > 10) {
			t.Fatalf("ParseScore(%q) = %v, out of range", raw, got)
		}
	})
}
