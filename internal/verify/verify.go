// Package verify rescores generated records with a judge model.
package verify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/cotsynth/internal/backend"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

// Truncation limits of the judged text, in runes
const (
	MaxReasoningRunes = 2000
	MaxAnswerRunes    = 500
)

// Judge request options
var judgeOptions = backend.Options{
	MaxNewTokens: 16,
	Temperature:  0.1,
	TopP:         0.9,
}

var scorePattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Backend loads the judge and runs its completions. *backend.Manager
// implements it.
type Backend interface {
	Load(ctx context.Context, profile domain.ModelProfile) error
	Generate(ctx context.Context, messages []backend.Message, opts backend.Options) (string, error)
}

// Pass scores records with a judge model
type Pass struct {
	backend Backend
	logger  *log.Logger
}

// New creates a verification pass on b
func New(b Backend, logger *log.Logger) *Pass {
	return &Pass{backend: b, logger: log.OrDefault(logger).With("component", "verify")}
}

// Verify returns a copy of records with Verified set and VerificationScore
// filled in by judge. When judge also generated any of the records the
// records are returned unchanged. A reply without a usable number scores
// domain.UnscoredVerification.
//
// The error is non-nil only when the judge cannot be loaded or ctx ends; the
// returned slice then holds the records scored so far followed by the rest
// unchanged.
func (p *Pass) Verify(ctx context.Context, records []domain.Record, judge domain.ModelProfile) ([]domain.Record, error) {
	out := make([]domain.Record, len(records))
	copy(out, records)
	if len(out) == 0 {
		return out, nil
	}

	if generatedBy(out, judge.ID) {
		p.logger.Warn("skipping verification, judge also generated records", "judge", judge.ID)
		return out, nil
	}

	if err := p.backend.Load(ctx, judge); err != nil {
		return out, fmt.Errorf("failed to load judge %s: %w", judge.ID, err)
	}
	p.logger.Info("scoring records", "judge", judge.ID, "records", len(out))

	for i := range out {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		score := p.score(ctx, out[i])
		if ctx.Err() != nil {
			// an interrupted reply says nothing about the record
			return out, ctx.Err()
		}
		out[i].Verified = true
		out[i].VerificationScore = score
		p.logger.Debug("record scored", "synth_id", out[i].SynthID, "score", score)
	}
	return out, nil
}

func (p *Pass) score(ctx context.Context, rec domain.Record) float64 {
	raw, err := p.backend.Generate(ctx, []backend.Message{backend.User(Prompt(rec))}, judgeOptions)
	if err != nil {
		p.logger.WithError(err).Warn("judge request failed", "synth_id", rec.SynthID)
		return domain.UnscoredVerification
	}
	return ParseScore(raw)
}

// Prompt renders the judge request for rec
func Prompt(rec domain.Record) string {
	var b strings.Builder
	b.WriteString("Rate the quality of this chain-of-thought reasoning 0-10.\n")
	b.WriteString("Consider: logical correctness, completeness, clarity.\n\n")
	b.WriteString("Query: " + rec.Query + "\n\n")
	b.WriteString("Reasoning:\n" + truncate(rec.SyntheticReasoning, MaxReasoningRunes) + "\n\n")
	b.WriteString("Answer:\n" + truncate(rec.SyntheticAnswer, MaxAnswerRunes) + "\n\n")
	b.WriteString("Respond with ONLY a number 0-10.")
	return b.String()
}

// ParseScore takes the first number in raw clamped to [0, 10], or
// domain.UnscoredVerification when there is none
func ParseScore(raw string) float64 {
	m := scorePattern.FindString(raw)
	if m == "" {
		return domain.UnscoredVerification
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return domain.UnscoredVerification
	}
	return min(10, max(0, v))
}

func generatedBy(records []domain.Record, modelID string) bool {
	for _, r := range records {
		if r.Model == modelID {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
