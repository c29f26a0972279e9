// Package generator turns one seed into one dataset record on the resident
// model.
package generator

import (
	"context"
	"math"
	"time"

	"github.com/felixgeelhaar/cotsynth/internal/backend"
	"github.com/felixgeelhaar/cotsynth/internal/budget"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
	"github.com/felixgeelhaar/cotsynth/internal/parse"
	"github.com/felixgeelhaar/cotsynth/internal/prompt"
	"github.com/felixgeelhaar/cotsynth/internal/retry"
)

// Generator runs a completion on the resident model. *backend.Manager
// implements it.
type Generator interface {
	Generate(ctx context.Context, messages []backend.Message, opts backend.Options) (string, error)
}

// Observer is told about every attempt and every finished record
type Observer interface {
	ObserveAttempt(model string, err error)
	ObserveRecord(rec domain.Record, attempts int)
}

// Settings are the sampling settings shared by every seed of a run
type Settings struct {
	CtxMode           domain.CtxMode
	FallbackTokens    int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
}

// DefaultSettings returns the generation defaults
func DefaultSettings() Settings {
	return Settings{
		CtxMode:           domain.CtxProfile,
		FallbackTokens:    budget.DefaultFallback,
		Temperature:       0.7,
		TopP:              0.9,
		TopK:              50,
		RepetitionPenalty: 1.1,
	}
}

// Executor generates records one seed at a time
type Executor struct {
	gen      Generator
	sampler  *budget.Sampler
	prompts  prompt.Builder
	settings Settings
	policy   retry.Policy
	logger   *log.Logger
	observer Observer
	now      func() time.Time
}

// Option configures an Executor
type Option func(*Executor)

// WithRetry replaces the default retry policy
func WithRetry(p retry.Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithLogger sets the executor logger
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithObserver reports attempts and records to o
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithClock replaces time.Now for generation timing
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor
func NewExecutor(gen Generator, sampler *budget.Sampler, prompts prompt.Builder, settings Settings, opts ...Option) *Executor {
	e := &Executor{
		gen:      gen,
		sampler:  sampler,
		prompts:  prompts,
		settings: settings,
		policy:   retry.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.OrDefault(e.logger)
	return e
}

// Run generates the record of seed with profile, which must be the resident
// model. When every attempt fails the record carries whatever the last
// attempt produced. An error is returned only for a bad configuration or a
// cancelled context; no record is produced then.
func (e *Executor) Run(ctx context.Context, seed domain.Seed, profile domain.ModelProfile) (domain.Record, error) {
	tokens, err := e.sampler.Sample(profile, e.settings.CtxMode, e.settings.FallbackTokens)
	if err != nil {
		return domain.Record{}, err
	}
	tokens = budget.Clamp(tokens, profile)

	system, user, err := e.prompts.Build(seed.CoTStyle, seed)
	if err != nil {
		return domain.Record{}, err
	}
	messages := []backend.Message{backend.System(system), backend.User(user)}
	opts := backend.Options{
		MaxNewTokens:      tokens,
		Temperature:       e.settings.Temperature,
		TopP:              e.settings.TopP,
		TopK:              e.settings.TopK,
		RepetitionPenalty: e.settings.RepetitionPenalty,
	}

	logger := e.logger.WithModel(profile.ID).With("synth_id", seed.ID)

	var (
		reasoning, answer string
		elapsed           time.Duration
	)
	attempts, err := e.policy.Do(ctx, func(ctx context.Context, n int) (bool, error) {
		start := e.now()
		raw, err := e.gen.Generate(ctx, messages, opts)
		if e.observer != nil {
			e.observer.ObserveAttempt(profile.ID, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.WithError(err).Warn("generation attempt failed", "attempt", n)
			return false, err
		}

		elapsed = e.now().Sub(start)
		reasoning, answer = parse.Response(raw)
		if reasoning != "" && answer != "" {
			return true, nil
		}
		logger.Debug("incomplete output", "attempt", n, "has_reasoning", reasoning != "", "has_answer", answer != "")
		return false, nil
	})
	if ctx.Err() != nil {
		return domain.Record{}, ctx.Err()
	}
	if err != nil {
		logger.WithError(err).Warn("attempts exhausted, keeping degraded record", "attempts", attempts)
	}

	rec := domain.NewRecord(seed, profile.ID)
	rec.SyntheticReasoning = reasoning
	rec.SyntheticAnswer = answer
	rec.Words = parse.CountWords(reasoning) + parse.CountWords(answer)
	rec.MaxNewTokensUsed = tokens
	rec.GenerationTimeS = math.Round(elapsed.Seconds()*10) / 10

	logger.Info("seed generated",
		"words", rec.Words,
		"budget", tokens,
		"seconds", rec.GenerationTimeS,
		"wps", math.Round(rec.WordsPerSecond()),
		"attempts", attempts,
		"complete", rec.Complete(),
	)
	if e.observer != nil {
		e.observer.ObserveRecord(rec, attempts)
	}
	return rec, nil
}
