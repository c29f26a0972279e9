// Package pipeline runs a generation job end to end: it plans the seeds of
// every skill, skips work already in the checkpoint log, generates the rest
// model by model, optionally rescores with a judge and writes the dataset.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/cotsynth/internal/backend"
	"github.com/felixgeelhaar/cotsynth/internal/budget"
	"github.com/felixgeelhaar/cotsynth/internal/checkpoint"
	"github.com/felixgeelhaar/cotsynth/internal/dataset"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/generator"
	"github.com/felixgeelhaar/cotsynth/internal/log"
	"github.com/felixgeelhaar/cotsynth/internal/metrics"
	"github.com/felixgeelhaar/cotsynth/internal/progress"
	"github.com/felixgeelhaar/cotsynth/internal/prompt"
	"github.com/felixgeelhaar/cotsynth/internal/random"
	"github.com/felixgeelhaar/cotsynth/internal/retry"
	"github.com/felixgeelhaar/cotsynth/internal/router"
	"github.com/felixgeelhaar/cotsynth/internal/scheduler"
	"github.com/felixgeelhaar/cotsynth/internal/seeds"
	"github.com/felixgeelhaar/cotsynth/internal/verify"
)

// Backend loads models and runs completions. *backend.Manager implements it.
type Backend interface {
	Load(ctx context.Context, profile domain.ModelProfile) error
	Generate(ctx context.Context, messages []backend.Message, opts backend.Options) (string, error)
}

// Options describe one run
type Options struct {
	Skills   []domain.Skill
	Pool     []domain.ModelProfile
	Strategy domain.Strategy
	Verifier *domain.ModelProfile

	MaxSeeds        int
	SamplesPerSeed  int
	CheckpointEvery int
	Resume          bool

	OutputDir    string
	OutputFormat string

	// ConfigHash fingerprints the configuration in the run manifest
	ConfigHash string
	// Metadata is copied into the run manifest
	Metadata map[string]string
	// Seed seeds model selection and budget draws; 0 is time-based
	Seed int64
}

// Deps are the collaborators of a run
type Deps struct {
	Backend    Backend
	Seeds      seeds.Source
	Prompts    prompt.Builder
	Histograms map[string]budget.Histogram
	Settings   generator.Settings
	Retry      retry.Policy

	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Registry prometheus.Gatherer
	Progress *progress.Indicator
	Rand     *rand.Rand
}

// Result is the outcome of a run
type Result struct {
	RunID     string
	Records   []domain.Record
	Resumed   int
	Generated int
	Files     []string
	Elapsed   time.Duration
}

// Pipeline runs generation jobs
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *log.Logger
	rng    *rand.Rand
}

// New creates a pipeline
func New(deps Deps, opts Options) *Pipeline {
	if opts.SamplesPerSeed < 1 {
		opts.SamplesPerSeed = 1
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = checkpoint.DefaultFlushEvery
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = retry.Default()
	}
	rng := deps.Rand
	if rng == nil {
		rng = random.New(opts.Seed)
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: log.OrDefault(deps.Logger),
		rng:    rng,
	}
}

// Run executes the job. On cancellation the records generated so far are
// flushed to the checkpoint log and the manifest is marked interrupted; the
// partial result is returned with ctx.Err().
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	dir := p.opts.OutputDir
	store := checkpoint.NewStore(dir, p.logger)

	prior, manifest, err := p.prepare(store)
	if err != nil {
		return nil, err
	}
	result := &Result{RunID: manifest.RunID, Resumed: len(prior)}

	plans, err := p.Plan(prior)
	if err != nil {
		return nil, err
	}
	for _, sp := range plans {
		manifest.PlanSkill(sp.Skill.ID, len(sp.Todo), sp.Done)
	}
	if err := checkpoint.SaveManifest(dir, manifest); err != nil {
		return nil, err
	}

	if ind := p.deps.Progress; ind != nil {
		ind.SetManifest(manifest)
		if p.opts.Resume && len(prior) > 0 {
			ind.PrintResumeInfo(len(prior))
		}
		ind.Start()
		defer ind.Stop()
	}

	buffer := checkpoint.NewBuffer(store, p.opts.CheckpointEvery, func(written, total int) {
		if p.deps.Metrics != nil {
			p.deps.Metrics.ObserveFlush(written)
		}
		if err := checkpoint.SaveManifest(dir, manifest); err != nil {
			p.logger.WithError(err).Warn("failed to update run manifest")
		}
		p.logger.Info("checkpoint", "records", len(prior)+total)
		if p.deps.Progress != nil {
			p.deps.Progress.Report()
		}
	})

	generated, runErr := p.generate(ctx, plans, manifest, buffer)
	result.Generated = len(generated)

	// everything generated reaches the log, whatever stopped the loop
	if err := buffer.Flush(); err != nil {
		p.finish(manifest, checkpoint.StatusFailed, err)
		return result, err
	}
	if runErr != nil {
		status := checkpoint.StatusFailed
		if ctx.Err() != nil {
			status = checkpoint.StatusInterrupted
		}
		p.finish(manifest, status, runErr)
		result.Records = append(prior, generated...)
		result.Elapsed = time.Since(start)
		return result, runErr
	}

	all := append(prior, generated...)

	if p.opts.Verifier != nil {
		all, err = p.verify(ctx, store, all)
		if err != nil {
			status := checkpoint.StatusFailed
			if ctx.Err() != nil {
				status = checkpoint.StatusInterrupted
			}
			p.finish(manifest, status, err)
			result.Records = all
			result.Elapsed = time.Since(start)
			return result, err
		}
	}
	result.Records = all

	if len(all) == 0 {
		p.logger.Warn("no records generated")
	} else {
		files, err := p.write(all)
		result.Files = files
		if err != nil {
			p.finish(manifest, checkpoint.StatusFailed, err)
			return result, err
		}
	}

	if p.deps.Registry != nil {
		path, err := metrics.WriteTextfile(p.deps.Registry, dir)
		if err != nil {
			p.logger.WithError(err).Warn("failed to write metrics")
		} else {
			result.Files = append(result.Files, path)
		}
	}

	p.finish(manifest, checkpoint.StatusCompleted, nil)
	result.Elapsed = time.Since(start)
	p.logger.Info("run finished",
		"run_id", result.RunID,
		"generated", result.Generated,
		"resumed", result.Resumed,
		"minutes", fmt.Sprintf("%.1f", result.Elapsed.Minutes()),
	)
	return result, nil
}

// prepare loads prior records and the manifest on resume, or moves an old
// log aside and starts a fresh manifest
func (p *Pipeline) prepare(store *checkpoint.Store) ([]domain.Record, *checkpoint.Manifest, error) {
	dir := p.opts.OutputDir

	if !p.opts.Resume {
		prev, err := store.Rotate()
		if err != nil {
			return nil, nil, err
		}
		if prev != "" {
			p.logger.Warn("existing checkpoint moved aside, pass --resume to continue it", "path", prev)
		}
		return nil, p.newManifest(), nil
	}

	prior, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	p.logger.Info("resumed records from checkpoint", "records", len(prior))

	manifest, err := checkpoint.LoadManifest(dir)
	if err != nil {
		p.logger.WithError(err).Warn("ignoring unreadable run manifest")
		manifest = nil
	}
	if manifest == nil {
		return prior, p.newManifest(), nil
	}
	if p.opts.ConfigHash != "" && manifest.ConfigHash != p.opts.ConfigHash {
		p.logger.Warn("configuration changed since the checkpoint was written",
			"was", manifest.ConfigHash, "now", p.opts.ConfigHash)
		manifest.ConfigHash = p.opts.ConfigHash
	}
	manifest.Finish(checkpoint.StatusRunning, nil)
	p.applyMetadata(manifest)
	return prior, manifest, nil
}

func (p *Pipeline) newManifest() *checkpoint.Manifest {
	m := checkpoint.NewManifest(p.opts.ConfigHash)
	p.applyMetadata(m)
	return m
}

func (p *Pipeline) applyMetadata(m *checkpoint.Manifest) {
	for k, v := range p.opts.Metadata {
		m.SetMetadata(k, v)
	}
	m.SetMetadata("strategy", string(p.opts.Strategy))
}

func (p *Pipeline) generate(ctx context.Context, plans []SkillPlan, manifest *checkpoint.Manifest, buffer *checkpoint.Buffer) ([]domain.Record, error) {
	selector, err := router.NewSelector(p.opts.Pool, p.opts.Strategy, p.rng)
	if err != nil {
		return nil, err
	}
	p.logger.Info("model selection", "strategy", selector.Describe())

	sampler := budget.NewSampler(p.deps.Histograms, p.rng)
	execOpts := []generator.Option{
		generator.WithRetry(p.deps.Retry),
		generator.WithLogger(p.logger),
	}
	if p.deps.Metrics != nil {
		execOpts = append(execOpts, generator.WithObserver(p.deps.Metrics))
	}
	executor := generator.NewExecutor(p.deps.Backend, sampler, p.deps.Prompts, p.deps.Settings, execOpts...)

	sink := &manifestSink{buffer: buffer, manifest: manifest}
	sched := scheduler.New(selector, p.deps.Backend, executor, sink, p.logger)

	var generated []domain.Record
	for _, sp := range plans {
		logger := p.logger.With("skill", sp.Skill.ID)
		if len(sp.Todo) == 0 {
			logger.Info("skill already complete, skipping", "done", sp.Done)
			continue
		}
		logger.Info("skill started",
			"name", sp.Skill.Name,
			"cot_style", sp.Skill.CoTStyle,
			"seeds", sp.Seeds,
			"records", len(sp.Todo),
		)

		manifest.StartSkill(sp.Skill.ID)
		records, err := sched.Run(ctx, sp.Todo)
		generated = append(generated, records...)
		if err != nil {
			manifest.FinishSkill(sp.Skill.ID, err)
			return generated, err
		}
		manifest.FinishSkill(sp.Skill.ID, nil)
	}
	return generated, nil
}

// verify scores the records that have no judge score yet and appends the
// scored ones to the log
func (p *Pipeline) verify(ctx context.Context, store *checkpoint.Store, all []domain.Record) ([]domain.Record, error) {
	var idx []int
	var pending []domain.Record
	for i, r := range all {
		if !r.Verified {
			idx = append(idx, i)
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return all, nil
	}

	judge := *p.opts.Verifier
	scored, err := verify.New(p.deps.Backend, p.logger).Verify(ctx, pending, judge)
	out := make([]domain.Record, len(all))
	copy(out, all)
	var done []domain.Record
	for j, i := range idx {
		out[i] = scored[j]
		if scored[j].Verified {
			done = append(done, scored[j])
		}
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveVerified(judge.ID, scored)
	}
	if appendErr := store.Append(done); appendErr != nil {
		p.logger.WithError(appendErr).Warn("failed to record judge scores in checkpoint")
	}
	return out, err
}

func (p *Pipeline) write(records []domain.Record) ([]string, error) {
	writers, err := dataset.NewWriters(p.opts.OutputFormat, p.opts.OutputDir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, w := range writers {
		path, err := w.Write(records)
		if err != nil {
			return files, err
		}
		p.logger.Info("dataset written", "path", path, "records", len(records))
		files = append(files, path)
	}
	return files, nil
}

func (p *Pipeline) finish(m *checkpoint.Manifest, status string, err error) {
	m.Finish(status, err)
	if saveErr := checkpoint.SaveManifest(p.opts.OutputDir, m); saveErr != nil {
		p.logger.WithError(saveErr).Warn("failed to update run manifest")
	}
	if p.deps.Progress != nil {
		p.deps.Progress.Stop()
		p.deps.Progress.PrintSummary()
	}
}

// manifestSink counts records in the manifest before buffering them
type manifestSink struct {
	buffer   *checkpoint.Buffer
	manifest *checkpoint.Manifest
}

func (s *manifestSink) Add(ctx context.Context, rec domain.Record) error {
	s.manifest.AddCompleted(rec.SkillID, 1)
	return s.buffer.Add(ctx, rec)
}
