// Package scheduler assigns seeds to models and runs them grouped by model
// so each model is loaded once per batch.
package scheduler

import (
	"context"
	"sort"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

// Picker chooses the model of the next seed. *router.Selector implements it.
type Picker interface {
	Pick(role domain.Role) domain.ModelProfile
}

// Loader makes a model resident. *backend.Manager implements it.
type Loader interface {
	Load(ctx context.Context, profile domain.ModelProfile) error
}

// Runner generates the record of one seed on the resident model.
// *generator.Executor implements it.
type Runner interface {
	Run(ctx context.Context, seed domain.Seed, profile domain.ModelProfile) (domain.Record, error)
}

// Sink receives records in completion order
type Sink interface {
	Add(ctx context.Context, rec domain.Record) error
}

// Assignment binds a seed to the model that will generate it
type Assignment struct {
	Model domain.ModelProfile
	Seed  domain.Seed
}

// Group is a maximal run of assignments to the same model
type Group struct {
	Model domain.ModelProfile
	Seeds []domain.Seed
}

// Scheduler drives a batch of seeds through the executor
type Scheduler struct {
	picker Picker
	loader Loader
	runner Runner
	sink   Sink
	logger *log.Logger
}

// New creates a scheduler. sink may be nil.
func New(picker Picker, loader Loader, runner Runner, sink Sink, logger *log.Logger) *Scheduler {
	return &Scheduler{
		picker: picker,
		loader: loader,
		runner: runner,
		sink:   sink,
		logger: log.OrDefault(logger),
	}
}

// Assign picks a generator model for every seed, in seed order
func (s *Scheduler) Assign(seeds []domain.Seed) []Assignment {
	out := make([]Assignment, len(seeds))
	for i, seed := range seeds {
		out[i] = Assignment{Model: s.picker.Pick(domain.RoleGenerator), Seed: seed}
	}
	return out
}

// GroupAssignments stable-sorts assignments by model id and splits them into runs of
// equal id. Seeds keep their relative order within a group.
func GroupAssignments(assignments []Assignment) []Group {
	sorted := make([]Assignment, len(assignments))
	copy(sorted, assignments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Model.ID < sorted[j].Model.ID
	})

	var groups []Group
	for _, a := range sorted {
		if n := len(groups); n > 0 && groups[n-1].Model.ID == a.Model.ID {
			groups[n-1].Seeds = append(groups[n-1].Seeds, a.Seed)
			continue
		}
		groups = append(groups, Group{Model: a.Model, Seeds: []domain.Seed{a.Seed}})
	}
	return groups
}

// Plan assigns and groups seeds without running them
func (s *Scheduler) Plan(seeds []domain.Seed) []Group {
	return GroupAssignments(s.Assign(seeds))
}

// Run assigns, groups and generates seeds. Each group loads its model once.
// Records go to the sink as they complete and are also returned. On error
// the records completed so far are returned with it.
func (s *Scheduler) Run(ctx context.Context, seeds []domain.Seed) ([]domain.Record, error) {
	groups := s.Plan(seeds)
	for _, g := range groups {
		s.logger.Info("model assignment", "model", g.Model.ID, "seeds", len(g.Seeds))
	}
	return s.RunGroups(ctx, groups)
}

// RunGroups generates pre-planned groups in order
func (s *Scheduler) RunGroups(ctx context.Context, groups []Group) ([]domain.Record, error) {
	total := 0
	for _, g := range groups {
		total += len(g.Seeds)
	}

	records := make([]domain.Record, 0, total)
	done := 0
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		if err := s.loader.Load(ctx, g.Model); err != nil {
			return records, err
		}

		for _, seed := range g.Seeds {
			if err := ctx.Err(); err != nil {
				return records, err
			}
			rec, err := s.runner.Run(ctx, seed, g.Model)
			if err != nil {
				return records, err
			}
			done++
			records = append(records, rec)
			s.logger.Debug("progress", "done", done, "total", total)

			if s.sink != nil {
				if err := s.sink.Add(ctx, rec); err != nil {
					return records, err
				}
			}
		}
	}
	return records, nil
}
