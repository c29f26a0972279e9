package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/felixgeelhaar/cotsynth/internal/config"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/log"
	"github.com/felixgeelhaar/cotsynth/internal/prompt"
	"github.com/felixgeelhaar/cotsynth/internal/seeds"
)

// runFlags are the flags shared by generate and plan. Empty values and
// unset numbers defer to the configuration file.
type runFlags struct {
	configPath     string
	skills         []string
	gpuTier        string
	strategy       string
	model          string
	backend        string
	ctxMode        string
	fixedTokens    int
	verify         bool
	verifier       string
	maxSeeds       int
	samplesPerSeed int
	outputDir      string
	outputFormat   string
	customSeeds    string
	seed           int64
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "configuration file (default ./skills_config.yaml or ./cotsynth.yaml)")
	fs.StringSliceVar(&f.skills, "skills", nil, "skill ids to run (default all)")
	fs.StringVar(&f.gpuTier, "gpu-tier", "", "largest GPU tier to use (consumer_8gb, mid_16gb, high_24gb, datacenter_80gb)")
	fs.StringVar(&f.strategy, "model-strategy", "", "model rotation (random, round_robin, weighted, fixed)")
	fs.StringVar(&f.model, "model", "", "model id to use with --model-strategy fixed")
	fs.StringVar(&f.backend, "backend", "", "backend filter (ollama, gguf, hf, all)")
	fs.StringVar(&f.ctxMode, "ctx-mode", "", "generation budget mode (profile, fixed, long_cot)")
	fs.IntVar(&f.fixedTokens, "fixed-tokens", 0, "max new tokens for --ctx-mode fixed")
	fs.BoolVar(&f.verify, "verify", false, "score every record with a judge model")
	fs.StringVar(&f.verifier, "verifier", "", "judge model id (default the smallest eligible model)")
	fs.IntVar(&f.maxSeeds, "max-seeds", 0, "seeds per skill (default all)")
	fs.IntVar(&f.samplesPerSeed, "samples-per-seed", 0, "records generated per seed")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "output directory")
	fs.StringVar(&f.outputFormat, "output-format", "", "dataset format (parquet, jsonl, csv, both)")
	fs.StringVar(&f.customSeeds, "custom-seeds", "", "JSONL file of seeds used for every selected skill")
	fs.Int64Var(&f.seed, "seed", 0, "random seed for model selection and budgets (0 is time-based)")
}

// runPlan is a fully resolved run: configuration with flag overrides
// applied, the skills and models it uses and where its seeds come from
type runPlan struct {
	cfg      *config.Config
	prompts  *prompt.Catalogue
	skills   []domain.Skill
	pool     []domain.ModelProfile
	strategy domain.Strategy
	tier     domain.GPUTier
	filter   domain.BackendKind
	ctxMode  domain.CtxMode
	verifier *domain.ModelProfile
	seeds    seeds.Source
	custom   int
}

// resolve loads the configuration and applies the flags to it
func (f *runFlags) resolve(logger *log.Logger) (*runPlan, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path, err := config.Find(f.configPath, wd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		return nil, err
	}
	prompts, err := prompt.Load(cfg.PromptsPath())
	if err != nil {
		return nil, err
	}
	if err := f.apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(prompts); err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", "config", cfg.String())

	g := cfg.Generation
	plan := &runPlan{cfg: cfg, prompts: prompts}

	if plan.strategy, err = domain.ParseStrategy(g.ModelStrategy); err != nil {
		return nil, err
	}
	if plan.filter, err = domain.ParseBackendFilter(g.BackendFilter); err != nil {
		return nil, err
	}
	if plan.ctxMode, err = domain.ParseCtxMode(g.CtxMode); err != nil {
		return nil, err
	}
	plan.tier = g.GPUTier.OrDefault()

	if plan.skills, err = cfg.SelectSkills(f.skills); err != nil {
		return nil, err
	}

	plan.pool = cfg.FilterModels(plan.tier, plan.filter)
	if f.model != "" && plan.strategy == domain.StrategyFixed {
		fixed, err := config.ResolveModel(plan.pool, f.model)
		if err != nil {
			return nil, err
		}
		plan.pool = []domain.ModelProfile{fixed}
	}
	if len(plan.pool) == 0 {
		return nil, errors.NewEmptyModelPoolError(string(plan.tier), string(plan.filter))
	}

	if f.verify {
		var judge domain.ModelProfile
		if f.verifier != "" {
			if judge, err = cfg.ResolveModel(f.verifier); err != nil {
				return nil, err
			}
		} else {
			judge, _ = config.DefaultVerifier(plan.pool)
		}
		plan.verifier = &judge
	}

	if f.customSeeds != "" {
		custom, err := seeds.LoadCustom(f.customSeeds)
		if err != nil {
			return nil, err
		}
		plan.seeds = custom
		plan.custom = custom.Len()
	} else {
		bank, err := seeds.Builtin(logger)
		if err != nil {
			return nil, err
		}
		plan.seeds = bank
	}
	return plan, nil
}

// apply overrides configuration values with the flags that were given
func (f *runFlags) apply(cfg *config.Config) error {
	g := &cfg.Generation
	if f.gpuTier != "" {
		tier, err := domain.NewGPUTier(f.gpuTier)
		if err != nil {
			return err
		}
		g.GPUTier = tier
	}
	if f.strategy != "" {
		g.ModelStrategy = f.strategy
	}
	if f.backend != "" {
		g.BackendFilter = f.backend
	}
	if f.ctxMode != "" {
		g.CtxMode = f.ctxMode
	}
	if f.fixedTokens > 0 {
		g.FallbackMaxNewTokens = f.fixedTokens
	}
	if f.samplesPerSeed > 0 {
		g.SamplesPerSeed = f.samplesPerSeed
	}
	if f.outputDir != "" {
		g.OutputDir = f.outputDir
	}
	if f.outputFormat != "" {
		g.OutputFormat = strings.ToLower(f.outputFormat)
	}
	if f.seed != 0 {
		g.Seed = f.seed
	}
	return nil
}

// flagsChanged reports whether any of names was set on the command line
func flagsChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}
