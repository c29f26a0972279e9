package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/cotsynth/internal/backend"
	"github.com/felixgeelhaar/cotsynth/internal/checkpoint"
	"github.com/felixgeelhaar/cotsynth/internal/dataset"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
	"github.com/felixgeelhaar/cotsynth/internal/metrics"
	"github.com/felixgeelhaar/cotsynth/internal/pipeline"
	"github.com/felixgeelhaar/cotsynth/internal/progress"
	"github.com/felixgeelhaar/cotsynth/internal/retry"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a chain-of-thought dataset",
	Long: `Generate synthetic chain-of-thought records for the configured skills.

Every seed is assigned a model by the rotation strategy; seeds are then
grouped by model so each model loads once per skill. Records are appended to
<output-dir>/_checkpoint.jsonl as they complete, so an interrupted run can be
continued with --resume.

Examples:
  cotsynth generate --max-seeds 3 --dry-run
  cotsynth generate --model-strategy fixed --model qwen3-4b
  cotsynth generate --ctx-mode fixed --fixed-tokens 1024
  cotsynth generate --backend all --verify
  cotsynth generate --resume`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

var (
	generateFlags  runFlags
	generateResume bool
	generateDryRun bool
	generateQuiet  bool
)

func init() {
	generateFlags.register(generateCmd.Flags())
	generateCmd.Flags().BoolVar(&generateResume, "resume", false, "continue from the checkpoint in the output directory")
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "print the plan without generating")
	generateCmd.Flags().BoolVarP(&generateQuiet, "quiet", "q", false, "no progress line or summary")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := log.DefaultLogger()
	out := cmd.OutOrStdout()

	if flagsChanged(cmd, "model") && generateFlags.strategy != string(domain.StrategyFixed) {
		logger.Warn("--model only applies with --model-strategy fixed", "model", generateFlags.model)
	}

	plan, err := generateFlags.resolve(logger)
	if err != nil {
		return err
	}

	if generateDryRun {
		return printPlan(out, plan, &generateFlags, generateResume)
	}

	cfg := plan.cfg
	g := cfg.Generation

	reg, m := metrics.NewRegistry()
	manager := backend.New(cfg.BackendConfig(),
		backend.WithLogger(logger),
		backend.WithObserver(m),
	)
	defer func() {
		// the run context may already be cancelled; unloading still has to happen
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := manager.Close(ctx); err != nil {
			logger.WithError(err).Warn("failed to release backends")
		}
	}()

	var indicator *progress.Indicator
	if !generateQuiet {
		indicator = progress.NewIndicator(progress.Config{
			Writer:      cmd.ErrOrStderr(),
			ShowSpinner: true,
		})
	}

	metadata := map[string]string{
		"gpu_tier":       string(plan.tier),
		"backend_filter": string(plan.filter),
		"ctx_mode":       string(plan.ctxMode),
		"skills":         joinIDs(domain.SkillIDs(plan.skills)),
		"models":         joinIDs(domain.ModelIDs(plan.pool)),
	}
	if plan.verifier != nil {
		metadata["verifier"] = plan.verifier.ID
	}

	p := pipeline.New(pipeline.Deps{
		Backend:    manager,
		Seeds:      plan.seeds,
		Prompts:    plan.prompts,
		Histograms: cfg.CtxProfiles,
		Settings:   cfg.Settings(),
		Retry:      retry.Constant(g.MaxRetries, g.RetryDelay),
		Logger:     logger,
		Metrics:    m,
		Registry:   reg,
		Progress:   indicator,
	}, pipeline.Options{
		Skills:          plan.skills,
		Pool:            plan.pool,
		Strategy:        plan.strategy,
		Verifier:        plan.verifier,
		MaxSeeds:        generateFlags.maxSeeds,
		SamplesPerSeed:  g.SamplesPerSeed,
		CheckpointEvery: g.CheckpointEvery,
		Resume:          generateResume,
		OutputDir:       g.OutputDir,
		OutputFormat:    g.OutputFormat,
		ConfigHash:      checkpoint.ConfigHash(cfg.Raw()),
		Metadata:        metadata,
		Seed:            g.Seed,
	})

	res, err := p.Run(cmd.Context())
	if err != nil {
		if res != nil && cmd.Context().Err() != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "\nInterrupted after %d new records; checkpoint saved in %s. Re-run with --resume to continue.\n",
				res.Generated, g.OutputDir)
		}
		return err
	}

	if !generateQuiet && len(res.Records) > 0 {
		fmt.Fprintln(out, dataset.Render(dataset.Compute(res.Records)))
		for _, f := range res.Files {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
	return nil
}
