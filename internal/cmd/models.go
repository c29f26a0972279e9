package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/cotsynth/internal/backend"
	"github.com/felixgeelhaar/cotsynth/internal/config"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models eligible for a run",
	Long: `List the configured models that fit the GPU tier and backend filter.

With --check every backend used by those models is probed and the command
fails when one is unreachable.`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

var (
	modelsConfig  string
	modelsTier    string
	modelsBackend string
	modelsCheck   bool
)

func init() {
	modelsCmd.Flags().StringVarP(&modelsConfig, "config", "c", "", "configuration file")
	modelsCmd.Flags().StringVar(&modelsTier, "gpu-tier", "", "largest GPU tier to list")
	modelsCmd.Flags().StringVar(&modelsBackend, "backend", "", "backend filter (ollama, gguf, hf, all)")
	modelsCmd.Flags().BoolVar(&modelsCheck, "check", false, "probe the backends of the listed models")

	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	logger := log.DefaultLogger()
	out := cmd.OutOrStdout()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	path, err := config.Find(modelsConfig, wd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path, nil)
	if err != nil {
		return err
	}

	tier := cfg.Generation.GPUTier
	if modelsTier != "" {
		if tier, err = domain.NewGPUTier(modelsTier); err != nil {
			return err
		}
	}
	filterName := cfg.Generation.BackendFilter
	if modelsBackend != "" {
		filterName = modelsBackend
	}
	filter, err := domain.ParseBackendFilter(filterName)
	if err != nil {
		return err
	}

	pool := cfg.FilterModels(tier.OrDefault(), filter)
	fmt.Fprintf(out, "%d of %d models fit tier=%s backend=%s\n\n", len(pool), len(cfg.Models), tier.OrDefault(), filter)
	if len(pool) == 0 {
		return nil
	}
	fmt.Fprintln(out, modelTable(pool))

	if !modelsCheck {
		return nil
	}

	manager := backend.New(cfg.BackendConfig(), backend.WithLogger(logger))
	defer func() {
		_ = manager.Close(context.Background())
	}()

	fmt.Fprintln(out)
	failed := 0
	for _, kind := range usedKinds(pool) {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		err := manager.Probe(ctx, kind)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(out, "  ✗ %-7s %v\n", kind, err)
			continue
		}
		fmt.Fprintf(out, "  ✓ %-7s reachable\n", kind)
	}
	if failed > 0 {
		return fmt.Errorf("%d backend(s) unreachable", failed)
	}
	return nil
}

// usedKinds lists the backend kinds of pool in first-use order
func usedKinds(pool []domain.ModelProfile) []domain.BackendKind {
	seen := map[domain.BackendKind]bool{}
	var kinds []domain.BackendKind
	for _, m := range pool {
		if !seen[m.Backend] {
			seen[m.Backend] = true
			kinds = append(kinds, m.Backend)
		}
	}
	return kinds
}
