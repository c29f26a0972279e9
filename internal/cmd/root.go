package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/cotsynth/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "cotsynth",
	Short: "Synthetic chain-of-thought dataset generator",
	Long: `cotsynth generates synthetic chain-of-thought training records from seed
questions using locally hosted models. Seeds are spread over a pool of models,
grouped so each model loads once per skill, checkpointed as they complete and
written out as JSONL or CSV.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		log.SetDefaultLogger(logger)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// SIGINT/SIGTERM
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

func newLogger(cmd *cobra.Command) (*log.Logger, error) {
	levelStr, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	formatStr, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	format, err := log.ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	cfg := log.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.AddSource = level == log.LevelDebug
	return log.New(cfg), nil
}
