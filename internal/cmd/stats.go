package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/cotsynth/internal/checkpoint"
	"github.com/felixgeelhaar/cotsynth/internal/dataset"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

var statsCmd = &cobra.Command{
	Use:   "stats [path]",
	Short: "Summarize a generated dataset",
	Long: `Print record, word, language and verification statistics of a dataset.

path is a parquet or JSONL dataset or an output directory. For a directory
the final synth.parquet or synth.jsonl is read, or the checkpoint log when
the run has not finished.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "./output"
		if len(args) == 1 {
			path = args[0]
		}
		records, source, err := loadRecords(path, statsCheckpoint)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d records)\n\n", source, len(records))
		fmt.Fprintln(cmd.OutOrStdout(), dataset.Render(dataset.Compute(records)))
		return nil
	},
}

var statsCheckpoint bool

func init() {
	statsCmd.Flags().BoolVar(&statsCheckpoint, "checkpoint", false, "read the checkpoint log even when a dataset exists")
	rootCmd.AddCommand(statsCmd)
}

// loadRecords reads the records at path and reports which file they came from
func loadRecords(path string, preferCheckpoint bool) ([]domain.Record, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", errors.New(errors.ErrCodeFileNotFound, "no dataset at "+path)
	}
	if !info.IsDir() {
		records, err := readDataset(path)
		return records, path, err
	}

	if !preferCheckpoint {
		for _, name := range []string{dataset.ParquetName, dataset.JSONLName} {
			final := filepath.Join(path, name)
			if _, err := os.Stat(final); err == nil {
				records, err := readDataset(final)
				return records, final, err
			}
		}
	}

	store := checkpoint.NewStore(path, log.DefaultLogger())
	if _, err := os.Stat(store.Path()); err != nil {
		return nil, "", errors.New(errors.ErrCodeFileNotFound, "no dataset or checkpoint in "+path).
			WithSuggestion("Run 'cotsynth generate --output-dir " + path + "' first")
	}
	records, err := store.Load()
	return records, store.Path(), err
}

func readDataset(path string) ([]domain.Record, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return dataset.ReadParquet(path)
	}
	return dataset.ReadJSONL(path)
}
