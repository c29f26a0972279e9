package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/cotsynth/internal/checkpoint"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect the checkpoint of a run",
	Long: `Inspect the checkpoint left in an output directory.

A run appends every finished record to _checkpoint.jsonl and keeps its
status in _run.json. Continue an interrupted run with 'cotsynth generate --resume'.

Examples:
  cotsynth checkpoint show
  cotsynth checkpoint show ./output`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show [output-dir]",
	Short: "Show run status and the records in the checkpoint log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "./output"
		if len(args) == 1 {
			dir = args[0]
		}
		return showCheckpoint(cmd.OutOrStdout(), dir)
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func showCheckpoint(w io.Writer, dir string) error {
	records, err := checkpoint.NewStore(dir, log.DefaultLogger()).Load()
	if err != nil {
		return err
	}
	manifest, err := checkpoint.LoadManifest(dir)
	if err != nil {
		return err
	}
	if manifest == nil && len(records) == 0 {
		fmt.Fprintf(w, "No checkpoint in %s.\n", dir)
		return nil
	}

	if manifest != nil {
		fmt.Fprintf(w, "%s Run %s\n", statusIcon(manifest.Status), manifest.RunID)
		fmt.Fprintf(w, "   Status:   %s\n", manifest.Status)
		fmt.Fprintf(w, "   Started:  %s\n", manifest.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "   Updated:  %s\n", manifest.UpdatedAt.Format(time.RFC3339))
		if manifest.ConfigHash != "" {
			fmt.Fprintf(w, "   Config:   %s\n", manifest.ConfigHash)
		}
		if strategy, ok := manifest.GetMetadata("strategy"); ok {
			fmt.Fprintf(w, "   Strategy: %s\n", strategy)
		}
		planned, completed := manifest.Totals()
		fmt.Fprintf(w, "   Progress: %d/%d (%.1f%%)\n", completed, planned, manifest.Progress()*100)
		if manifest.Error != "" {
			fmt.Fprintf(w, "   Error:    %s\n", manifest.Error)
		}

		fmt.Fprintln(w, "\n   Skills:")
		for _, id := range manifest.SkillIDs() {
			sp, _ := manifest.Skill(id)
			fmt.Fprintf(w, "   %s %-20s %d/%d\n", statusIcon(sp.Status), id, sp.Completed, sp.Planned)
		}
	}

	complete := 0
	for _, r := range records {
		if r.Complete() {
			complete++
		}
	}
	fmt.Fprintf(w, "\n   Log: %d records (%d complete) in %s\n", len(records), complete, checkpoint.LogName)
	counts := checkpoint.CountBySkill(records)
	for _, skill := range sortedKeys(counts) {
		fmt.Fprintf(w, "     %-20s %d\n", skill, counts[skill])
	}
	if manifest != nil && manifest.Status != checkpoint.StatusCompleted {
		fmt.Fprintln(w, "\n   Continue with: cotsynth generate --resume --output-dir "+dir)
	}
	return nil
}

func statusIcon(status string) string {
	switch status {
	case checkpoint.StatusCompleted:
		return "✓"
	case checkpoint.StatusFailed:
		return "✗"
	case checkpoint.StatusRunning, checkpoint.SkillInProgress:
		return "⋯"
	case checkpoint.StatusInterrupted:
		return "⏸"
	default:
		return "○"
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
