package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/cotsynth/internal/budget"
	"github.com/felixgeelhaar/cotsynth/internal/checkpoint"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
	"github.com/felixgeelhaar/cotsynth/internal/pipeline"
	"github.com/felixgeelhaar/cotsynth/internal/random"
	"github.com/felixgeelhaar/cotsynth/internal/router"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a generation run would do",
	Long: `Show the skills, model pool, budget distributions and record counts of a
generation run without loading any model. Same flags as 'cotsynth generate'.

With --resume, records already in the checkpoint log are subtracted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := planFlags.resolve(log.DefaultLogger())
		if err != nil {
			return err
		}
		return printPlan(cmd.OutOrStdout(), plan, &planFlags, planResume)
	},
}

var (
	planFlags  runFlags
	planResume bool
)

func init() {
	planFlags.register(planCmd.Flags())
	planCmd.Flags().BoolVar(&planResume, "resume", false, "subtract records already in the checkpoint log")

	rootCmd.AddCommand(planCmd)
}

var (
	planTitle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	planLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	planHeader = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true).Padding(0, 1)
	planCell   = lipgloss.NewStyle().Padding(0, 1)
	planNote   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// printPlan renders the generation plan of p
func printPlan(w io.Writer, p *runPlan, f *runFlags, resume bool) error {
	g := p.cfg.Generation

	selector, err := router.NewSelector(p.pool, p.strategy, random.New(g.Seed))
	if err != nil {
		return err
	}

	var prior []domain.Record
	if resume {
		prior, err = checkpoint.NewStore(g.OutputDir, log.DefaultLogger()).Load()
		if err != nil {
			return err
		}
	}
	plans, err := pipeline.New(pipeline.Deps{Seeds: p.seeds}, pipeline.Options{
		Skills:         p.skills,
		MaxSeeds:       f.maxSeeds,
		SamplesPerSeed: g.SamplesPerSeed,
	}).Plan(prior)
	if err != nil {
		return err
	}

	maxSeeds := "all"
	if f.maxSeeds > 0 {
		maxSeeds = fmt.Sprint(f.maxSeeds)
	}
	verifier := "none"
	if p.verifier != nil {
		verifier = p.verifier.ID
	}
	ctxMode := string(p.ctxMode)
	if p.ctxMode == domain.CtxFixed {
		ctxMode = fmt.Sprintf("%s (%d tokens)", p.ctxMode, g.FallbackMaxNewTokens)
	}

	fmt.Fprintln(w, planTitle.Render("GENERATION PLAN"))
	fmt.Fprintln(w)
	line := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", planLabel.Render(fmt.Sprintf("  %-16s:", label)), value)
	}
	line("Skills", joinIDs(domain.SkillIDs(p.skills)))
	line("GPU tier", string(p.tier))
	line("Backend", string(p.filter))
	line("Model strategy", selector.Describe())
	line("Context mode", ctxMode)
	line("Verifier", verifier)
	line("Samples/seed", fmt.Sprint(g.SamplesPerSeed))
	line("Max seeds/skill", maxSeeds)
	line("Output", fmt.Sprintf("%s (%s)", g.OutputDir, g.OutputFormat))
	line("Resume", fmt.Sprint(resume))
	if p.custom > 0 {
		line("Custom seeds", fmt.Sprintf("%s (%d seeds)", f.customSeeds, p.custom))
	}

	if p.ctxMode == domain.CtxProfile {
		fmt.Fprintln(w)
		fmt.Fprintln(w, planTitle.Render("Context-length distributions"))
		for _, class := range sizeClasses(p.pool) {
			fmt.Fprintf(w, "  %5s: %s\n", class, describeHistogram(p.cfg.CtxProfiles[class]))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, modelTable(p.pool))

	fmt.Fprintln(w)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Skill", "Seeds", "Records", "Done", "To generate").
		StyleFunc(planStyle)
	todo := 0
	for _, sp := range plans {
		t.Row(sp.Skill.ID, fmt.Sprint(sp.Seeds), fmt.Sprint(sp.Records), fmt.Sprint(sp.Done), fmt.Sprint(len(sp.Todo)))
		todo += len(sp.Todo)
	}
	fmt.Fprintln(w, t.String())
	fmt.Fprintf(w, "\n  TOTAL: %d records, %d to generate\n", pipeline.TotalRecords(plans), todo)
	fmt.Fprintln(w, planNote.Render("\n  [DRY RUN] No generation performed."))
	return nil
}

// modelTable renders the model pool
func modelTable(pool []domain.ModelProfile) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Model", "Backend", "Size", "Ctx", "Max CoT", "VRAM", "Tier").
		StyleFunc(planStyle)
	for _, m := range pool {
		vram := "?"
		if m.VRAMEst > 0 {
			vram = fmt.Sprintf("%.1fG", m.VRAMEst)
		}
		t.Row(m.ID, string(m.Backend), m.SizeClass, fmt.Sprint(m.Ctx), fmt.Sprint(m.MaxCoT), vram, string(m.GPUTier))
	}
	return t.String()
}

func planStyle(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return planHeader
	}
	return planCell
}

func sizeClasses(pool []domain.ModelProfile) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range pool {
		if !seen[m.SizeClass] {
			seen[m.SizeClass] = true
			out = append(out, m.SizeClass)
		}
	}
	sort.Strings(out)
	return out
}

// describeHistogram formats buckets as "512tok:20%  1024tok:80%"
func describeHistogram(h budget.Histogram) string {
	if len(h) == 0 {
		return "(no profile, fallback budget)"
	}
	buckets := h.Buckets()
	parts := make([]string, len(buckets))
	for i, b := range buckets {
		parts[i] = fmt.Sprintf("%dtok:%.0f%%", b, h[b]*100)
	}
	return strings.Join(parts, "  ")
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ", ")
}
