package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
)

// DiversityN is the n-gram size of the diversity score
const DiversityN = 3

// Group is the record and word count of one skill, model or language
type Group struct {
	Key     string
	Records int
	Words   int
}

// Verification summarizes judge scores. Unscored records are excluded from
// Mean and Median but counted in Unscored.
type Verification struct {
	Verified int
	Unscored int
	Mean     float64
	Median   float64
	Below5   int
}

// Stats summarizes a dataset
type Stats struct {
	Records      int
	Words        int
	Complete     int
	BySkill      []Group
	ByModel      []Group
	ByLanguage   []Group
	Verification *Verification
	Diversity    float64
}

// AvgWords is the mean words per record
func (s Stats) AvgWords() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.Words) / float64(s.Records)
}

// Compute summarizes records
func Compute(records []domain.Record) Stats {
	s := Stats{Records: len(records)}

	bySkill := map[string]*Group{}
	byModel := map[string]*Group{}
	byLanguage := map[string]*Group{}
	var scores []float64
	var verified, unscored int
	texts := make([]string, 0, len(records))

	for _, r := range records {
		s.Words += r.Words
		if r.Complete() {
			s.Complete++
		}
		add(bySkill, r.SkillID, r.Words)
		add(byModel, r.Model, r.Words)
		add(byLanguage, r.Language, r.Words)
		texts = append(texts, r.SyntheticReasoning)

		if r.Verified {
			verified++
			if r.VerificationScore == domain.UnscoredVerification {
				unscored++
			} else {
				scores = append(scores, r.VerificationScore)
			}
		}
	}

	s.BySkill = sorted(bySkill)
	s.ByModel = sorted(byModel)
	s.ByLanguage = sorted(byLanguage)
	s.Diversity = Diversity(texts, DiversityN)

	if verified > 0 {
		v := &Verification{Verified: verified, Unscored: unscored}
		if len(scores) > 0 {
			sort.Float64s(scores)
			var sum float64
			for _, sc := range scores {
				sum += sc
				if sc < 5 {
					v.Below5++
				}
			}
			v.Mean = sum / float64(len(scores))
			v.Median = median(scores)
		}
		s.Verification = v
	}
	return s
}

func add(groups map[string]*Group, key string, words int) {
	g, ok := groups[key]
	if !ok {
		g = &Group{Key: key}
		groups[key] = g
	}
	g.Records++
	g.Words += words
}

func sorted(groups map[string]*Group) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// scores must be sorted
func median(scores []float64) float64 {
	n := len(scores)
	if n%2 == 1 {
		return scores[n/2]
	}
	return (scores[n/2-1] + scores[n/2]) / 2
}

// Diversity is the ratio of distinct to total word n-grams over texts.
// Texts shorter than n contribute nothing; no n-grams at all scores 0.
func Diversity(texts []string, n int) float64 {
	if n <= 0 {
		return 0
	}
	seen := make(map[string]struct{})
	total := 0
	for _, text := range texts {
		words := strings.Fields(text)
		for i := 0; i+n <= len(words); i++ {
			seen[strings.Join(words[i:i+n], "\x00")] = struct{}{}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(len(seen)) / float64(total)
}

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Render formats s for the terminal
func Render(s Stats) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("DATASET STATISTICS") + "\n\n")
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Total records :"), s.Records)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Complete      :"), s.Complete)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Total words   :"), s.Words)
	fmt.Fprintf(&b, "%s %.0f\n", labelStyle.Render("Avg words/rec :"), s.AvgWords())
	fmt.Fprintf(&b, "%s %.3f\n", labelStyle.Render("3-gram divers.:"), s.Diversity)

	b.WriteString("\n" + groupTable("Skill", s.BySkill, true) + "\n")
	b.WriteString("\n" + groupTable("Model", s.ByModel, false) + "\n")
	b.WriteString("\n" + groupTable("Language", s.ByLanguage, false) + "\n")

	if v := s.Verification; v != nil {
		b.WriteString("\n" + titleStyle.Render("Verification scores") + "\n")
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("  Verified:"), v.Verified)
		fmt.Fprintf(&b, "%s %.1f\n", labelStyle.Render("  Mean    :"), v.Mean)
		fmt.Fprintf(&b, "%s %.1f\n", labelStyle.Render("  Median  :"), v.Median)
		fmt.Fprintf(&b, "%s %d records\n", labelStyle.Render("  <5      :"), v.Below5)
		if v.Unscored > 0 {
			fmt.Fprintf(&b, "%s %d records\n", labelStyle.Render("  Unscored:"), v.Unscored)
		}
	}
	return b.String()
}

func groupTable(title string, groups []Group, withWords bool) string {
	headers := []string{title, "Records"}
	if withWords {
		headers = append(headers, "Words")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, g := range groups {
		cells := []string{g.Key, fmt.Sprint(g.Records)}
		if withWords {
			cells = append(cells, fmt.Sprint(g.Words))
		}
		t.Row(cells...)
	}
	return t.String()
}
