// Package progress draws the run progress line from the run manifest.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/cotsynth/internal/checkpoint"
)

// Indicator renders progress and ETA of a run
type Indicator struct {
	writer      io.Writer
	manifest    *checkpoint.Manifest
	startTime   time.Time
	baseline    int
	mu          sync.Mutex
	showSpinner bool
	spinnerIdx  int
	stopChan    chan struct{}
	stopOnce    sync.Once
	isCI        bool
	now         func() time.Time
}

// Config holds configuration for progress indicator
type Config struct {
	Writer      io.Writer
	ShowSpinner bool
	IsCI        bool // disables the animated line
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewIndicator creates a new progress indicator
func NewIndicator(cfg Config) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	if !cfg.IsCI {
		cfg.IsCI = os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
	}

	return &Indicator{
		writer:      cfg.Writer,
		startTime:   time.Now(),
		showSpinner: cfg.ShowSpinner && !cfg.IsCI,
		stopChan:    make(chan struct{}),
		isCI:        cfg.IsCI,
		now:         time.Now,
	}
}

// SetManifest sets the manifest to track. Records already completed at this
// point are resumed work and do not count toward the generation rate.
func (p *Indicator) SetManifest(m *checkpoint.Manifest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manifest = m
	_, p.baseline = m.Totals()
	p.startTime = p.now()
}

// Start begins the animated line
func (p *Indicator) Start() {
	if p.showSpinner {
		go p.spinnerLoop()
	}
}

// Stop ends the animated line
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		if p.showSpinner {
			close(p.stopChan)
			p.mu.Lock()
			defer p.mu.Unlock()
			fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", 100))
		}
	})
}

func (p *Indicator) spinnerLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.manifest != nil {
				fmt.Fprint(p.writer, "\r"+spinnerFrames[p.spinnerIdx]+" "+p.line())
			}
			p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
			p.mu.Unlock()
		}
	}
}

// Report prints the progress line once. Without the animated line this is
// how progress reaches the terminal.
func (p *Indicator) Report() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.manifest == nil || p.showSpinner {
		return
	}
	fmt.Fprintln(p.writer, p.line())
}

// Line renders the current progress line
func (p *Indicator) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.manifest == nil {
		return ""
	}
	return p.line()
}

func (p *Indicator) line() string {
	planned, completed := p.manifest.Totals()
	progress := p.manifest.Progress()
	elapsed := p.now().Sub(p.startTime)

	var eta string
	if done := completed - p.baseline; done > 0 && completed < planned {
		perRecord := elapsed / time.Duration(done)
		eta = fmt.Sprintf(" | ETA: %s", formatDuration(perRecord*time.Duration(planned-completed)))
	}

	barWidth := 30
	filled := int(float64(barWidth) * progress)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	return fmt.Sprintf("[%s] %.1f%% | %d/%d records | %s%s",
		bar,
		progress*100,
		completed,
		planned,
		formatDuration(elapsed),
		eta,
	)
}

// PrintSummary prints the per-skill outcome of the run
func (p *Indicator) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.manifest == nil {
		return
	}

	planned, completed := p.manifest.Totals()
	elapsed := p.now().Sub(p.startTime)

	fmt.Fprintln(p.writer)
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(p.writer, "Run Summary")
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(p.writer, "Run:             %s\n", p.manifest.RunID)
	fmt.Fprintf(p.writer, "Status:          %s\n", p.manifest.Status)
	fmt.Fprintf(p.writer, "Records:         %d/%d\n", completed, planned)
	fmt.Fprintf(p.writer, "Total Time:      %s\n", formatDuration(elapsed))
	if done := completed - p.baseline; done > 0 {
		fmt.Fprintf(p.writer, "Avg Time/Record: %s\n", formatDuration(elapsed/time.Duration(done)))
	}
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")

	for _, id := range p.manifest.SkillIDs() {
		sp, _ := p.manifest.Skill(id)
		fmt.Fprintf(p.writer, "  %s %-28s %d/%d", statusSymbol(sp.Status), id, sp.Completed, sp.Planned)
		if sp.Error != "" {
			fmt.Fprintf(p.writer, " - %s", sp.Error)
		}
		fmt.Fprintln(p.writer)
	}
}

// PrintResumeInfo prints what a resumed run already has
func (p *Indicator) PrintResumeInfo(records int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	if p.manifest != nil {
		fmt.Fprintf(p.writer, "Resuming: %s\n", p.manifest.RunID)
	} else {
		fmt.Fprintln(p.writer, "Resuming")
	}
	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	fmt.Fprintf(p.writer, "  Records on disk: %d\n", records)
	if p.manifest != nil {
		planned, completed := p.manifest.Totals()
		fmt.Fprintf(p.writer, "  Remaining:       %d\n", max(0, planned-completed))
	}
	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	fmt.Fprintln(p.writer)
}

func statusSymbol(status string) string {
	switch status {
	case checkpoint.SkillCompleted:
		return "✓"
	case checkpoint.SkillFailed:
		return "✗"
	case checkpoint.SkillInProgress:
		return "▶"
	default:
		return "⟲"
	}
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
