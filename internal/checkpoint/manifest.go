package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/version"
)

// ManifestName is the run manifest file inside the output directory
const ManifestName = "_run.json"

// manifestVersion is bumped when the manifest layout changes
const manifestVersion = "1.0"

// Run statuses
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Skill statuses
const (
	SkillPending    = "pending"
	SkillInProgress = "in_progress"
	SkillCompleted  = "completed"
	SkillFailed     = "failed"
)

// Manifest describes one run of an output directory
type Manifest struct {
	mu sync.RWMutex

	Version    string                    `json:"version"`
	RunID      string                    `json:"run_id"`
	ConfigHash string                    `json:"config_hash"`
	Status     string                    `json:"status"`
	StartedAt  time.Time                 `json:"started_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
	Skills     map[string]*SkillProgress `json:"skills"`
	Metadata   map[string]string         `json:"metadata,omitempty"`
	Build      version.Info              `json:"build"`
	Error      string                    `json:"error,omitempty"`
}

// SkillProgress tracks one skill of the run
type SkillProgress struct {
	Planned     int       `json:"planned"`
	Completed   int       `json:"completed"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NewManifest starts a manifest for a run whose configuration hashes to
// configHash
func NewManifest(configHash string) *Manifest {
	now := time.Now()
	return &Manifest{
		Version:    manifestVersion,
		RunID:      uuid.NewString(),
		ConfigHash: configHash,
		Status:     StatusRunning,
		StartedAt:  now,
		UpdatedAt:  now,
		Skills:     make(map[string]*SkillProgress),
		Metadata:   make(map[string]string),
		Build:      version.GetInfo(),
	}
}

// ConfigHash fingerprints configuration bytes
func ConfigHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// PlanSkill records that skill has alreadyDone records on disk and planned
// more to generate
func (m *Manifest) PlanSkill(skill string, planned, alreadyDone int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sp, ok := m.Skills[skill]
	if !ok {
		sp = &SkillProgress{Status: SkillPending}
		m.Skills[skill] = sp
	}
	sp.Planned = planned + alreadyDone
	sp.Completed = alreadyDone
	sp.Error = ""
	if planned == 0 {
		sp.Status = SkillCompleted
	} else {
		sp.Status = SkillPending
	}
	m.UpdatedAt = time.Now()
}

// StartSkill marks skill as in progress
func (m *Manifest) StartSkill(skill string) {
	m.updateSkill(skill, func(sp *SkillProgress, now time.Time) {
		sp.Status = SkillInProgress
		if sp.StartedAt.IsZero() {
			sp.StartedAt = now
		}
	})
}

// AddCompleted counts n more finished records for skill
func (m *Manifest) AddCompleted(skill string, n int) {
	m.updateSkill(skill, func(sp *SkillProgress, _ time.Time) {
		sp.Completed += n
	})
}

// FinishSkill marks skill completed, or failed when err is non-nil
func (m *Manifest) FinishSkill(skill string, err error) {
	m.updateSkill(skill, func(sp *SkillProgress, now time.Time) {
		sp.CompletedAt = now
		if err != nil {
			sp.Status = SkillFailed
			sp.Error = err.Error()
			return
		}
		sp.Status = SkillCompleted
		sp.Error = ""
	})
}

func (m *Manifest) updateSkill(skill string, fn func(*SkillProgress, time.Time)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sp, ok := m.Skills[skill]
	if !ok {
		sp = &SkillProgress{Status: SkillPending}
		m.Skills[skill] = sp
	}
	now := time.Now()
	fn(sp, now)
	m.UpdatedAt = now
}

// Finish sets the final run status
func (m *Manifest) Finish(status string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Status = status
	m.Error = ""
	if err != nil {
		m.Error = err.Error()
	}
	m.UpdatedAt = time.Now()
}

// Totals returns the planned and completed record counts over all skills
func (m *Manifest) Totals() (planned, completed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sp := range m.Skills {
		planned += sp.Planned
		completed += sp.Completed
	}
	return planned, completed
}

// Progress is the completed fraction of planned records, 0.0 to 1.0
func (m *Manifest) Progress() float64 {
	planned, completed := m.Totals()
	if planned == 0 {
		return 0
	}
	if completed > planned {
		return 1
	}
	return float64(completed) / float64(planned)
}

// IsComplete reports whether every skill has completed
func (m *Manifest) IsComplete() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sp := range m.Skills {
		if sp.Status != SkillCompleted {
			return false
		}
	}
	return true
}

// SkillIDs returns the tracked skills, sorted
func (m *Manifest) SkillIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.Skills))
	for id := range m.Skills {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Skill returns a copy of the progress of skill
func (m *Manifest) Skill(id string) (SkillProgress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sp, ok := m.Skills[id]
	if !ok {
		return SkillProgress{}, false
	}
	return *sp, true
}

// SetMetadata sets a metadata value
func (m *Manifest) SetMetadata(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
	m.UpdatedAt = time.Now()
}

// GetMetadata gets a metadata value
func (m *Manifest) GetMetadata(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.Metadata[key]
	return value, ok
}

// SaveManifest writes m to dir atomically
func SaveManifest(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create output directory", err)
	}

	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := filepath.Join(dir, ManifestName)
	tmp, err := os.CreateTemp(dir, ManifestName+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to create manifest", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to write manifest", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to write manifest", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to replace manifest", err)
	}
	return nil
}

// LoadManifest reads the manifest of dir. A missing manifest returns
// (nil, nil).
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeCheckpointRead, "failed to read manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestInvalid, "failed to parse manifest "+path, err)
	}
	if m.Skills == nil {
		m.Skills = make(map[string]*SkillProgress)
	}
	return &m, nil
}
