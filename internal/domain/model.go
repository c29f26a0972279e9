package domain

import "fmt"

// DefaultSizeClass is assumed when a model does not declare one
const DefaultSizeClass = "8b"

// ModelProfile describes one candidate model. Loaded once from
// configuration and never modified during a run.
type ModelProfile struct {
	ID      string      `yaml:"id" json:"id"`
	Backend BackendKind `yaml:"backend" json:"backend"`

	// OllamaModel is the tag pulled and run by the ollama backend
	OllamaModel string `yaml:"ollama_model,omitempty" json:"ollama_model,omitempty"`
	// ServerModel is the model name sent to an OpenAI-compatible gguf server
	ServerModel string `yaml:"server_model,omitempty" json:"server_model,omitempty"`
	// HFRepo and Quant are passed to the hf worker process
	HFRepo string `yaml:"hf_repo,omitempty" json:"hf_repo,omitempty"`
	Quant  string `yaml:"quant,omitempty" json:"quant,omitempty"`

	SizeClass string  `yaml:"size_class" json:"size_class"`
	Ctx       int     `yaml:"ctx" json:"ctx"`
	MaxCoT    int     `yaml:"max_cot" json:"max_cot"`
	Roles     []Role  `yaml:"roles,omitempty" json:"roles,omitempty"`
	GPUTier   GPUTier `yaml:"gpu_tier" json:"gpu_tier"`
	VRAMEst   float64 `yaml:"vram_est" json:"vram_est"`
}

// HasRole reports whether the profile may serve role.
// A profile without roles is a generator only.
func (m ModelProfile) HasRole(role Role) bool {
	if len(m.Roles) == 0 {
		return role == RoleGenerator
	}
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// BackendModel returns the name the backend knows this model by
func (m ModelProfile) BackendModel() string {
	switch m.Backend {
	case BackendOllama:
		if m.OllamaModel != "" {
			return m.OllamaModel
		}
	case BackendGGUF:
		if m.ServerModel != "" {
			return m.ServerModel
		}
	case BackendHF:
		if m.HFRepo != "" {
			return m.HFRepo
		}
	}
	return m.ID
}

// Validate checks the fields a run depends on
func (m ModelProfile) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("model id cannot be empty")
	}
	if _, err := ParseBackendKind(string(m.Backend)); err != nil {
		return fmt.Errorf("model %s: %w", m.ID, err)
	}
	if m.MaxCoT < 0 || m.Ctx < 0 {
		return fmt.Errorf("model %s: ctx and max_cot must not be negative", m.ID)
	}
	if m.Ctx > 0 && m.MaxCoT > m.Ctx {
		return fmt.Errorf("model %s: max_cot %d exceeds ctx %d", m.ID, m.MaxCoT, m.Ctx)
	}
	for _, r := range m.Roles {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("model %s: %w", m.ID, err)
		}
	}
	return nil
}

// ModelIDs returns the ids of models in order
func ModelIDs(models []ModelProfile) []string {
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return ids
}
