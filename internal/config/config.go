// Package config loads the run configuration: generation settings, the model
// catalogue, the skill list, context-length histograms and backend
// connection settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/cotsynth/internal/backend"
	"github.com/felixgeelhaar/cotsynth/internal/budget"
	"github.com/felixgeelhaar/cotsynth/internal/dataset"
	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/generator"
)

// Config file names tried when no path is given, in order
var SearchPaths = []string{"skills_config.yaml", "cotsynth.yaml"}

// Environment overrides
const (
	EnvOllamaHost = "OLLAMA_HOST"
	EnvOutputDir  = "COTSYNTH_OUTPUT_DIR"
)

// Config is the complete run configuration
type Config struct {
	Generation  Generation                  `yaml:"generation"`
	Models      []domain.ModelProfile       `yaml:"models"`
	Skills      []domain.Skill              `yaml:"skills"`
	CtxProfiles map[string]budget.Histogram `yaml:"ctx_profiles"`
	Backends    Backends                    `yaml:"backends"`

	// Prompts is an optional style file layered over the built-in styles
	Prompts string `yaml:"prompts,omitempty"`

	path string
	raw  []byte
}

// Generation holds the run-wide generation settings
type Generation struct {
	GPUTier              domain.GPUTier `yaml:"gpu_tier"`
	ModelStrategy        string         `yaml:"model_strategy"`
	BackendFilter        string         `yaml:"backend_filter"`
	OutputDir            string         `yaml:"output_dir"`
	OutputFormat         string         `yaml:"output_format"`
	SamplesPerSeed       int            `yaml:"samples_per_seed"`
	CtxMode              string         `yaml:"ctx_mode"`
	FallbackMaxNewTokens int            `yaml:"fallback_max_new_tokens"`
	CheckpointEvery      int            `yaml:"checkpoint_every"`
	MaxRetries           int            `yaml:"max_retries"`
	RetryDelay           time.Duration  `yaml:"retry_delay"`
	Temperature          float64        `yaml:"temperature"`
	TopP                 float64        `yaml:"top_p"`
	TopK                 int            `yaml:"top_k"`
	RepetitionPenalty    float64        `yaml:"repetition_penalty"`

	// Seed seeds model selection and budget draws; 0 picks a time-based seed
	Seed int64 `yaml:"seed"`
}

// Backends holds the connection settings of each backend kind
type Backends struct {
	Ollama struct {
		URL string `yaml:"url"`
	} `yaml:"ollama"`
	GGUF struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
	} `yaml:"gguf"`
	HF struct {
		Command []string `yaml:"command"`
		Env     []string `yaml:"env"`
	} `yaml:"hf"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LoadTimeout    time.Duration `yaml:"load_timeout"`
}

// DefaultGeneration returns the generation defaults
func DefaultGeneration() Generation {
	s := generator.DefaultSettings()
	return Generation{
		GPUTier:              domain.TierConsumer8GB,
		ModelStrategy:        string(domain.StrategyRandom),
		BackendFilter:        string(domain.BackendOllama),
		OutputDir:            "./output",
		OutputFormat:         dataset.FormatParquet,
		SamplesPerSeed:       1,
		CtxMode:              string(domain.CtxProfile),
		FallbackMaxNewTokens: budget.DefaultFallback,
		CheckpointEvery:      50,
		MaxRetries:           2,
		RetryDelay:           time.Second,
		Temperature:          s.Temperature,
		TopP:                 s.TopP,
		TopK:                 s.TopK,
		RepetitionPenalty:    s.RepetitionPenalty,
	}
}

// Find returns the config file to load. An explicit path must exist;
// otherwise SearchPaths are tried in dir.
func Find(explicit, dir string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.NewConfigNotFoundError(explicit)
		}
		return explicit, nil
	}
	for _, name := range SearchPaths {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.NewConfigNotFoundError(strings.Join(SearchPaths, " or "))
}

// Load reads, expands, defaults and validates the config at path. Styles,
// when non-nil, is used to reject skills with an unknown cot_style.
func Load(path string, styles StyleSet) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read configuration", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewFileUnmarshalError(path, "YAML", err)
	}
	cfg.path = path

	cfg.applyEnv()
	if err := cfg.Validate(styles); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration bytes with environment variables expanded and
// defaults applied. It does not validate.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{Generation: DefaultGeneration()}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.raw = data
	cfg.applyDefaults()
	return cfg, nil
}

// Path is the file the config was loaded from
func (c *Config) Path() string { return c.path }

// Raw is the unexpanded file content, used to fingerprint the run
func (c *Config) Raw() []byte { return c.raw }

// PromptsPath is the prompt style file, relative paths resolved against the
// directory of the config file. Empty when none is configured.
func (c *Config) PromptsPath() string {
	if c.Prompts == "" || filepath.IsAbs(c.Prompts) || c.path == "" {
		return c.Prompts
	}
	return filepath.Join(filepath.Dir(c.path), c.Prompts)
}

func (c *Config) applyDefaults() {
	def := DefaultGeneration()
	g := &c.Generation
	if g.GPUTier == "" {
		g.GPUTier = def.GPUTier
	}
	if g.ModelStrategy == "" {
		g.ModelStrategy = def.ModelStrategy
	}
	if g.BackendFilter == "" {
		g.BackendFilter = def.BackendFilter
	}
	if g.OutputDir == "" {
		g.OutputDir = def.OutputDir
	}
	if g.OutputFormat == "" {
		g.OutputFormat = def.OutputFormat
	}
	if g.SamplesPerSeed == 0 {
		g.SamplesPerSeed = def.SamplesPerSeed
	}
	if g.CtxMode == "" {
		g.CtxMode = def.CtxMode
	}
	if g.FallbackMaxNewTokens == 0 {
		g.FallbackMaxNewTokens = def.FallbackMaxNewTokens
	}
	if g.CheckpointEvery == 0 {
		g.CheckpointEvery = def.CheckpointEvery
	}
	if g.MaxRetries == 0 {
		g.MaxRetries = def.MaxRetries
	}

	for i := range c.Models {
		m := &c.Models[i]
		if m.Backend == "" {
			m.Backend = domain.BackendGGUF
		}
		if m.SizeClass == "" {
			m.SizeClass = domain.DefaultSizeClass
		}
		if m.GPUTier == "" {
			m.GPUTier = domain.TierConsumer8GB
		}
	}
}

func (c *Config) applyEnv() {
	if host := os.Getenv(EnvOllamaHost); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		c.Backends.Ollama.URL = host
	}
	if dir := os.Getenv(EnvOutputDir); dir != "" {
		c.Generation.OutputDir = dir
	}
}

// BackendConfig returns the driver settings
func (c *Config) BackendConfig() backend.Config {
	bc := backend.DefaultConfig()
	if c.Backends.Ollama.URL != "" {
		bc.OllamaURL = c.Backends.Ollama.URL
	}
	if c.Backends.GGUF.URL != "" {
		bc.ServerURL = c.Backends.GGUF.URL
	}
	bc.ServerAPIKey = c.Backends.GGUF.APIKey
	bc.WorkerCommand = c.Backends.HF.Command
	bc.WorkerEnv = c.Backends.HF.Env
	if c.Backends.RequestTimeout > 0 {
		bc.RequestTimeout = c.Backends.RequestTimeout
	}
	if c.Backends.LoadTimeout > 0 {
		bc.LoadTimeout = c.Backends.LoadTimeout
	}
	return bc
}

// Settings returns the executor sampling settings
func (c *Config) Settings() generator.Settings {
	g := c.Generation
	mode, _ := domain.ParseCtxMode(g.CtxMode)
	return generator.Settings{
		CtxMode:           mode,
		FallbackTokens:    g.FallbackMaxNewTokens,
		Temperature:       g.Temperature,
		TopP:              g.TopP,
		TopK:              g.TopK,
		RepetitionPenalty: g.RepetitionPenalty,
	}
}

// String describes where the config came from
func (c *Config) String() string {
	return fmt.Sprintf("%s (%d models, %d skills)", c.path, len(c.Models), len(c.Skills))
}
