package backend

import (
	"time"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

// Config holds the connection settings of every driver
type Config struct {
	OllamaURL      string
	ServerURL      string
	ServerAPIKey   string
	WorkerCommand  []string
	WorkerEnv      []string
	RequestTimeout time.Duration
	LoadTimeout    time.Duration
}

// DefaultConfig returns local defaults. Generation of a long chain can take
// several minutes on consumer GPUs.
func DefaultConfig() Config {
	return Config{
		OllamaURL:      DefaultOllamaURL,
		ServerURL:      DefaultServerURL,
		RequestTimeout: 10 * time.Minute,
		LoadTimeout:    5 * time.Minute,
	}
}

// NewDrivers builds one driver per backend kind
func NewDrivers(cfg Config, logger *log.Logger) map[domain.BackendKind]Backend {
	return map[domain.BackendKind]Backend{
		domain.BackendOllama: NewOllama(cfg.OllamaURL, cfg.RequestTimeout, cfg.LoadTimeout, logger),
		domain.BackendGGUF:   NewOpenAICompat(cfg.ServerURL, cfg.ServerAPIKey, cfg.RequestTimeout),
		domain.BackendHF:     NewWorker(cfg.WorkerCommand, cfg.WorkerEnv, logger),
	}
}

// New builds a Manager with every driver configured from cfg
func New(cfg Config, opts ...ManagerOption) *Manager {
	m := NewManager(nil, opts...)
	m.drivers = NewDrivers(cfg, m.logger)
	return m
}
