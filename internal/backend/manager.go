package backend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

// State of the resident model slot
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateUnloading
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// Manager holds at most one loaded model and routes calls to the driver of
// its backend kind. Loading a different model unloads the current one first.
// A Manager has a single owner and is not safe for concurrent use.
type Manager struct {
	drivers  map[domain.BackendKind]Backend
	logger   *log.Logger
	observer LoadObserver

	state   State
	current domain.ModelProfile
	active  Backend
	loads   int
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the manager logger
func WithLogger(l *log.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithObserver reports load attempts to o
func WithObserver(o LoadObserver) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

// NewManager creates a manager over drivers keyed by backend kind
func NewManager(drivers map[domain.BackendKind]Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		drivers: drivers,
		state:   StateUnloaded,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.OrDefault(m.logger)
	return m
}

// Load makes profile the resident model
func (m *Manager) Load(ctx context.Context, profile domain.ModelProfile) error {
	if m.state == StateReady && m.current.ID == profile.ID {
		return nil
	}

	driver, ok := m.drivers[profile.Backend]
	if !ok {
		return errors.NewUnknownBackendError(string(profile.Backend))
	}

	if m.state != StateUnloaded {
		if err := m.Unload(ctx); err != nil {
			m.logger.WithError(err).Warn("unload before load failed", "model", m.current.ID)
		}
	}

	logger := m.logger.WithModel(profile.ID).With("backend", string(profile.Backend))
	logger.Info("loading model", "backend_model", profile.BackendModel())

	m.state = StateLoading
	start := time.Now()
	err := driver.Load(ctx, profile)
	elapsed := time.Since(start)
	if m.observer != nil {
		m.observer.ObserveLoad(profile.ID, profile.Backend, elapsed, err)
	}
	if err != nil {
		m.state = StateUnloaded
		return err
	}

	m.state = StateReady
	m.current = profile
	m.active = driver
	m.loads++
	logger.Info("model ready", "seconds", elapsed.Round(time.Millisecond).Seconds())
	return nil
}

// Generate runs one completion on the resident model
func (m *Manager) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	if m.state != StateReady {
		return "", errors.NewModelNotLoadedError()
	}
	return m.active.Generate(ctx, messages, opts)
}

// Unload releases the resident model. The slot is empty afterwards even when
// the driver reports an error.
func (m *Manager) Unload(ctx context.Context) error {
	if m.state == StateUnloaded || m.active == nil {
		m.state = StateUnloaded
		return nil
	}

	m.logger.Info("unloading model", "model", m.current.ID)
	m.state = StateUnloading
	err := m.active.Unload(ctx)

	m.state = StateUnloaded
	m.active = nil
	m.current = domain.ModelProfile{}
	if err != nil {
		return fmt.Errorf("unload: %w", err)
	}
	return nil
}

// Close unloads the resident model and releases driver resources
func (m *Manager) Close(ctx context.Context) error {
	err := m.Unload(ctx)
	for _, d := range m.drivers {
		if c, ok := d.(interface{ Close() error }); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	return err
}

// State returns the state of the model slot
func (m *Manager) State() State {
	return m.state
}

// Current returns the resident model, if any
func (m *Manager) Current() (domain.ModelProfile, bool) {
	if m.state != StateReady {
		return domain.ModelProfile{}, false
	}
	return m.current, true
}

// Loads is the number of successful load transitions
func (m *Manager) Loads() int {
	return m.loads
}

// Kinds lists the backend kinds with a driver
func (m *Manager) Kinds() []domain.BackendKind {
	kinds := make([]domain.BackendKind, 0, len(m.drivers))
	for k := range m.drivers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Probe checks that the driver for kind is reachable
func (m *Manager) Probe(ctx context.Context, kind domain.BackendKind) error {
	driver, ok := m.drivers[kind]
	if !ok {
		return errors.NewUnknownBackendError(string(kind))
	}
	if p, ok := driver.(Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}
