package domain

import (
	"fmt"

	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// Strategy is the rotation policy used to pick a model for the next seed
type Strategy string

const (
	StrategyRandom     Strategy = "random"
	StrategyRoundRobin Strategy = "round_robin"
	StrategyWeighted   Strategy = "weighted"
	StrategyFixed      Strategy = "fixed"
)

// ParseStrategy validates a strategy name
func ParseStrategy(value string) (Strategy, error) {
	s := Strategy(value)
	switch s {
	case StrategyRandom, StrategyRoundRobin, StrategyWeighted, StrategyFixed:
		return s, nil
	default:
		return "", errors.NewUnknownStrategyError(value)
	}
}

// CtxMode selects how the per-seed generation budget is drawn
type CtxMode string

const (
	// CtxProfile draws from the size-class histogram
	CtxProfile CtxMode = "profile"
	// CtxFixed always uses the fallback budget
	CtxFixed CtxMode = "fixed"
	// CtxLongCoT uses the model's reasoning-budget ceiling
	CtxLongCoT CtxMode = "long_cot"
)

// ParseCtxMode validates a ctx mode name. The empty string means profile.
func ParseCtxMode(value string) (CtxMode, error) {
	switch m := CtxMode(value); m {
	case "":
		return CtxProfile, nil
	case CtxProfile, CtxFixed, CtxLongCoT:
		return m, nil
	default:
		return "", errors.NewUnknownCtxModeError(value)
	}
}

// Role is a functional role a model can serve in a run
type Role string

const (
	RoleGenerator Role = "generator"
	RoleVerifier  Role = "verifier"
)

// Validate checks if the role is known
func (r Role) Validate() error {
	switch r {
	case RoleGenerator, RoleVerifier:
		return nil
	default:
		return fmt.Errorf("invalid role %q: must be generator or verifier", string(r))
	}
}

// BackendKind names an inference backend implementation
type BackendKind string

const (
	BackendOllama BackendKind = "ollama"
	BackendGGUF   BackendKind = "gguf"
	BackendHF     BackendKind = "hf"

	// BackendAll is only valid as a pool filter
	BackendAll BackendKind = "all"
)

// ParseBackendKind validates a backend kind (not "all")
func ParseBackendKind(value string) (BackendKind, error) {
	switch k := BackendKind(value); k {
	case BackendOllama, BackendGGUF, BackendHF:
		return k, nil
	default:
		return "", errors.NewUnknownBackendError(value)
	}
}

// ParseBackendFilter validates a pool filter, which also accepts "all"
func ParseBackendFilter(value string) (BackendKind, error) {
	if BackendKind(value) == BackendAll {
		return BackendAll, nil
	}
	return ParseBackendKind(value)
}
