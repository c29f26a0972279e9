package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound      ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid       ErrorCode = "CONFIG-002"
	ErrCodeUnknownModel        ErrorCode = "CONFIG-003"
	ErrCodeUnknownStrategy     ErrorCode = "CONFIG-004"
	ErrCodeEmptyModelPool      ErrorCode = "CONFIG-005"
	ErrCodeUnknownCtxMode      ErrorCode = "CONFIG-006"
	ErrCodeUnknownBackend      ErrorCode = "CONFIG-007"
	ErrCodeNoMatchingSkills    ErrorCode = "CONFIG-008"
	ErrCodeUnknownOutputFormat ErrorCode = "CONFIG-009"

	// Backend errors (BACKEND-001 to BACKEND-099)
	ErrCodeBackendUnavailable ErrorCode = "BACKEND-001"
	ErrCodeBackendResponse    ErrorCode = "BACKEND-002"
	ErrCodeModelNotLoaded     ErrorCode = "BACKEND-003"
	ErrCodeModelPullFailed    ErrorCode = "BACKEND-004"
	ErrCodeBackendTimeout     ErrorCode = "BACKEND-005"

	// Checkpoint errors (CHECKPOINT-001 to CHECKPOINT-099)
	ErrCodeCheckpointRead  ErrorCode = "CHECKPOINT-001"
	ErrCodeCheckpointWrite ErrorCode = "CHECKPOINT-002"
	ErrCodeManifestInvalid ErrorCode = "CHECKPOINT-003"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
)

const docsBase = "https://github.com/felixgeelhaar/cotsynth#"

// SynthError is an error with a stable code, optional suggestions and a docs link
type SynthError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *SynthError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *SynthError) Unwrap() error {
	return e.Cause
}

// Category returns the code prefix ("CONFIG", "BACKEND", ...)
func (e *SynthError) Category() string {
	code := string(e.Code)
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}

// New creates a new SynthError
func New(code ErrorCode, message string) *SynthError {
	return &SynthError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new SynthError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *SynthError {
	return &SynthError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *SynthError) WithSuggestion(suggestion string) *SynthError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *SynthError) WithSuggestions(suggestions ...string) *SynthError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *SynthError) WithDocs(url string) *SynthError {
	e.DocsURL = url
	return e
}

// As finds the first SynthError in err's chain
func As(err error) (*SynthError, bool) {
	var se *SynthError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains a SynthError with the given code
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *SynthError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

// IsConfig reports whether err is a configuration error
func IsConfig(err error) bool {
	se, ok := As(err)
	return ok && se.Category() == "CONFIG"
}

// IsBackend reports whether err is a backend error
func IsBackend(err error) bool {
	se, ok := As(err)
	return ok && se.Category() == "BACKEND"
}

// Common error constructors

// NewConfigNotFoundError creates a missing configuration file error
func NewConfigNotFoundError(path string) *SynthError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithSuggestion("Pass --config <file> or create skills_config.yaml in the working directory").
		WithDocs(docsBase + "configuration")
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(details string) *SynthError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithDocs(docsBase + "configuration")
}

// NewUnknownModelError creates an unknown model id error
func NewUnknownModelError(id string, available []string) *SynthError {
	return New(ErrCodeUnknownModel, fmt.Sprintf("model %q not found", id)).
		WithSuggestion(fmt.Sprintf("Available: %s", strings.Join(available, ", "))).
		WithSuggestion("Run 'cotsynth models' to list eligible models")
}

// NewUnknownStrategyError creates an unknown rotation strategy error
func NewUnknownStrategyError(strategy string) *SynthError {
	return New(ErrCodeUnknownStrategy, fmt.Sprintf("unknown model strategy: %s", strategy)).
		WithSuggestion("Use one of: random, round_robin, weighted, fixed")
}

// NewUnknownCtxModeError creates an unknown context mode error
func NewUnknownCtxModeError(mode string) *SynthError {
	return New(ErrCodeUnknownCtxMode, fmt.Sprintf("unknown ctx mode: %s", mode)).
		WithSuggestion("Use one of: profile, fixed, long_cot")
}

// NewUnknownBackendError creates an unknown backend kind error
func NewUnknownBackendError(kind string) *SynthError {
	return New(ErrCodeUnknownBackend, fmt.Sprintf("unknown backend: %s", kind)).
		WithSuggestion("Use one of: ollama, gguf, hf")
}

// NewEmptyModelPoolError creates an empty eligible pool error
func NewEmptyModelPoolError(tier, backendFilter string) *SynthError {
	return New(ErrCodeEmptyModelPool, fmt.Sprintf("no models for tier=%q backend=%q", tier, backendFilter)).
		WithSuggestion("Use --backend all to include every backend").
		WithSuggestion("Raise --gpu-tier if your hardware allows it")
}

// NewNoMatchingSkillsError creates an error for a skill filter that matched nothing
func NewNoMatchingSkillsError(requested, available []string) *SynthError {
	return New(ErrCodeNoMatchingSkills, fmt.Sprintf("no matching skills for %s", strings.Join(requested, ", "))).
		WithSuggestion(fmt.Sprintf("Available: %s", strings.Join(available, ", ")))
}

// NewBackendUnavailableError creates a backend connectivity error
func NewBackendUnavailableError(backend string, cause error) *SynthError {
	return Wrap(ErrCodeBackendUnavailable, fmt.Sprintf("%s backend is not reachable", backend), cause).
		WithSuggestion("Make sure the inference server is running (e.g. 'ollama serve')").
		WithSuggestion("Check the backend url in the configuration or OLLAMA_HOST")
}

// NewModelNotLoadedError creates an error for generate calls without a loaded model
func NewModelNotLoadedError() *SynthError {
	return New(ErrCodeModelNotLoaded, "no model loaded")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *SynthError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
