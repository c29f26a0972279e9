package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ConfigError indicates a fatal configuration problem (unknown model,
	// strategy or ctx mode, empty model pool, unreadable config file)
	ConfigError = 3

	// CheckpointError indicates the checkpoint log or run manifest could not
	// be read or written
	CheckpointError = 4

	// BackendError indicates the inference backend could not be reached or
	// a model could not be materialized
	BackendError = 6

	// Interrupted indicates the run was stopped by SIGINT/SIGTERM; the
	// checkpoint was flushed and the run can be resumed
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Coded errors are classified by category; plain errors fall back to
// message matching for cobra's usage errors.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	if se, ok := errors.As(err); ok {
		switch se.Category() {
		case "CONFIG":
			return ConfigError
		case "BACKEND":
			return BackendError
		case "CHECKPOINT":
			return CheckpointError
		}
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "required flag") {
		return UsageError
	}
	if strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ConfigError:
		return "Configuration error"
	case CheckpointError:
		return "Checkpoint error"
	case BackendError:
		return "Inference backend error"
	case Interrupted:
		return "Interrupted (resume with --resume)"
	default:
		return "Unknown error"
	}
}
