package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = io.Discard
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.ToSlogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	l := slog.New(handler)
	if config.ServiceName != "" {
		l = l.With("service", config.ServiceName)
	}

	return &Logger{
		slog:   l,
		config: config,
	}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Development creates a logger with development configuration
func Development() *Logger {
	return New(DevelopmentConfig())
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
	}
}

// WithGroup returns a new Logger with a group name that prefixes all attributes
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slog:   l.slog.WithGroup(name),
		config: l.config,
	}
}

// WithError adds error details to the logger.
// Coded errors contribute error_code and suggestions.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(errorArgs(err, "error")...)
}

// WithModel tags entries with the model id in use
func (l *Logger) WithModel(id string) *Logger {
	return l.With("model", id)
}

func errorArgs(err error, msgKey string) []any {
	se, ok := errors.As(err)
	if !ok {
		return []any{msgKey, err.Error()}
	}

	args := []any{
		msgKey, se.Message,
		"error_code", string(se.Code),
	}
	if len(se.Suggestions) > 0 {
		args = append(args, "suggestions", se.Suggestions)
	}
	if se.DocsURL != "" {
		args = append(args, "docs_url", se.DocsURL)
	}
	if se.Cause != nil {
		args = append(args, "cause", se.Cause.Error())
	}
	return args
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// LogError logs err with full details under msg
func (l *Logger) LogError(msg string, err error) {
	if err == nil {
		return
	}
	l.slog.Error(msg, errorArgs(err, "error_message")...)
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.ToSlogLevel())
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// OrDefault returns l, or the process-wide default logger when l is nil
func OrDefault(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return DefaultLogger()
}
