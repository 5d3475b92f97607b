package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a LogLevel. Unknown names
// fall back to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used across brandmesh.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// BrandMeshLogger wraps slog.Logger with brand/invocation scoped attributes and
// helpers for the recurring runtime events (tool calls, model calls, planner
// runs, pipeline stages). With* methods return copies.
type BrandMeshLogger struct {
	logger       *slog.Logger
	level        LogLevel
	attrs        map[string]any
	component    string
	brandID      string
	invocationID string
}

// LoggerConfig configures construction of a BrandMeshLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a BrandMeshLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *BrandMeshLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &BrandMeshLogger{logger: slog.New(handler), level: cfg.Level, attrs: map[string]any{}, component: cfg.Component}
}

// NewSlogLogger creates a BrandMeshLogger with the given level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *BrandMeshLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *BrandMeshLogger) clone() *BrandMeshLogger {
	nl := *l
	nl.attrs = make(map[string]any, len(l.attrs))
	for k, v := range l.attrs {
		nl.attrs[k] = v
	}
	return &nl
}

// With adds a key/value attribute attached to every subsequent entry.
func (l *BrandMeshLogger) With(key string, value any) *BrandMeshLogger {
	nl := l.clone()
	nl.attrs[key] = value
	return nl
}

// WithComponent sets the logical component (planner, pipeline, handoff, ...).
func (l *BrandMeshLogger) WithComponent(c string) *BrandMeshLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithInvocation attaches brand and invocation identifiers.
func (l *BrandMeshLogger) WithInvocation(brandID, invocationID string) *BrandMeshLogger {
	nl := l.clone()
	nl.brandID = brandID
	nl.invocationID = invocationID
	return nl
}

func (l *BrandMeshLogger) buildAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.attrs)+3+len(args)/2)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.brandID != "" {
		attrs = append(attrs, slog.String("brand_id", l.brandID))
	}
	if l.invocationID != "" {
		attrs = append(attrs, slog.String("invocation_id", l.invocationID))
	}
	for k, v := range l.attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}

func (l *BrandMeshLogger) log(level slog.Level, threshold LogLevel, msg string, args ...any) {
	if l.level > threshold {
		return
	}
	l.logger.LogAttrs(context.Background(), level, msg, l.buildAttrs(args)...)
}

// Debug logs at debug level.
func (l *BrandMeshLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *BrandMeshLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *BrandMeshLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *BrandMeshLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, LogLevelError, msg, args...)
}

func outcome(base string, success bool, err error, args []any) (slog.Level, LogLevel, string, []any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if success {
		return slog.LevelInfo, LogLevelInfo, base + ".completed", args
	}
	return slog.LevelError, LogLevelError, base + ".failed", args
}

// LogToolCall records execution details for a tool invocation.
func (l *BrandMeshLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	lvl, threshold, msg, args := outcome("tool.call", success, err, []any{"tool_name", tool, "duration", dur, "success", success})
	l.log(lvl, threshold, msg, args...)
}

// LogLLMCall records model call latency, token usage and success.
func (l *BrandMeshLogger) LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error) {
	lvl, threshold, msg, args := outcome("model.call", success, err, []any{"model", model, "token_count", tokens, "duration", dur, "success", success})
	l.log(lvl, threshold, msg, args...)
}

// LogPlannerRun records aggregate metrics of a multi-step planner run.
func (l *BrandMeshLogger) LogPlannerRun(steps int, truncated bool, dur time.Duration, err error) {
	lvl, threshold, msg, args := outcome("planner.run", err == nil, err, []any{"step_count", steps, "truncated", truncated, "duration", dur})
	l.log(lvl, threshold, msg, args...)
}

// LogPipelineStage records the end of a pipeline stage.
func (l *BrandMeshLogger) LogPipelineStage(requestID, stage string, items int, dur time.Duration, err error) {
	lvl, threshold, msg, args := outcome("pipeline.stage", err == nil, err, []any{"request_id", requestID, "stage", stage, "items", items, "duration", dur})
	l.log(lvl, threshold, msg, args...)
}

// DomainLogger is implemented by loggers that offer the structured domain
// helpers. Components check for it with a type assertion and fall back to
// plain Logger calls.
type DomainLogger interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
	LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error)
	LogPlannerRun(steps int, truncated bool, dur time.Duration, err error)
	LogPipelineStage(requestID, stage string, items int, dur time.Duration, err error)
}

var _ DomainLogger = (*BrandMeshLogger)(nil)

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}
