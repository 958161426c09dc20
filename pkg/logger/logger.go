// Package logger provides structured logging utilities.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats accepted by WithFormat.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

type options struct {
	format      string
	outputPaths []string
}

// Option configures New.
type Option func(*options)

// WithFormat selects JSON lines (the default) or human-readable console
// output.
func WithFormat(format string) Option {
	return func(o *options) { o.format = strings.ToLower(format) }
}

// WithOutputPaths replaces the default stdout sink.
func WithOutputPaths(paths ...string) Option {
	return func(o *options) { o.outputPaths = paths }
}

// New creates a structured logger. Unknown levels fall back to info.
func New(level string, opts ...Option) (*Logger, error) {
	o := options{format: FormatJSON, outputPaths: []string{"stdout"}}
	for _, opt := range opts {
		opt(&o)
	}

	encoder := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	switch o.format {
	case FormatJSON:
	case FormatConsole:
		encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder.EncodeDuration = zapcore.StringDurationEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", o.format)
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Encoding:         o.format,
		EncoderConfig:    encoder,
		OutputPaths:      o.outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named creates a child logger scoped to a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// WithRequest creates a child logger with request context fields. Empty
// identity fields are left out.
func (l *Logger) WithRequest(correlationID, tenantID, userID string) *Logger {
	fields := []zap.Field{zap.String("correlation_id", correlationID)}
	if tenantID != "" {
		fields = append(fields, zap.String("tenant_id", tenantID))
	}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	return l.With(fields...)
}

// WithSession creates a child logger carrying the guidance session identity.
func (l *Logger) WithSession(threadID, sessionID string) *Logger {
	return l.With(
		zap.String("thread_id", threadID),
		zap.String("session_id", sessionID),
	)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Global logger instance for code paths without an injected logger.
var global = NewNop()

// Global returns the global logger instance.
func Global() *Logger {
	return global
}

// SetGlobal sets the global logger instance.
func SetGlobal(l *Logger) {
	if l == nil {
		l = NewNop()
	}
	global = l
}
