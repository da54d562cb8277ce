package destiny

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// ZapLogger implements Logger on top of a zap sugared logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

// NewLogger creates a structured logger from the given logging configuration.
//
// Level must be one of "debug", "info", "warn", "error"; Format "json" or "console".
func NewLogger(cfg *LoggingConfig) (*ZapLogger, error) {
	if cfg == nil {
		cfg = DefaultLoggingConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return NewZapLogger(logger), nil
}

// NewDefaultLogger returns a production json logger at info level
func NewDefaultLogger() Logger {
	logger, err := NewLogger(DefaultLoggingConfig())
	if err != nil {
		return NewSilentLogger()
	}
	return logger
}

// Info logs an info message
func (l *ZapLogger) Info(msg string, args ...any) { l.sugar.Infof(msg, args...) }

// Error logs an error message
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorf(msg, args...) }

// Debug logs a debug message
func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugf(msg, args...) }

// With returns a child logger carrying structured key/value pairs
func (l *ZapLogger) With(keysAndValues ...any) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered log entries
func (l *ZapLogger) Sync() error { return l.sugar.Sync() }

// SilentLogger implements Logger interface but does not output any logs
// This is useful for testing environments where log output is not desired
type SilentLogger struct{}

// NewSilentLogger creates a new silent logger instance
func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

// Info does nothing (silent)
func (l *SilentLogger) Info(msg string, args ...any) {}

// Error does nothing (silent)
func (l *SilentLogger) Error(msg string, args ...any) {}

// Debug does nothing (silent)
func (l *SilentLogger) Debug(msg string, args ...any) {}
