// Package logging provides structured loggers for the pipeline.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Logger is the logger type used across the module.
type Logger = *zap.SugaredLogger

// NewLoggerConfig returns the default console logger config: info level,
// ISO8601 timestamps, no stacktraces on warnings.
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named logger at info level.
func NewLogger(name string) Logger {
	return newWithLevel(name, zap.InfoLevel)
}

// NewDebugLogger returns a named logger at debug level.
func NewDebugLogger(name string) Logger {
	return newWithLevel(name, zap.DebugLevel)
}

func newWithLevel(name string, level zapcore.Level) Logger {
	cfg := NewLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.Sugar().Named(name)
}

// NewTestLogger routes log output through the test harness.
func NewTestLogger(t *testing.T) Logger {
	return zaptest.NewLogger(t).Sugar()
}

// NewNopLogger discards everything; for callers that pass no logger.
func NewNopLogger() Logger {
	return zap.NewNop().Sugar()
}
