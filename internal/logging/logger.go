// Package logging provides the structured zap logger shared by every
// component. Log output is JSON in production and console-formatted in
// development.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StandardLogger wraps a zap logger with the field conventions used across
// the service: service, component and operation.
type StandardLogger struct {
	logger *zap.Logger
}

// NewStandardLogger builds a logger for the given level and environment.
// Unknown levels fall back to info.
func NewStandardLogger(level, environment string) *StandardLogger {
	atomicLevel := zap.NewAtomicLevelAt(getZapLevel(level))

	var encoder zapcore.Encoder
	if environment == "production" {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "time"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atomicLevel)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &StandardLogger{logger: logger}
}

func getZapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger exposes the underlying zap logger for components that take one
// directly.
func (s *StandardLogger) Logger() *zap.Logger {
	return s.logger
}

// WithService returns a logger tagged with the service name.
func (s *StandardLogger) WithService(service string) *zap.Logger {
	return s.logger.With(zap.String("service", service))
}

// WithComponent returns a logger tagged with the component name.
func (s *StandardLogger) WithComponent(component string) *zap.Logger {
	return s.logger.With(zap.String("component", component))
}

// WithOperation returns a logger tagged with the operation name.
func (s *StandardLogger) WithOperation(operation string) *zap.Logger {
	return s.logger.With(zap.String("operation", operation))
}

// Sync flushes buffered log entries. Callers defer it at shutdown; sync
// errors on stdout are expected and ignored.
func (s *StandardLogger) Sync() {
	_ = s.logger.Sync()
}
