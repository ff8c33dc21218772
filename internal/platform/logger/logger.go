// Package logger wraps zap's sugared logger with the small scoping helper the
// rest of this codebase relies on: With(...) returns a child logger carrying
// extra key/value fields, so every component logs with its own component tag.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a Logger for "prod"/"production" (JSON, info+) or anything else
// (console-friendly development config, debug+).
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	built, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: built.Sugar()}, nil
}

// Nop returns a Logger that discards everything, for tests that don't care.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...interface{}) {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	l.SugaredLogger.Debugw(msg, kv...)
}

func (l *Logger) Info(msg string, kv ...interface{}) {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	l.SugaredLogger.Infow(msg, kv...)
}

func (l *Logger) Warn(msg string, kv ...interface{}) {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	l.SugaredLogger.Warnw(msg, kv...)
}

func (l *Logger) Error(msg string, kv ...interface{}) {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	l.SugaredLogger.Errorw(msg, kv...)
}

// With returns a child logger carrying extra structured fields. Safe to call
// on a nil receiver so optional-logger constructors don't need nil checks.
func (l *Logger) With(kv ...interface{}) *Logger {
	if l == nil || l.SugaredLogger == nil {
		return Nop().With(kv...)
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(kv...)}
}
