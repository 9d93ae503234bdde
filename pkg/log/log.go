// Package log provides the leveled logger used by every package in this
// module. It wraps go.uber.org/zap with a package-level logger so that
// call sites never have to thread a logger through constructors.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = newLogger("etcdadm-agent", level)
)

// NewDefaultEncoderConfig returns the console encoder configuration shared
// by every logger constructed by this package.
func NewDefaultEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func newLogger(name string, lvl zap.AtomicLevel) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(NewDefaultEncoderConfig()),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core).Named(name)
}

// NewLoggerWithLevel returns a standalone named logger at a fixed level,
// for a subsystem that wants its own verbosity knob independent of the
// package-level one.
func NewLoggerWithLevel(name string, lvl zapcore.Level) *zap.Logger {
	return newLogger(name, zap.NewAtomicLevelAt(lvl))
}

// SetLevel adjusts the verbosity of the package-level logger at runtime.
func SetLevel(lvl zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.SetLevel(lvl)
}

func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { L().Fatal(msg, fields...) }

func Debugf(format string, args ...interface{}) { L().Sugar().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().Sugar().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().Sugar().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().Sugar().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { L().Sugar().Fatalf(format, args...) }
