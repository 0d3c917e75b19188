package utils

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu  sync.RWMutex
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)
	logger = newLogger()
)

func newLogger() *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encCfg.EncodeCaller = nil

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		level,
	)
	return zap.New(core)
}

// Logger returns the shared structured logger.
func Logger() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// SetLogger replaces the shared logger; tests use it with zaptest/observer cores.
func SetLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = l
}

// Named returns a component logger for callers that log structured fields.
func Named(name string) *zap.Logger {
	return Logger().Named(name)
}

// SetLevel switches the shared log level ("debug", "info", "warn", "error").
func SetLevel(name string) error {
	return level.UnmarshalText([]byte(name))
}

// Sync flushes buffered entries.
func Sync() {
	_ = Logger().Sync()
}

func Debug(format string, a ...interface{}) {
	Logger().Debug(fmt.Sprintf(format, a...))
}

func Info(format string, a ...interface{}) {
	Logger().Info(fmt.Sprintf(format, a...))
}

func Success(format string, a ...interface{}) {
	Logger().Info("✓ " + fmt.Sprintf(format, a...))
}

func Warn(format string, a ...interface{}) {
	Logger().Warn(fmt.Sprintf(format, a...))
}

func Error(format string, a ...interface{}) {
	Logger().Error(fmt.Sprintf(format, a...))
}

func Section(title string) {
	Logger().Info(fmt.Sprintf("══════════ %s ══════════", title))
}
