// Package logging provides named zap loggers for the sortwatch engines.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.Mutex
	root *zap.Logger
)

// Init builds the root logger at the given level ("debug", "info", "warn",
// "error"). Safe to call more than once; the last call wins.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

// Named returns a child logger for a component (e.g. "mailwatch").
// Falls back to a no-op logger if Init was never called, so library code and
// tests never need to care.
func Named(name string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = zap.NewNop()
	}
	return root.Named(name)
}

// Sync flushes buffered log entries. Called on process shutdown.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		_ = root.Sync()
	}
}
