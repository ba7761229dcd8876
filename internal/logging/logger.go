// Package logging provides categorized logging for bookpilot on top of zap.
// Logs are written to a single file under the data directory; each category
// shows up as a named sub-logger. Until Initialize is called every category
// logger is a no-op, so library code can log unconditionally.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // startup, config load
	CategoryScheduler Category = "scheduler" // polling loop, fire decisions
	CategoryTask      Category = "task"      // task lifecycle, persistence
	CategoryBrowser   Category = "browser"   // session attach, clicks, waits
	CategoryWorkflow  Category = "workflow"  // booking state machine
	CategoryChallenge Category = "challenge" // anti-bot overlays, mini-games
	CategoryStore     Category = "store"     // run history store
)

var (
	mu   sync.RWMutex
	root *zap.Logger
)

// Initialize opens the log file under dir and installs the root logger.
// When debug is true logs are mirrored to stderr at debug level.
// Safe to call more than once; the last call wins.
func Initialize(dir string, debug bool) error {
	if dir == "" {
		return fmt.Errorf("log directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, "bookpilot.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), zapcore.InfoLevel),
	}
	if debug {
		devCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(devCfg), zapcore.AddSync(os.Stderr), zapcore.DebugLevel))
	}

	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		_ = root.Sync()
	}
	root = zap.New(zapcore.NewTee(cores...))
	return nil
}

// Get returns the sugared logger for a category. Before Initialize it is a
// no-op logger, never nil.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return zap.NewNop().Sugar()
	}
	return root.Named(string(category)).Sugar()
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
