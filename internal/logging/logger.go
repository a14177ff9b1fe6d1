// Package logging builds the zap logger used across autoapprove and hands out
// per-category child loggers. A category switched off in config gets a no-op
// logger, so callers never branch on whether logging is enabled.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/VTimofeenko/connect-autoapprove/internal/config"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and shutdown
	CategoryConfig    Category = "config"    // Config load and reload
	CategoryEvents    Category = "events"    // Event dispatch, request lifecycle
	CategoryAPI       Category = "api"       // Platform REST calls
	CategoryTemplates Category = "templates" // Template resolution
	CategoryLicense   Category = "license"   // License key assignment
	CategorySynth     Category = "synth"     // Parameter value synthesis
	CategoryLedger    Category = "ledger"    // Ledger reads and writes
	CategoryReprocess Category = "reprocess" // Batch reprocessing
	CategoryServer    Category = "server"    // HTTP event listener
)

// Categories lists every known category.
var Categories = []Category{
	CategoryBoot, CategoryConfig, CategoryEvents, CategoryAPI, CategoryTemplates,
	CategoryLicense, CategorySynth, CategoryLedger, CategoryReprocess, CategoryServer,
}

// Logger hands out category loggers derived from one root zap.Logger.
type Logger struct {
	mu       sync.RWMutex
	root     *zap.Logger
	cfg      config.LoggingConfig
	children map[Category]*zap.Logger
}

// New builds a Logger from config. verbose forces debug level.
func New(cfg config.LoggingConfig, verbose bool) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console", "text":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: json, console)", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zc.OutputPaths = append(zc.OutputPaths, cfg.File)
	}

	root, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return Wrap(root, cfg), nil
}

// Wrap adopts an existing zap.Logger, e.g. zap.NewNop() or zaptest loggers.
func Wrap(root *zap.Logger, cfg config.LoggingConfig) *Logger {
	if root == nil {
		root = zap.NewNop()
	}
	return &Logger{
		root:     root,
		cfg:      cfg,
		children: make(map[Category]*zap.Logger),
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return Wrap(zap.NewNop(), config.LoggingConfig{})
}

// Root returns the underlying zap logger.
func (l *Logger) Root() *zap.Logger {
	return l.root
}

// Get returns the logger for a category.
func (l *Logger) Get(cat Category) *zap.Logger {
	l.mu.RLock()
	child, ok := l.children[cat]
	l.mu.RUnlock()
	if ok {
		return child
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if child, ok := l.children[cat]; ok {
		return child
	}
	if l.cfg.IsCategoryEnabled(string(cat)) {
		child = l.root.Named(string(cat))
	} else {
		child = zap.NewNop()
	}
	l.children[cat] = child
	return child
}

// SetCategories swaps the category toggles, e.g. after a config reload.
func (l *Logger) SetCategories(categories map[string]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.Categories = categories
	l.children = make(map[Category]*zap.Logger)
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func (l *Logger) Sync() {
	_ = l.root.Sync()
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}
