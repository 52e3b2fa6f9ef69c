// Package logging wires the structured logger shared across every
// pipeline stage. A single *zap.SugaredLogger is constructed once at
// startup and threaded down to stages, which attach component and
// chunk_id fields to every entry.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Development enables human-readable console output instead of JSON.
	Development bool `yaml:"development"`
}

// DefaultConfig returns sane defaults: info level, JSON output.
func DefaultConfig() Config {
	return Config{Level: "info", Development: false}
}

// New builds a *zap.SugaredLogger from the given config.
func New(cfg Config) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Noop returns a logger that discards everything, used in tests.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// ForComponent returns a child logger tagged with the component name,
// the way every pipeline stage identifies itself in log output and in
// rate-limiter/cache component keys.
func ForComponent(base *zap.SugaredLogger, component string) *zap.SugaredLogger {
	if base == nil {
		base = Noop()
	}
	return base.With("component", component)
}

// ForChunk further tags a component logger with the chunk currently
// being processed.
func ForChunk(base *zap.SugaredLogger, chunkID string) *zap.SugaredLogger {
	if base == nil {
		base = Noop()
	}
	return base.With("chunk_id", chunkID)
}
