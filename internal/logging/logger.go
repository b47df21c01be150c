// Package logging builds the process zap logger from configuration.
package logging

import (
	"fmt"
	"path/filepath"

	"coursedesk/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing to cfg.File. An empty file falls back to
// coursedesk.log in the application directory, because the terminal UI owns
// stdout and stderr while it runs. verbose forces debug level.
func New(cfg config.LogConfig, verbose bool) (*zap.Logger, error) {
	path := cfg.File
	if path == "" {
		dir, err := config.AppDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "coursedesk.log")
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{path}
	zcfg.ErrorOutputPaths = []string{path}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
