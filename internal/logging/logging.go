// Package logging builds the logrus loggers used across the backtester.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	Level      string `yaml:"level"`  // trace, debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // optional rotating log file
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// New builds a logger writing to stdout and, when File is set, to a
// size-rotated file.
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", cfg.Format)
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	logger.SetOutput(out)

	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}
