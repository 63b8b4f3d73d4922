// Package logging builds the zerolog loggers used by the CLI and the
// API server.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`

	// Also write JSON logs to this file, rotated by size.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// Builds a logger writing to out, plus the rotating file if one is
// configured.
func New(cfg Config, out io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parsing log level: %w", err)
		}
	}

	writers := []io.Writer{}
	switch cfg.Format {
	case "", "console":
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	case "json":
		writers = append(writers, out)
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.File != "" {
		writers = append(writers, FileWriter(cfg))
	}

	return zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

// Rotating file writer for cfg.File.
func FileWriter(cfg Config) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
