// Package config loads psychectl configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable settings for a psychectl session.
type Config struct {
	// HistoryCapacity bounds the engine's history ledger.
	HistoryCapacity int `yaml:"history_capacity"`
	// MindDB is the SQLite path for the process table. ":memory:" gives
	// an ephemeral session.
	MindDB string `yaml:"mind_db"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// EventBuffer is the notification channel buffer for the REPL's
	// subscriber. Slow consumers drop rather than block.
	EventBuffer int `yaml:"event_buffer"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HistoryCapacity: 50,
		MindDB:          ":memory:",
		LogLevel:        "info",
		EventBuffer:     64,
	}
}

// Load reads a YAML config file, layering it over Default. Unknown keys
// are rejected so typos fail loudly instead of silently using defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be >= 1, got %d", c.HistoryCapacity)
	}
	if c.MindDB == "" {
		return fmt.Errorf("mind_db must not be empty")
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be >= 1, got %d", c.EventBuffer)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

// SlogLevel maps LogLevel onto the slog scale.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
