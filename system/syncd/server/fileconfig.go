package server

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/signadot/docsync/system/syncd/api"
)

// Config represents the syncd server configuration file structure.
// Designed for extensibility - new sections can be added without breaking
// existing configs.
type Config struct {
	// DataDir is the directory holding the served documents.
	// Can be overridden by CLI flag.
	DataDir string `yaml:"dataDir"`

	// Addr is the TCP listen address for the session protocol.
	Addr string `yaml:"addr"`

	// HTTPAddr, if non-empty, enables the websocket endpoint at this
	// listen address.
	HTTPAddr string `yaml:"httpAddr"`

	// Debounce is the quiescence window for document writes.
	// Zero means the default (1s).
	Debounce api.Duration `yaml:"debounce"`

	// LogFile, if set, sends logs to a rotated file instead of stderr.
	LogFile *LogFileConfig `yaml:"logFile"`
}

// LogFileConfig configures rotated file logging.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// LoadConfig loads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Addr:    "localhost:9301",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("dataDir is required")
	}
	if time.Duration(c.Debounce) < 0 {
		return fmt.Errorf("debounce must be non-negative")
	}
	return nil
}

// NewLogger builds the server logger for c: a JSON handler on stderr, or
// on a rotated file when LogFile is configured. DEBUG in the environment
// raises the level.
func (c *Config) NewLogger() *slog.Logger {
	var w io.Writer = os.Stderr
	if c.LogFile != nil && c.LogFile.Path != "" {
		w = &lumberjack.Logger{
			Filename:   c.LogFile.Path,
			MaxSize:    c.LogFile.MaxSizeMB,
			MaxBackups: c.LogFile.MaxBackups,
			MaxAge:     c.LogFile.MaxAgeDays,
		}
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slogLevel(),
	}))
}

func slogLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
