// Package config loads the apidb command configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvDescriptor overrides the descriptor path from any config file
const EnvDescriptor = "APIDB_DESCRIPTOR"

// DefaultFileName is the config file looked up in the working directory
// when no path is given
const DefaultFileName = "apidb.yaml"

var validate = validator.New()

// Config is the apidb command configuration
type Config struct {
	// Descriptor is the api-versions.xml file to load
	Descriptor string `yaml:"descriptor" validate:"required_without=FetchURL"`
	// FetchURL is where `apidb fetch` downloads the descriptor from
	FetchURL string `yaml:"fetch_url" validate:"omitempty,url"`
	// CacheDir holds packed caches (empty = next to the descriptor)
	CacheDir string `yaml:"cache_dir"`
	// Platform is the platform tools version folded into cache names
	Platform string `yaml:"platform"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns a Config with defaults applied
func Default() *Config {
	return &Config{
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, then the YAML file at path,
// then the environment. An empty path reads DefaultFileName if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.Descriptor != "" && !filepath.IsAbs(cfg.Descriptor) {
			cfg.Descriptor = filepath.Join(filepath.Dir(path), cfg.Descriptor)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv applies environment overrides
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDescriptor); v != "" {
		c.Descriptor = v
	}
}

// Merge applies non-zero fields of other over c
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Descriptor != "" {
		c.Descriptor = other.Descriptor
	}
	if other.FetchURL != "" {
		c.FetchURL = other.FetchURL
	}
	if other.CacheDir != "" {
		c.CacheDir = other.CacheDir
	}
	if other.Platform != "" {
		c.Platform = other.Platform
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level returns the slog level for LogLevel
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SaveToFile writes the configuration as YAML
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
