// Package config provides configuration loading and management for ximed.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers is the number of goroutines decoding files of a series
		Workers int `yaml:"workers"`

		// Match selects how series files are discovered: "extension",
		// "magic" or "either"
		Match string `yaml:"match"`
	} `yaml:"processing"`

	// Volume parameters
	Volume struct {
		// DefaultSpacing is used on any axis whose spacing cannot be derived
		DefaultSpacing float64 `yaml:"defaultSpacing"`
	} `yaml:"volume"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// MetadataFormat is "text" or "msgpack"
		MetadataFormat string `yaml:"metadataFormat"`

		// SlicesDir is where exported volume slices are written
		SlicesDir string `yaml:"slicesDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.Match = "either"

	cfg.Volume.DefaultSpacing = 1.0

	cfg.Output.Verbose = false
	cfg.Output.MetadataFormat = "text"
	cfg.Output.SlicesDir = "volume_slices"

	return cfg
}

// Validate checks the values a YAML file may have overridden.
func (c *Config) Validate() error {
	if c.Processing.Workers < 1 {
		return fmt.Errorf("processing.workers must be at least 1, got %d", c.Processing.Workers)
	}
	switch c.Processing.Match {
	case "extension", "magic", "either":
	default:
		return fmt.Errorf("processing.match must be extension, magic or either, got %q", c.Processing.Match)
	}
	if c.Volume.DefaultSpacing <= 0 {
		return fmt.Errorf("volume.defaultSpacing must be positive, got %v", c.Volume.DefaultSpacing)
	}
	switch c.Output.MetadataFormat {
	case "text", "msgpack":
	default:
		return fmt.Errorf("output.metadataFormat must be text or msgpack, got %q", c.Output.MetadataFormat)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
