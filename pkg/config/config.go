// Package config provides configuration loading and management for the
// converter. It handles loading configuration from YAML files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Logging parameters
	Log struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Format is "console" for human-readable output or "json"
		Format string `yaml:"format"`
	} `yaml:"log"`

	// Conversion parameters
	Conversion struct {
		// SortByPosition controls whether slices are spatially sorted before
		// assembly; when false the original file order is kept
		SortByPosition bool `yaml:"sortByPosition"`

		// DefaultSliceSpacing is the through-plane spacing used when neither
		// the slice thickness nor the spacing-between-slices tag is present
		DefaultSliceSpacing float64 `yaml:"defaultSliceSpacing"`

		// PorosityEchoTime is the target echo time in ms for the porosity
		// index numerator; the echo closest to this value is used
		PorosityEchoTime float64 `yaml:"porosityEchoTime"`

		// SuppressionClipMax bounds the suppression-ratio map
		SuppressionClipMax float64 `yaml:"suppressionClipMax"`
	} `yaml:"conversion"`

	// Registration parameters
	Registration struct {
		// Rigid selects rigid registration; false requests affine
		Rigid bool `yaml:"rigid"`

		// ElastixPath is the elastix executable invoked for registration
		ElastixPath string `yaml:"elastixPath"`

		// TransformixPath is the transformix executable used to apply transforms
		TransformixPath string `yaml:"transformixPath"`

		// WorkDir is the root for per-series temporary registration folders;
		// empty selects the system temp directory
		WorkDir string `yaml:"workDir"`
	} `yaml:"registration"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Log.Level = "info"
	cfg.Log.Format = "console"

	cfg.Conversion.SortByPosition = true
	cfg.Conversion.DefaultSliceSpacing = 1.0
	cfg.Conversion.PorosityEchoTime = 2.2
	cfg.Conversion.SuppressionClipMax = 1000.0

	cfg.Registration.Rigid = true
	cfg.Registration.ElastixPath = "elastix"
	cfg.Registration.TransformixPath = "transformix"
	cfg.Registration.WorkDir = ""

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
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

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
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
