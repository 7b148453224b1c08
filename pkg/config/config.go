// Package config provides configuration loading and management for spatialimg.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"spatialimg/internal/models"
	"spatialimg/pkg/logging"
)

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	// Image metadata that label images usually do not carry themselves
	Image struct {
		// Spacing is the physical voxel size along x, y and z
		Spacing struct {
			X float64 `yaml:"x" toml:"x"`
			Y float64 `yaml:"y" toml:"y"`
			Z float64 `yaml:"z" toml:"z"`
		} `yaml:"spacing" toml:"spacing"`

		// Unit is the length unit of Spacing as read from the image source
		Unit string `yaml:"unit" toml:"unit"`
	} `yaml:"image" toml:"image"`

	// Labels maps each domain type name to the pixel value that marks it
	Labels map[string]int `yaml:"labels" toml:"labels"`

	// Output parameters
	Output struct {
		// Dir is the directory exported files are written to
		Dir string `yaml:"dir" toml:"dir"`

		// Name is the base name of the exported TIFF. Empty disables the export.
		Name string `yaml:"name" toml:"name"`

		// CompressSamples deflates the SampledField sample text
		CompressSamples bool `yaml:"compressSamples" toml:"compress_samples"`

		// SaveSlices extracts orthogonal slices of the volume
		SaveSlices bool `yaml:"saveSlices" toml:"save_slices"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`

	// Log configures the rotating log file
	Log logging.LogConfig `yaml:"log" toml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Uncalibrated images have one unit per pixel
	cfg.Image.Spacing.X = 1.0
	cfg.Image.Spacing.Y = 1.0
	cfg.Image.Spacing.Z = 1.0
	cfg.Image.Unit = ""

	cfg.Labels = map[string]int{}

	cfg.Output.Dir = "."
	cfg.Output.Name = ""
	cfg.Output.CompressSamples = false
	cfg.Output.SaveSlices = false
	cfg.Output.Verbose = false

	cfg.Log.MaxSize = 10
	cfg.Log.MaxAge = 7

	return cfg
}

// LoadConfig loads configuration from a YAML or TOML file.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	if isTOML(configPath) {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
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

// SaveConfig saves the configuration to a YAML or TOML file, chosen by extension
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = []byte(sb.String())
	} else {
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
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

// Validate checks that the label table can be used to mark 8-bit voxels
func (c *Config) Validate() error {
	var errs []error
	for name, value := range c.Labels {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("label with value %d has an empty name", value))
		}
		if value < 0 || value > 255 {
			errs = append(errs, fmt.Errorf("label %q: pixel value %d out of range 0-255", name, value))
		}
	}
	return errors.Join(errs...)
}

// LabelTable converts the configured labels into a label table.
// Call Validate first; out of range values are truncated to 8 bits.
func (c *Config) LabelTable() models.LabelTable {
	table := make(models.LabelTable, len(c.Labels))
	for name, value := range c.Labels {
		table[name] = uint8(value)
	}
	return table
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
