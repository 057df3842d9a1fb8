// Package config provides configuration loading and management for cellwatershed.
// It handles loading configuration from YAML files, named presets and default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"gopkg.in/yaml.v3"

	"cellwatershed/pkg/morphology"
	"cellwatershed/pkg/threshold"
)

// Version is the configuration schema version written by SaveConfig.
const Version = 1

// Config represents the application configuration loaded from YAML
type Config struct {
	// Version of the schema; files without one are read as Version
	Version int `yaml:"version"`

	// Segmentation parameters
	Segmentation struct {
		// EdgeThreshold binarizes the edge probability channel
		EdgeThreshold float64 `yaml:"edgeThreshold"`

		// InteriorThreshold binarizes the interior probability channel
		InteriorThreshold float64 `yaml:"interiorThreshold"`

		// CellThreshold binarizes the cell/not-cell diagnostic channel
		CellThreshold float64 `yaml:"cellThreshold"`

		// MinSize is the smallest foreground component kept, in pixels
		MinSize int `yaml:"minSize"`

		// FinalErosions is the iteration count of the last refinement erosion
		FinalErosions int `yaml:"finalErosions"`

		// Strategy selects the refinement pass sequence ("old" or "new")
		Strategy string `yaml:"strategy"`
	} `yaml:"segmentation"`

	// Classification parameters
	Classification struct {
		// Labels is the ordered class set of the confusion matrix
		Labels []int `yaml:"labels"`

		// NumCores specifies how many goroutines vote labels in parallel
		NumCores int `yaml:"numCores"`
	} `yaml:"classification"`

	// Input parameters
	Input struct {
		// Border pixels cropped from each side of the segmentation, classification
		// and truth rasters so that they share a grid
		TrimSegmentation   int `yaml:"trimSegmentation"`
		TrimClassification int `yaml:"trimClassification"`
		TrimTruth          int `yaml:"trimTruth"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save every stage's raster
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// LogLevel is a zerolog level name
		LogLevel string `yaml:"logLevel"`

		// PreviewRegion, when Width and Height are set, adds a cropped color
		// preview of that rectangle of the segmentation
		PreviewRegion struct {
			X      int `yaml:"x"`
			Y      int `yaml:"y"`
			Width  int `yaml:"width"`
			Height int `yaml:"height"`
		} `yaml:"previewRegion"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{Version: Version}

	cfg.Segmentation.EdgeThreshold = 0.25
	cfg.Segmentation.InteriorThreshold = 0.25
	cfg.Segmentation.CellThreshold = 0.25
	cfg.Segmentation.MinSize = 50
	cfg.Segmentation.FinalErosions = 1
	cfg.Segmentation.Strategy = morphology.StrategyOld

	cfg.Classification.Labels = DefaultLabels()
	cfg.Classification.NumCores = runtime.NumCPU()

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.LogLevel = "info"

	return cfg
}

// DefaultLabels is the 17-class label set 0..16.
func DefaultLabels() []int {
	labels := make([]int, 17)
	for i := range labels {
		labels[i] = i
	}
	return labels
}

var presets = map[string]func() *Config{
	"default": DefaultConfig,
	"new-dilation": func() *Config {
		cfg := DefaultConfig()
		cfg.Segmentation.Strategy = morphology.StrategyNew
		return cfg
	},
	"class31-seg31": windowPreset(15, 15),
	"class61-seg61": windowPreset(30, 30),
	"class61-seg31": windowPreset(30, 15),
	"class31-seg61": windowPreset(15, 30),
}

// windowPreset builds the preset for a classification and a segmentation
// network whose predictions lose the given border margins.
func windowPreset(classMargin, segMargin int) func() *Config {
	return func() *Config {
		cfg := DefaultConfig()
		cfg.SetWindowMargins(classMargin, segMargin)
		return cfg
	}
}

// SetWindowMargins sets the trims that bring both network outputs and the
// full-size truth onto the grid of the network with the larger margin.
func (c *Config) SetWindowMargins(classMargin, segMargin int) {
	common := max(classMargin, segMargin)
	c.Input.TrimTruth = common
	c.Input.TrimSegmentation = common - segMargin
	c.Input.TrimClassification = common - classMargin
}

// Preset returns a fresh copy of the named preset.
func Preset(name string) (*Config, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (have %v)", name, PresetNames())
	}
	return fn(), nil
}

// PresetNames lists the registered presets in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Thresholds returns the segmentation thresholds as the thresholder expects them
func (c *Config) Thresholds() threshold.Thresholds {
	return threshold.Thresholds{
		Edge:     c.Segmentation.EdgeThreshold,
		Interior: c.Segmentation.InteriorThreshold,
		Cell:     c.Segmentation.CellThreshold,
	}
}

// Validate checks every value before any stage runs.
func (c *Config) Validate() error {
	if c.Version > Version {
		return fmt.Errorf("config version %d is newer than supported version %d", c.Version, Version)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return err
	}
	if c.Segmentation.MinSize < 0 {
		return fmt.Errorf("minSize must be non-negative, got %d", c.Segmentation.MinSize)
	}
	if c.Segmentation.FinalErosions < 0 {
		return fmt.Errorf("finalErosions must be non-negative, got %d", c.Segmentation.FinalErosions)
	}
	if _, err := morphology.StrategyByName(c.Segmentation.Strategy, c.Segmentation.FinalErosions); err != nil {
		return err
	}
	if len(c.Classification.Labels) == 0 {
		return errors.New("classification labels must not be empty")
	}
	seen := make(map[int]bool, len(c.Classification.Labels))
	for _, l := range c.Classification.Labels {
		if seen[l] {
			return fmt.Errorf("classification label %d listed twice", l)
		}
		seen[l] = true
	}
	if c.Input.TrimSegmentation < 0 || c.Input.TrimClassification < 0 || c.Input.TrimTruth < 0 {
		return errors.New("trim margins must be non-negative")
	}
	r := c.Output.PreviewRegion
	if r.X < 0 || r.Y < 0 || r.Width < 0 || r.Height < 0 {
		return errors.New("preview region must be non-negative")
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
	if cfg.Version == 0 {
		cfg.Version = Version
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
	return SaveConfig(DefaultConfig(), configPath)
}
