// Package config provides configuration loading and management for vesseldots.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"vesseldots/internal/models"
	"vesseldots/pkg/detection"
	"vesseldots/pkg/threshold"
)

// Dot strategies
const (
	StrategyClassical = "classical"
	StrategyModel     = "model"
)

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	// Channel directory names inside every image directory
	Channels struct {
		Vessel string `yaml:"vessel" toml:"vessel"`
		Dots   string `yaml:"dots" toml:"dots"`
	} `yaml:"channels" toml:"channels"`

	// Vessel segmentation parameters
	Vessel struct {
		// Method is the automatic threshold method applied to the LoG response
		Method string `yaml:"method" toml:"method"`

		// MinVolume and MaxVolume bound the kept vessels in µm³; MaxVolume 0 means unbounded
		MinVolume float64 `yaml:"minVolume" toml:"min_volume"`
		MaxVolume float64 `yaml:"maxVolume" toml:"max_volume"`

		// LoGSigma is the Laplacian of Gaussian scale in µm
		LoGSigma float64 `yaml:"logSigma" toml:"log_sigma"`

		FillHoles bool `yaml:"fillHoles" toml:"fill_holes"`

		// Dilation is the distance in µm the vessels are grown by before classifying dots
		Dilation float64 `yaml:"dilation" toml:"dilation"`
	} `yaml:"vessel" toml:"vessel"`

	// Dot segmentation parameters
	Dots struct {
		// Strategy is "classical" (difference of Gaussians) or "model"
		Strategy string `yaml:"strategy" toml:"strategy"`

		Method    string  `yaml:"method" toml:"method"`
		MinVolume float64 `yaml:"minVolume" toml:"min_volume"`
		MaxVolume float64 `yaml:"maxVolume" toml:"max_volume"`

		// Sigma1 and Sigma2 are the difference of Gaussians scales in µm
		Sigma1 float64 `yaml:"sigma1" toml:"sigma1"`
		Sigma2 float64 `yaml:"sigma2" toml:"sigma2"`

		// Model parameters, used with the "model" strategy
		Model            string  `yaml:"model" toml:"model"`
		ProbThreshold    float64 `yaml:"probThreshold" toml:"prob_threshold"`
		OverlapThreshold float64 `yaml:"overlapThreshold" toml:"overlap_threshold"`
		StitchThreshold  float64 `yaml:"stitchThreshold" toml:"stitch_threshold"`
	} `yaml:"dots" toml:"dots"`

	// Calibration overrides the per-image calibration when its sizes are non-zero
	Calibration models.Calibration `yaml:"calibration" toml:"calibration"`

	// Processing parameters
	Processing struct {
		// Workers specifies how many goroutines filter a volume
		Workers int `yaml:"workers" toml:"workers"`
	} `yaml:"processing" toml:"processing"`

	// Output parameters
	Output struct {
		// Dir is the results directory, relative to the input directory unless absolute
		Dir string `yaml:"dir" toml:"dir"`

		// Overlay saves the per-plane object composites
		Overlay bool `yaml:"overlay" toml:"overlay"`

		// Archive saves the compressed object populations
		Archive bool `yaml:"archive" toml:"archive"`
	} `yaml:"output" toml:"output"`

	// Log parameters
	Log struct {
		Level string `yaml:"level" toml:"level"`

		// File enables a rotating log file next to stdout
		File    string `yaml:"file" toml:"file"`
		MaxSize int    `yaml:"maxSize" toml:"max_size"`
		MaxAge  int    `yaml:"maxAge" toml:"max_age"`
	} `yaml:"log" toml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Channels.Vessel = "vessels"
	cfg.Channels.Dots = "dots"

	cfg.Vessel.Method = "Triangle"
	cfg.Vessel.MinVolume = 500
	cfg.Vessel.MaxVolume = 0
	cfg.Vessel.LoGSigma = 20
	cfg.Vessel.FillHoles = true
	cfg.Vessel.Dilation = 2

	cfg.Dots.Strategy = StrategyClassical
	cfg.Dots.Method = "Triangle"
	cfg.Dots.MinVolume = 0.05
	cfg.Dots.MaxVolume = 50
	cfg.Dots.Sigma1 = 1
	cfg.Dots.Sigma2 = 2
	cfg.Dots.Model = detection.BlobModel
	cfg.Dots.ProbThreshold = 0.5
	cfg.Dots.OverlapThreshold = 0.4
	cfg.Dots.StitchThreshold = 0.5

	cfg.Processing.Workers = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Dir = "Results"
	cfg.Output.Overlay = true
	cfg.Output.Archive = false

	cfg.Log.Level = "info"
	cfg.Log.MaxSize = 100
	cfg.Log.MaxAge = 30

	return cfg
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML file, or a TOML file when the
// path ends in .toml. If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v: %w", err, models.ErrConfiguration)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %v: %w", err, models.ErrConfiguration)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v: %w", err, models.ErrConfiguration)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration in the format given by the file extension
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %v: %w", err, models.ErrIO)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %v: %w", err, models.ErrIO)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, models.ErrConfiguration)...)
}

func checkRange(name string, min, max float64) error {
	if math.IsNaN(min) || min < 0 {
		return invalid("%s minimum volume %g must be non-negative", name, min)
	}
	if math.IsNaN(max) || max < 0 || (max > 0 && max < min) {
		return invalid("%s maximum volume %g must be 0 or at least the minimum %g", name, max, min)
	}
	return nil
}

// Validate checks the values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Channels.Vessel == "" || c.Channels.Dots == "" {
		return invalid("vessel and dots channels must be named")
	}
	if !threshold.IsValid(c.Vessel.Method) {
		return invalid("unknown vessel threshold method %q", c.Vessel.Method)
	}
	if err := checkRange("vessel", c.Vessel.MinVolume, c.Vessel.MaxVolume); err != nil {
		return err
	}
	if !(c.Vessel.LoGSigma > 0) {
		return invalid("vessel LoG sigma %g must be positive", c.Vessel.LoGSigma)
	}
	if math.IsNaN(c.Vessel.Dilation) || c.Vessel.Dilation < 0 {
		return invalid("vessel dilation %g must be non-negative", c.Vessel.Dilation)
	}
	if err := checkRange("dots", c.Dots.MinVolume, c.Dots.MaxVolume); err != nil {
		return err
	}

	switch c.Dots.Strategy {
	case StrategyClassical:
		if !threshold.IsValid(c.Dots.Method) {
			return invalid("unknown dots threshold method %q", c.Dots.Method)
		}
		if !(c.Dots.Sigma1 > 0) || !(c.Dots.Sigma2 > c.Dots.Sigma1) {
			return invalid("dots sigmas %g, %g must satisfy 0 < sigma1 < sigma2", c.Dots.Sigma1, c.Dots.Sigma2)
		}
	case StrategyModel:
		if c.Dots.Model == "" {
			return invalid("dots model must be named")
		}
		for name, v := range map[string]float64{
			"probThreshold":    c.Dots.ProbThreshold,
			"overlapThreshold": c.Dots.OverlapThreshold,
			"stitchThreshold":  c.Dots.StitchThreshold,
		} {
			if math.IsNaN(v) || v < 0 || v > 1 {
				return invalid("dots %s %g must lie in [0, 1]", name, v)
			}
		}
	default:
		return invalid("unknown dots strategy %q", c.Dots.Strategy)
	}

	if c.Calibration.PixelWidth < 0 || c.Calibration.PixelHeight < 0 || c.Calibration.PixelDepth < 0 {
		return invalid("calibration overrides must be non-negative")
	}
	if c.Processing.Workers < 0 {
		return invalid("workers %d must be non-negative", c.Processing.Workers)
	}
	if c.Output.Dir == "" {
		return invalid("output directory must be named")
	}
	return nil
}

func maxVolume(v float64) float64 {
	if v == 0 {
		return math.Inf(1)
	}
	return v
}

// VesselConfig converts the vessel section for the detector
func (c *Config) VesselConfig() detection.VesselConfig {
	return detection.VesselConfig{
		Method:    c.Vessel.Method,
		MinVolume: c.Vessel.MinVolume,
		MaxVolume: maxVolume(c.Vessel.MaxVolume),
		Sigma:     c.Vessel.LoGSigma,
		FillHoles: c.Vessel.FillHoles,
	}
}

// DotConfig converts the dots section for the detector
func (c *Config) DotConfig() detection.DotConfig {
	cfg := detection.DotConfig{
		Method:    c.Dots.Method,
		MinVolume: c.Dots.MinVolume,
		MaxVolume: maxVolume(c.Dots.MaxVolume),
	}
	if c.Dots.Strategy == StrategyModel {
		cfg.Strategy = detection.ModelBased{
			Model:            c.Dots.Model,
			ProbThreshold:    c.Dots.ProbThreshold,
			OverlapThreshold: c.Dots.OverlapThreshold,
			StitchThreshold:  c.Dots.StitchThreshold,
		}
	} else {
		cfg.Strategy = detection.Classical{Sigma1: c.Dots.Sigma1, Sigma2: c.Dots.Sigma2}
	}
	return cfg
}

// ApplyCalibration returns cal with the configured non-zero overrides applied
func (c *Config) ApplyCalibration(cal models.Calibration) models.Calibration {
	if c.Calibration.PixelWidth > 0 {
		cal.PixelWidth = c.Calibration.PixelWidth
		if c.Calibration.PixelHeight == 0 {
			cal.PixelHeight = c.Calibration.PixelWidth
		}
	}
	if c.Calibration.PixelHeight > 0 {
		cal.PixelHeight = c.Calibration.PixelHeight
	}
	if c.Calibration.PixelDepth > 0 {
		cal.PixelDepth = c.Calibration.PixelDepth
	}
	if c.Calibration.Unit != "" {
		cal.Unit = c.Calibration.Unit
	}
	return cal
}
