// Package config provides configuration loading and management for slidealign.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Projection names for MaskProfile.Projection
const (
	ProjectionLuminance  = "luminance"
	ProjectionSaturation = "saturation"
	ProjectionCombined   = "combined"
)

// Polarity names for MaskProfile.Polarity
const (
	PolarityBright = "bright" // bright/low-saturation background, darker tissue (H&E)
	PolarityDark   = "dark"   // black background, brighter tissue
	PolarityAuto   = "auto"   // decided from the image border
)

// Matching modes for Translation.Mode
const (
	ModeAuto    = "auto"    // full or partial, decided from tissue and image area ratios
	ModeFull    = "full"    // composite covers the whole section: unit-scale phase correlation
	ModePartial = "partial" // composite covers part of the section: multi-scale search
)

// Overwrite policies for Output.OverwritePolicy
const (
	OverwriteKeep        = "keep"
	OverwriteReplaceAuto = "replace_auto"
	OverwriteAlways      = "overwrite"
)

// MaskProfile configures tissue mask extraction for one side of a pair
type MaskProfile struct {
	// Projection selects the intensity channel: luminance, saturation or combined
	Projection string `yaml:"projection"`

	// Polarity tells the extractor which way the background lies: bright, dark or auto
	Polarity string `yaml:"polarity"`

	// Background is the color transparent pixels are flattened onto: white or black
	Background string `yaml:"background"`

	// DilateRadius pre-dilates the raw threshold to join sparse features (0 disables)
	DilateRadius int `yaml:"dilateRadius"`

	// CloseRadius and OpenRadius size the square structuring elements
	CloseRadius int `yaml:"closeRadius"`
	OpenRadius  int `yaml:"openRadius"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers is the number of pairs aligned concurrently
		Workers int `yaml:"workers"`

		// WorkingSize caps the longest side of the working images, in pixels
		WorkingSize int `yaml:"workingSize"`

		// PairTimeout is an optional wall-clock cap per pair (0 disables)
		PairTimeout time.Duration `yaml:"pairTimeout"`

		// Refine enables the local refinement stage
		Refine bool `yaml:"refine"`

		// Debug enables debug image output
		Debug bool `yaml:"debug"`
	} `yaml:"processing"`

	// Mask extraction parameters
	Mask struct {
		Fixed  MaskProfile `yaml:"fixed"`
		Moving MaskProfile `yaml:"moving"`

		// MaxCoverage is the foreground fraction at or above which a mask is degenerate
		MaxCoverage float64 `yaml:"maxCoverage"`
	} `yaml:"mask"`

	// Orientation search parameters
	Orientation struct {
		// Scorer names the similarity strategy: coverage, centered_iou or hybrid
		Scorer string `yaml:"scorer"`

		// TieEpsilon is the score distance from the maximum treated as a tie
		TieEpsilon float64 `yaml:"tieEpsilon"`
	} `yaml:"orientation"`

	// Translation estimation parameters
	Translation struct {
		// TopK is how many ranked orientations may be tried
		TopK int `yaml:"topK"`

		// MinSharpness is the correlation peak sharpness needed to accept a candidate
		MinSharpness float64 `yaml:"minSharpness"`

		// PeakExclusion is the half-width of the window left out of the sharpness statistics
		PeakExclusion int `yaml:"peakExclusion"`

		// LargeShiftGuard compares against zero shift when the estimate exceeds a quarter canvas
		LargeShiftGuard bool `yaml:"largeShiftGuard"`

		// Mode selects the matcher: auto, full or partial
		Mode string `yaml:"mode"`

		// Scales is the lattice of moving-per-fixed pixel scales tried by the
		// multi-scale matcher
		Scales []float64 `yaml:"scales"`

		// PartialFallback is the unit-scale overlap below which full mode
		// retries with the multi-scale matcher
		PartialFallback float64 `yaml:"partialFallback"`
	} `yaml:"translation"`

	// Local refinement parameters
	Refine struct {
		// Window bounds the translation search around the initial estimate, in pixels
		Window float64 `yaml:"window"`

		// Step and MinStep control translation step halving, in pixels
		Step    float64 `yaml:"step"`
		MinStep float64 `yaml:"minStep"`

		// Scale refinement; ScaleWindow bounds |scale-initial|
		RefineScale bool    `yaml:"refineScale"`
		ScaleWindow float64 `yaml:"scaleWindow"`
		ScaleStep   float64 `yaml:"scaleStep"`

		// MaxIterations caps the hill-climbing moves
		MaxIterations int `yaml:"maxIterations"`
	} `yaml:"refine"`

	// Output parameters
	Output struct {
		// Version is written into every artifact
		Version string `yaml:"version"`

		// OverwritePolicy decides what happens when an artifact already exists
		OverwritePolicy string `yaml:"overwritePolicy"`

		// MinConfidence below which a transform is flagged for manual review
		MinConfidence float64 `yaml:"minConfidence"`

		// MetricsFile, when set, receives a Prometheus text-format batch report
		MetricsFile string `yaml:"metricsFile"`

		// SentryDSN, when set, reports per-pair failures to Sentry
		SentryDSN string `yaml:"sentryDSN"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.WorkingSize = 1024
	cfg.Processing.PairTimeout = 0
	cfg.Processing.Refine = false
	cfg.Processing.Debug = false

	// H&E slides: white glass, stained tissue
	cfg.Mask.Fixed = MaskProfile{
		Projection:  ProjectionCombined,
		Polarity:    PolarityBright,
		Background:  "white",
		CloseRadius: 4,
		OpenRadius:  2,
	}
	// Composites: sparse colored cell dots on white or black
	cfg.Mask.Moving = MaskProfile{
		Projection:   ProjectionCombined,
		Polarity:     PolarityAuto,
		Background:   "white",
		DilateRadius: 3,
		CloseRadius:  7,
		OpenRadius:   1,
	}
	cfg.Mask.MaxCoverage = 0.99

	cfg.Orientation.Scorer = "hybrid"
	cfg.Orientation.TieEpsilon = 0.005

	cfg.Translation.TopK = 4
	cfg.Translation.MinSharpness = 8.0
	cfg.Translation.PeakExclusion = 2
	cfg.Translation.LargeShiftGuard = true
	cfg.Translation.Mode = ModeAuto
	cfg.Translation.Scales = []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.1, 1.25, 1.5, 2.0, 2.5, 3.3}
	cfg.Translation.PartialFallback = 0.15

	cfg.Refine.Window = 30
	cfg.Refine.Step = 4
	cfg.Refine.MinStep = 0.5
	cfg.Refine.RefineScale = false
	cfg.Refine.ScaleWindow = 0.2
	cfg.Refine.ScaleStep = 0.02
	cfg.Refine.MaxIterations = 200

	cfg.Output.Version = "5.0"
	cfg.Output.OverwritePolicy = OverwriteKeep
	cfg.Output.MinConfidence = 0.4
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks value ranges and enum fields
func (c *Config) Validate() error {
	if c.Processing.Workers < 1 {
		return fmt.Errorf("processing.workers must be >= 1, got %d", c.Processing.Workers)
	}
	if c.Processing.WorkingSize < 16 {
		return fmt.Errorf("processing.workingSize must be >= 16, got %d", c.Processing.WorkingSize)
	}
	if c.Processing.PairTimeout < 0 {
		return fmt.Errorf("processing.pairTimeout must not be negative")
	}
	for name, p := range map[string]MaskProfile{"fixed": c.Mask.Fixed, "moving": c.Mask.Moving} {
		if err := p.validate(); err != nil {
			return fmt.Errorf("mask.%s: %w", name, err)
		}
	}
	if c.Mask.MaxCoverage <= 0 || c.Mask.MaxCoverage > 1 {
		return fmt.Errorf("mask.maxCoverage must be in (0, 1], got %g", c.Mask.MaxCoverage)
	}
	switch c.Orientation.Scorer {
	case "coverage", "centered_iou", "hybrid":
	default:
		return fmt.Errorf("orientation.scorer: unknown strategy %q", c.Orientation.Scorer)
	}
	if c.Orientation.TieEpsilon < 0 {
		return fmt.Errorf("orientation.tieEpsilon must not be negative")
	}
	if c.Translation.TopK < 1 || c.Translation.TopK > 16 {
		return fmt.Errorf("translation.topK must be in [1, 16], got %d", c.Translation.TopK)
	}
	if c.Translation.PeakExclusion < 0 {
		return fmt.Errorf("translation.peakExclusion must not be negative")
	}
	switch c.Translation.Mode {
	case ModeAuto, ModeFull, ModePartial:
	default:
		return fmt.Errorf("translation.mode: unknown mode %q", c.Translation.Mode)
	}
	if len(c.Translation.Scales) == 0 {
		return fmt.Errorf("translation.scales must not be empty")
	}
	for _, s := range c.Translation.Scales {
		if s <= 0 {
			return fmt.Errorf("translation.scales must be positive, got %g", s)
		}
	}
	if c.Refine.Step <= 0 || c.Refine.MinStep <= 0 || c.Refine.MinStep > c.Refine.Step {
		return fmt.Errorf("refine: need 0 < minStep <= step, got step=%g minStep=%g", c.Refine.Step, c.Refine.MinStep)
	}
	if c.Refine.Window < 0 || c.Refine.ScaleWindow < 0 {
		return fmt.Errorf("refine: windows must not be negative")
	}
	if c.Refine.RefineScale && c.Refine.ScaleStep <= 0 {
		return fmt.Errorf("refine.scaleStep must be positive when refineScale is on")
	}
	if c.Refine.MaxIterations < 1 {
		return fmt.Errorf("refine.maxIterations must be >= 1")
	}
	switch c.Output.OverwritePolicy {
	case OverwriteKeep, OverwriteReplaceAuto, OverwriteAlways:
	default:
		return fmt.Errorf("output.overwritePolicy: unknown policy %q", c.Output.OverwritePolicy)
	}
	return nil
}

func (p MaskProfile) validate() error {
	switch p.Projection {
	case ProjectionLuminance, ProjectionSaturation, ProjectionCombined:
	default:
		return fmt.Errorf("unknown projection %q", p.Projection)
	}
	switch p.Polarity {
	case PolarityBright, PolarityDark, PolarityAuto:
	default:
		return fmt.Errorf("unknown polarity %q", p.Polarity)
	}
	switch p.Background {
	case "white", "black":
	default:
		return fmt.Errorf("unknown background %q", p.Background)
	}
	if p.DilateRadius < 0 || p.CloseRadius < 0 || p.OpenRadius < 0 {
		return fmt.Errorf("morphology radii must not be negative")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML over the defaults so partial files work
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
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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

// AsYaml renders the configuration for logging
func (c *Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	return string(b)
}
