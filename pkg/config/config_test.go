package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}
	if cfg.Processing.WorkingSize != 1024 {
		t.Errorf("Expected working size 1024, got %d", cfg.Processing.WorkingSize)
	}
	if cfg.Orientation.Scorer != "hybrid" {
		t.Errorf("Expected hybrid scorer, got %s", cfg.Orientation.Scorer)
	}
	if cfg.Output.OverwritePolicy != OverwriteKeep {
		t.Errorf("Expected keep policy, got %s", cfg.Output.OverwritePolicy)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Translation.TopK != DefaultConfig().Translation.TopK {
		t.Errorf("Expected default topK, got %d", cfg.Translation.TopK)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "slidealign.yaml")

	cfg := DefaultConfig()
	cfg.Processing.Workers = 3
	cfg.Processing.PairTimeout = 90 * time.Second
	cfg.Mask.Moving.Polarity = PolarityDark
	cfg.Refine.RefineScale = true

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Processing.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", loaded.Processing.Workers)
	}
	if loaded.Processing.PairTimeout != 90*time.Second {
		t.Errorf("Expected 90s timeout, got %v", loaded.Processing.PairTimeout)
	}
	if loaded.Mask.Moving.Polarity != PolarityDark {
		t.Errorf("Expected dark polarity, got %s", loaded.Mask.Moving.Polarity)
	}
	if !loaded.Refine.RefineScale {
		t.Error("Expected refineScale to survive the round trip")
	}
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	body := "translation:\n  topK: 2\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Translation.TopK != 2 {
		t.Errorf("Expected topK 2, got %d", cfg.Translation.TopK)
	}
	if cfg.Translation.MinSharpness != DefaultConfig().Translation.MinSharpness {
		t.Errorf("Expected default minSharpness, got %g", cfg.Translation.MinSharpness)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"workers", func(c *Config) { c.Processing.Workers = 0 }, "workers"},
		{"scorer", func(c *Config) { c.Orientation.Scorer = "magic" }, "scorer"},
		{"policy", func(c *Config) { c.Output.OverwritePolicy = "sometimes" }, "overwritePolicy"},
		{"polarity", func(c *Config) { c.Mask.Fixed.Polarity = "sideways" }, "mask.fixed"},
		{"steps", func(c *Config) { c.Refine.MinStep = 10 }, "minStep"},
		{"topK", func(c *Config) { c.Translation.TopK = 17 }, "topK"},
		{"mode", func(c *Config) { c.Translation.Mode = "half" }, "translation.mode"},
		{"noScales", func(c *Config) { c.Translation.Scales = nil }, "translation.scales"},
		{"negativeScale", func(c *Config) { c.Translation.Scales = []float64{0.5, -1} }, "translation.scales"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestAsYamlIncludesMatchingMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Translation.Mode = ModePartial
	out := cfg.AsYaml()
	if !strings.Contains(out, "mode: partial") {
		t.Errorf("Expected mode in YAML dump, got:\n%s", out)
	}
	if !strings.Contains(out, "partialFallback: 0.15") {
		t.Errorf("Expected partial fallback in YAML dump, got:\n%s", out)
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("orientation:\n  scorer: magic\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("Expected error for invalid scorer")
	}
}
