package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.ElevatedUsagePercent != 80 || cfg.NearLimitUsagePercent != 90 {
		t.Errorf("Unexpected usage defaults: %.1f/%.1f",
			cfg.ElevatedUsagePercent, cfg.NearLimitUsagePercent)
	}
	if cfg.ProbeGraceFloorSeconds != 10 || cfg.AggressivePeriodSeconds != 5 {
		t.Errorf("Unexpected probe defaults: %d/%d",
			cfg.ProbeGraceFloorSeconds, cfg.AggressivePeriodSeconds)
	}
	if cfg.SimulationRounds != 3 || cfg.EvictionsPerRound != 5 {
		t.Errorf("Unexpected simulation defaults: %d/%d",
			cfg.SimulationRounds, cfg.EvictionsPerRound)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}

func TestLoad_OverridesSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("elevated_usage_percent: 70\nsimulation_rounds: 5\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.ElevatedUsagePercent != 70 {
		t.Errorf("Expected override 70, got %.1f", cfg.ElevatedUsagePercent)
	}
	if cfg.SimulationRounds != 5 {
		t.Errorf("Expected override 5, got %d", cfg.SimulationRounds)
	}
	// Untouched fields keep their defaults
	if cfg.NearLimitUsagePercent != 90 {
		t.Errorf("Expected default 90 retained, got %.1f", cfg.NearLimitUsagePercent)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestLoad_RejectsInvalidCombination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("elevated_usage_percent: 95\nnear_limit_usage_percent: 90\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error when elevated exceeds near-limit")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero elevated", func(c *Config) { c.ElevatedUsagePercent = 0 }, true},
		{"elevated above near-limit", func(c *Config) { c.ElevatedUsagePercent = 95 }, true},
		{"negative grace floor", func(c *Config) { c.ProbeGraceFloorSeconds = -1 }, true},
		{"negative rounds", func(c *Config) { c.SimulationRounds = -1 }, true},
		{"negative evictions", func(c *Config) { c.EvictionsPerRound = -1 }, true},
		{"caution above healthy", func(c *Config) { c.CautionCoveragePercent = 95 }, true},
		{"zero rounds allowed", func(c *Config) { c.SimulationRounds = 0 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefault()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}
