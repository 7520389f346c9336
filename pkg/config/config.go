// Package config holds the tunable thresholds of the analysis engine.
// Every value has a default; a YAML file can override any subset.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Default thresholds. These are product defaults, not hard-coded truths;
// all of them can be overridden per run.
const (
	DefaultElevatedUsagePercent  = 80.0
	DefaultNearLimitUsagePercent = 90.0
	DefaultProbeGraceFloorSecs   = 10
	DefaultAggressivePeriodSecs  = 5
	DefaultSimulationRounds      = 3
	DefaultEvictionsPerRound     = 5
	DefaultHealthyCoveragePct    = 90.0
	DefaultCautionCoveragePct    = 80.0
)

// Config is the full tuning surface of one analysis run
type Config struct {
	// Usage highlight tiers, percentage of limit (>= comparison)
	ElevatedUsagePercent  float64 `yaml:"elevated_usage_percent"`
	NearLimitUsagePercent float64 `yaml:"near_limit_usage_percent"`

	// Probe rules
	ProbeGraceFloorSeconds  int32 `yaml:"probe_grace_floor_seconds"`
	AggressivePeriodSeconds int32 `yaml:"aggressive_period_seconds"`

	// Disruption simulation
	SimulationRounds  int `yaml:"simulation_rounds"`
	EvictionsPerRound int `yaml:"evictions_per_round"`

	// PDB coverage tiers, percentage of pods covered
	HealthyCoveragePercent float64 `yaml:"healthy_coverage_percent"`
	CautionCoveragePercent float64 `yaml:"caution_coverage_percent"`

	// Optional custom rule file evaluated per container
	RulesFile string `yaml:"rules_file"`
}

// NewDefault returns a config populated with the default thresholds
func NewDefault() *Config {
	return &Config{
		ElevatedUsagePercent:    DefaultElevatedUsagePercent,
		NearLimitUsagePercent:   DefaultNearLimitUsagePercent,
		ProbeGraceFloorSeconds:  DefaultProbeGraceFloorSecs,
		AggressivePeriodSeconds: DefaultAggressivePeriodSecs,
		SimulationRounds:        DefaultSimulationRounds,
		EvictionsPerRound:       DefaultEvictionsPerRound,
		HealthyCoveragePercent:  DefaultHealthyCoveragePct,
		CautionCoveragePercent:  DefaultCautionCoveragePct,
	}
}

// Load reads a YAML config file over the defaults
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects threshold combinations the analyzers cannot honor
func (c *Config) Validate() error {
	if c.ElevatedUsagePercent <= 0 || c.NearLimitUsagePercent <= 0 {
		return fmt.Errorf("usage thresholds must be positive, got %.1f/%.1f",
			c.ElevatedUsagePercent, c.NearLimitUsagePercent)
	}
	if c.ElevatedUsagePercent > c.NearLimitUsagePercent {
		return fmt.Errorf("elevated threshold %.1f exceeds near-limit threshold %.1f",
			c.ElevatedUsagePercent, c.NearLimitUsagePercent)
	}
	if c.ProbeGraceFloorSeconds < 0 {
		return fmt.Errorf("probe grace floor must be non-negative, got %d", c.ProbeGraceFloorSeconds)
	}
	if c.SimulationRounds < 0 {
		return fmt.Errorf("simulation rounds must be non-negative, got %d", c.SimulationRounds)
	}
	if c.EvictionsPerRound < 0 {
		return fmt.Errorf("evictions per round must be non-negative, got %d", c.EvictionsPerRound)
	}
	if c.CautionCoveragePercent > c.HealthyCoveragePercent {
		return fmt.Errorf("caution coverage %.1f exceeds healthy coverage %.1f",
			c.CautionCoveragePercent, c.HealthyCoveragePercent)
	}
	return nil
}
