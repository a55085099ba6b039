package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LimitSpec defines the default resource ceilings for one organization type.
type LimitSpec struct {
	MaxProjects      int      `yaml:"max_projects"`
	MaxUsers         int      `yaml:"max_users"`
	MaxAICallsPerDay int      `yaml:"max_ai_calls_per_day"`
	MaxInitiatives   int      `yaml:"max_initiatives"`
	MaxStorageMB     int64    `yaml:"max_storage_mb"`
	EnabledAIRoles   []string `yaml:"enabled_ai_roles"`
}

// LimitsConfig holds the default limits for demo and trial organizations.
// Paid organizations carry no limits row.
type LimitsConfig struct {
	Demo  LimitSpec `yaml:"demo"`
	Trial LimitSpec `yaml:"trial"`
}

// DefaultLimitsConfig returns the compiled-in limit defaults.
func DefaultLimitsConfig() *LimitsConfig {
	return &LimitsConfig{
		Demo: LimitSpec{
			MaxProjects:      1,
			MaxUsers:         1,
			MaxAICallsPerDay: 10,
			MaxInitiatives:   1,
			MaxStorageMB:     64,
			EnabledAIRoles:   []string{"analyst"},
		},
		Trial: LimitSpec{
			MaxProjects:      3,
			MaxUsers:         5,
			MaxAICallsPerDay: 50,
			MaxInitiatives:   3,
			MaxStorageMB:     512,
			EnabledAIRoles:   []string{"analyst", "planner"},
		},
	}
}

// LoadLimitsConfig reads a YAML plan-limits file, falling back to the
// compiled-in defaults for any field left at zero.
func LoadLimitsConfig(path string) (*LimitsConfig, error) {
	cfg := DefaultLimitsConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse limits file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("limits file validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the limit specs for non-positive ceilings.
func (c *LimitsConfig) Validate() error {
	for name, spec := range map[string]LimitSpec{"demo": c.Demo, "trial": c.Trial} {
		if spec.MaxProjects <= 0 || spec.MaxUsers <= 0 || spec.MaxAICallsPerDay <= 0 {
			return fmt.Errorf("%s limits must be positive", name)
		}
	}
	return nil
}
