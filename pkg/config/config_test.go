package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 14, cfg.Lifecycle.TrialDurationDays)
	assert.Equal(t, 2, cfg.Lifecycle.MaxExtensions)
	assert.Equal(t, 14, cfg.Lifecycle.MaxExtensionDays)
	assert.Equal(t, 7, cfg.Lifecycle.WarningLeadDays)
	assert.Equal(t, 24*time.Hour, cfg.Lifecycle.DemoTTL)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("VERIDIAN_TRIAL_DURATION_DAYS", "30")
	t.Setenv("VERIDIAN_DEMO_TTL", "48h")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Lifecycle.TrialDurationDays)
	assert.Equal(t, 48*time.Hour, cfg.Lifecycle.DemoTTL)
}

func TestLoadConfig_InvalidTrialDuration(t *testing.T) {
	t.Setenv("VERIDIAN_TRIAL_DURATION_DAYS", "-1")

	_, err := LoadConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "trial duration")
}

func TestLoadLimitsConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadLimitsConfig("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Trial.MaxAICallsPerDay)
	assert.Equal(t, 10, cfg.Demo.MaxAICallsPerDay)
}

func TestLoadLimitsConfig_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	content := []byte(`
trial:
  max_projects: 10
  max_users: 20
  max_ai_calls_per_day: 200
  max_initiatives: 10
  max_storage_mb: 2048
  enabled_ai_roles: [analyst, planner, reviewer]
demo:
  max_projects: 1
  max_users: 1
  max_ai_calls_per_day: 5
  max_initiatives: 1
  max_storage_mb: 32
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadLimitsConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Trial.MaxAICallsPerDay)
	assert.Equal(t, []string{"analyst", "planner", "reviewer"}, cfg.Trial.EnabledAIRoles)
	assert.Equal(t, 5, cfg.Demo.MaxAICallsPerDay)
}

func TestLoadLimitsConfig_RejectsNonPositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trial:\n  max_projects: 0\n"), 0o644))

	_, err := LoadLimitsConfig(path)
	assert.Error(t, err)
}
