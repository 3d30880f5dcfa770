package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
storage:
  database_path: recon-test.db
reconciliation:
  batch_size: 250
  max_time_diff_hours: 48
  morning_cutoff_hour: 6
  amount_tolerance: "0.01"
api:
  port: 9090
observability:
  logging:
    level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "recon-test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 250, cfg.Reconciliation.BatchSize)
	assert.Equal(t, 48.0, cfg.Reconciliation.MaxTimeDiffHours)
	assert.Equal(t, 6, cfg.Reconciliation.MorningCutoffHour)
	assert.Equal(t, "0.01", cfg.Reconciliation.AmountTolerance)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("RECON_TEST_DB", "from-env.db")
	yaml := "storage:\n  database_path: ${RECON_TEST_DB}\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Storage.DatabasePath)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RECON_DB_PATH", "env.db")
	t.Setenv("RECON_BATCH_SIZE", "50")
	t.Setenv("RECON_LOG_LEVEL", "warn")

	cfg := LoadFromEnv()
	assert.Equal(t, "env.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 50, cfg.Reconciliation.BatchSize)
	assert.Equal(t, "warn", cfg.Observability.Logging.Level)
}

func TestDefaults(t *testing.T) {
	os.Unsetenv("RECON_DB_PATH")
	os.Unsetenv("RECON_BATCH_SIZE")
	os.Unsetenv("RECON_LOG_LEVEL")

	cfg := LoadFromEnv()
	assert.Equal(t, "reconciliation.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 100, cfg.Reconciliation.BatchSize)
	assert.Equal(t, 24.0, cfg.Reconciliation.MaxTimeDiffHours)
	assert.Equal(t, 12, cfg.Reconciliation.MorningCutoffHour)
	assert.Equal(t, "0", cfg.Reconciliation.AmountTolerance)
	assert.Equal(t, 100, cfg.Reconciliation.DetailLimit)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestLoadOrEnv_FallbackToEnv(t *testing.T) {
	cfg := LoadOrEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, cfg)
	assert.Equal(t, "reconciliation.db", cfg.Storage.DatabasePath)
}

func TestMatcherConfig(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Reconciliation.AmountTolerance = "0.05"
	cfg.Reconciliation.MaxTimeDiffHours = 48
	cfg.Reconciliation.MorningCutoffHour = 6

	mc, err := cfg.MatcherConfig()
	require.NoError(t, err)
	assert.Equal(t, "0.05", mc.AmountTolerance.String())
	assert.Equal(t, 48.0, mc.MaxTimeDiffHours)
	assert.Equal(t, 6, mc.MorningCutoffHour)

	cfg.Reconciliation.AmountTolerance = "not-a-number"
	_, err = cfg.MatcherConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	cfg.Reconciliation.MorningCutoffHour = 25
	assert.Error(t, cfg.Validate())
}
