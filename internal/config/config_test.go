package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesTemplateOnFirstRun(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "created template")

	_, statErr := os.Stat(filepath.Join(dir, "config.toml"))
	assert.NoError(t, statErr)
}

func TestLoadDefaultsAfterTemplate(t *testing.T) {
	dir := t.TempDir()
	_, _ = Load(dir) // first run writes the template

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.InDelta(t, 100000.0, cfg.Backtest.InitialCapital, 1e-9)
	assert.Equal(t, 120, cfg.Backtest.WarmUpDays)
	assert.InDelta(t, 0.30, cfg.Backtest.SizingFraction, 1e-9)
	assert.InDelta(t, 0.15, cfg.Futures.MarginRate, 1e-9)
	assert.InDelta(t, 0.03, cfg.Futures.ForceCloseRate, 1e-9)
	assert.InDelta(t, 100.0, cfg.Options.Multiplier, 1e-9)
	assert.Equal(t, 120*time.Second, cfg.Orchestrator.SymbolTimeout)
	assert.Equal(t, 16, cfg.Orchestrator.TasksPerWorker)
	assert.Equal(t, "store", cfg.Data.Source)
	assert.Equal(t, filepath.Join(dir, "backsim.db"), cfg.Data.DatabasePath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Profiling.Enabled)

	// Credentials template is created with restricted permissions.
	info, statErr := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadReadsCustomValues(t *testing.T) {
	dir := t.TempDir()
	custom := `
[backtest]
initial_capital = 250000.0
warm_up_days = 30

[orchestrator]
workers = 4
symbol_timeout = "90s"

[data]
source = "csv"
csv_dir = "/tmp/bars"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(custom), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.InDelta(t, 250000.0, cfg.Backtest.InitialCapital, 1e-9)
	assert.Equal(t, 30, cfg.Backtest.WarmUpDays)
	assert.Equal(t, 4, cfg.Orchestrator.Workers)
	assert.Equal(t, 90*time.Second, cfg.Orchestrator.SymbolTimeout)
	assert.Equal(t, "csv", cfg.Data.Source)
	assert.Equal(t, "/tmp/bars", cfg.Data.CSVDir)

	// Unset keys keep their defaults.
	assert.InDelta(t, 0.30, cfg.Backtest.SizingFraction, 1e-9)
	assert.InDelta(t, 10.0, cfg.Futures.Multiplier, 1e-9)
}

func TestEnvOverridesApply(t *testing.T) {
	dir := t.TempDir()
	_, _ = Load(dir)

	t.Setenv("ALPACA_API_KEY", "test-key")
	t.Setenv("ALPACA_API_SECRET", "test-secret")
	t.Setenv("BACKSIM_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Credentials.Alpaca.APIKey)
	assert.Equal(t, "test-secret", cfg.Credentials.Alpaca.APISecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	load := func(t *testing.T) *Config {
		dir := t.TempDir()
		_, _ = Load(dir)
		cfg, err := Load(dir)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }},
		{"negative warm-up", func(c *Config) { c.Backtest.WarmUpDays = -1 }},
		{"sizing fraction above one", func(c *Config) { c.Backtest.SizingFraction = 1.5 }},
		{"commission of 100%", func(c *Config) { c.Backtest.CommissionRate = 1.0 }},
		{"margin rate of 100%", func(c *Config) { c.Futures.MarginRate = 1.0 }},
		{"force close above margin", func(c *Config) { c.Futures.ForceCloseRate = 0.2 }},
		{"zero futures multiplier", func(c *Config) { c.Futures.Multiplier = 0 }},
		{"negative workers", func(c *Config) { c.Orchestrator.Workers = -1 }},
		{"unknown data source", func(c *Config) { c.Data.Source = "ftp" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"profiling without address", func(c *Config) {
			c.Profiling.Enabled = true
			c.Profiling.ServerAddress = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := load(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
