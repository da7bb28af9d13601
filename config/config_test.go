package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.InDelta(t, 1000, cfg.Paper.InitialCapital, 1e-9)
	assert.Equal(t, "data/audit", cfg.Audit.Dir)
	assert.Equal(t, "polyedge.db", cfg.Storage.DSN)
	assert.True(t, cfg.StorageEnabled())
	assert.Equal(t, "https://clob.polymarket.com", cfg.API.CLOBBase)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, time.Duration(0), cfg.Interval())
	assert.Equal(t, 12*time.Hour, cfg.EdgeModelConfig().MaxForecastAge)
}

func TestLoad_SampleFile(t *testing.T) {
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)

	eng := cfg.Engine()
	assert.InDelta(t, 0.25, eng.Sizing.KellyFraction, 1e-9)
	assert.InDelta(t, 250, eng.Sizing.MaxPosition, 1e-9)
	require.Len(t, eng.Sizing.TimeDecay, 3)
	assert.InDelta(t, 0.5, eng.Sizing.TimeDecay[1].Multiplier, 1e-9)
	assert.Equal(t, 30, eng.MaxOpenPositions)
	assert.InDelta(t, 0.10, eng.DrawdownHalt, 1e-9)
	assert.InDelta(t, 0.05, eng.DrawdownSoft, 1e-9)
	assert.InDelta(t, 0.15, eng.Lifecycle.TakeProfitPct, 1e-9)
	assert.InDelta(t, 0.10, eng.Lifecycle.MinEdge, 1e-9)
	assert.InDelta(t, 2.0, cfg.SpreadTiers().HighBelowPct, 1e-9)
}

func TestLoad_PartialKellyKeepsDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
kelly:
  fraction: 0.5
edge:
  min_edge: 0.08
  max_forecast_age_hours: -1
`))
	require.NoError(t, err)

	eng := cfg.Engine()
	assert.InDelta(t, 0.5, eng.Sizing.KellyFraction, 1e-9)
	assert.InDelta(t, 10, eng.Sizing.MinPosition, 1e-9, "default")
	assert.NotEmpty(t, eng.Sizing.TimeDecay)
	assert.InDelta(t, 0.08, eng.Lifecycle.MinEdge, 1e-9)
	assert.LessOrEqual(t, cfg.EdgeModelConfig().MaxForecastAge, time.Duration(0))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("POLYEDGE_AUDIT_DIR", "/tmp/audit")
	t.Setenv("POLYEDGE_DB", "off")
	t.Setenv("POLYEDGE_INITIAL_CAPITAL", "2500")

	cfg, err := config.Load(writeConfig(t, "log:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/audit", cfg.Audit.Dir)
	assert.False(t, cfg.StorageEnabled())
	assert.InDelta(t, 2500, cfg.Engine().InitialCapital, 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "paper: [unclosed"))
	assert.Error(t, err)

	t.Setenv("POLYEDGE_INITIAL_CAPITAL", "lots")
	_, err = config.Load(writeConfig(t, "{}\n"))
	assert.Error(t, err)
}
