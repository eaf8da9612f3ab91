package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Convert.DataDir)
	assert.Equal(t, "rates_ccy_data.csv", cfg.Convert.CcyFile)
	assert.Equal(t, "rates_spot_rate_data.parq.gzip", cfg.Convert.SpotFile)
	assert.Equal(t, "rates_price_data.parq.gzip", cfg.Convert.PriceFile)
	assert.Equal(t, "converted_prices.csv", cfg.Convert.OutputFile)
	assert.Zero(t, cfg.Convert.SpotTolerance)
	assert.Equal(t, "ccy_pair", cfg.Convert.Columns.Currency)

	assert.Equal(t, "stdev_price_data.parq.gzip", cfg.Stdev.InputFile)
	assert.Equal(t, "rolling_stdev.csv", cfg.Stdev.OutputFile)
	assert.Equal(t, 20, cfg.Stdev.Window)
	assert.Equal(t, time.Hour, cfg.Stdev.Interval)
	assert.Equal(t, "snap_time", cfg.Stdev.Columns.Timestamp)
	assert.Empty(t, cfg.Stdev.Start)
	assert.Empty(t, cfg.Stdev.End)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Database.DSN)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricetool.yaml")
	yaml := `
convert:
  spot_tolerance: 1h
  columns:
    timestamp: ts
stdev:
  window: 10
  interval: 30m
  add_gap_flag: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("PRICETOOL_STDEV_OUTPUT_FILE", "out.parquet")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Convert.SpotTolerance)
	assert.Equal(t, "ts", cfg.Convert.Columns.Timestamp)
	assert.Equal(t, "ccy_pair", cfg.Convert.Columns.Currency)
	assert.Equal(t, 10, cfg.Stdev.Window)
	assert.Equal(t, 30*time.Minute, cfg.Stdev.Interval)
	assert.True(t, cfg.Stdev.AddGapFlag)
	assert.Equal(t, "out.parquet", cfg.Stdev.OutputFile)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Stdev: StdevConfig{Window: 20, Interval: time.Hour}}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Stdev.Window = 1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Stdev.Interval = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Convert.SpotTolerance = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Alerting.Telegram.Enabled = true
	assert.Error(t, cfg.Validate())
	cfg.Alerting.Telegram.BotToken = "token"
	assert.Error(t, cfg.Validate())
	cfg.Alerting.Telegram.ChatID = "chat"
	assert.NoError(t, cfg.Validate())
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "a.csv"), ResolvePath("data", "a.csv"))
	assert.Equal(t, "/abs/a.csv", ResolvePath("data", "/abs/a.csv"))
	assert.Equal(t, "./a.csv", ResolvePath("data", "./a.csv"))
	assert.Equal(t, "a.csv", ResolvePath("", "a.csv"))
	assert.Equal(t, "", ResolvePath("data", ""))
}
