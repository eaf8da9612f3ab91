package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricetool/internal/app"
	"pricetool/internal/config"
	"pricetool/internal/timerange"
)

func writeFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		appHandle = nil
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	in := filepath.Join(dir, "in")
	writeFile(t, in, "ccy.csv",
		"ccy_pair,convert_price,conversion_factor",
		"GBPUSD,True,100",
	)
	writeFile(t, in, "spot.csv",
		"timestamp,ccy_pair,spot_mid_rate",
		"2021-11-20 00:00:00,GBPUSD,1.25",
	)
	writeFile(t, in, "prices.csv",
		"timestamp,ccy_pair,bid,mid,ask",
		"2021-11-20 00:00:00,GBPUSD,50,60,70",
		"2021-11-20 02:00:00,GBPUSD,50,60,70",
	)

	out, err := execute(t, "convert",
		"--log-level", "error",
		"--data-dir", "in",
		"--output-dir", "out",
		"--ccy", "ccy.csv",
		"--spot", "spot.csv",
		"--price", "prices.csv",
		"--rejects", "rejects.csv",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "processed 2, written 1, skipped 1")
	assert.Contains(t, out, "missing_rate: 1")
	assert.FileExists(t, filepath.Join(dir, "out", "converted_prices.csv"))
	assert.FileExists(t, filepath.Join(dir, "out", "rejects.csv"))
}

func TestVersionCommandSkipsConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("stdev:\n  window: 1\n"), 0o644))

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pricetool "))
}

func TestOverrideStdevOnlyChangedFlags(t *testing.T) {
	flags := pflag.NewFlagSet("stdev", pflag.ContinueOnError)
	flags.IntVar(&stdevFlags.Window, "window", 0, "")
	flags.DurationVar(&stdevFlags.Interval, "interval", 0, "")
	flags.StringVar(&stdevFlags.InputFile, "input", "", "")
	require.NoError(t, flags.Parse([]string{"--window", "5"}))

	cfg := config.StdevConfig{Window: 20, Interval: time.Hour, InputFile: "stdev_price_data.parq.gzip"}
	overrideStdev(flags, &cfg)

	assert.Equal(t, 5, cfg.Window)
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, "stdev_price_data.parq.gzip", cfg.InputFile)
}

func TestPrintSummaryLabelsRowsWithoutStatistics(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)

	printSummary(cmd, &app.RunSummary{
		Pipeline:    app.PipelineStdev,
		Range:       timerange.All(),
		Processed:   25,
		Written:     25,
		Unavailable: map[string]int{"underfilled": 19, "gap_blocked": 3},
		OutputPath:  "results/rolling_stdev.csv",
	})

	assert.Contains(t, out.String(), "processed 25, written 25, skipped 0\nwithout statistics 22\n  gap_blocked: 3\n  underfilled: 19\n")
}
