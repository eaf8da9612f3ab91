package output

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricetool/internal/conversion"
	"pricetool/internal/model"
)

var t0 = time.Date(2021, 11, 20, 0, 0, 0, 0, time.UTC)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

type fakeCopier struct {
	from, to string
	types    map[string]string
}

func (f *fakeCopier) CopyCSVToParquet(ctx context.Context, csvPath, parquetPath string, types map[string]string) error {
	f.from, f.to, f.types = csvPath, parquetPath, types
	data, err := os.ReadFile(csvPath)
	if err != nil {
		return err
	}
	return os.WriteFile(parquetPath, data, 0o644)
}

func TestWriteStdevMarksNotComputedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rolling_stdev.csv")
	w := NewWriter(nil, nil, zerolog.Nop())

	rows := []model.StdevResult{
		{Observation: model.Observation{Timestamp: t0, SecurityID: "7", Bid: 1, Mid: 1.5, Ask: 2}},
		{
			Observation: model.Observation{Timestamp: t0.Add(time.Hour), SecurityID: "7", Bid: 1, Mid: 1.5, Ask: 2},
			BidStdev:    null.FloatFrom(0),
			MidStdev:    null.FloatFrom(0.25),
			AskStdev:    null.FloatFrom(1.5),
		},
	}
	require.NoError(t, w.WriteStdev(context.Background(), path, rows, false))

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "snap_time,security_id,bid,mid,ask,bid_stdev,mid_stdev,ask_stdev", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2021-11-20 00:00:00,7,"))
	assert.True(t, strings.HasSuffix(lines[1], ",,,"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], ",0,0.25,1.5"), lines[2])
}

func TestWriteStdevGapFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rolling_stdev.csv")
	w := NewWriter(nil, nil, zerolog.Nop())

	rows := []model.StdevResult{{Observation: model.Observation{Timestamp: t0}, GapBlocked: true}}
	require.NoError(t, w.WriteStdev(context.Background(), path, rows, true))

	lines := readLines(t, path)
	assert.True(t, strings.HasSuffix(lines[0], ",gap_blocked"))
	assert.True(t, strings.HasSuffix(lines[1], ",true"))
}

func TestWriteConvertedKeepsExactDecimals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "converted_prices.csv")
	w := NewWriter(nil, nil, zerolog.Nop())

	rows := []model.ConvertedPrice{{
		PriceRecord:      model.PriceRecord{Timestamp: t0, Currency: "GBPUSD", Bid: decimal.RequireFromString("123.45"), Mid: decimal.RequireFromString("124"), Ask: decimal.RequireFromString("124.55")},
		SpotTimestamp:    t0,
		SpotRate:         decimal.RequireFromString("1.1"),
		ConvertPrice:     true,
		ConversionFactor: decimal.NewFromInt(100),
		NewBid:           decimal.RequireFromString("2.3345"),
		NewMid:           decimal.RequireFromString("2.34"),
		NewAsk:           decimal.RequireFromString("2.3455"),
	}}
	require.NoError(t, w.WriteConverted(context.Background(), path, rows))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,ccy_pair,security_id,bid,mid,ask,spot_timestamp,spot_mid_rate,convert_price,conversion_factor,new_bid,new_mid,new_ask", lines[0])
	assert.Equal(t, "2021-11-20 00:00:00,GBPUSD,,123.45,124,124.55,2021-11-20 00:00:00,1.1,true,100,2.3345,2.34,2.3455", lines[1])
}

func TestWriteRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rejects.csv")
	w := NewWriter(nil, nil, zerolog.Nop())

	skipped := []conversion.SkippedRow{{
		Index:  4,
		Record: model.PriceRecord{Timestamp: t0, Currency: "USDJPY", Bid: decimal.NewFromInt(1), Mid: decimal.NewFromInt(2), Ask: decimal.NewFromInt(3)},
		Reason: conversion.SkipNoRule,
	}}
	require.NoError(t, w.WriteRejects(context.Background(), path, skipped))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "5,missing_rule,2021-11-20 00:00:00,USDJPY,1,2,3", lines[1])
}

func TestParquetOutputIsStagedThroughCopier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.parquet")
	copier := &fakeCopier{}
	w := NewWriter(copier, func(p string) bool { return strings.HasSuffix(p, ".parquet") }, zerolog.Nop())

	require.NoError(t, w.WriteStdev(context.Background(), path, nil, false))
	assert.Equal(t, path, copier.to)
	assert.True(t, strings.HasPrefix(copier.from, path))
	assert.Equal(t, "DOUBLE", copier.types["mid_stdev"])
	assert.NotContains(t, copier.types, "security_id")
	_, err := os.Stat(copier.from)
	assert.True(t, os.IsNotExist(err), "staged csv should be removed")
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestParquetWithoutCopierFails(t *testing.T) {
	w := NewWriter(nil, func(string) bool { return true }, zerolog.Nop())
	err := w.WriteStdev(context.Background(), filepath.Join(t.TempDir(), "out.parquet"), nil, false)
	assert.Error(t, err)
}

func TestWriteStdevPNG(t *testing.T) {
	dir := t.TempDir()
	var rows []model.StdevResult
	for i := 0; i < 5; i++ {
		rows = append(rows, model.StdevResult{
			Observation: model.Observation{Timestamp: t0.Add(time.Duration(i) * time.Hour), SecurityID: "1"},
			BidStdev:    null.FloatFrom(0.1),
			MidStdev:    null.FloatFrom(0.1 * float64(i+1)),
			AskStdev:    null.FloatFrom(0.1),
		})
	}

	path := filepath.Join(dir, "chart.png")
	require.NoError(t, WriteStdevPNG(path, rows))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	err = WriteStdevPNG(filepath.Join(dir, "empty.png"), rows[:1])
	assert.ErrorIs(t, err, ErrNothingToPlot)
}
