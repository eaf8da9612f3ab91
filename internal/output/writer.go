// Package output writes pipeline results as CSV, Parquet or PNG.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	"pricetool/internal/conversion"
	"pricetool/internal/model"
)

// TimeLayout is the timestamp format used in written files.
const TimeLayout = "2006-01-02 15:04:05"

// ParquetCopier turns a staged CSV file into Parquet.
type ParquetCopier interface {
	CopyCSVToParquet(ctx context.Context, csvPath, parquetPath string, types map[string]string) error
}

// Writer persists result tables to disk.
type Writer struct {
	parquet   ParquetCopier
	isParquet func(path string) bool
	logger    zerolog.Logger
}

// NewWriter builds a writer. copier may be nil when Parquet output is not needed.
func NewWriter(copier ParquetCopier, isParquet func(string) bool, logger zerolog.Logger) *Writer {
	if isParquet == nil {
		isParquet = func(string) bool { return false }
	}
	return &Writer{parquet: copier, isParquet: isParquet, logger: logger.With().Str("component", "output").Logger()}
}

type convertedRow struct {
	Timestamp        string `csv:"timestamp"`
	Currency         string `csv:"ccy_pair"`
	SecurityID       string `csv:"security_id"`
	Bid              string `csv:"bid"`
	Mid              string `csv:"mid"`
	Ask              string `csv:"ask"`
	SpotTimestamp    string `csv:"spot_timestamp"`
	SpotRate         string `csv:"spot_mid_rate"`
	ConvertPrice     bool   `csv:"convert_price"`
	ConversionFactor string `csv:"conversion_factor"`
	NewBid           string `csv:"new_bid"`
	NewMid           string `csv:"new_mid"`
	NewAsk           string `csv:"new_ask"`
}

type stdevRow struct {
	Timestamp  string     `csv:"snap_time"`
	SecurityID string     `csv:"security_id"`
	Bid        float64    `csv:"bid"`
	Mid        float64    `csv:"mid"`
	Ask        float64    `csv:"ask"`
	BidStdev   null.Float `csv:"bid_stdev"`
	MidStdev   null.Float `csv:"mid_stdev"`
	AskStdev   null.Float `csv:"ask_stdev"`
}

type stdevGapRow struct {
	Timestamp  string     `csv:"snap_time"`
	SecurityID string     `csv:"security_id"`
	Bid        float64    `csv:"bid"`
	Mid        float64    `csv:"mid"`
	Ask        float64    `csv:"ask"`
	BidStdev   null.Float `csv:"bid_stdev"`
	MidStdev   null.Float `csv:"mid_stdev"`
	AskStdev   null.Float `csv:"ask_stdev"`
	GapBlocked bool       `csv:"gap_blocked"`
}

// Parquet column types. Columns left out stay VARCHAR, which keeps decimal
// strings and security ids exactly as rendered in the CSV.
var (
	convertedTypes = map[string]string{
		"timestamp":      "TIMESTAMP",
		"spot_timestamp": "TIMESTAMP",
		"convert_price":  "BOOLEAN",
	}
	stdevTypes = map[string]string{
		"snap_time": "TIMESTAMP",
		"bid":       "DOUBLE",
		"mid":       "DOUBLE",
		"ask":       "DOUBLE",
		"bid_stdev": "DOUBLE",
		"mid_stdev": "DOUBLE",
		"ask_stdev": "DOUBLE",
	}
	stdevGapTypes = withType(stdevTypes, "gap_blocked", "BOOLEAN")
	rejectTypes   = map[string]string{
		"row":       "BIGINT",
		"timestamp": "TIMESTAMP",
	}
)

func withType(base map[string]string, column, typ string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[column] = typ
	return out
}

type rejectRow struct {
	Row       int    `csv:"row"`
	Reason    string `csv:"reason"`
	Timestamp string `csv:"timestamp"`
	Currency  string `csv:"ccy_pair"`
	Bid       string `csv:"bid"`
	Mid       string `csv:"mid"`
	Ask       string `csv:"ask"`
}

// WriteConverted writes converted prices.
func (w *Writer) WriteConverted(ctx context.Context, path string, rows []model.ConvertedPrice) error {
	out := make([]convertedRow, len(rows))
	for i, r := range rows {
		out[i] = convertedRow{
			Timestamp:        r.Timestamp.Format(TimeLayout),
			Currency:         r.Currency,
			SecurityID:       r.SecurityID,
			Bid:              r.Bid.String(),
			Mid:              r.Mid.String(),
			Ask:              r.Ask.String(),
			SpotTimestamp:    r.SpotTimestamp.Format(TimeLayout),
			SpotRate:         r.SpotRate.String(),
			ConvertPrice:     r.ConvertPrice,
			ConversionFactor: r.ConversionFactor.String(),
			NewBid:           r.NewBid.String(),
			NewMid:           r.NewMid.String(),
			NewAsk:           r.NewAsk.String(),
		}
	}
	return w.writeTable(ctx, path, &out, len(out), convertedTypes)
}

// WriteStdev writes rolling statistics; gapFlag adds the gap_blocked column.
func (w *Writer) WriteStdev(ctx context.Context, path string, rows []model.StdevResult, gapFlag bool) error {
	base := make([]stdevRow, len(rows))
	for i, r := range rows {
		base[i] = stdevRow{
			Timestamp:  r.Timestamp.Format(TimeLayout),
			SecurityID: r.SecurityID,
			Bid:        r.Bid,
			Mid:        r.Mid,
			Ask:        r.Ask,
			BidStdev:   r.BidStdev,
			MidStdev:   r.MidStdev,
			AskStdev:   r.AskStdev,
		}
	}
	if !gapFlag {
		return w.writeTable(ctx, path, &base, len(base), stdevTypes)
	}

	flagged := make([]stdevGapRow, len(rows))
	for i, r := range rows {
		b := base[i]
		flagged[i] = stdevGapRow{
			Timestamp:  b.Timestamp,
			SecurityID: b.SecurityID,
			Bid:        b.Bid,
			Mid:        b.Mid,
			Ask:        b.Ask,
			BidStdev:   b.BidStdev,
			MidStdev:   b.MidStdev,
			AskStdev:   b.AskStdev,
			GapBlocked: r.GapBlocked,
		}
	}
	return w.writeTable(ctx, path, &flagged, len(flagged), stdevGapTypes)
}

// WriteRejects writes price rows that could not be converted.
func (w *Writer) WriteRejects(ctx context.Context, path string, skipped []conversion.SkippedRow) error {
	out := make([]rejectRow, len(skipped))
	for i, s := range skipped {
		out[i] = rejectRow{
			Row:       s.Index + 1,
			Reason:    string(s.Reason),
			Timestamp: s.Record.Timestamp.Format(TimeLayout),
			Currency:  s.Record.Currency,
			Bid:       s.Record.Bid.String(),
			Mid:       s.Record.Mid.String(),
			Ask:       s.Record.Ask.String(),
		}
	}
	return w.writeTable(ctx, path, &out, len(out), rejectTypes)
}

func (w *Writer) writeTable(ctx context.Context, path string, rows any, n int, types map[string]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	if !w.isParquet(path) {
		if err := writeCSV(path, rows); err != nil {
			return err
		}
		w.logger.Info().Str("path", path).Int("rows", n).Msg("wrote csv")
		return nil
	}

	if w.parquet == nil {
		return fmt.Errorf("parquet output requested for %s but no parquet engine configured", path)
	}
	staged := fmt.Sprintf("%s.%d.tmp.csv", path, time.Now().UnixNano())
	defer os.Remove(staged)

	if err := writeCSV(staged, rows); err != nil {
		return err
	}
	if err := w.parquet.CopyCSVToParquet(ctx, staged, path, types); err != nil {
		return err
	}
	w.logger.Info().Str("path", path).Int("rows", n).Msg("wrote parquet")
	return nil
}

func writeCSV(path string, rows any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
