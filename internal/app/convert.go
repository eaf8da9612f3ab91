package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pricetool/internal/config"
	"pricetool/internal/conversion"
	"pricetool/internal/output"
	"pricetool/internal/source"
	"pricetool/internal/storage"
	"pricetool/internal/timerange"
)

// ConvertOptions hold the inputs and knobs of one conversion run.
type ConvertOptions struct {
	CcyPath       string
	SpotPath      string
	PricePath     string
	OutputPath    string
	RejectsPath   string
	Range         timerange.Range
	SpotTolerance time.Duration
	Columns       source.Columns
}

// ConvertDefaults resolves conversion options from configuration.
func ConvertDefaults(cfg config.ConvertConfig) (ConvertOptions, error) {
	r, err := timerange.Parse(cfg.Start, cfg.End)
	if err != nil {
		return ConvertOptions{}, err
	}
	return ConvertOptions{
		CcyPath:       config.ResolvePath(cfg.DataDir, cfg.CcyFile),
		SpotPath:      config.ResolvePath(cfg.DataDir, cfg.SpotFile),
		PricePath:     config.ResolvePath(cfg.DataDir, cfg.PriceFile),
		OutputPath:    config.ResolvePath(cfg.OutputDir, cfg.OutputFile),
		RejectsPath:   config.ResolvePath(cfg.OutputDir, cfg.RejectsFile),
		Range:         r,
		SpotTolerance: cfg.SpotTolerance,
		Columns:       cfg.Columns,
	}, nil
}

// Convert loads prices, spot rates and currency rules, writes the converted
// prices and reports what was skipped.
func (a *App) Convert(ctx context.Context, opts ConvertOptions) (*RunSummary, error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary := &RunSummary{
		RunID:       uuid.New(),
		Pipeline:    PipelineConvert,
		Range:       opts.Range,
		OutputPath:  opts.OutputPath,
		RejectsPath: opts.RejectsPath,
		StartedAt:   time.Now().UTC(),
	}
	logger := a.runLogger(summary.RunID, summary.Pipeline)
	logger.Info().
		Str("ccy", opts.CcyPath).
		Str("spot", opts.SpotPath).
		Str("price", opts.PricePath).
		Str("range", opts.Range.String()).
		Dur("spot_tolerance", opts.SpotTolerance).
		Msg("starting conversion")

	engine, closeEngine, err := a.openEngine(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer closeEngine()

	result, err := runConversion(ctx, engine, opts, logger)
	if err != nil {
		return nil, err
	}

	writer := output.NewWriter(engine, source.IsParquetPath, logger)
	if err := writer.WriteConverted(ctx, opts.OutputPath, result.Rows); err != nil {
		return nil, err
	}
	if opts.RejectsPath != "" {
		if err := writer.WriteRejects(ctx, opts.RejectsPath, result.Skipped); err != nil {
			return nil, err
		}
	}

	summary.Processed = result.Processed()
	summary.Written = len(result.Rows)
	summary.Skipped = len(result.Skipped)
	summary.SkipCounts = skipCounts(result)
	summary.FinishedAt = time.Now().UTC()

	if summary.Skipped > 0 {
		event := logger.Warn().Int("skipped", summary.Skipped)
		for reason, n := range summary.SkipCounts {
			event = event.Int(reason, n)
		}
		event.Msg("price rows skipped")
	}

	err = a.persist(ctx, summary, func(store storage.ResultStore) error {
		return store.InsertConvertedPrices(ctx, summary.RunID, result.Rows)
	})
	if err != nil {
		return nil, err
	}

	a.notify(ctx, summary, logger)

	logger.Info().
		Int("processed", summary.Processed).
		Int("written", summary.Written).
		Int("filtered", result.Filtered).
		Str("output", opts.OutputPath).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("conversion finished")
	return summary, nil
}

func runConversion(ctx context.Context, engine *source.Engine, opts ConvertOptions, logger zerolog.Logger) (conversion.Result, error) {
	rules, err := engine.LoadRules(ctx, opts.CcyPath, opts.Columns)
	if err != nil {
		return conversion.Result{}, err
	}
	book, err := conversion.NewRuleBook(rules)
	if err != nil {
		return conversion.Result{}, err
	}

	rates, err := engine.LoadSpotRates(ctx, opts.SpotPath, opts.Columns)
	if err != nil {
		return conversion.Result{}, err
	}

	prices, err := engine.LoadPrices(ctx, opts.PricePath, opts.Columns, opts.Range)
	if err != nil {
		return conversion.Result{}, err
	}

	logger.Debug().
		Int("rules", book.Len()).
		Int("spot_rates", len(rates)).
		Int("prices", len(prices)).
		Msg("inputs loaded")

	return conversion.Join(prices, book, conversion.NewSpotIndex(rates), conversion.Options{
		Range:         opts.Range,
		SpotTolerance: opts.SpotTolerance,
	}), nil
}

func skipCounts(result conversion.Result) map[string]int {
	counts := make(map[string]int)
	for reason, n := range result.SkipCounts() {
		counts[string(reason)] = n
	}
	return counts
}
