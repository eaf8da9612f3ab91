package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"pricetool/internal/config"
	"pricetool/internal/model"
	"pricetool/internal/output"
	"pricetool/internal/rolling"
	"pricetool/internal/source"
	"pricetool/internal/storage"
	"pricetool/internal/timerange"
)

// StdevOptions hold the inputs and knobs of one rolling stdev run.
type StdevOptions struct {
	InputPath  string
	OutputPath string
	ChartPath  string
	Range      timerange.Range
	Window     int
	Interval   time.Duration
	Population bool
	AddGapFlag bool
	Columns    source.Columns
}

// StdevDefaults resolves rolling stdev options from configuration.
func StdevDefaults(cfg config.StdevConfig) (StdevOptions, error) {
	r, err := timerange.Parse(cfg.Start, cfg.End)
	if err != nil {
		return StdevOptions{}, err
	}
	return StdevOptions{
		InputPath:  config.ResolvePath(cfg.DataDir, cfg.InputFile),
		OutputPath: config.ResolvePath(cfg.OutputDir, cfg.OutputFile),
		ChartPath:  config.ResolvePath(cfg.OutputDir, cfg.ChartFile),
		Range:      r,
		Window:     cfg.Window,
		Interval:   cfg.Interval,
		Population: cfg.Population,
		AddGapFlag: cfg.AddGapFlag,
		Columns:    cfg.Columns,
	}, nil
}

// Stdev computes contiguity-gated rolling standard deviations and writes them.
func (a *App) Stdev(ctx context.Context, opts StdevOptions) (*RunSummary, error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary := &RunSummary{
		RunID:      uuid.New(),
		Pipeline:   PipelineStdev,
		Range:      opts.Range,
		OutputPath: opts.OutputPath,
		ChartPath:  opts.ChartPath,
		StartedAt:  time.Now().UTC(),
	}
	logger := a.runLogger(summary.RunID, summary.Pipeline)
	logger.Info().
		Str("input", opts.InputPath).
		Str("range", opts.Range.String()).
		Int("window", opts.Window).
		Dur("interval", opts.Interval).
		Msg("starting rolling stdev")

	engine, closeEngine, err := a.openEngine(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer closeEngine()

	obs, err := engine.LoadObservations(ctx, opts.InputPath, opts.Columns, opts.Range)
	if err != nil {
		return nil, err
	}

	rollOpts := rolling.Options{
		Window:     opts.Window,
		Interval:   opts.Interval,
		Population: opts.Population,
	}
	if a.Config.App.Progress && len(obs) > 0 {
		bar := progressbar.NewOptions(len(obs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("rolling stdev"),
			progressbar.OptionShowCount(),
		)
		rollOpts.OnSeries = func(_ string, rows int) {
			_ = bar.Add(rows)
		}
		defer bar.Finish()
	}

	results, err := rolling.Compute(obs, rollOpts)
	if err != nil {
		return nil, err
	}

	writer := output.NewWriter(engine, source.IsParquetPath, logger)
	if err := writer.WriteStdev(ctx, opts.OutputPath, results, opts.AddGapFlag); err != nil {
		return nil, err
	}

	if opts.ChartPath != "" {
		err := output.WriteStdevPNG(opts.ChartPath, results)
		switch {
		case errors.Is(err, output.ErrNothingToPlot):
			logger.Warn().Str("chart", opts.ChartPath).Msg("no computed values to plot; chart skipped")
		case err != nil:
			return nil, err
		}
	}

	computed, blocked := countComputed(results)
	summary.Processed = len(obs)
	summary.Written = len(results)
	// every row is written; these count rows left without statistics
	summary.Unavailable = map[string]int{
		"underfilled": len(results) - computed - blocked,
		"gap_blocked": blocked,
	}
	summary.FinishedAt = time.Now().UTC()

	err = a.persist(ctx, summary, func(store storage.ResultStore) error {
		return store.InsertStdevResults(ctx, summary.RunID, results)
	})
	if err != nil {
		return nil, err
	}

	a.notify(ctx, summary, logger)

	logger.Info().
		Int("rows", summary.Written).
		Int("computed", computed).
		Int("gap_blocked", blocked).
		Str("output", opts.OutputPath).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("rolling stdev finished")
	return summary, nil
}

func countComputed(results []model.StdevResult) (computed, blocked int) {
	for _, r := range results {
		if r.Computed() {
			computed++
		}
		if r.GapBlocked {
			blocked++
		}
	}
	return computed, blocked
}
