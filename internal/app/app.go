package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pricetool/internal/alerting"
	"pricetool/internal/config"
	"pricetool/internal/source"
	"pricetool/internal/storage"
	"pricetool/internal/timerange"
)

const (
	PipelineConvert = "convert"
	PipelineStdev   = "stdev"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// RunSummary describes a finished pipeline run.
type RunSummary struct {
	RunID      uuid.UUID
	Pipeline   string
	Range      timerange.Range
	Processed  int
	Written    int
	Skipped    int
	SkipCounts map[string]int
	// Unavailable counts written rows that carry no statistics, by cause.
	Unavailable map[string]int
	OutputPath  string
	RejectsPath string
	ChartPath   string
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (s *RunSummary) record() storage.RunRecord {
	rec := storage.RunRecord{
		RunID:       s.RunID,
		Pipeline:    s.Pipeline,
		InputRows:   s.Processed,
		OutputRows:  s.Written,
		SkippedRows: s.Skipped,
		OutputPath:  s.OutputPath,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
	}
	if s.Range.Start.IsSome() {
		start := s.Range.Start.Unwrap()
		rec.RangeStart = &start
	}
	if s.Range.End.IsSome() {
		end := s.Range.End.Unwrap()
		rec.RangeEnd = &end
	}
	return rec
}

func (s *RunSummary) notification() alerting.Notification {
	return alerting.Notification{
		RunID:       s.RunID,
		Pipeline:    s.Pipeline,
		Range:       s.Range.String(),
		Processed:   s.Processed,
		Written:     s.Written,
		Skipped:     s.Skipped,
		SkipCounts:  s.SkipCounts,
		Unavailable: s.Unavailable,
		OutputPath:  s.OutputPath,
		Duration:    s.FinishedAt.Sub(s.StartedAt),
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openEngine(ctx context.Context, logger zerolog.Logger) (*source.Engine, func(), error) {
	engine, err := source.Open(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := engine.Close(); err != nil {
			logger.Warn().Err(err).Msg("close duckdb")
		}
	}
	return engine, closer, nil
}

func (a *App) runLogger(runID uuid.UUID, pipeline string) zerolog.Logger {
	return a.Logger.With().Str("run_id", runID.String()).Str("pipeline", pipeline).Logger()
}

// persist stores the run record and then its rows, when a database is configured.
func (a *App) persist(ctx context.Context, summary *RunSummary, rows func(store storage.ResultStore) error) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	defer closeStore()

	return persistRun(ctx, store, summary, rows)
}

func persistRun(ctx context.Context, store storage.ResultStore, summary *RunSummary, rows func(store storage.ResultStore) error) error {
	if err := store.UpsertRun(ctx, summary.record()); err != nil {
		return err
	}
	if err := rows(store); err != nil {
		return fmt.Errorf("persist %s rows: %w", summary.Pipeline, err)
	}
	return nil
}

// notify sends the run summary when alerting is enabled and the policy allows it.
// Delivery failures are logged and never fail the run.
func (a *App) notify(ctx context.Context, summary *RunSummary, logger zerolog.Logger) {
	if !a.Config.Alerting.Enabled {
		return
	}
	notifier := a.newNotifier()
	if notifier == nil {
		logger.Warn().Msg("alerting enabled but no channel configured")
		return
	}

	note := summary.notification()
	policy := alerting.Policy{
		MinSkipped:   a.Config.Alerting.MinSkipped,
		NotifyAlways: a.Config.Alerting.NotifyAlways,
	}
	if !policy.ShouldNotify(note) {
		return
	}
	if err := notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch run summary")
	}
}

// ShowOptions configure the runs listing.
type ShowOptions struct {
	Limit int
}
