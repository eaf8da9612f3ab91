package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pricetool/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed migrations/001_init.sql
var schemaSQL string

const batchSize = 1000

const (
	upsertRunSQL = `INSERT INTO pipeline_runs (
        run_id,
        pipeline,
        range_start,
        range_end,
        input_rows,
        output_rows,
        skipped_rows,
        output_path,
        started_at,
        finished_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (run_id) DO UPDATE
    SET
        input_rows   = EXCLUDED.input_rows,
        output_rows  = EXCLUDED.output_rows,
        skipped_rows = EXCLUDED.skipped_rows,
        output_path  = EXCLUDED.output_path,
        finished_at  = EXCLUDED.finished_at;`

	insertConvertedSQL = `INSERT INTO converted_prices (
        run_id, row_no, ts, ccy_pair, security_id, bid, mid, ask,
        spot_ts, spot_mid_rate, convert_price, conversion_factor,
        new_bid, new_mid, new_ask
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
    )
    ON CONFLICT (run_id, row_no) DO NOTHING;`

	insertStdevSQL = `INSERT INTO rolling_stdev (
        run_id, row_no, snap_time, security_id,
        bid_stdev, mid_stdev, ask_stdev, gap_blocked
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (run_id, row_no) DO NOTHING;`

	listRecentRunsSQL = `SELECT
        run_id::text,
        pipeline,
        range_start,
        range_end,
        input_rows,
        output_rows,
        skipped_rows,
        output_path,
        started_at,
        finished_at,
        created_at
    FROM pipeline_runs
    ORDER BY started_at DESC
    LIMIT $1;`
)

// ResultStore persists pipeline runs and their output rows.
type ResultStore interface {
	UpsertRun(ctx context.Context, run RunRecord) error
	InsertConvertedPrices(ctx context.Context, runID uuid.UUID, rows []model.ConvertedPrice) error
	InsertStdevResults(ctx context.Context, runID uuid.UUID, rows []model.StdevResult) error
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// Store is the PostgreSQL-backed ResultStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the result tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertRun records a run, updating counts when it already exists.
func (s *Store) UpsertRun(ctx context.Context, run RunRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	rangeStart, rangeEnd := runTimes(run.RangeStart, run.RangeEnd)
	_, execErr := pool.Exec(ctx, upsertRunSQL,
		run.RunID.String(),
		run.Pipeline,
		rangeStart,
		rangeEnd,
		run.InputRows,
		run.OutputRows,
		run.SkippedRows,
		run.OutputPath,
		run.StartedAt,
		run.FinishedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert run: %w", execErr)
	}
	return nil
}

// InsertConvertedPrices stores converted rows of a run in batches.
func (s *Store) InsertConvertedPrices(ctx context.Context, runID uuid.UUID, rows []model.ConvertedPrice) error {
	id := runID.String()
	return s.sendBatches(ctx, len(rows), func(batch *pgx.Batch, i int) {
		r := rows[i]
		batch.Queue(insertConvertedSQL,
			id,
			i+1,
			r.Timestamp,
			r.Currency,
			nullString(r.SecurityID),
			r.Bid.String(),
			r.Mid.String(),
			r.Ask.String(),
			r.SpotTimestamp,
			r.SpotRate.String(),
			r.ConvertPrice,
			r.ConversionFactor.String(),
			r.NewBid.String(),
			r.NewMid.String(),
			r.NewAsk.String(),
		)
	}, "insert converted prices")
}

// InsertStdevResults stores rolling statistics of a run in batches.
// Rows without computed statistics are stored with NULL values.
func (s *Store) InsertStdevResults(ctx context.Context, runID uuid.UUID, rows []model.StdevResult) error {
	id := runID.String()
	return s.sendBatches(ctx, len(rows), func(batch *pgx.Batch, i int) {
		r := rows[i]
		batch.Queue(insertStdevSQL,
			id,
			i+1,
			r.Timestamp,
			nullString(r.SecurityID),
			r.BidStdev,
			r.MidStdev,
			r.AskStdev,
			r.GapBlocked,
		)
	}, "insert stdev results")
}

func (s *Store) sendBatches(ctx context.Context, n int, queue func(batch *pgx.Batch, i int), op string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			queue(batch, i)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// ListRecentRuns lists the most recent runs ordered by descending start time.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

func scanRun(rows pgx.Rows) (RunRecord, error) {
	var (
		run   RunRecord
		runID string
	)
	if err := rows.Scan(
		&runID,
		&run.Pipeline,
		&run.RangeStart,
		&run.RangeEnd,
		&run.InputRows,
		&run.OutputRows,
		&run.SkippedRows,
		&run.OutputPath,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	); err != nil {
		return RunRecord{}, err
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parse run id: %w", err)
	}
	run.RunID = id
	return run, nil
}

// nullString stores an absent security id as NULL.
func nullString(v string) null.String {
	return null.NewString(v, v != "")
}

// runTimes normalises bounds for the TIMESTAMP columns.
func runTimes(start, end *time.Time) (*time.Time, *time.Time) {
	norm := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		u := t.UTC()
		return &u
	}
	return norm(start), norm(end)
}
