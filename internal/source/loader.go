package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"pricetool/internal/model"
	"pricetool/internal/timerange"
)

const rowColumn = "__row"

// Columns maps logical fields to the column names used in input files.
type Columns struct {
	Timestamp        string `mapstructure:"timestamp"`
	Currency         string `mapstructure:"currency"`
	SecurityID       string `mapstructure:"security_id"`
	Bid              string `mapstructure:"bid"`
	Mid              string `mapstructure:"mid"`
	Ask              string `mapstructure:"ask"`
	Rate             string `mapstructure:"rate"`
	ConvertPrice     string `mapstructure:"convert_price"`
	ConversionFactor string `mapstructure:"conversion_factor"`
}

// DefaultConvertColumns matches the rates input files.
func DefaultConvertColumns() Columns {
	return Columns{
		Timestamp:        "timestamp",
		Currency:         "ccy_pair",
		SecurityID:       "security_id",
		Bid:              "bid",
		Mid:              "mid",
		Ask:              "ask",
		Rate:             "spot_mid_rate",
		ConvertPrice:     "convert_price",
		ConversionFactor: "conversion_factor",
	}
}

// DefaultStdevColumns matches the stdev price snapshot file.
func DefaultStdevColumns() Columns {
	return Columns{
		Timestamp:  "snap_time",
		SecurityID: "security_id",
		Bid:        "bid",
		Mid:        "mid",
		Ask:        "ask",
	}
}

// LoadRules reads the currency rule table.
func (e *Engine) LoadRules(ctx context.Context, path string, cols Columns) ([]model.CurrencyRule, error) {
	rel, err := relation(path)
	if err != nil {
		return nil, err
	}
	if _, err := e.requireColumns(ctx, path, cols.Currency, cols.ConvertPrice, cols.ConversionFactor); err != nil {
		return nil, err
	}

	query := e.selectFrom(rel,
		castExpr(cols.Currency, "VARCHAR"),
		castExpr(cols.ConvertPrice, "BOOLEAN"),
		castExpr(cols.ConversionFactor, "DOUBLE"),
	)

	var rules []model.CurrencyRule
	err = e.run(ctx, path, query, func(rows *sql.Rows) error {
		var (
			row     int64
			ccy     sql.NullString
			convert sql.NullBool
			factor  sql.NullFloat64
		)
		if err := rows.Scan(&row, &ccy, &convert, &factor); err != nil {
			return err
		}
		if !convert.Valid {
			return e.rowError(path, row, cols.ConvertPrice)
		}
		if convert.Bool && !factor.Valid {
			return e.rowError(path, row, cols.ConversionFactor)
		}

		rule := model.CurrencyRule{Currency: ccy.String, ConvertPrice: convert.Bool}
		if factor.Valid {
			rule.ConversionFactor = decimal.NewFromFloat(factor.Float64)
		}
		if err := e.validate.Struct(rule); err != nil {
			return &RowError{File: path, Row: row, Err: err}
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().Str("path", path).Int("rows", len(rules)).Msg("loaded currency rules")
	return rules, nil
}

// LoadSpotRates reads the spot rate table. No range is applied because
// tolerant matching may need rates from before the range start.
func (e *Engine) LoadSpotRates(ctx context.Context, path string, cols Columns) ([]model.SpotRate, error) {
	rel, err := relation(path)
	if err != nil {
		return nil, err
	}
	if _, err := e.requireColumns(ctx, path, cols.Timestamp, cols.Currency, cols.Rate); err != nil {
		return nil, err
	}

	query := e.selectFrom(rel,
		castExpr(cols.Timestamp, "TIMESTAMP"),
		castExpr(cols.Currency, "VARCHAR"),
		castExpr(cols.Rate, "DOUBLE"),
	)

	var spots []model.SpotRate
	err = e.run(ctx, path, query, func(rows *sql.Rows) error {
		var (
			row  int64
			ts   sql.NullTime
			ccy  sql.NullString
			rate sql.NullFloat64
		)
		if err := rows.Scan(&row, &ts, &ccy, &rate); err != nil {
			return err
		}
		if !ts.Valid {
			return e.rowError(path, row, cols.Timestamp)
		}
		if !rate.Valid {
			return e.rowError(path, row, cols.Rate)
		}

		spot := model.SpotRate{Timestamp: ts.Time.UTC(), Currency: ccy.String, Rate: decimal.NewFromFloat(rate.Float64)}
		if err := e.validate.Struct(spot); err != nil {
			return &RowError{File: path, Row: row, Err: err}
		}
		spots = append(spots, spot)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().Str("path", path).Int("rows", len(spots)).Msg("loaded spot rates")
	return spots, nil
}

// LoadPrices reads price rows for conversion, keeping only rows inside r.
func (e *Engine) LoadPrices(ctx context.Context, path string, cols Columns, r timerange.Range) ([]model.PriceRecord, error) {
	rel, err := relation(path)
	if err != nil {
		return nil, err
	}
	have, err := e.requireColumns(ctx, path, cols.Timestamp, cols.Currency, cols.Bid, cols.Mid, cols.Ask)
	if err != nil {
		return nil, err
	}

	tsExpr := castExpr(cols.Timestamp, "TIMESTAMP")
	query := withRange(e.selectFrom(rel,
		tsExpr,
		castExpr(cols.Currency, "VARCHAR"),
		optionalExpr(have, cols.SecurityID),
		castExpr(cols.Bid, "DOUBLE"),
		castExpr(cols.Mid, "DOUBLE"),
		castExpr(cols.Ask, "DOUBLE"),
	), tsExpr, r)

	var prices []model.PriceRecord
	err = e.run(ctx, path, query, func(rows *sql.Rows) error {
		var (
			row           int64
			ts            sql.NullTime
			ccy, sec      sql.NullString
			bid, mid, ask sql.NullFloat64
		)
		if err := rows.Scan(&row, &ts, &ccy, &sec, &bid, &mid, &ask); err != nil {
			return err
		}
		if !ts.Valid {
			return e.rowError(path, row, cols.Timestamp)
		}
		if field := firstNull(cols, bid, mid, ask); field != "" {
			return e.rowError(path, row, field)
		}

		rec := model.PriceRecord{
			Timestamp:  ts.Time.UTC(),
			Currency:   ccy.String,
			SecurityID: sec.String,
			Bid:        decimal.NewFromFloat(bid.Float64),
			Mid:        decimal.NewFromFloat(mid.Float64),
			Ask:        decimal.NewFromFloat(ask.Float64),
		}
		if err := e.validate.Struct(rec); err != nil {
			return &RowError{File: path, Row: row, Err: err}
		}
		prices = append(prices, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().Str("path", path).Str("range", r.String()).Int("rows", len(prices)).Msg("loaded prices")
	return prices, nil
}

// LoadObservations reads bid/mid/ask snapshots for rolling statistics,
// keeping only rows inside r. File order is preserved.
func (e *Engine) LoadObservations(ctx context.Context, path string, cols Columns, r timerange.Range) ([]model.Observation, error) {
	rel, err := relation(path)
	if err != nil {
		return nil, err
	}
	have, err := e.requireColumns(ctx, path, cols.Timestamp, cols.Bid, cols.Mid, cols.Ask)
	if err != nil {
		return nil, err
	}

	tsExpr := castExpr(cols.Timestamp, "TIMESTAMP")
	query := withRange(e.selectFrom(rel,
		tsExpr,
		optionalExpr(have, cols.SecurityID),
		castExpr(cols.Bid, "DOUBLE"),
		castExpr(cols.Mid, "DOUBLE"),
		castExpr(cols.Ask, "DOUBLE"),
	), tsExpr, r)

	var obs []model.Observation
	err = e.run(ctx, path, query, func(rows *sql.Rows) error {
		var (
			row           int64
			ts            sql.NullTime
			sec           sql.NullString
			bid, mid, ask sql.NullFloat64
		)
		if err := rows.Scan(&row, &ts, &sec, &bid, &mid, &ask); err != nil {
			return err
		}
		if !ts.Valid {
			return e.rowError(path, row, cols.Timestamp)
		}
		if field := firstNull(cols, bid, mid, ask); field != "" {
			return e.rowError(path, row, field)
		}

		o := model.Observation{
			Timestamp:  ts.Time.UTC(),
			SecurityID: sec.String,
			Bid:        bid.Float64,
			Mid:        mid.Float64,
			Ask:        ask.Float64,
		}
		if err := e.validate.Struct(o); err != nil {
			return &RowError{File: path, Row: row, Err: err}
		}
		obs = append(obs, o)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().Str("path", path).Str("range", r.String()).Int("rows", len(obs)).Msg("loaded observations")
	return obs, nil
}

// selectFrom numbers the rows of rel in scan order so results keep file order
// and errors can name the offending row.
func (e *Engine) selectFrom(rel string, exprs ...string) squirrel.SelectBuilder {
	src := fmt.Sprintf("(SELECT *, row_number() OVER () AS %s FROM %s) AS src", rowColumn, rel)
	return e.sq.Select(append([]string{rowColumn}, exprs...)...).From(src).OrderBy(rowColumn)
}

// withRange keeps rows inside r. Rows whose timestamp does not parse are kept
// so the scan reports them instead of silently dropping them.
func withRange(b squirrel.SelectBuilder, tsExpr string, r timerange.Range) squirrel.SelectBuilder {
	var bounds squirrel.And
	if r.Start.IsSome() {
		bounds = append(bounds, squirrel.GtOrEq{tsExpr: r.Start.Unwrap().UTC()})
	}
	if r.End.IsSome() {
		bounds = append(bounds, squirrel.Lt{tsExpr: r.End.Unwrap().UTC()})
	}
	if len(bounds) == 0 {
		return b
	}
	return b.Where(squirrel.Or{squirrel.Eq{tsExpr: nil}, bounds})
}

func (e *Engine) run(ctx context.Context, path string, b squirrel.SelectBuilder, scan func(rows *sql.Rows) error) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query for %s: %w", path, err)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func (e *Engine) rowError(path string, row int64, column string) error {
	return &RowError{File: path, Row: row, Err: fmt.Errorf("column %q is null or not parseable", column)}
}

func castExpr(column, typ string) string {
	return fmt.Sprintf("TRY_CAST(%s AS %s)", quoteIdent(column), typ)
}

func optionalExpr(have map[string]bool, column string) string {
	if column == "" || !have[column] {
		return "CAST(NULL AS VARCHAR)"
	}
	return castExpr(column, "VARCHAR")
}

func firstNull(cols Columns, bid, mid, ask sql.NullFloat64) string {
	switch {
	case !bid.Valid:
		return cols.Bid
	case !mid.Valid:
		return cols.Mid
	case !ask.Valid:
		return cols.Ask
	}
	return ""
}
