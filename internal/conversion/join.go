// Package conversion joins price rows with spot rates and currency rules and
// produces converted bid, mid and ask values.
package conversion

import (
	"time"

	"pricetool/internal/model"
	"pricetool/internal/timerange"
)

// SkipReason explains why a price row produced no output.
type SkipReason string

const (
	SkipNoRule SkipReason = "missing_rule"
	SkipNoRate SkipReason = "missing_rate"
)

// Options control the join.
type Options struct {
	Range timerange.Range
	// SpotTolerance allows matching the latest earlier spot rate up to this age.
	// Zero means exact timestamp matches only.
	SpotTolerance time.Duration
}

// SkippedRow records a price row that could not be converted.
type SkippedRow struct {
	Index  int
	Record model.PriceRecord
	Reason SkipReason
}

// Result is the outcome of a join.
type Result struct {
	Rows     []model.ConvertedPrice
	Skipped  []SkippedRow
	Filtered int
}

// Processed is the number of in-range rows that were considered.
func (r Result) Processed() int {
	return len(r.Rows) + len(r.Skipped)
}

// SkipCounts aggregates skipped rows by reason.
func (r Result) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, s := range r.Skipped {
		counts[s.Reason]++
	}
	return counts
}

// Join converts every in-range price that has both a rule and a spot rate.
// Output keeps the relative order of prices.
func Join(prices []model.PriceRecord, rules *RuleBook, spots *SpotIndex, opts Options) Result {
	res := Result{Rows: make([]model.ConvertedPrice, 0, len(prices))}
	for i, p := range prices {
		if !opts.Range.Contains(p.Timestamp) {
			res.Filtered++
			continue
		}

		rule, ok := rules.Lookup(p.Currency)
		if !ok {
			res.Skipped = append(res.Skipped, SkippedRow{Index: i, Record: p, Reason: SkipNoRule})
			continue
		}

		spot, ok := spots.Lookup(p.Currency, p.Timestamp, opts.SpotTolerance)
		if !ok {
			res.Skipped = append(res.Skipped, SkippedRow{Index: i, Record: p, Reason: SkipNoRate})
			continue
		}

		res.Rows = append(res.Rows, Convert(p, rule, spot))
	}
	return res
}

// Convert applies rule and spot to a single price.
func Convert(p model.PriceRecord, rule model.CurrencyRule, spot model.SpotRate) model.ConvertedPrice {
	return model.ConvertedPrice{
		PriceRecord:      p,
		SpotTimestamp:    spot.Timestamp,
		SpotRate:         spot.Rate,
		ConvertPrice:     rule.ConvertPrice,
		ConversionFactor: rule.ConversionFactor,
		NewBid:           rule.Apply(p.Bid, spot.Rate),
		NewMid:           rule.Apply(p.Mid, spot.Rate),
		NewAsk:           rule.Apply(p.Ask, spot.Rate),
	}
}
