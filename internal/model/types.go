package model

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// PriceRecord is one observed price row keyed by currency pair and time.
type PriceRecord struct {
	Timestamp  time.Time `validate:"required"`
	Currency   string    `validate:"required"`
	SecurityID string
	Bid        decimal.Decimal
	Mid        decimal.Decimal
	Ask        decimal.Decimal
}

// SpotRate is an FX mid rate for a currency pair at a point in time.
type SpotRate struct {
	Timestamp time.Time `validate:"required"`
	Currency  string    `validate:"required"`
	Rate      decimal.Decimal
}

// CurrencyRule describes how prices quoted in a currency pair are converted.
type CurrencyRule struct {
	Currency         string `validate:"required"`
	ConvertPrice     bool
	ConversionFactor decimal.Decimal
}

// Apply converts a single value using the rule and the matched spot rate.
// Converting rules compute value / factor + spot; others pass value through.
func (r CurrencyRule) Apply(value, spot decimal.Decimal) decimal.Decimal {
	if !r.ConvertPrice {
		return value
	}
	return value.Div(r.ConversionFactor).Add(spot)
}

// ConvertedPrice is the output of the conversion join.
type ConvertedPrice struct {
	PriceRecord
	SpotTimestamp    time.Time
	SpotRate         decimal.Decimal
	ConvertPrice     bool
	ConversionFactor decimal.Decimal
	NewBid           decimal.Decimal
	NewMid           decimal.Decimal
	NewAsk           decimal.Decimal
}

// Observation is the float view of a price row consumed by rolling statistics.
type Observation struct {
	Timestamp  time.Time `validate:"required"`
	SecurityID string
	Bid        float64
	Mid        float64
	Ask        float64
}

// StdevResult carries the rolling statistics attached to one observation.
type StdevResult struct {
	Observation
	BidStdev   null.Float
	MidStdev   null.Float
	AskStdev   null.Float
	GapBlocked bool
}

// Computed reports whether the statistics were produced for this row.
func (r StdevResult) Computed() bool {
	return r.BidStdev.Valid && r.MidStdev.Valid && r.AskStdev.Valid
}
