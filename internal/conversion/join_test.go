package conversion

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricetool/internal/model"
	"pricetool/internal/timerange"
)

var t0 = time.Date(2021, 11, 20, 0, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func price(ccy string, at time.Time, bid, mid, ask string) model.PriceRecord {
	return model.PriceRecord{Timestamp: at, Currency: ccy, Bid: d(bid), Mid: d(mid), Ask: d(ask)}
}

func fixtures(t *testing.T) (*RuleBook, *SpotIndex) {
	t.Helper()
	rules, err := NewRuleBook([]model.CurrencyRule{
		{Currency: "GBPUSD", ConvertPrice: true, ConversionFactor: d("100")},
		{Currency: "EURUSD", ConvertPrice: false},
	})
	require.NoError(t, err)

	spots := NewSpotIndex([]model.SpotRate{
		{Timestamp: t0.Add(time.Hour), Currency: "GBPUSD", Rate: d("1.3")},
		{Timestamp: t0, Currency: "GBPUSD", Rate: d("1.1")},
		{Timestamp: t0, Currency: "EURUSD", Rate: d("1.2")},
		{Timestamp: t0.Add(2 * time.Hour), Currency: "GBPUSD", Rate: d("1.4")},
		{Timestamp: t0.Add(2 * time.Hour), Currency: "GBPUSD", Rate: d("1.5")},
	})
	return rules, spots
}

func TestJoinExactMatchAppliesFormula(t *testing.T) {
	rules, spots := fixtures(t)
	prices := []model.PriceRecord{
		price("GBPUSD", t0, "123.45", "124", "124.55"),
		price("EURUSD", t0, "0.91", "0.92", "0.93"),
	}

	res := Join(prices, rules, spots, Options{})
	require.Len(t, res.Rows, 2)
	assert.Empty(t, res.Skipped)

	gbp := res.Rows[0]
	assert.True(t, gbp.NewBid.Equal(d("2.3345")), gbp.NewBid.String())
	assert.True(t, gbp.NewMid.Equal(d("2.34")), gbp.NewMid.String())
	assert.True(t, gbp.NewAsk.Equal(d("2.3455")), gbp.NewAsk.String())
	assert.True(t, gbp.SpotRate.Equal(d("1.1")))
	assert.Equal(t, t0, gbp.SpotTimestamp)

	eur := res.Rows[1]
	assert.True(t, eur.NewBid.Equal(d("0.91")))
	assert.True(t, eur.NewMid.Equal(d("0.92")))
	assert.True(t, eur.NewAsk.Equal(d("0.93")))
	assert.False(t, eur.ConvertPrice)
}

func TestJoinSkipsMissingRateAndRule(t *testing.T) {
	rules, spots := fixtures(t)
	prices := []model.PriceRecord{
		price("GBPUSD", t0.Add(30*time.Minute), "1", "1", "1"),
		price("USDJPY", t0, "110", "110", "110"),
		price("GBPUSD", t0.Add(time.Hour), "200", "200", "200"),
		price("EURUSD", t0.Add(time.Hour), "1", "1", "1"),
	}

	res := Join(prices, rules, spots, Options{})
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].NewMid.Equal(d("3.3")))

	require.Len(t, res.Skipped, 3)
	assert.Equal(t, SkippedRow{Index: 0, Record: prices[0], Reason: SkipNoRate}, res.Skipped[0])
	assert.Equal(t, SkipNoRule, res.Skipped[1].Reason)
	assert.Equal(t, 1, res.Skipped[1].Index)
	assert.Equal(t, 3, res.Skipped[2].Index)
	assert.Equal(t, map[SkipReason]int{SkipNoRate: 2, SkipNoRule: 1}, res.SkipCounts())
	assert.Equal(t, 4, res.Processed())
}

func TestJoinToleranceMatchesEarlierSpot(t *testing.T) {
	rules, spots := fixtures(t)
	prices := []model.PriceRecord{
		price("GBPUSD", t0.Add(90*time.Minute), "100", "100", "100"),
		price("EURUSD", t0.Add(61*time.Minute), "1", "1", "1"),
	}

	res := Join(prices, rules, spots, Options{SpotTolerance: time.Hour})
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].SpotRate.Equal(d("1.3")))
	assert.True(t, res.Rows[0].NewBid.Equal(d("2.3")))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipNoRate, res.Skipped[0].Reason)
}

func TestJoinToleranceBoundaryIsInclusive(t *testing.T) {
	rules, _ := fixtures(t)
	spots := NewSpotIndex([]model.SpotRate{
		{Timestamp: t0.Add(time.Hour), Currency: "GBPUSD", Rate: d("1.3")},
	})
	prices := []model.PriceRecord{
		price("GBPUSD", t0.Add(2*time.Hour), "100", "100", "100"),
		price("GBPUSD", t0.Add(2*time.Hour+time.Nanosecond), "100", "100", "100"),
	}

	res := Join(prices, rules, spots, Options{SpotTolerance: time.Hour})
	require.Len(t, res.Rows, 1)
	assert.Equal(t, t0.Add(time.Hour), res.Rows[0].SpotTimestamp)
	assert.True(t, res.Rows[0].NewBid.Equal(d("2.3")))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 1, res.Skipped[0].Index)
	assert.Equal(t, SkipNoRate, res.Skipped[0].Reason)
}

func TestJoinNeverUsesLaterSpot(t *testing.T) {
	rules, spots := fixtures(t)
	res := Join([]model.PriceRecord{price("GBPUSD", t0.Add(-time.Minute), "1", "1", "1")}, rules, spots, Options{SpotTolerance: time.Hour})
	assert.Empty(t, res.Rows)
	assert.Len(t, res.Skipped, 1)
}

func TestJoinLastDuplicateSpotWins(t *testing.T) {
	rules, spots := fixtures(t)
	res := Join([]model.PriceRecord{price("GBPUSD", t0.Add(2*time.Hour), "100", "100", "100")}, rules, spots, Options{})
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].SpotRate.Equal(d("1.5")))
}

func TestJoinRangeFilterIsStartInclusiveEndExclusive(t *testing.T) {
	rules, spots := fixtures(t)
	prices := []model.PriceRecord{
		price("GBPUSD", t0, "100", "100", "100"),
		price("GBPUSD", t0.Add(time.Hour), "100", "100", "100"),
		price("GBPUSD", t0.Add(2*time.Hour), "100", "100", "100"),
	}
	r, err := timerange.New(optional.Some(t0.Add(time.Hour)), optional.Some(t0.Add(2*time.Hour)))
	require.NoError(t, err)

	res := Join(prices, rules, spots, Options{Range: r})
	require.Len(t, res.Rows, 1)
	assert.Equal(t, t0.Add(time.Hour), res.Rows[0].Timestamp)
	assert.Equal(t, 2, res.Filtered)
	assert.Empty(t, res.Skipped)
}

func TestJoinKeepsInputOrder(t *testing.T) {
	rules, spots := fixtures(t)
	prices := []model.PriceRecord{
		price("GBPUSD", t0.Add(2*time.Hour), "1", "1", "1"),
		price("EURUSD", t0, "2", "2", "2"),
		price("GBPUSD", t0, "3", "3", "3"),
	}
	res := Join(prices, rules, spots, Options{})
	require.Len(t, res.Rows, 3)
	assert.True(t, res.Rows[0].Bid.Equal(d("1")))
	assert.True(t, res.Rows[1].Bid.Equal(d("2")))
	assert.True(t, res.Rows[2].Bid.Equal(d("3")))
}

func TestNewRuleBookRejectsBadRules(t *testing.T) {
	_, err := NewRuleBook([]model.CurrencyRule{{Currency: "A"}, {Currency: "A"}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewRuleBook([]model.CurrencyRule{{Currency: "A", ConvertPrice: true}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	book, err := NewRuleBook([]model.CurrencyRule{{Currency: "A"}, {Currency: "B", ConvertPrice: true, ConversionFactor: d("0.5")}})
	require.NoError(t, err)
	assert.Equal(t, 2, book.Len())
}
