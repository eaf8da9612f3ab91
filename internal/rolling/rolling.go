// Package rolling computes trailing-window standard deviations of bid, mid and
// ask that are only trusted when the window is evenly spaced in time.
//
// Rows are grouped into series by security id. Each series must already be in
// ascending time order; the input is never re-sorted. For row i of a series the
// window is rows [i-Window+1, i]. The window is usable only when it is full and
// every successive timestamp difference equals Interval exactly. Unusable
// windows yield results whose statistics are all marked as not computed.
package rolling

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"

	"pricetool/internal/model"
)

// ErrUnsorted is returned when a series goes backwards in time.
var ErrUnsorted = errors.New("rolling: input not in ascending time order")

const (
	// DefaultWindow is the number of rows in a window, current row included.
	DefaultWindow = 20
	// DefaultInterval is the spacing required between successive rows.
	DefaultInterval = time.Hour
)

// Options tune the rolling computation.
type Options struct {
	Window   int
	Interval time.Duration
	// Population selects the population formula instead of the sample (n-1) one.
	Population bool
	// OnSeries, when set, is called after each series has been processed.
	OnSeries func(securityID string, rows int)
}

// DefaultOptions returns a 20-row, hourly, sample standard deviation setup.
func DefaultOptions() Options {
	return Options{Window: DefaultWindow, Interval: DefaultInterval}
}

func (o Options) validate() error {
	if o.Window < 2 {
		return fmt.Errorf("rolling: window must be at least 2, got %d", o.Window)
	}
	if o.Interval <= 0 {
		return fmt.Errorf("rolling: interval must be positive, got %s", o.Interval)
	}
	return nil
}

// Series is the ordered set of input row indices sharing a security id.
type Series struct {
	SecurityID string
	Rows       []int
}

// Partition splits observations into series in order of first appearance.
func Partition(obs []model.Observation) []Series {
	index := make(map[string]int)
	var series []Series
	for i, o := range obs {
		pos, ok := index[o.SecurityID]
		if !ok {
			pos = len(series)
			index[o.SecurityID] = pos
			series = append(series, Series{SecurityID: o.SecurityID})
		}
		series[pos].Rows = append(series[pos].Rows, i)
	}
	return series
}

// Compute returns one result per observation, in input order.
func Compute(obs []model.Observation, opts Options) ([]model.StdevResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	results := make([]model.StdevResult, len(obs))
	for _, s := range Partition(obs) {
		if err := checkOrder(obs, s); err != nil {
			return nil, err
		}
		computeSeries(obs, s, opts, results)
		if opts.OnSeries != nil {
			opts.OnSeries(s.SecurityID, len(s.Rows))
		}
	}
	return results, nil
}

func checkOrder(obs []model.Observation, s Series) error {
	for k := 1; k < len(s.Rows); k++ {
		prev := obs[s.Rows[k-1]].Timestamp
		curr := obs[s.Rows[k]].Timestamp
		if curr.Before(prev) {
			return fmt.Errorf("%w: series %q row %d at %s follows %s",
				ErrUnsorted, s.SecurityID, s.Rows[k], curr.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return nil
}

func computeSeries(obs []model.Observation, s Series, opts Options, results []model.StdevResult) {
	times := make([]time.Time, opts.Window)
	bids := make([]float64, opts.Window)
	mids := make([]float64, opts.Window)
	asks := make([]float64, opts.Window)

	for k, row := range s.Rows {
		res := model.StdevResult{Observation: obs[row]}
		if k+1 < opts.Window {
			results[row] = res
			continue
		}

		window := s.Rows[k+1-opts.Window : k+1]
		for j, idx := range window {
			o := obs[idx]
			times[j] = o.Timestamp
			bids[j], mids[j], asks[j] = o.Bid, o.Mid, o.Ask
		}

		if !Contiguous(times, opts.Interval) {
			res.GapBlocked = true
			results[row] = res
			continue
		}

		res.BidStdev = null.FloatFrom(stdDev(bids, opts.Population))
		res.MidStdev = null.FloatFrom(stdDev(mids, opts.Population))
		res.AskStdev = null.FloatFrom(stdDev(asks, opts.Population))
		results[row] = res
	}
}

// Contiguous reports whether every successive difference in ts equals step.
// Gaps, duplicates and reversals all break contiguity.
func Contiguous(ts []time.Time, step time.Duration) bool {
	for i := 1; i < len(ts); i++ {
		if ts[i].Sub(ts[i-1]) != step {
			return false
		}
	}
	return true
}

func stdDev(x []float64, population bool) float64 {
	if population {
		return math.Sqrt(stat.PopVariance(x, nil))
	}
	return stat.StdDev(x, nil)
}
