package output

import (
	"errors"
	"os"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pricetool/internal/model"
)

// ErrNothingToPlot is returned when no series has enough computed points.
var ErrNothingToPlot = errors.New("output: no computed statistics to plot")

const maxChartSeries = 8

// WriteStdevPNG renders the mid-price rolling stdev of each security as a
// line chart. Rows without computed statistics are left out.
func WriteStdevPNG(path string, results []model.StdevResult) error {
	type points struct {
		x []time.Time
		y []float64
	}

	var order []string
	byID := make(map[string]*points)
	for _, r := range results {
		if !r.MidStdev.Valid {
			continue
		}
		p, ok := byID[r.SecurityID]
		if !ok {
			if len(order) == maxChartSeries {
				continue
			}
			p = &points{}
			byID[r.SecurityID] = p
			order = append(order, r.SecurityID)
		}
		p.x = append(p.x, r.Timestamp)
		p.y = append(p.y, r.MidStdev.Float64)
	}

	var series []chart.Series
	for _, id := range order {
		p := byID[id]
		if len(p.x) < 2 {
			continue
		}
		name := id
		if name == "" {
			name = "mid"
		}
		series = append(series, chart.TimeSeries{Name: name, XValues: p.x, YValues: p.y})
	}
	if len(series) == 0 {
		return ErrNothingToPlot
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Mid rolling stdev",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.5f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}
