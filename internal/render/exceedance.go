package render

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// labelCategory is one row of the exceedance scatter.
type labelCategory struct {
	label domain.Label
	xs    []time.Time
}

// Exceedance renders the labelled observations as a scatter of exceedance
// class against time. Rows are ordered from the floor label up to the
// largest return period present; missing observations are not drawn.
func Exceedance(w io.Writer, r domain.StationReport) error {
	cats := categorize(r.Labelled)
	var all []time.Time
	for _, c := range cats {
		all = append(all, c.xs...)
	}
	if !distinctTimes(all) {
		return ErrNotEnoughData
	}

	series := make([]chart.Series, 0, len(cats))
	ticks := make([]chart.Tick, 0, len(cats))
	for i, c := range cats {
		color := LabelColor(c.label)
		ys := make([]float64, len(c.xs))
		for j := range ys {
			ys[j] = float64(i)
		}
		series = append(series, chart.TimeSeries{
			Name:    c.label.String(),
			Style:   scatterStyle(color),
			XValues: c.xs,
			YValues: ys,
		})
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: c.label.String()})
	}

	graph := chart.Chart{
		Title:      fmt.Sprintf("%s return period exceedance", stationTitle(r.Station)),
		TitleStyle: chart.Style{FontSize: 16},
		Background: chart.Style{Padding: chart.Box{Top: 50, Left: 150, Right: 20, Bottom: 20}},
		Width:      chartWidth,
		Height:     chartHeight / 2,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("Jan 02 15h"),
		},
		YAxis: chart.YAxis{
			Ticks: ticks,
			Range: &chart.ContinuousRange{Min: -0.5, Max: float64(len(cats)) - 0.5},
		},
		Series: series,
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render exceedance chart: %w", err)
	}
	return nil
}

func scatterStyle(color drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    5,
		DotColor:    color,
	}
}

// categorize groups observation times by label, floor first and then by
// ascending return period.
func categorize(labelled []domain.LabelledObservation) []labelCategory {
	byLabel := map[domain.Label]*labelCategory{}
	for _, lo := range labelled {
		if lo.Label.Kind == domain.LabelMissing {
			continue
		}
		c, ok := byLabel[lo.Label]
		if !ok {
			c = &labelCategory{label: lo.Label}
			byLabel[lo.Label] = c
		}
		c.xs = append(c.xs, lo.Time)
	}

	cats := make([]labelCategory, 0, len(byLabel))
	for _, c := range byLabel {
		cats = append(cats, *c)
	}
	slices.SortFunc(cats, func(a, b labelCategory) int {
		if a.label.Kind != b.label.Kind {
			return int(a.label.Kind) - int(b.label.Kind)
		}
		switch {
		case a.label.ReturnPeriod < b.label.ReturnPeriod:
			return -1
		case a.label.ReturnPeriod > b.label.ReturnPeriod:
			return 1
		default:
			return 0
		}
	})
	return cats
}
