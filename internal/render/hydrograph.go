package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// ErrNotEnoughData is returned when a chart would have fewer than two
// distinct timestamps to draw.
var ErrNotEnoughData = errors.New("not enough data to draw chart")

const (
	chartWidth  = 1200
	chartHeight = 600
	// zoomMargin pads the zoom window on both sides.
	zoomMargin = 24 * time.Hour
)

// Hydrograph renders the full water-year panel: historical max/min, 90-10
// and 75-25 bands, with the realtime series and the corrected forecast on
// top. The water year is the one holding the latest realtime observation.
func Hydrograph(w io.Writer, r domain.StationReport) error {
	wy := reportWaterYear(r)
	from := time.Date(wy-1, domain.WaterYearStartMonth, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(wy, domain.WaterYearStartMonth, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)

	title := fmt.Sprintf("%s %s, water year %d", stationTitle(r.Station), r.Variable, wy)
	return renderHydrograph(w, title, stampRange(r.Banding, from, to), r.Realtime, forecastOf(r), "Jan 02")
}

// HydrographZoom renders the same layers restricted to the realtime and
// forecast window, padded by a day on both sides.
func HydrographZoom(w io.Writer, r domain.StationReport) error {
	from, to, ok := span(r.Realtime, forecastOf(r))
	if !ok {
		return ErrNotEnoughData
	}
	from, to = from.Add(-zoomMargin), to.Add(zoomMargin)

	title := fmt.Sprintf("%s %s, %s to %s", stationTitle(r.Station), r.Variable,
		from.Format(time.DateOnly), to.Format(time.DateOnly))
	return renderHydrograph(w, title, stampRange(r.Banding, from, to),
		r.Realtime.Between(from, to), forecastOf(r).Between(from, to), "Jan 02 15h")
}

func renderHydrograph(w io.Writer, title string, bands []domain.StampedBand, realtime, forecast domain.Series, xFormat string) error {
	var xs []time.Time
	var maxs, p90, p75, p25, p10, mins []float64
	for _, sb := range bands {
		if sb.Band == nil {
			continue
		}
		xs = append(xs, sb.Date)
		maxs = append(maxs, sb.Band.Max)
		p90 = append(p90, sb.Band.P90)
		p75 = append(p75, sb.Band.P75)
		p25 = append(p25, sb.Band.P25)
		p10 = append(p10, sb.Band.P10)
		mins = append(mins, sb.Band.Min)
	}

	var series, named []chart.Series
	yr := newValueRange()

	if len(xs) > 0 {
		// Each fill paints down to the axis; drawing inner bands over outer
		// ones and masking below the minimum leaves the bands visible.
		layers := []struct {
			name   string
			values []float64
			fill   drawing.Color
		}{
			{"Historical max-min", maxs, bandMaxMin},
			{"Historical 90-10%", p90, band90to10},
			{"Historical 75-25%", p75, band75to25},
			{"", p25, band90to10},
			{"", p10, bandMaxMin},
			{"", mins, colorWhite},
		}
		for _, l := range layers {
			s := chart.TimeSeries{
				Name:    l.name,
				Style:   chart.Style{StrokeColor: l.fill, StrokeWidth: 1, FillColor: l.fill},
				XValues: xs,
				YValues: l.values,
			}
			series = append(series, s)
			if l.name != "" {
				named = append(named, s)
			}
			yr.add(l.values...)
		}
	}

	if rx, ry := valid(realtime); len(rx) > 0 {
		s := chart.TimeSeries{
			Name:    "Realtime",
			Style:   chart.Style{StrokeColor: colorBlack, StrokeWidth: 2},
			XValues: rx,
			YValues: ry,
		}
		series = append(series, s)
		named = append(named, s)
		xs = append(xs, rx...)
		yr.add(ry...)
	}
	if fx, fy := valid(forecast); len(fx) > 0 {
		s := chart.TimeSeries{
			Name:    "Forecast (bias corrected)",
			Style:   chart.Style{StrokeColor: colorRed, StrokeWidth: 2, StrokeDashArray: []float64{6, 4}},
			XValues: fx,
			YValues: fy,
		}
		series = append(series, s)
		named = append(named, s)
		xs = append(xs, fx...)
		yr.add(fy...)
	}

	if !distinctTimes(xs) {
		return ErrNotEnoughData
	}

	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.Style{FontSize: 16},
		Background: chart.Style{Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20}},
		Width:      chartWidth,
		Height:     chartHeight,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat(xFormat),
		},
		YAxis: chart.YAxis{
			Name:  axisName(realtime.Variable, forecast.Variable),
			Range: yr.continuous(),
		},
		Series: series,
	}
	legend := graph
	legend.Series = named
	graph.Elements = []chart.Renderable{chart.Legend(&legend)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render hydrograph: %w", err)
	}
	return nil
}

// span returns the earliest and latest timestamps across both series.
func span(a, b domain.Series) (time.Time, time.Time, bool) {
	joined := domain.Concat(a, b).Sorted()
	from, to, ok := joined.Span()
	if !ok || !to.After(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// stampRange places the banding on every water year overlapping [from, to]
// and keeps the dates inside the range.
func stampRange(table domain.BandingTable, from, to time.Time) []domain.StampedBand {
	rows := table.Rows(domain.WaterYearOrder)
	var out []domain.StampedBand
	for wy := domain.WaterYearOf(from); wy <= domain.WaterYearOf(to); wy++ {
		for _, sb := range domain.StampWaterYear(rows, wy) {
			if sb.Date.Before(truncateDay(from)) || sb.Date.After(to) {
				continue
			}
			out = append(out, sb)
		}
	}
	return out
}

func reportWaterYear(r domain.StationReport) int {
	if _, to, ok := r.Realtime.Sorted().Span(); ok {
		return domain.WaterYearOf(to)
	}
	return domain.WaterYearOf(r.GeneratedAt)
}

// forecastOf prefers the bias-corrected forecast.
func forecastOf(r domain.StationReport) domain.Series {
	if !r.Corrected.Empty() {
		return r.Corrected
	}
	return r.Forecast
}

func valid(s domain.Series) ([]time.Time, []float64) {
	var xs []time.Time
	var ys []float64
	for _, p := range s.Sorted().Points {
		if p.Value == nil || math.IsNaN(*p.Value) {
			continue
		}
		xs = append(xs, p.Time)
		ys = append(ys, *p.Value)
	}
	return xs, ys
}

func distinctTimes(xs []time.Time) bool {
	for _, x := range xs[min(1, len(xs)):] {
		if !x.Equal(xs[0]) {
			return true
		}
	}
	return false
}

func stationTitle(st domain.Station) string {
	if st.Name == "" {
		return st.Code
	}
	return fmt.Sprintf("%s %s", st.Code, st.Name)
}

func axisName(vars ...domain.Variable) string {
	for _, v := range vars {
		switch v {
		case domain.Discharge:
			return "Discharge (m³/s)"
		case domain.Level:
			return "Water level (m)"
		}
	}
	return "Value"
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// valueRange tracks the extent of plotted values for an explicit axis range.
type valueRange struct {
	lo, hi float64
}

func newValueRange() *valueRange {
	return &valueRange{lo: math.Inf(1), hi: math.Inf(-1)}
}

func (v *valueRange) add(vals ...float64) {
	for _, x := range vals {
		v.lo = math.Min(v.lo, x)
		v.hi = math.Max(v.hi, x)
	}
}

// continuous pads the range by 5% and never lets a non-negative range dip
// below zero. A flat range is widened by one unit.
func (v *valueRange) continuous() *chart.ContinuousRange {
	lo, hi := v.lo, v.hi
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	if hi == lo {
		lo, hi = lo-1, hi+1
	}
	pad := (hi - lo) * 0.05
	low := lo - pad
	if lo >= 0 && low < 0 {
		low = 0
	}
	return &chart.ContinuousRange{Min: low, Max: hi + pad}
}
