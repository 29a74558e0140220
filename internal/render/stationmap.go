package render

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// mapMargin pads the map extent, in degrees.
const mapMargin = 0.1

// overlaySeries draws the polylines of an overlay.
type overlaySeries struct {
	overlay Overlay
}

func (s overlaySeries) GetName() string { return s.overlay.Name }
func (s overlaySeries) GetStyle() chart.Style {
	return chart.Style{StrokeColor: s.overlay.Color, StrokeWidth: s.overlay.Width}
}
func (s overlaySeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (s overlaySeries) Len() int                  { return len(s.overlay.Paths) }
func (s overlaySeries) Validate() error           { return nil }
func (s overlaySeries) Render(r chart.Renderer, canvasBox chart.Box, xrange, yrange chart.Range, _ chart.Style) {
	r.SetStrokeColor(s.overlay.Color)
	r.SetStrokeWidth(s.overlay.Width)
	for _, path := range s.overlay.Paths {
		for i, p := range path {
			x := canvasBox.Left + xrange.Translate(p.Lon)
			y := canvasBox.Bottom - yrange.Translate(p.Lat)
			if i == 0 {
				r.MoveTo(x, y)
			} else {
				r.LineTo(x, y)
			}
		}
		r.Stroke()
	}
}

// stationSeries draws an x marker and a name label per station.
type stationSeries struct {
	stations []domain.Station
}

func (s stationSeries) GetName() string           { return "Hydrometric stations" }
func (s stationSeries) GetStyle() chart.Style     { return chart.Style{StrokeColor: colorBlack, StrokeWidth: 2} }
func (s stationSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (s stationSeries) Len() int                  { return len(s.stations) }
func (s stationSeries) Validate() error           { return nil }
func (s stationSeries) Render(r chart.Renderer, canvasBox chart.Box, xrange, yrange chart.Range, defaults chart.Style) {
	const arm = 5
	for _, st := range s.stations {
		x := canvasBox.Left + xrange.Translate(st.Lon)
		y := canvasBox.Bottom - yrange.Translate(st.Lat)

		r.SetStrokeColor(colorBlack)
		r.SetStrokeWidth(2)
		r.MoveTo(x-arm, y-arm)
		r.LineTo(x+arm, y+arm)
		r.Stroke()
		r.MoveTo(x-arm, y+arm)
		r.LineTo(x+arm, y-arm)
		r.Stroke()

		label := st.Name
		if label == "" {
			label = st.Code
		}
		defaults.WriteTextOptionsToRenderer(r)
		r.SetFontSize(8)
		r.SetFontColor(drawing.ColorBlack)
		tb := r.MeasureText(label)
		r.Text(label, x-tb.Width()-arm, y-arm)
	}
}

// StationMap renders station markers with name labels in lon/lat over the
// given overlays. Stations without coordinates are skipped.
func StationMap(w io.Writer, title string, stations []domain.Station, overlays ...Overlay) error {
	located := make([]domain.Station, 0, len(stations))
	for _, st := range stations {
		if st.Lat == 0 && st.Lon == 0 {
			continue
		}
		located = append(located, st)
	}
	if len(located) == 0 && len(overlays) == 0 {
		return errors.New("station map needs at least one located station or overlay")
	}

	lon, lat := newValueRange(), newValueRange()
	for _, st := range located {
		lon.add(st.Lon)
		lat.add(st.Lat)
	}
	series := make([]chart.Series, 0, len(overlays)+1)
	for _, o := range overlays {
		for _, path := range o.Paths {
			for _, p := range path {
				lon.add(p.Lon)
				lat.add(p.Lat)
			}
		}
		series = append(series, overlaySeries{overlay: o})
	}
	series = append(series, stationSeries{stations: located})

	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.Style{FontSize: 16},
		Background: chart.Style{Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20}},
		Width:      chartWidth,
		Height:     chartWidth,
		XAxis: chart.XAxis{
			Name:           "Longitude",
			Range:          extent(lon),
			ValueFormatter: degrees,
		},
		YAxis: chart.YAxis{
			Name:           "Latitude",
			Range:          extent(lat),
			ValueFormatter: degrees,
		},
		Series: series,
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render station map: %w", err)
	}
	return nil
}

func extent(v *valueRange) *chart.ContinuousRange {
	return &chart.ContinuousRange{Min: v.lo - mapMargin, Max: v.hi + mapMargin}
}

func degrees(v any) string {
	if f, ok := v.(float64); ok && !math.IsNaN(f) {
		return fmt.Sprintf("%.2f°", f)
	}
	return ""
}
