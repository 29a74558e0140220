package domain

import (
	"context"
	"fmt"
	"time"
)

// SeriesQuery selects one station's variable from one collection. A zero
// Start or End leaves that side of the interval open.
type SeriesQuery struct {
	Collection string
	Station    string
	Variable   Variable
	Start      time.Time
	End        time.Time
}

// Interval formats the query window as an OGC datetime interval, using ".."
// for an open side. It returns "" when both sides are open.
func (q SeriesQuery) Interval() string {
	if q.Start.IsZero() && q.End.IsZero() {
		return ""
	}
	return bound(q.Start) + "/" + bound(q.End)
}

// Key identifies the query for caching.
func (q SeriesQuery) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", q.Collection, q.Station, q.Variable, q.Interval())
}

func bound(t time.Time) string {
	if t.IsZero() {
		return ".."
	}
	return t.UTC().Format(time.RFC3339)
}

// SeriesSource returns observed series. A station without data in the window
// yields an empty series, not an error.
type SeriesSource interface {
	Series(ctx context.Context, q SeriesQuery) (Series, error)
}

// StationSource resolves station metadata for a list of station codes.
// Unknown codes are omitted from the result.
type StationSource interface {
	Stations(ctx context.Context, codes []string) ([]Station, error)
}

// ForecastSource returns the latest model forecast at a station.
type ForecastSource interface {
	Forecast(ctx context.Context, station Station) (Series, error)
}
