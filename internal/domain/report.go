package domain

import (
	"errors"
	"time"
)

// ErrNotArchived is returned by archive lookups for a station without any
// stored summary.
var ErrNotArchived = errors.New("no archived summary")

// StationReport is everything one run produces for a single station.
type StationReport struct {
	Station  Station
	Variable Variable

	// Realtime is the realtime collection series as fetched. Historical is
	// the daily-mean record the banding table was built from.
	Realtime   Series
	Historical Series
	// Forecast is the model series as fetched; Corrected is Forecast after
	// bias correction. Both are empty when no forecast was requested.
	Forecast   Series
	Corrected  Series
	Correction *Correction

	Banding  BandingTable
	Labelled []LabelledObservation
	Peak     Label

	GeneratedAt time.Time
}

// NewStationReport starts a report stamped with the package clock.
func NewStationReport(station Station, variable Variable) StationReport {
	return StationReport{
		Station:     station,
		Variable:    variable,
		GeneratedAt: clock.Now().UTC(),
	}
}

// HasForecast reports whether a bias-corrected forecast is attached.
func (r StationReport) HasForecast() bool {
	return r.Correction != nil && !r.Corrected.Empty()
}

// ReportSummary is the compact, serializable form of a StationReport used by
// the archive, the alert topic and the HTTP API.
type ReportSummary struct {
	Station        string         `json:"station"`
	Name           string         `json:"name,omitempty"`
	Variable       Variable       `json:"variable"`
	PeakLabel      Label          `json:"peak_label"`
	PeakPeriod     float64        `json:"peak_return_period,omitempty"`
	LatestTime     *time.Time     `json:"latest_time,omitempty"`
	LatestValue    *float64       `json:"latest_value,omitempty"`
	ForecastOffset *float64       `json:"forecast_offset,omitempty"`
	Surrogate      bool           `json:"surrogate_anchor,omitempty"`
	LabelCounts    map[string]int `json:"label_counts,omitempty"`
	BandedDays     int            `json:"banded_days"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Summary condenses the report.
func (r StationReport) Summary() ReportSummary {
	s := ReportSummary{
		Station:     r.Station.Code,
		Name:        r.Station.Name,
		Variable:    r.Variable,
		PeakLabel:   r.Peak,
		BandedDays:  r.Banding.Filled(),
		GeneratedAt: r.GeneratedAt,
	}
	if r.Peak.Kind == LabelExceeds {
		s.PeakPeriod = r.Peak.ReturnPeriod
	}
	if last, ok := lastValid(r.Realtime.Sorted()); ok {
		t := last.Time
		s.LatestTime = &t
		s.LatestValue = Float(*last.Value)
	}
	if r.Correction != nil {
		s.ForecastOffset = Float(r.Correction.Offset)
		s.Surrogate = r.Correction.Surrogate
	}
	for _, lo := range r.Labelled {
		if lo.Label.Kind == LabelMissing {
			continue
		}
		if s.LabelCounts == nil {
			s.LabelCounts = make(map[string]int)
		}
		s.LabelCounts[lo.Label.String()]++
	}
	return s
}
