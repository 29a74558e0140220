package domain

import (
	"errors"
	"time"
)

var (
	// ErrNoObservations means bias correction has no observed value to anchor on.
	ErrNoObservations = errors.New("bias correction: observed series has no values")
	// ErrNoForecast means there is no forecast value to compare at the anchor.
	ErrNoForecast = errors.New("bias correction: forecast series has no values")
)

// Correction describes the constant offset applied to a forecast.
type Correction struct {
	Anchor   time.Time `json:"anchor"`
	Observed float64   `json:"observed"`
	Forecast float64   `json:"forecast"`
	Offset   float64   `json:"offset"`
	// Surrogate is set when the series never overlap: Anchor is then the
	// last observed time and Forecast is the first forecast value.
	Surrogate bool `json:"surrogate"`
}

// BiasCorrect shifts every forecast value by observed - forecast at the latest
// timestamp where both series have a value. Without overlap the anchor falls
// back to the last observed value and the first forecast value. NaN is
// treated as missing and comes out as nil. Timestamps and missing values are
// kept; the inputs are not modified.
func BiasCorrect(observed, forecast Series) (Series, Correction, error) {
	obs := observed.Sorted()
	fc := forecast.Sorted()

	obsAt := lastValues(obs)
	if len(obsAt) == 0 {
		return Series{}, Correction{}, ErrNoObservations
	}
	fcAt := lastValues(fc)

	var corr Correction
	found := false
	for i := len(fc.Points) - 1; i >= 0; i-- {
		p := fc.Points[i]
		if !present(p.Value) {
			continue
		}
		o, ok := obsAt[p.Time.UnixNano()]
		if !ok {
			continue
		}
		corr = Correction{Anchor: p.Time, Observed: o, Forecast: fcAt[p.Time.UnixNano()]}
		found = true
		break
	}

	if !found {
		last, ok := lastValid(obs)
		if !ok {
			return Series{}, Correction{}, ErrNoObservations
		}
		first, ok := firstValid(fc)
		if !ok {
			return Series{}, Correction{}, ErrNoForecast
		}
		corr = Correction{Anchor: last.Time, Observed: *last.Value, Forecast: *first.Value, Surrogate: true}
	}
	corr.Offset = corr.Observed - corr.Forecast

	for i, p := range fc.Points {
		if present(p.Value) {
			fc.Points[i].Value = Float(*p.Value + corr.Offset)
		} else {
			fc.Points[i].Value = nil
		}
	}
	return fc, corr, nil
}

// lastValues indexes a sorted series by timestamp; with duplicate timestamps
// the later point wins.
func lastValues(s Series) map[int64]float64 {
	m := make(map[int64]float64, len(s.Points))
	for _, p := range s.Points {
		if present(p.Value) {
			m[p.Time.UnixNano()] = *p.Value
		}
	}
	return m
}

func lastValid(s Series) (Observation, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if present(s.Points[i].Value) {
			return s.Points[i], true
		}
	}
	return Observation{}, false
}

func firstValid(s Series) (Observation, bool) {
	for _, p := range s.Points {
		if present(p.Value) {
			return p, true
		}
	}
	return Observation{}, false
}
