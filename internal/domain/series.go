package domain

import (
	"math"
	"slices"
	"strings"
	"time"
)

// Variable names a measured hydrometric quantity, matching the ECCC column names.
type Variable string

const (
	Discharge Variable = "DISCHARGE" // m³/s
	Level     Variable = "LEVEL"     // m
)

// ParseVariable accepts the ECCC column name in any case.
func ParseVariable(s string) (Variable, bool) {
	switch Variable(strings.ToUpper(strings.TrimSpace(s))) {
	case Discharge:
		return Discharge, true
	case Level:
		return Level, true
	default:
		return "", false
	}
}

// Observation is one timestamped value. A nil Value is a missing reading.
type Observation struct {
	Time  time.Time `json:"time"`
	Value *float64  `json:"value"`
}

// Series is a time series for exactly one station and one variable.
type Series struct {
	Station  string        `json:"station"`
	Variable Variable      `json:"variable"`
	Points   []Observation `json:"points"`
}

// Station holds hydrometric station metadata. ModelLat/ModelLon locate the
// station on the forecast model grid and default to Lat/Lon.
type Station struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	ModelLat float64 `json:"model_lat"`
	ModelLon float64 `json:"model_lon"`
}

// Float returns a pointer to v, for building observations.
func Float(v float64) *float64 { return &v }

// Len returns the number of points in the series.
func (s Series) Len() int { return len(s.Points) }

// Empty reports whether the series has no points.
func (s Series) Empty() bool { return len(s.Points) == 0 }

// Clone returns a deep copy so callers can transform without aliasing.
func (s Series) Clone() Series {
	out := Series{Station: s.Station, Variable: s.Variable, Points: make([]Observation, len(s.Points))}
	for i, p := range s.Points {
		out.Points[i] = Observation{Time: p.Time}
		if p.Value != nil {
			out.Points[i].Value = Float(*p.Value)
		}
	}
	return out
}

// Sorted returns a copy of the series ordered by time ascending. The sort is
// stable, so duplicate timestamps keep their input order.
func (s Series) Sorted() Series {
	out := s.Clone()
	slices.SortStableFunc(out.Points, func(a, b Observation) int {
		return a.Time.Compare(b.Time)
	})
	return out
}

// Valid returns the non-missing values in point order. NaN counts as missing.
func (s Series) Valid() []float64 {
	vals := make([]float64, 0, len(s.Points))
	for _, p := range s.Points {
		if present(p.Value) {
			vals = append(vals, *p.Value)
		}
	}
	return vals
}

// present reports whether v holds a usable reading.
func present(v *float64) bool {
	return v != nil && !math.IsNaN(*v)
}

// Between returns a copy holding the points with from <= t <= to.
func (s Series) Between(from, to time.Time) Series {
	out := Series{Station: s.Station, Variable: s.Variable}
	for _, p := range s.Clone().Points {
		if p.Time.Before(from) || p.Time.After(to) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}

// Span returns the first and last timestamps of a time-sorted series.
func (s Series) Span() (time.Time, time.Time, bool) {
	if len(s.Points) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Points[0].Time, s.Points[len(s.Points)-1].Time, true
}

// Concat appends b's points after a's, keeping a's station and variable. This
// is the realtime-then-forecast sequence that exceedance is computed over.
func Concat(a, b Series) Series {
	out := a.Clone()
	if out.Station == "" {
		out.Station = b.Station
	}
	if out.Variable == "" {
		out.Variable = b.Variable
	}
	out.Points = append(out.Points, b.Clone().Points...)
	return out
}

// DailyMean resamples a series to calendar days, averaging the non-missing
// values of each day. The result is contiguous from the first to the last
// day; days without any value are kept as missing points.
func DailyMean(s Series) Series {
	out := Series{Station: s.Station, Variable: s.Variable}
	if len(s.Points) == 0 {
		return out
	}

	type acc struct {
		sum float64
		n   int
	}
	loc := s.Points[0].Time.Location()
	days := make(map[int64]*acc)
	var first, last time.Time
	for i, p := range s.Points {
		d := truncateDay(p.Time.In(loc))
		if i == 0 || d.Before(first) {
			first = d
		}
		if i == 0 || d.After(last) {
			last = d
		}
		a, ok := days[d.Unix()]
		if !ok {
			a = &acc{}
			days[d.Unix()] = a
		}
		if p.Value != nil {
			a.sum += *p.Value
			a.n++
		}
	}

	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		obs := Observation{Time: d}
		if a, ok := days[d.Unix()]; ok && a.n > 0 {
			obs.Value = Float(a.sum / float64(a.n))
		}
		out.Points = append(out.Points, obs)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
