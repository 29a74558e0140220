package domain

import (
	"math"
	"slices"
	"time"
)

// Band summarizes every historical value sharing one calendar-day key.
type Band struct {
	Count int     `json:"count"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
	P90   float64 `json:"p90"`
	P10   float64 `json:"p10"`
	P75   float64 `json:"p75"`
	P25   float64 `json:"p25"`
}

// BandingTable holds one optional Band per calendar-day key, stored in
// water-year order. A nil slot is a hole: no historical value for that day.
type BandingTable struct {
	Station  string
	Variable Variable
	rows     [DaysPerWaterYear]*Band
}

// BandRow pairs a key with its band. Band is nil for a hole.
type BandRow struct {
	Day  CalendarDay `json:"day"`
	Band *Band       `json:"band,omitempty"`
}

// Aggregate computes the day-of-year banding table of a multi-year daily
// series. Values are grouped by calendar-day key regardless of year; missing
// values are ignored and keys with no value stay holes. An empty series gives
// an all-hole table.
func Aggregate(historical Series) BandingTable {
	table := BandingTable{Station: historical.Station, Variable: historical.Variable}

	var groups [DaysPerWaterYear][]float64
	for _, p := range historical.Points {
		if p.Value == nil || math.IsNaN(*p.Value) {
			continue
		}
		i := DayOf(p.Time).WaterYearIndex()
		groups[i] = append(groups[i], *p.Value)
	}

	for i, vals := range groups {
		if len(vals) == 0 {
			continue
		}
		slices.Sort(vals)
		table.rows[i] = &Band{
			Count: len(vals),
			Max:   vals[len(vals)-1],
			Min:   vals[0],
			P90:   Percentile(vals, 90),
			P10:   Percentile(vals, 10),
			P75:   Percentile(vals, 75),
			P25:   Percentile(vals, 25),
		}
	}
	return table
}

// Percentile returns the p-th percentile (0..100) of sorted values using
// linear interpolation between the closest order statistics. It returns NaN
// for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	v := sorted[lo] + frac*(sorted[hi]-sorted[lo])
	// Rounding must not push the result outside its bracketing order statistics.
	return math.Min(math.Max(v, sorted[lo]), sorted[hi])
}

// Band returns the statistics for a key and whether the key has data.
func (t BandingTable) Band(day CalendarDay) (Band, bool) {
	if !day.Valid() {
		return Band{}, false
	}
	b := t.rows[day.WaterYearIndex()]
	if b == nil {
		return Band{}, false
	}
	return *b, true
}

// Filled returns the number of keys that have data.
func (t BandingTable) Filled() int {
	n := 0
	for _, b := range t.rows {
		if b != nil {
			n++
		}
	}
	return n
}

// Rows returns all 366 keys in the requested order, holes included. Each
// returned Band is a copy.
func (t BandingTable) Rows(order Order) []BandRow {
	rows := make([]BandRow, 0, DaysPerWaterYear)
	for i, day := range waterYearDays {
		row := BandRow{Day: day}
		if b := t.rows[i]; b != nil {
			cp := *b
			row.Band = &cp
		}
		rows = append(rows, row)
	}
	return Reindex(rows, order)
}

// Reindex returns the rows permuted into the given order. Rows with an
// invalid key sort last, keeping their relative order. The input is not
// modified and reindexing an already ordered slice returns it unchanged.
func Reindex(rows []BandRow, order Order) []BandRow {
	pos := func(c CalendarDay) int {
		if !c.Valid() {
			return DaysPerWaterYear
		}
		return order.Position(c)
	}
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b BandRow) int {
		return pos(a.Day) - pos(b.Day)
	})
	return out
}

// StampedBand is a banding row placed on a concrete date for plotting.
type StampedBand struct {
	Date time.Time   `json:"date"`
	Day  CalendarDay `json:"day"`
	// Start is true for October-December rows, which precede the new calendar
	// year within the water year.
	Start bool  `json:"start"`
	Band  *Band `json:"band,omitempty"`
}

// StampWaterYear places every row on a date inside the given water year:
// October-December keys fall in waterYear-1 and January-September keys in
// waterYear. Feb-29 is only stamped when waterYear is a leap year. The result
// is sorted chronologically and depends only on its arguments.
func StampWaterYear(rows []BandRow, waterYear int) []StampedBand {
	out := make([]StampedBand, 0, len(rows))
	for _, r := range rows {
		if r.Day.LeapDay() && !IsLeap(waterYear) {
			continue
		}
		year, start := waterYear, false
		if r.Day.Month >= WaterYearStartMonth {
			year, start = waterYear-1, true
		}
		sb := StampedBand{
			Date:  time.Date(year, r.Day.Month, r.Day.Day, 0, 0, 0, 0, time.UTC),
			Day:   r.Day,
			Start: start,
		}
		if r.Band != nil {
			cp := *r.Band
			sb.Band = &cp
		}
		out = append(out, sb)
	}
	slices.SortStableFunc(out, func(a, b StampedBand) int {
		return a.Date.Compare(b.Date)
	})
	return out
}
