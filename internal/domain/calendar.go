package domain

import (
	"fmt"
	"time"
)

// DaysPerWaterYear counts every calendar-day key, Feb-29 included.
const DaysPerWaterYear = 366

// WaterYearStartMonth is the first month of the hydrological year.
const WaterYearStartMonth = time.October

// CalendarDay is a year-independent (month, day) key.
type CalendarDay struct {
	Month time.Month
	Day   int
}

// refWaterYearStart anchors index arithmetic on a water year that contains
// Feb-29 (Oct 1 1999 to Sep 30 2000).
var refWaterYearStart = time.Date(1999, time.October, 1, 0, 0, 0, 0, time.UTC)

// waterYearDays lists all keys in water-year order.
var waterYearDays = func() [DaysPerWaterYear]CalendarDay {
	var days [DaysPerWaterYear]CalendarDay
	d := refWaterYearStart
	for i := range days {
		days[i] = CalendarDay{Month: d.Month(), Day: d.Day()}
		d = d.AddDate(0, 0, 1)
	}
	return days
}()

// DayOf returns the calendar-day key of t in t's own location.
func DayOf(t time.Time) CalendarDay {
	_, m, d := t.Date()
	return CalendarDay{Month: m, Day: d}
}

// Valid reports whether the key names a real day of a leap year.
func (c CalendarDay) Valid() bool {
	if c.Month < time.January || c.Month > time.December || c.Day < 1 {
		return false
	}
	t := time.Date(2000, c.Month, c.Day, 0, 0, 0, 0, time.UTC)
	return t.Month() == c.Month && t.Day() == c.Day
}

// WaterYearIndex returns the key's position with Oct 1 = 0 and Sep 30 = 365.
// It panics on an invalid key.
func (c CalendarDay) WaterYearIndex() int {
	if !c.Valid() {
		panic(fmt.Sprintf("domain: invalid calendar day %v", c))
	}
	year := 2000
	if c.Month >= WaterYearStartMonth {
		year = 1999
	}
	t := time.Date(year, c.Month, c.Day, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(refWaterYearStart).Hours() / 24)
}

// CalendarIndex returns the key's position with Jan 1 = 0 and Dec 31 = 365.
func (c CalendarDay) CalendarIndex() int {
	if !c.Valid() {
		panic(fmt.Sprintf("domain: invalid calendar day %v", c))
	}
	return time.Date(2000, c.Month, c.Day, 0, 0, 0, 0, time.UTC).YearDay() - 1
}

// LeapDay reports whether the key is Feb-29.
func (c CalendarDay) LeapDay() bool {
	return c.Month == time.February && c.Day == 29
}

func (c CalendarDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(c.Month), c.Day)
}

// WaterYearOf returns the water year t falls in, named by the calendar year
// in which it ends: Oct 1 2023 through Sep 30 2024 is water year 2024.
func WaterYearOf(t time.Time) int {
	y, m, _ := t.Date()
	if m >= WaterYearStartMonth {
		return y + 1
	}
	return y
}

// IsLeap reports whether the calendar year has a Feb-29.
func IsLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// Order selects how calendar-day rows are laid out.
type Order int

const (
	// WaterYearOrder runs Oct 1 through Sep 30.
	WaterYearOrder Order = iota
	// CalendarOrder runs Jan 1 through Dec 31.
	CalendarOrder
)

// Position returns the key's zero-based slot in this order.
func (o Order) Position(c CalendarDay) int {
	if o == CalendarOrder {
		return c.CalendarIndex()
	}
	return c.WaterYearIndex()
}

func (o Order) String() string {
	if o == CalendarOrder {
		return "calendar"
	}
	return "water-year"
}
