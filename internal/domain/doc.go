// Package domain models hydrometric time series published by Environment and
// Climate Change Canada (ECCC) and the numeric transforms applied to them.
//
// # Data Sources
//
// Observations come from the ECCC OGC API Features collections at
// https://api.weather.gc.ca: "hydrometric-realtime" (5-minute readings, last
// 30 days) and "hydrometric-daily-mean" (historical daily means). Each row
// carries STATION_NUMBER, a timestamp and DISCHARGE (m³/s) and LEVEL (m)
// columns. Forecasts come from the MSC GeoMet river discharge layers.
//
// # Conventions
//
// Water year:
//
//	October 1 through September 30, named by the calendar year it ends in.
//	Oct 1 2023 .. Sep 30 2024 is water year 2024.
//
// Calendar-day keys:
//
//	Day-of-year statistics group values by (month, day) regardless of year.
//	There are 366 keys; Feb-29 is its own key and only receives values from
//	leap years. Keys are laid out in water-year order (Oct 1 = 0, Sep 30 = 365)
//	unless CalendarOrder is requested.
//
// Percentiles:
//
//	Linear interpolation between order statistics, rank = p/100 * (n-1).
//	A single value yields that value for every percentile.
//
// Return periods:
//
//	A threshold table lists, per station, the discharge reached on average
//	once every T years. A value is labelled with the largest T whose
//	threshold it meets or exceeds. Values below every threshold get a floor
//	label ("Less than 2 year" when 2 is the smallest tracked period).
//
// Missing values:
//
//	A nil Observation.Value is a missing reading. Transforms keep missing
//	points in place and never treat them as zero.
//
// # Purity
//
// Every transform takes its input by value, never mutates it and returns
// freshly allocated output. The only package state is the clock used to
// stamp reports; see [SetClock].
package domain
