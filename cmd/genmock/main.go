// Command genmock writes deterministic synthetic hydrometric fixtures for
// offline runs: a daily-mean history and an hourly realtime window per
// station, a stations list, and a thresholds table fitted to the history.
// The output directory can be used directly as OGC_API_URL=file://<out>.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -years 20 -end 2024-05-03
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/hydrometric-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// mockStations are real Bow River basin gauges so the station map lines up
// with published shapefiles.
var mockStations = []domain.Station{
	{Code: "05BH004", Name: "BOW RIVER AT CALGARY", Lat: 51.0503, Lon: -114.0514},
	{Code: "05BB001", Name: "BOW RIVER AT BANFF", Lat: 51.1722, Lon: -115.5717},
	{Code: "05BJ004", Name: "ELBOW RIVER AT BRAGG CREEK", Lat: 50.9486, Lon: -114.5703},
	{Code: "05BM004", Name: "BOW RIVER BELOW BASSANO DAM", Lat: 50.7861, Lon: -112.4578},
	{Code: "05BE004", Name: "BOW RIVER NEAR SEEBE", Lat: 51.0972, Lon: -115.0678},
}

// returnPeriods are the columns of the generated thresholds table.
var returnPeriods = []float64{2, 5, 10, 20, 50, 100}

const (
	realtimeCollection   = "hydrometric-realtime"
	historicalCollection = "hydrometric-daily-mean"
	thresholdsFile       = "thresholds.csv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory")
	stations := flag.Int("stations", 3, "number of stations to generate (max 5)")
	years := flag.Int("years", 20, "years of daily history")
	end := flag.String("end", "2024-05-03T12:00:00Z", "timestamp of the last realtime reading (RFC3339)")
	realtimeDays := flag.Int("realtime-days", 30, "days of hourly realtime data")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *stations < 1 || *stations > len(mockStations) {
		return fmt.Errorf("-stations must be between 1 and %d", len(mockStations))
	}
	if *years < 2 {
		return fmt.Errorf("-years must be at least 2 to fit thresholds")
	}
	endTime, err := time.Parse(time.RFC3339, *end)
	if err != nil {
		return fmt.Errorf("parse -end: %w", err)
	}
	endTime = endTime.UTC().Truncate(time.Hour)

	w := csvstore.NewWriter(*out)
	table := domain.ThresholdTable{ReturnPeriods: returnPeriods, Discharge: map[string][]*float64{}}
	selected := mockStations[:*stations]

	for i, st := range selected {
		rng := rand.New(rand.NewPCG(*seed, uint64(i)))
		scale := 60 + 80*float64(i)

		realtimeStart := endTime.Add(-time.Duration(*realtimeDays) * 24 * time.Hour)
		historyEnd := time.Date(realtimeStart.Year(), realtimeStart.Month(), realtimeStart.Day(), 0, 0, 0, 0, time.UTC)
		hist := dailyHistory(st.Code, historyEnd.AddDate(-*years, 0, 0), historyEnd, scale, rng)
		if _, err := w.WriteSeries(historicalCollection, st, hist, csvstore.ColDate); err != nil {
			return fmt.Errorf("write history for %s: %w", st.Code, err)
		}

		rt := hourlyRealtime(st.Code, realtimeStart, endTime, scale, rng)
		if _, err := w.WriteSeries(realtimeCollection, st, rt, csvstore.ColDateTime); err != nil {
			return fmt.Errorf("write realtime for %s: %w", st.Code, err)
		}

		col := make([]*float64, len(returnPeriods))
		for j, q := range gumbelThresholds(annualMaxima(hist), returnPeriods) {
			col[j] = domain.Float(math.Round(q*10) / 10)
		}
		table.Discharge[st.Code] = col

		log.Printf("%s: %d daily, %d hourly", st.Code, hist.Len(), rt.Len())
		printStats(hist, rt, table)
	}

	if err := csvstore.WriteStations(filepath.Join(*out, csvstore.StationsFile), selected); err != nil {
		return fmt.Errorf("write stations: %w", err)
	}
	if err := csvstore.WriteThresholds(filepath.Join(*out, thresholdsFile), table); err != nil {
		return fmt.Errorf("write thresholds: %w", err)
	}
	log.Printf("wrote fixtures for %d stations to %s", len(selected), *out)
	return nil
}

// seasonal is the snowmelt-driven annual hydrograph shape: low winter flow
// and a June freshet.
func seasonal(t time.Time, scale float64) float64 {
	doy := float64(t.YearDay())
	freshet := math.Exp(-math.Pow((doy-170)/30, 2))
	return scale * (0.25 + 1.5*freshet)
}

func dailyHistory(code string, from, to time.Time, scale float64, rng *rand.Rand) domain.Series {
	s := domain.Series{Station: code, Variable: domain.Discharge}
	yearFactor := map[int]float64{}
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		f, ok := yearFactor[d.Year()]
		if !ok {
			f = math.Exp(rng.NormFloat64() * 0.3)
			yearFactor[d.Year()] = f
		}
		// Roughly one day in two hundred is a gauge outage.
		if rng.IntN(200) == 0 {
			s.Points = append(s.Points, domain.Observation{Time: d})
			continue
		}
		v := seasonal(d, scale)*f*(1+0.05*rng.NormFloat64()) + 0.1*scale*rng.ExpFloat64()*f
		s.Points = append(s.Points, domain.Observation{Time: d, Value: domain.Float(round3(math.Max(v, 0.5)))})
	}
	return s
}

// hourlyRealtime follows the seasonal shape with a diurnal melt cycle and a
// storm pulse over the last two days.
func hourlyRealtime(code string, from, to time.Time, scale float64, rng *rand.Rand) domain.Series {
	s := domain.Series{Station: code, Variable: domain.Discharge}
	storm := to.Add(-24 * time.Hour)
	for t := from; !t.After(to); t = t.Add(time.Hour) {
		diurnal := 0.05 * math.Sin(2*math.Pi*float64(t.Hour()-15)/24)
		pulse := 1.2 * math.Exp(-math.Pow(t.Sub(storm).Hours()/12, 2))
		v := seasonal(t, scale) * (1 + diurnal + pulse + 0.02*rng.NormFloat64())
		s.Points = append(s.Points, domain.Observation{Time: t, Value: domain.Float(round3(math.Max(v, 0.5)))})
	}
	return s
}

// annualMaxima returns the largest daily value of each complete water year.
func annualMaxima(s domain.Series) []float64 {
	maxima := map[int]float64{}
	counts := map[int]int{}
	for _, p := range s.Points {
		wy := domain.WaterYearOf(p.Time)
		counts[wy]++
		if p.Value != nil && *p.Value > maxima[wy] {
			maxima[wy] = *p.Value
		}
	}
	years := make([]int, 0, len(maxima))
	for wy := range maxima {
		if counts[wy] >= 365 {
			years = append(years, wy)
		}
	}
	slices.Sort(years)
	out := make([]float64, 0, len(years))
	for _, wy := range years {
		out = append(out, maxima[wy])
	}
	return out
}

// gumbelThresholds fits a Gumbel (EV1) distribution to annual maxima by the
// method of moments and returns the flow for each return period:
// Q_T = mean + K_T * std, K_T = -(√6/π)(γ + ln ln(T/(T-1))).
func gumbelThresholds(maxima, periods []float64) []float64 {
	n := float64(len(maxima))
	var sum, sq float64
	for _, v := range maxima {
		sum += v
	}
	mean := sum / n
	for _, v := range maxima {
		sq += (v - mean) * (v - mean)
	}
	std := math.Sqrt(sq / (n - 1))

	const eulerGamma = 0.5772156649
	out := make([]float64, len(periods))
	for i, t := range periods {
		k := -(math.Sqrt(6) / math.Pi) * (eulerGamma + math.Log(math.Log(t/(t-1))))
		out[i] = mean + k*std
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func printStats(hist, rt domain.Series, table domain.ThresholdTable) {
	banding := domain.Aggregate(hist)
	fmt.Printf("  banded days: %d/%d\n", banding.Filled(), domain.DaysPerWaterYear)
	fmt.Printf("  annual maxima: %d water years\n", len(annualMaxima(hist)))
	for _, th := range table.ForStation(hist.Station) {
		fmt.Printf("  %g-year: %g\n", th.ReturnPeriod, th.Value)
	}
	peak := domain.PeakLabel(domain.Classify(rt.Points, table, hist.Station))
	fmt.Printf("  realtime peak: %s\n", peak)
}
