// Command validate checks a return-period thresholds table before it is
// handed to the service: structure, monotonic thresholds, coverage of a
// station list, and optionally that offline fixtures exist for every station.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -thresholds data/mock/thresholds.csv \
//	  -stations data/mock/stations.csv \
//	  -data data/mock
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/couchcryptid/hydrometric-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

const historicalCollection = "hydrometric-daily-mean"

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	thresholdsPath := flag.String("thresholds", "", "path to the thresholds CSV")
	stationsPath := flag.String("stations", "", "optional stations CSV the table must cover")
	dataDir := flag.String("data", "", "optional offline data directory to check for station history")
	flag.Parse()

	if *thresholdsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*thresholdsPath, *stationsPath, *dataDir); code != 0 {
		os.Exit(code)
	}
}

func run(thresholdsPath, stationsPath, dataDir string) int {
	fmt.Println("=== Thresholds Validation ===")
	fmt.Println()

	table, err := csvstore.ReadThresholds(thresholdsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load thresholds: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateStructure(table),
		validateMonotonic(table),
	}

	if stationsPath != "" {
		stations, err := csvstore.ReadStations(stationsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load stations: %v\n", err)
			return 1
		}
		phases = append(phases, validateCoverage(table, stations))
	}
	if dataDir != "" {
		phases = append(phases, validateHistory(table, dataDir))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Table: %d return periods, %d stations\n", len(table.ReturnPeriods), len(table.Discharge))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Structure ──
// Return periods are unique and greater than one year; every station column
// carries at least one threshold.

func validateStructure(table domain.ThresholdTable) *phase {
	p := &phase{name: "Phase 1: Structure"}

	if len(table.ReturnPeriods) == 0 {
		p.errorf("no return period rows")
	}
	seen := map[float64]bool{}
	for _, rp := range table.ReturnPeriods {
		if seen[rp] {
			p.errorf("duplicate return period %g", rp)
		}
		seen[rp] = true
		if rp <= 1 {
			p.errorf("return period %g must be greater than one year", rp)
		}
	}

	if len(table.Discharge) == 0 {
		p.errorf("no station columns")
	}
	for _, code := range table.Stations() {
		if len(table.ForStation(code)) == 0 {
			p.errorf("station %s: every threshold is blank", code)
		}
	}
	return p
}

// ── Phase 2: Monotonic ──
// Longer return periods must not have lower thresholds.

func validateMonotonic(table domain.ThresholdTable) *phase {
	p := &phase{name: "Phase 2: Monotonic thresholds"}
	for _, err := range table.Validate() {
		p.errorf("%v", err)
	}
	return p
}

// ── Phase 3: Coverage ──
// Every listed station has a column, and every column is a listed station.

func validateCoverage(table domain.ThresholdTable, stations []domain.Station) *phase {
	p := &phase{name: "Phase 3: Station coverage"}

	listed := make([]string, 0, len(stations))
	for _, st := range stations {
		listed = append(listed, st.Code)
		if _, ok := table.Discharge[st.Code]; !ok {
			p.errorf("station %s (%s) has no thresholds column", st.Code, st.Name)
		}
	}
	for _, code := range table.Stations() {
		if !slices.Contains(listed, code) {
			p.errorf("thresholds column %s is not in the station list", code)
		}
	}
	return p
}

// ── Phase 4: History ──
// Each station has a readable daily-mean history in the offline layout.

func validateHistory(table domain.ThresholdTable, dir string) *phase {
	p := &phase{name: "Phase 4: Offline history"}
	for _, code := range table.Stations() {
		path := csvstore.SeriesPath(dir, historicalCollection, code, domain.Discharge)
		s, err := csvstore.ReadSeries(path, code, domain.Discharge)
		if err != nil {
			p.errorf("station %s: %v", code, err)
			continue
		}
		if len(s.Valid()) == 0 {
			p.errorf("station %s: history has no values", code)
			continue
		}
		if filled := domain.Aggregate(s).Filled(); filled < domain.DaysPerWaterYear-1 {
			p.errorf("station %s: history bands only %d of %d days", code, filled, domain.DaysPerWaterYear)
		}
	}
	return p
}
