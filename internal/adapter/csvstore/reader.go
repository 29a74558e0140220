package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// ColReturnPeriod is the return-period column of a threshold table.
const ColReturnPeriod = "T_yrs"

// ReadThresholds parses a return-period table: a T_yrs column followed by one
// discharge column per station. Blank cells are kept as missing thresholds.
func ReadThresholds(path string) (domain.ThresholdTable, error) {
	rows, err := readAll(path)
	if err != nil {
		return domain.ThresholdTable{}, err
	}
	return ParseThresholds(rows)
}

// ParseThresholds builds a threshold table from CSV rows including the header.
func ParseThresholds(rows [][]string) (domain.ThresholdTable, error) {
	if len(rows) == 0 {
		return domain.ThresholdTable{}, errors.New("threshold table is empty")
	}
	header := rows[0]
	rpCol := columnIndex(header).of(ColReturnPeriod)
	if rpCol < 0 {
		return domain.ThresholdTable{}, fmt.Errorf("threshold table has no %s column", ColReturnPeriod)
	}

	table := domain.ThresholdTable{Discharge: make(map[string][]*float64)}
	for i, name := range header {
		if i == rpCol {
			continue
		}
		table.Discharge[strings.TrimSpace(name)] = nil
	}

	for r, row := range rows[1:] {
		line := r + 2
		rp, err := strconv.ParseFloat(strings.TrimSpace(cell(row, rpCol)), 64)
		if err != nil || rp <= 0 {
			return domain.ThresholdTable{}, fmt.Errorf("line %d: invalid %s %q", line, ColReturnPeriod, cell(row, rpCol))
		}
		table.ReturnPeriods = append(table.ReturnPeriods, rp)

		for i, name := range header {
			if i == rpCol {
				continue
			}
			v, err := parseOptional(cell(row, i))
			if err != nil {
				return domain.ThresholdTable{}, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			code := strings.TrimSpace(name)
			table.Discharge[code] = append(table.Discharge[code], v)
		}
	}
	return table, nil
}

// ReadSeries parses a series CSV written by Writer.WriteSeries, or any CSV
// with a DATETIME or DATE column and a column named after the variable. When
// a STATION_NUMBER column is present, only rows for station are kept.
func ReadSeries(path, station string, variable domain.Variable) (domain.Series, error) {
	rows, err := readAll(path)
	if err != nil {
		return domain.Series{}, err
	}
	s, err := ParseSeries(rows, station, variable)
	if err != nil {
		return domain.Series{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSeries builds a time-sorted series from CSV rows including the header.
func ParseSeries(rows [][]string, station string, variable domain.Variable) (domain.Series, error) {
	s := domain.Series{Station: station, Variable: variable}
	if len(rows) == 0 {
		return s, nil
	}
	idx := columnIndex(rows[0])

	timeCol, layout := idx.of(ColDateTime), time.RFC3339
	if timeCol < 0 {
		timeCol, layout = idx.of(ColDate), time.DateOnly
	}
	if timeCol < 0 {
		return domain.Series{}, fmt.Errorf("no %s or %s column", ColDateTime, ColDate)
	}
	valueCol := idx.of(string(variable))
	if valueCol < 0 {
		return domain.Series{}, fmt.Errorf("no %s column", variable)
	}
	stationCol := idx.of(ColStationNumber)

	for r, row := range rows[1:] {
		if stationCol >= 0 && cell(row, stationCol) != station {
			continue
		}
		raw := strings.TrimSpace(cell(row, timeCol))
		ts, err := time.Parse(layout, raw)
		if err != nil {
			return domain.Series{}, fmt.Errorf("line %d: parse time %q: %w", r+2, raw, err)
		}
		v, err := parseOptional(cell(row, valueCol))
		if err != nil {
			return domain.Series{}, fmt.Errorf("line %d: %w", r+2, err)
		}
		s.Points = append(s.Points, domain.Observation{Time: ts.UTC(), Value: v})
	}
	return s.Sorted(), nil
}

// ReadStations parses a station list. Accepted headers are the ECCC names
// (STATION_NUMBER, STATION_NAME, LATITUDE, LONGITUDE) and the bilingual
// export names ("ID", "Name / Nom", "Latitude", "Longitude").
func ReadStations(path string) ([]domain.Station, error) {
	rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no header", path)
	}

	idx := columnIndex(rows[0])
	pick := func(names ...string) int {
		for _, n := range names {
			if i := idx.of(n); i >= 0 {
				return i
			}
		}
		return -1
	}
	codeCol := pick(ColStationNumber, "ID", "Station Number")
	nameCol := pick(ColStationName, "Name / Nom", "Name")
	latCol := pick("LATITUDE", "Latitude")
	lonCol := pick("LONGITUDE", "Longitude")
	if latCol < 0 || lonCol < 0 {
		return nil, fmt.Errorf("%s: latitude and longitude columns are required", path)
	}

	stations := make([]domain.Station, 0, len(rows)-1)
	for r, row := range rows[1:] {
		lat, err := strconv.ParseFloat(strings.TrimSpace(cell(row, latCol)), 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid latitude %q", path, r+2, cell(row, latCol))
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(cell(row, lonCol)), 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid longitude %q", path, r+2, cell(row, lonCol))
		}
		st := domain.Station{Lat: lat, Lon: lon, ModelLat: lat, ModelLon: lon}
		if codeCol >= 0 {
			st.Code = strings.TrimSpace(cell(row, codeCol))
		}
		if nameCol >= 0 {
			st.Name = strings.TrimSpace(cell(row, nameCol))
		}
		stations = append(stations, st)
	}
	return stations, nil
}

// OfflineSource implements domain.SeriesSource over a directory laid out the
// way Writer.WriteSeries lays out its output. A missing file is a station
// without data.
type OfflineSource struct {
	dir string
}

// NewOfflineSource reads series from dir.
func NewOfflineSource(dir string) *OfflineSource {
	return &OfflineSource{dir: dir}
}

// Series implements domain.SeriesSource.
func (o *OfflineSource) Series(ctx context.Context, q domain.SeriesQuery) (domain.Series, error) {
	if err := ctx.Err(); err != nil {
		return domain.Series{}, err
	}
	s, err := ReadSeries(SeriesPath(o.dir, q.Collection, q.Station, q.Variable), q.Station, q.Variable)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Series{Station: q.Station, Variable: q.Variable}, nil
	}
	if err != nil {
		return domain.Series{}, err
	}

	from, to := q.Start, q.End
	if from.IsZero() && to.IsZero() {
		return s, nil
	}
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return s.Between(from, to), nil
}

// StationsFile is the optional station list inside an offline directory.
const StationsFile = "stations.csv"

// Stations implements domain.StationSource from dir/stations.csv. Without
// that file every code resolves to a station with no name or coordinates.
func (o *OfflineSource) Stations(_ context.Context, codes []string) ([]domain.Station, error) {
	known := map[string]domain.Station{}
	listed, err := ReadStations(filepath.Join(o.dir, StationsFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		for _, st := range listed {
			known[st.Code] = st
		}
	}

	stations := make([]domain.Station, 0, len(codes))
	for _, code := range codes {
		st, ok := known[code]
		if !ok {
			st = domain.Station{Code: code}
		}
		stations = append(stations, st)
	}
	return stations, nil
}

func readAll(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// columns maps header names to positions.
type columns map[string]int

// of returns the position of name, or -1 when the header lacks it.
func (c columns) of(name string) int {
	if i, ok := c[name]; ok {
		return i
	}
	return -1
}

func columnIndex(header []string) columns {
	c := columns{}
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")
		if _, dup := c[name]; !dup {
			c[name] = i
		}
	}
	return c
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func parseOptional(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", raw)
	}
	return &v, nil
}
