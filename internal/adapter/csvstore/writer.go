// Package csvstore writes pipeline artifacts as CSV files and reads the CSV
// inputs the pipeline accepts: return-period threshold tables, station lists,
// and previously written series for offline runs.
package csvstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// Column names shared with the ECCC collections.
const (
	ColStationNumber = "STATION_NUMBER"
	ColStationName   = "STATION_NAME"
	ColDateTime      = "DATETIME"
	ColDate          = "DATE"
)

// Artifact directories under the output root.
const (
	DirBanding    = "banding"
	DirExceedance = "exceedance"
	DirForecast   = "forecast"
)

// Writer writes CSV artifacts under a root directory. Each file is written
// to a temporary name and renamed into place, so readers never see a partial
// file and a rerun replaces the previous artifact whole.
type Writer struct {
	root string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Root returns the output directory.
func (w *Writer) Root() string { return w.root }

// SeriesPath returns root/<collection>/<station>_<variable>.csv.
func (w *Writer) SeriesPath(collection, station string, variable domain.Variable) string {
	return SeriesPath(w.root, collection, station, variable)
}

// SeriesPath builds the path of a series CSV under dir.
func SeriesPath(dir, collection, station string, variable domain.Variable) string {
	return filepath.Join(dir, collection, fmt.Sprintf("%s_%s.csv", station, variable))
}

// WriteSeries writes one station's series with a time column (DATETIME for
// sub-daily data, DATE for daily means), the station number and name, and
// the variable column. Missing values are written as empty cells.
func (w *Writer) WriteSeries(collection string, station domain.Station, s domain.Series, timeColumn string) (string, error) {
	layout := time.RFC3339
	if timeColumn == ColDate {
		layout = time.DateOnly
	}

	rows := [][]string{{timeColumn, ColStationNumber, ColStationName, string(s.Variable)}}
	for _, p := range s.Points {
		rows = append(rows, []string{p.Time.UTC().Format(layout), station.Code, station.Name, formatValue(p.Value)})
	}
	path := w.SeriesPath(collection, station.Code, s.Variable)
	return path, writeAll(path, rows)
}

// WriteBanding writes the banding table stamped onto waterYear, one row per
// date. Holes have empty statistic cells.
func (w *Writer) WriteBanding(table domain.BandingTable, waterYear int) (string, error) {
	rows := [][]string{{ColDate, "day", "count", "max", "p90", "p75", "p25", "p10", "min"}}
	for _, sb := range domain.StampWaterYear(table.Rows(domain.WaterYearOrder), waterYear) {
		row := []string{sb.Date.Format(time.DateOnly), sb.Day.String()}
		if sb.Band == nil {
			row = append(row, "0", "", "", "", "", "", "")
		} else {
			b := sb.Band
			row = append(row, strconv.Itoa(b.Count),
				formatFloat(b.Max), formatFloat(b.P90), formatFloat(b.P75),
				formatFloat(b.P25), formatFloat(b.P10), formatFloat(b.Min))
		}
		rows = append(rows, row)
	}
	path := filepath.Join(w.root, DirBanding, fmt.Sprintf("%s_%s_banding.csv", table.Station, table.Variable))
	return path, writeAll(path, rows)
}

// WriteExceedance writes every labelled observation with its label text.
func (w *Writer) WriteExceedance(station string, variable domain.Variable, labelled []domain.LabelledObservation) (string, error) {
	rows := [][]string{{ColDateTime, string(variable), "return_period", "label"}}
	for _, lo := range labelled {
		rp := ""
		if lo.Label.Kind == domain.LabelExceeds {
			rp = formatFloat(lo.Label.ReturnPeriod)
		}
		rows = append(rows, []string{lo.Time.UTC().Format(time.RFC3339), formatValue(lo.Value), rp, lo.Label.String()})
	}
	path := filepath.Join(w.root, DirExceedance, fmt.Sprintf("%s_%s_exceedance.csv", station, variable))
	return path, writeAll(path, rows)
}

// WriteForecast writes the raw and bias-corrected forecast side by side.
// corrected must have the same timestamps as forecast.
func (w *Writer) WriteForecast(forecast, corrected domain.Series) (string, error) {
	rows := [][]string{{ColDateTime, "forecast", "corrected"}}
	for i, p := range forecast.Points {
		var c *float64
		if i < len(corrected.Points) {
			c = corrected.Points[i].Value
		}
		rows = append(rows, []string{p.Time.UTC().Format(time.RFC3339), formatValue(p.Value), formatValue(c)})
	}
	path := filepath.Join(w.root, DirForecast, fmt.Sprintf("%s_%s_forecast.csv", forecast.Station, forecast.Variable))
	return path, writeAll(path, rows)
}

// WriteThresholds writes a threshold table in the T_yrs layout ReadThresholds
// accepts. Station columns are sorted by code.
func WriteThresholds(path string, table domain.ThresholdTable) error {
	codes := table.Stations()
	rows := [][]string{append([]string{ColReturnPeriod}, codes...)}
	for i, rp := range table.ReturnPeriods {
		row := []string{formatFloat(rp)}
		for _, code := range codes {
			var v *float64
			if col := table.Discharge[code]; i < len(col) {
				v = col[i]
			}
			row = append(row, formatValue(v))
		}
		rows = append(rows, row)
	}
	return writeAll(path, rows)
}

// WriteStations writes a station list in the layout ReadStations accepts.
func WriteStations(path string, stations []domain.Station) error {
	rows := [][]string{{ColStationNumber, ColStationName, "LATITUDE", "LONGITUDE"}}
	for _, st := range stations {
		rows = append(rows, []string{st.Code, st.Name, formatFloat(st.Lat), formatFloat(st.Lon)})
	}
	return writeAll(path, rows)
}

func writeAll(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := csv.NewWriter(tmp).WriteAll(rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
