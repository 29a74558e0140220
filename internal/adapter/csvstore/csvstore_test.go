package csvstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

var bow = domain.Station{Code: "05BH004", Name: "BOW RIVER AT CALGARY"}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.csv")
	writeFile(t, path, "T_yrs,05BH004,05BB001\n2,100,50\n5,200,\n10,300,90\n")

	table, err := ReadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5, 10}, table.ReturnPeriods)
	assert.Equal(t, []string{"05BB001", "05BH004"}, table.Stations())

	// Blank cells are dropped per station.
	ths := table.ForStation("05BB001")
	require.Len(t, ths, 2)
	assert.Equal(t, domain.Threshold{ReturnPeriod: 10, Value: 90}, ths[0])
	assert.Equal(t, domain.Threshold{ReturnPeriod: 2, Value: 50}, ths[1])
}

func TestParseThresholds_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want string
	}{
		{"empty", nil, "empty"},
		{"no return period column", [][]string{{"05BH004"}, {"100"}}, "T_yrs"},
		{"bad return period", [][]string{{"T_yrs", "A"}, {"x", "1"}}, "line 2"},
		{"bad value", [][]string{{"T_yrs", "A"}, {"2", "lots"}}, "column A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseThresholds(tt.rows)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteThresholds_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "thresholds.csv")
	in := domain.ThresholdTable{
		ReturnPeriods: []float64{2, 5},
		Discharge: map[string][]*float64{
			"A": {domain.Float(10), nil},
			"B": {domain.Float(1.5), domain.Float(2.5)},
		},
	}
	require.NoError(t, WriteThresholds(path, in))

	out, err := ReadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, in.ReturnPeriods, out.ReturnPeriods)
	assert.Equal(t, in.ForStation("A"), out.ForStation("A"))
	assert.Equal(t, in.ForStation("B"), out.ForStation("B"))
}

func TestWriteSeries_ReadBack(t *testing.T) {
	w := NewWriter(t.TempDir())
	s := domain.Series{Station: bow.Code, Variable: domain.Discharge, Points: []domain.Observation{
		{Time: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Value: domain.Float(12.5)},
		{Time: time.Date(2024, 5, 2, 0, 5, 0, 0, time.UTC)},
	}}

	path, err := w.WriteSeries("hydrometric-realtime", bow, s, ColDateTime)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Root(), "hydrometric-realtime", "05BH004_DISCHARGE.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, "DATETIME,STATION_NUMBER,STATION_NAME,DISCHARGE", lines[0])
	assert.Equal(t, "2024-05-02T00:00:00Z,05BH004,BOW RIVER AT CALGARY,12.5", lines[1])
	assert.Equal(t, "2024-05-02T00:05:00Z,05BH004,BOW RIVER AT CALGARY,", lines[2])

	back, err := ReadSeries(path, bow.Code, domain.Discharge)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestWriteSeries_DailyDates(t *testing.T) {
	w := NewWriter(t.TempDir())
	s := domain.Series{Station: bow.Code, Variable: domain.Level, Points: []domain.Observation{
		{Time: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), Value: domain.Float(1.2)},
	}}
	path, err := w.WriteSeries("hydrometric-daily-mean", bow, s, ColDate)
	require.NoError(t, err)

	back, err := ReadSeries(path, bow.Code, domain.Level)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestWriteSeries_Replaces(t *testing.T) {
	w := NewWriter(t.TempDir())
	one := domain.Series{Station: bow.Code, Variable: domain.Discharge, Points: []domain.Observation{
		{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Value: domain.Float(1)},
	}}
	_, err := w.WriteSeries("c", bow, one, ColDateTime)
	require.NoError(t, err)
	_, err = w.WriteSeries("c", bow, domain.Series{Station: bow.Code, Variable: domain.Discharge}, ColDateTime)
	require.NoError(t, err)

	back, err := ReadSeries(w.SeriesPath("c", bow.Code, domain.Discharge), bow.Code, domain.Discharge)
	require.NoError(t, err)
	assert.True(t, back.Empty())

	entries, err := os.ReadDir(filepath.Join(w.Root(), "c"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestReadSeries_FiltersStation(t *testing.T) {
	rows := [][]string{
		{"DATETIME", "STATION_NUMBER", "DISCHARGE"},
		{"2024-05-02T00:05:00Z", "05BH004", "2"},
		{"2024-05-02T00:00:00Z", "OTHER", "9"},
		{"2024-05-02T00:00:00Z", "05BH004", "1"},
	}
	s, err := ParseSeries(rows, "05BH004", domain.Discharge)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, s.Valid())
}

func TestParseSeries_Errors(t *testing.T) {
	_, err := ParseSeries([][]string{{"WHEN", "DISCHARGE"}}, "A", domain.Discharge)
	assert.ErrorContains(t, err, "DATETIME")

	_, err = ParseSeries([][]string{{"DATE", "LEVEL"}}, "A", domain.Discharge)
	assert.ErrorContains(t, err, "no DISCHARGE column")

	_, err = ParseSeries([][]string{{"DATE", "DISCHARGE"}, {"May 2", "1"}}, "A", domain.Discharge)
	assert.ErrorContains(t, err, "line 2")
}

func TestReadStations_BilingualHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.csv")
	writeFile(t, path, "ID,Name / Nom,Latitude,Longitude\n05BH004,BOW RIVER AT CALGARY,51.05,-114.05\n")

	stations, err := ReadStations(path)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, domain.Station{
		Code: "05BH004", Name: "BOW RIVER AT CALGARY",
		Lat: 51.05, Lon: -114.05, ModelLat: 51.05, ModelLon: -114.05,
	}, stations[0])
}

func TestReadStations_MissingCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.csv")
	writeFile(t, path, "ID,Name\nA,B\n")
	_, err := ReadStations(path)
	assert.ErrorContains(t, err, "latitude and longitude")
}

func TestWriteStations_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), StationsFile)
	want := []domain.Station{
		{Code: "05BH004", Name: "BOW RIVER AT CALGARY", Lat: 51.05, Lon: -114.05},
		{Code: "05BB001", Name: "BOW RIVER AT BANFF, AB", Lat: 51.17, Lon: -115.57},
	}
	require.NoError(t, WriteStations(path, want))

	got, err := ReadStations(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].Code, got[i].Code)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.InDelta(t, want[i].Lat, got[i].Lat, 1e-9)
		assert.InDelta(t, want[i].Lon, got[i].Lon, 1e-9)
	}
}

func TestWriteBanding(t *testing.T) {
	hist := domain.Series{Station: bow.Code, Variable: domain.Discharge, Points: []domain.Observation{
		{Time: time.Date(2001, 10, 1, 0, 0, 0, 0, time.UTC), Value: domain.Float(4)},
		{Time: time.Date(2002, 10, 1, 0, 0, 0, 0, time.UTC), Value: domain.Float(6)},
	}}
	w := NewWriter(t.TempDir())
	path, err := w.WriteBanding(domain.Aggregate(hist), 2024)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	// Header plus every day of leap water year 2024.
	require.Len(t, lines, 1+366)
	assert.Equal(t, "DATE,day,count,max,p90,p75,p25,p10,min", lines[0])
	assert.Equal(t, "2023-10-01,10-01,2,6,5.8,5.5,4.5,4.2,4", lines[1])
	assert.Equal(t, "2023-10-02,10-02,0,,,,,,", lines[2])
}

func TestWriteExceedanceAndForecast(t *testing.T) {
	w := NewWriter(t.TempDir())
	ts := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	labelled := []domain.LabelledObservation{
		{Observation: domain.Observation{Time: ts, Value: domain.Float(210)}, Label: domain.Label{Kind: domain.LabelExceeds, ReturnPeriod: 5}},
		{Observation: domain.Observation{Time: ts.Add(time.Hour)}, Label: domain.Label{Kind: domain.LabelMissing}},
	}
	path, err := w.WriteExceedance(bow.Code, domain.Discharge, labelled)
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2024-05-02T00:00:00Z,210,5,5-year")
	assert.Contains(t, string(raw), "2024-05-02T01:00:00Z,,,")

	fc := domain.Series{Station: bow.Code, Variable: domain.Discharge, Points: []domain.Observation{{Time: ts, Value: domain.Float(8)}}}
	corrected := domain.Series{Station: bow.Code, Variable: domain.Discharge, Points: []domain.Observation{{Time: ts, Value: domain.Float(11)}}}
	path, err = w.WriteForecast(fc, corrected)
	require.NoError(t, err)
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2024-05-02T00:00:00Z,8,11")
}

func TestOfflineSource(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	s := domain.Series{Station: bow.Code, Variable: domain.Discharge, Points: []domain.Observation{
		{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Value: domain.Float(1)},
		{Time: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), Value: domain.Float(3)},
	}}
	_, err := w.WriteSeries("hydrometric-realtime", bow, s, ColDateTime)
	require.NoError(t, err)

	src := NewOfflineSource(dir)
	got, err := src.Series(context.Background(), domain.SeriesQuery{
		Collection: "hydrometric-realtime", Station: bow.Code, Variable: domain.Discharge,
		Start: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, got.Valid())

	missing, err := src.Series(context.Background(), domain.SeriesQuery{
		Collection: "hydrometric-realtime", Station: "NOPE", Variable: domain.Discharge,
	})
	require.NoError(t, err)
	assert.True(t, missing.Empty())
}

func TestOfflineSource_Stations(t *testing.T) {
	dir := t.TempDir()
	src := NewOfflineSource(dir)

	stations, err := src.Stations(context.Background(), []string{bow.Code})
	require.NoError(t, err)
	assert.Equal(t, []domain.Station{{Code: bow.Code}}, stations)

	writeFile(t, filepath.Join(dir, StationsFile), "STATION_NUMBER,STATION_NAME,LATITUDE,LONGITUDE\n05BH004,BOW,51,-114\n")
	stations, err = src.Stations(context.Background(), []string{bow.Code, "OTHER"})
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "BOW", stations[0].Name)
	assert.InDelta(t, -114, stations[0].Lon, 0)
	assert.Equal(t, domain.Station{Code: "OTHER"}, stations[1])
}
