package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hydrometric-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/render"
)

// CSVSink writes the fetched series and the derived tables of a report as
// CSV files. The series land in the same layout the offline source reads.
type CSVSink struct {
	writer               *csvstore.Writer
	realtimeCollection   string
	historicalCollection string
	logger               *slog.Logger
}

// NewCSVSink creates a CSVSink writing under w's root.
func NewCSVSink(w *csvstore.Writer, realtimeCollection, historicalCollection string, logger *slog.Logger) *CSVSink {
	return &CSVSink{
		writer:               w,
		realtimeCollection:   realtimeCollection,
		historicalCollection: historicalCollection,
		logger:               logger,
	}
}

// Name implements Sink.
func (s *CSVSink) Name() string { return "csv" }

// Save implements Sink. Every artifact is attempted; failures are joined.
func (s *CSVSink) Save(_ context.Context, r domain.StationReport) error {
	var (
		paths []string
		errs  []error
	)
	add := func(path string, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		paths = append(paths, path)
	}

	add(s.writer.WriteSeries(s.realtimeCollection, r.Station, r.Realtime, csvstore.ColDateTime))
	add(s.writer.WriteSeries(s.historicalCollection, r.Station, r.Historical, csvstore.ColDate))
	add(s.writer.WriteBanding(r.Banding, reportWaterYear(r)))
	add(s.writer.WriteExceedance(r.Station.Code, r.Variable, r.Labelled))
	if r.HasForecast() {
		add(s.writer.WriteForecast(r.Forecast, r.Corrected))
	}

	s.logger.Debug("csv artifacts written", "station", r.Station.Code, "files", len(paths))
	if len(errs) > 0 {
		return fmt.Errorf("write csv artifacts: %w", errors.Join(errs...))
	}
	return nil
}

// reportWaterYear is the water year of the latest realtime observation,
// falling back to the report timestamp.
func reportWaterYear(r domain.StationReport) int {
	if _, last, ok := r.Realtime.Span(); ok {
		return domain.WaterYearOf(last)
	}
	return domain.WaterYearOf(r.GeneratedAt)
}

// ChartSink renders the report charts as PNG files.
type ChartSink struct {
	dir    string
	logger *slog.Logger
}

// NewChartSink creates a ChartSink writing under dir.
func NewChartSink(dir string, logger *slog.Logger) *ChartSink {
	return &ChartSink{dir: dir, logger: logger}
}

// Name implements Sink.
func (s *ChartSink) Name() string { return "charts" }

// Save implements Sink.
func (s *ChartSink) Save(_ context.Context, r domain.StationReport) error {
	paths, err := render.SaveReport(s.dir, r)
	if err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	if len(paths) == 0 {
		s.logger.Warn("not enough data to draw any chart", "station", r.Station.Code)
	}
	s.logger.Debug("charts written", "station", r.Station.Code, "files", len(paths))
	return nil
}
