package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
)

// StationInput is everything fetched for one station in a run.
type StationInput struct {
	Station    domain.Station
	Variable   domain.Variable
	Realtime   domain.Series
	Historical domain.Series
	Forecast   domain.Series
}

// StationTransformer builds a station report: banding from the historical
// record, bias correction of the forecast against realtime, and exceedance
// labels over realtime followed by the corrected forecast.
type StationTransformer struct {
	thresholds domain.ThresholdTable
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewTransformer creates a StationTransformer classifying against thresholds.
func NewTransformer(thresholds domain.ThresholdTable, logger *slog.Logger, metrics *observability.Metrics) *StationTransformer {
	return &StationTransformer{thresholds: thresholds, logger: logger, metrics: metrics}
}

// Transform implements Transformer. A forecast that cannot be corrected is
// left out of the report; a realtime series without any value fails the
// station.
func (t *StationTransformer) Transform(_ context.Context, in StationInput) (domain.StationReport, error) {
	r := domain.NewStationReport(in.Station, in.Variable)
	r.Realtime = in.Realtime.Sorted()
	r.Historical = domain.DailyMean(in.Historical)
	r.Banding = domain.Aggregate(r.Historical)

	if len(r.Realtime.Valid()) == 0 {
		return domain.StationReport{}, fmt.Errorf("station %s: %w", in.Station.Code, domain.ErrNoObservations)
	}

	if !in.Forecast.Empty() {
		corrected, corr, err := domain.BiasCorrect(r.Realtime, in.Forecast)
		switch {
		case errors.Is(err, domain.ErrNoForecast):
			t.logger.Warn("forecast has no values, skipping correction", "station", in.Station.Code)
		case err != nil:
			return domain.StationReport{}, fmt.Errorf("station %s: %w", in.Station.Code, err)
		default:
			r.Forecast = in.Forecast.Sorted()
			r.Corrected = corrected
			r.Correction = &corr
			if corr.Surrogate {
				t.logger.Info("forecast does not overlap observations, anchored on first forecast value",
					"station", in.Station.Code, "anchor", corr.Anchor, "offset", corr.Offset)
			}
		}
	}

	combined := domain.Concat(r.Realtime, r.Corrected)
	labels := domain.Classify(combined.Points, t.thresholds, in.Station.Code)
	r.Labelled = domain.LabelSeries(combined, labels)
	r.Peak = domain.PeakLabel(labels)

	for _, l := range labels {
		if l.Kind == domain.LabelMissing {
			continue
		}
		t.metrics.ExceedanceLabels.WithLabelValues(l.String()).Inc()
	}
	return r, nil
}
