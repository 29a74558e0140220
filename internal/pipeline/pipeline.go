package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydrometric-etl/internal/adapter/ogcapi"
	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
)

// ErrNoUsableStations is returned when a run finishes without a single
// station making it through every stage.
var ErrNoUsableStations = errors.New("no usable stations")

// Transformer turns the fetched series of one station into a report.
type Transformer interface {
	Transform(ctx context.Context, in StationInput) (domain.StationReport, error)
}

// Sink persists or publishes a finished report.
type Sink interface {
	Name() string
	Save(ctx context.Context, r domain.StationReport) error
}

// Sources groups the read ports of a run. Stations and Forecast are optional.
type Sources struct {
	Realtime   domain.SeriesSource
	Historical domain.SeriesSource
	Stations   domain.StationSource
	Forecast   domain.ForecastSource
}

// Options selects what a run fetches.
type Options struct {
	Stations             []string
	Variable             domain.Variable
	RealtimeCollection   string
	HistoricalCollection string
	RealtimeDays         int
	Clock                clockwork.Clock
}

// Pipeline fetches, transforms and loads every configured station once per
// run.
type Pipeline struct {
	opts        Options
	sources     Sources
	transformer Transformer
	sinks       []Sink
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	ready       atomic.Bool
}

// New creates a Pipeline.
func New(opts Options, sources Sources, t Transformer, sinks []Sink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		opts:        opts,
		sources:     sources,
		transformer: t,
		sinks:       sinks,
		logger:      logger,
		metrics:     metrics,
		clock:       clock,
	}
}

// Ready reports whether at least one run has succeeded.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// CheckReadiness implements the HTTP readiness checker.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.ready.Load() {
		return nil
	}
	return errors.New("no successful run yet")
}

// RunOnce processes every configured station. Stations that fail a stage are
// dropped with a warning; the run fails only when none survive or the
// context is cancelled.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	start := p.clock.Now()
	p.metrics.PipelineRunning.Set(1)
	defer func() {
		p.metrics.PipelineRunning.Set(0)
		p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	}()

	realtime, historical, codes, err := p.extract(ctx, start.UTC())
	if err != nil {
		return err
	}
	stations := p.resolveStations(ctx, codes)

	var ok int
	for _, st := range stations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		in := StationInput{
			Station:    st,
			Variable:   p.opts.Variable,
			Realtime:   realtime[st.Code],
			Historical: historical[st.Code],
			Forecast:   p.forecast(ctx, st),
		}
		if p.processStation(ctx, in) {
			ok++
		}
	}

	if ok == 0 {
		return fmt.Errorf("run over %d stations: %w", len(stations), ErrNoUsableStations)
	}
	p.ready.Store(true)
	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	p.logger.Info("run complete", "stations", ok, "dropped", len(p.opts.Stations)-ok, "duration", p.clock.Since(start))
	return nil
}

// extract fetches the realtime window and the historical record. Stations
// missing either are dropped.
func (p *Pipeline) extract(ctx context.Context, now time.Time) (map[string]domain.Series, map[string]domain.Series, []string, error) {
	rtQuery := domain.SeriesQuery{
		Collection: p.opts.RealtimeCollection,
		Variable:   p.opts.Variable,
		Start:      now.AddDate(0, 0, -p.opts.RealtimeDays),
		End:        now,
	}
	realtime, codes, err := ogcapi.FetchAll(ctx, p.sources.Realtime, rtQuery, p.opts.Stations, p.logger)
	if err != nil {
		p.metrics.StationsFailed.WithLabelValues("extract").Add(float64(len(p.opts.Stations)))
		return nil, nil, nil, fmt.Errorf("fetch realtime: %w", err)
	}
	p.metrics.StationsFailed.WithLabelValues("extract").Add(float64(len(p.opts.Stations) - len(codes)))

	histQuery := domain.SeriesQuery{Collection: p.opts.HistoricalCollection, Variable: p.opts.Variable}
	historical, survivors, err := ogcapi.FetchAll(ctx, p.sources.Historical, histQuery, codes, p.logger)
	if err != nil {
		p.metrics.StationsFailed.WithLabelValues("extract").Add(float64(len(codes)))
		return nil, nil, nil, fmt.Errorf("fetch historical: %w", err)
	}
	p.metrics.StationsFailed.WithLabelValues("extract").Add(float64(len(codes) - len(survivors)))
	return realtime, historical, survivors, nil
}

// resolveStations looks up station metadata, falling back to bare codes for
// stations the lookup does not know or when it fails.
func (p *Pipeline) resolveStations(ctx context.Context, codes []string) []domain.Station {
	known := map[string]domain.Station{}
	if p.sources.Stations != nil {
		found, err := p.sources.Stations.Stations(ctx, codes)
		if err != nil {
			p.logger.Warn("station lookup failed, continuing without metadata", "error", err)
		}
		for _, st := range found {
			known[st.Code] = st
		}
	}

	out := make([]domain.Station, 0, len(codes))
	for _, code := range codes {
		st, ok := known[code]
		if !ok {
			st = domain.Station{Code: code}
		}
		out = append(out, st)
	}
	return out
}

// forecast returns the station's forecast, or an empty series when no
// forecast source is configured or the fetch fails.
func (p *Pipeline) forecast(ctx context.Context, st domain.Station) domain.Series {
	if p.sources.Forecast == nil {
		return domain.Series{}
	}
	s, err := p.sources.Forecast.Forecast(ctx, st)
	if err != nil {
		p.logger.Warn("forecast fetch failed, continuing without forecast", "station", st.Code, "error", err)
		return domain.Series{}
	}
	return s
}

// processStation transforms one station and hands the report to every sink.
// Sink failures are logged and counted; the station only counts as
// successful when every sink accepted it.
func (p *Pipeline) processStation(ctx context.Context, in StationInput) bool {
	report, err := p.transformer.Transform(ctx, in)
	if err != nil {
		p.logger.Warn("transform failed, dropping station", "station", in.Station.Code, "error", err)
		p.metrics.StationsFailed.WithLabelValues("transform").Inc()
		return false
	}

	failed := false
	for _, sink := range p.sinks {
		if err := sink.Save(ctx, report); err != nil {
			p.logger.Error("sink failed", "station", in.Station.Code, "sink", sink.Name(), "error", err)
			failed = true
		}
	}
	if failed {
		p.metrics.StationsFailed.WithLabelValues("load").Inc()
		return false
	}

	p.metrics.StationsProcessed.Inc()
	p.logger.Debug("station processed", "station", in.Station.Code, "peak", report.Peak.String())
	return true
}
