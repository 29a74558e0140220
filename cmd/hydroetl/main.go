// Command hydroetl is the hydrometric ETL service. It fetches realtime and
// historical station series, builds climatology bands, bias-corrects the
// GeoMet forecast, classifies return-period exceedance and writes the
// results to CSV, charts, the archive and the alert topic on a cron
// schedule. RUN_ONCE=true runs a single pass and exits.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydrometric-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/hydrometric-etl/internal/adapter/geomet"
	httpadapter "github.com/couchcryptid/hydrometric-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hydrometric-etl/internal/adapter/kafka"
	"github.com/couchcryptid/hydrometric-etl/internal/adapter/ogcapi"
	"github.com/couchcryptid/hydrometric-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/hydrometric-etl/internal/adapter/upstream"
	"github.com/couchcryptid/hydrometric-etl/internal/config"
	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
	"github.com/couchcryptid/hydrometric-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("hydroetl failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	thresholds, err := loadThresholds(cfg, logger)
	if err != nil {
		return err
	}

	sources := buildSources(ctx, cfg, logger, metrics)

	sinks := []pipeline.Sink{
		pipeline.NewCSVSink(csvstore.NewWriter(cfg.OutputDir), cfg.RealtimeCollection, cfg.HistoricalCollection, logger),
	}
	if cfg.RenderCharts {
		sinks = append(sinks, pipeline.NewChartSink(cfg.OutputDir, logger))
	}

	var archive httpadapter.Archive
	if cfg.ArchiveDB != "" {
		store, err := sqlite.Open(cfg.ArchiveDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("archive close error", "error", err)
			}
		}()
		archive = store
		sinks = append(sinks, store)
		logger.Info("run archive enabled", "path", cfg.ArchiveDB)
	}

	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger, metrics)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks = append(sinks, writer)
		logger.Info("alert publishing enabled", "topic", cfg.KafkaAlertTopic, "min_return_period", cfg.AlertMinReturnPeriod)
	}

	p := pipeline.New(pipeline.Options{
		Stations:             cfg.Stations,
		Variable:             cfg.Variable,
		RealtimeCollection:   cfg.RealtimeCollection,
		HistoricalCollection: cfg.HistoricalCollection,
		RealtimeDays:         cfg.RealtimeDays,
	}, sources, pipeline.NewTransformer(thresholds, logger, metrics), sinks, logger, metrics)

	if cfg.RunOnce {
		return p.RunOnce(ctx)
	}

	sched, err := pipeline.NewScheduler(pipeline.SchedulerOptions{
		Spec:         cfg.Schedule,
		Retries:      2,
		RetryWait:    30 * time.Second,
		MaxRetryWait: 5 * time.Minute,
	}, p, logger)
	if err != nil {
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, archive, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the scheduled pipeline.
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("run still in progress at shutdown deadline")
	}

	logger.Info("shutdown complete")
	return nil
}

func loadThresholds(cfg *config.Config, logger *slog.Logger) (domain.ThresholdTable, error) {
	if cfg.ThresholdsCSV == "" {
		logger.Warn("THRESHOLDS_CSV not set, every value will be labelled below tracked return periods")
		return domain.ThresholdTable{}, nil
	}
	table, err := csvstore.ReadThresholds(cfg.ThresholdsCSV)
	if err != nil {
		return domain.ThresholdTable{}, err
	}
	for _, err := range table.Validate() {
		logger.Warn("threshold table inconsistency", "error", err)
	}
	for _, code := range cfg.Stations {
		if len(table.ForStation(code)) == 0 {
			logger.Warn("no thresholds for station", "station", code)
		}
	}
	logger.Info("thresholds loaded", "path", cfg.ThresholdsCSV, "return_periods", table.ReturnPeriods)
	return table, nil
}

// buildSources wires the OGC API client (or the offline CSV directory) and,
// when enabled, the GeoMet forecast source.
func buildSources(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) pipeline.Sources {
	var sources pipeline.Sources
	if cfg.Offline() {
		src := csvstore.NewOfflineSource(cfg.OfflineDir())
		sources = pipeline.Sources{Realtime: src, Historical: src, Stations: src}
		logger.Info("offline mode", "dir", cfg.OfflineDir())
	} else {
		api := upstream.New(upstream.Options{
			Name:      "ogcapi",
			Timeout:   cfg.APITimeout,
			Retries:   cfg.APIRetries,
			RetryWait: time.Second,
		})
		client := ogcapi.NewClient(cfg.OGCAPIURL, api, cfg.APIPageLimit, cfg.StationsCollection, logger, metrics)
		sources = pipeline.Sources{
			Realtime:   client,
			Historical: ogcapi.NewCachedSource(client, cfg.ResponseCacheSize, metrics),
			Stations:   client,
		}
	}

	if !cfg.GeoMetEnabled {
		logger.Info("geomet forecast disabled")
		return sources
	}
	wms := upstream.New(upstream.Options{
		Name:      "geomet",
		Timeout:   cfg.GeoMetRequestTimeout,
		Retries:   cfg.APIRetries,
		RetryWait: time.Second,
		Username:  cfg.GeoMetUsername,
		Password:  cfg.GeoMetPassword,
	})
	client := geomet.NewClient(geomet.Options{
		BaseURL:        cfg.GeoMetURL,
		Concurrency:    cfg.GeoMetConcurrency,
		RequestTimeout: cfg.GeoMetRequestTimeout,
		UTCOffset:      cfg.ForecastUTCOffset,
	}, wms, logger, metrics)
	sources.Forecast = geomet.NewSource(client, cfg.GeoMetLayer, cfg.Variable, clockwork.NewRealClock())

	if analysis, err := client.AnalysisTime(ctx, cfg.GeoMetLayer); err != nil {
		logger.Warn("geomet capabilities unavailable at startup", "layer", cfg.GeoMetLayer, "error", err)
	} else {
		logger.Info("geomet forecast enabled", "layer", cfg.GeoMetLayer, "analysis_time", analysis)
	}
	return sources
}
