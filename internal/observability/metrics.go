package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydro_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	StationsProcessed prometheus.Counter
	StationsFailed    *prometheus.CounterVec // labels: stage={extract,transform,load}
	PipelineRunning   prometheus.Gauge
	RunDuration       prometheus.Histogram
	LastSuccess       prometheus.Gauge

	// Upstream fetch metrics.
	FetchRequests *prometheus.CounterVec   // labels: source={ogcapi,geomet,csv}, outcome={success,error,empty}
	FetchDuration *prometheus.HistogramVec // labels: source
	SeriesCache   *prometheus.CounterVec   // labels: result={hit,miss}

	// Classification metrics.
	ExceedanceLabels *prometheus.CounterVec // labels: label
	AlertsPublished  prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StationsProcessed,
		m.StationsFailed,
		m.PipelineRunning,
		m.RunDuration,
		m.LastSuccess,
		m.FetchRequests,
		m.FetchDuration,
		m.SeriesCache,
		m.ExceedanceLabels,
		m.AlertsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_processed_total",
			Help:      "Stations that completed a run successfully.",
		}),
		StationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_failed_total",
			Help:      "Stations dropped from a run, by failing stage.",
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete run over all stations.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that produced at least one station.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Series fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Series fetch duration in seconds, pagination included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SeriesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_cache_total",
			Help:      "Historical series cache lookups by result.",
		}, []string{"result"}),
		ExceedanceLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceedance_labels_total",
			Help:      "Classified observations by exceedance label.",
		}, []string{"label"}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Station alerts written to the alert topic.",
		}),
	}
}
