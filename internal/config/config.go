package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Stations []string
	Variable domain.Variable

	// OGC API Features (api.weather.gc.ca). A file:// URL switches to reading
	// CSVs from that directory instead.
	OGCAPIURL            string
	RealtimeCollection   string
	HistoricalCollection string
	StationsCollection   string
	RealtimeDays         int
	APIPageLimit         int
	APITimeout           time.Duration
	APIRetries           int
	ResponseCacheSize    int

	// MSC GeoMet forecast configuration.
	GeoMetEnabled        bool
	GeoMetURL            string
	GeoMetLayer          string
	GeoMetUsername       string
	GeoMetPassword       string
	GeoMetConcurrency    int
	GeoMetRequestTimeout time.Duration
	ForecastUTCOffset    time.Duration

	ThresholdsCSV string
	OutputDir     string
	RenderCharts  bool

	Schedule string
	RunOnce  bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Alert publishing.
	KafkaEnabled         bool
	KafkaBrokers         []string
	KafkaAlertTopic      string
	AlertMinReturnPeriod float64

	ArchiveDB string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	stations := parseList(os.Getenv("STATIONS"))
	if len(stations) == 0 {
		return nil, errors.New("STATIONS is required")
	}

	variable, ok := domain.ParseVariable(sharedcfg.EnvOrDefault("VARIABLE", string(domain.Discharge)))
	if !ok {
		return nil, fmt.Errorf("invalid VARIABLE %q: want DISCHARGE or LEVEL", os.Getenv("VARIABLE"))
	}

	realtimeDays, err := parsePositiveInt("REALTIME_DAYS", 30)
	if err != nil {
		return nil, err
	}
	pageLimit, err := parsePositiveInt("API_PAGE_LIMIT", 10000)
	if err != nil {
		return nil, err
	}
	apiRetries, err := parseNonNegativeInt("API_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("RESPONSE_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	apiTimeout, err := parsePositiveDuration("API_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	geometConcurrency, err := parsePositiveInt("GEOMET_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	geometTimeout, err := parsePositiveDuration("GEOMET_REQUEST_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	utcOffset, err := time.ParseDuration(sharedcfg.EnvOrDefault("FORECAST_UTC_OFFSET", "-7h"))
	if err != nil {
		return nil, errors.New("invalid FORECAST_UTC_OFFSET")
	}

	minReturnPeriod, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("ALERT_MIN_RETURN_PERIOD", "2"), 64)
	if err != nil || minReturnPeriod <= 0 {
		return nil, errors.New("invalid ALERT_MIN_RETURN_PERIOD")
	}

	cfg := &Config{
		Stations:             stations,
		Variable:             variable,
		OGCAPIURL:            strings.TrimRight(sharedcfg.EnvOrDefault("OGC_API_URL", "https://api.weather.gc.ca"), "/"),
		RealtimeCollection:   sharedcfg.EnvOrDefault("REALTIME_COLLECTION", "hydrometric-realtime"),
		HistoricalCollection: sharedcfg.EnvOrDefault("HISTORICAL_COLLECTION", "hydrometric-daily-mean"),
		StationsCollection:   sharedcfg.EnvOrDefault("STATIONS_COLLECTION", "hydrometric-stations"),
		RealtimeDays:         realtimeDays,
		APIPageLimit:         pageLimit,
		APITimeout:           apiTimeout,
		APIRetries:           apiRetries,
		ResponseCacheSize:    cacheSize,

		GeoMetEnabled:        parseBool("GEOMET_ENABLED", false),
		GeoMetURL:            sharedcfg.EnvOrDefault("GEOMET_URL", "https://geo.weather.gc.ca/geomet"),
		GeoMetLayer:          sharedcfg.EnvOrDefault("GEOMET_LAYER", "DHPS_1km_RiverDischarge"),
		GeoMetUsername:       os.Getenv("GEOMET_USERNAME"),
		GeoMetPassword:       os.Getenv("GEOMET_PASSWORD"),
		GeoMetConcurrency:    geometConcurrency,
		GeoMetRequestTimeout: geometTimeout,
		ForecastUTCOffset:    utcOffset,

		ThresholdsCSV: os.Getenv("THRESHOLDS_CSV"),
		OutputDir:     sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		RenderCharts:  parseBool("RENDER_CHARTS", true),

		Schedule: sharedcfg.EnvOrDefault("SCHEDULE", "0 * * * *"),
		RunOnce:  parseBool("RUN_ONCE", false),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:         parseBool("KAFKA_ENABLED", false),
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic:      sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "hydrometric-alerts"),
		AlertMinReturnPeriod: minReturnPeriod,

		ArchiveDB: os.Getenv("ARCHIVE_DB"),
	}

	if cfg.GeoMetUsername != "" && cfg.GeoMetPassword == "" {
		return nil, errors.New("GEOMET_USERNAME is set but GEOMET_PASSWORD is not")
	}
	if !cfg.RunOnce {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("invalid SCHEDULE %q: %w", cfg.Schedule, err)
		}
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaAlertTopic == "" {
			return nil, errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

// Offline reports whether series are read from local CSVs instead of the API.
func (c *Config) Offline() bool {
	return strings.HasPrefix(c.OGCAPIURL, "file://")
}

// OfflineDir returns the directory behind a file:// OGC_API_URL.
func (c *Config) OfflineDir() string {
	return strings.TrimPrefix(c.OGCAPIURL, "file://")
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func parseBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, s)
	}
	return n, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be zero or more", key, s)
	}
	return n, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, s)
	}
	return d, nil
}
