// Package geomet reads model forecasts from MSC GeoMet WMS layers. Run
// metadata comes from GetCapabilities; station values come from one
// GetFeatureInfo request per lead time, fanned out with a bounded errgroup.
package geomet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
)

// ErrNoLeadTimes is returned when every lead time of a forecast failed.
var ErrNoLeadTimes = errors.New("no forecast lead time could be retrieved")

const isoFormat = "2006-01-02T15:04:05Z"

// Getter performs one HTTP GET and returns the response body.
type Getter interface {
	Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error)
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	Concurrency    int
	RequestTimeout time.Duration
	// UTCOffset shifts every forecast timestamp, e.g. -7h for Mountain
	// Standard Time.
	UTCOffset time.Duration
}

// Client talks to a GeoMet WMS endpoint.
type Client struct {
	baseURL        string
	http           Getter
	concurrency    int
	requestTimeout time.Duration
	utcOffset      time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// NewClient creates a GeoMet client.
func NewClient(opts Options, getter Getter, logger *slog.Logger, metrics *observability.Metrics) *Client {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{
		baseURL:        opts.BaseURL,
		http:           getter,
		concurrency:    concurrency,
		requestTimeout: opts.RequestTimeout,
		utcOffset:      opts.UTCOffset,
		logger:         logger,
		metrics:        metrics,
	}
}

func (c *Client) capabilities(ctx context.Context, layer string) (wmsLayer, error) {
	body, err := c.http.Get(ctx, c.baseURL, url.Values{
		"SERVICE": {"WMS"},
		"VERSION": {"1.3.0"},
		"REQUEST": {"GetCapabilities"},
		"LAYERS":  {layer},
	})
	if err != nil {
		return wmsLayer{}, fmt.Errorf("geomet capabilities for %s: %w", layer, err)
	}
	caps, err := parseCapabilities(body)
	if err != nil {
		return wmsLayer{}, err
	}
	l, ok := caps.layer(layer)
	if !ok {
		return wmsLayer{}, fmt.Errorf("layer %s not found in capabilities", layer)
	}
	return l, nil
}

// ForecastRun returns the newest reference time of a layer and the lead
// times it provides.
func (c *Client) ForecastRun(ctx context.Context, layer string) (ForecastRun, error) {
	l, err := c.capabilities(ctx, layer)
	if err != nil {
		return ForecastRun{}, err
	}
	return runFromLayer(l)
}

// AnalysisTime returns the first valid time of the newest analysis of a
// layer.
func (c *Client) AnalysisTime(ctx context.Context, layer string) (time.Time, error) {
	run, err := c.ForecastRun(ctx, layer)
	if err != nil {
		return time.Time{}, err
	}
	return run.Times[0], nil
}

// Forecast retrieves the value at the station's model coordinates for every
// lead time of run. Lead times that fail are logged and left out; the call
// fails only when all of them do. Timestamps are shifted by the configured
// UTC offset and returned in lead-time order.
func (c *Client) Forecast(ctx context.Context, station domain.Station, run ForecastRun, variable domain.Variable) (domain.Series, error) {
	start := time.Now()
	defer func() {
		c.metrics.FetchDuration.WithLabelValues("geomet").Observe(time.Since(start).Seconds())
	}()

	values := make([]*float64, len(run.Times))
	ok := make([]bool, len(run.Times))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, leadTime := range run.Times {
		g.Go(func() error {
			v, err := c.featureInfo(gCtx, run, station, leadTime)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				// A failed lead time does not cancel the others.
				c.logger.Warn("forecast lead time failed",
					"station", station.Code, "layer", run.Layer, "time", leadTime, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			values[i], ok[i] = v, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.metrics.FetchRequests.WithLabelValues("geomet", "error").Inc()
		return domain.Series{}, err
	}

	if failed == len(run.Times) {
		c.metrics.FetchRequests.WithLabelValues("geomet", "error").Inc()
		return domain.Series{}, fmt.Errorf("station %s layer %s: %w", station.Code, run.Layer, ErrNoLeadTimes)
	}

	s := domain.Series{Station: station.Code, Variable: variable}
	for i, t := range run.Times {
		if !ok[i] {
			continue
		}
		s.Points = append(s.Points, domain.Observation{Time: t.Add(c.utcOffset), Value: values[i]})
	}
	c.metrics.FetchRequests.WithLabelValues("geomet", "success").Inc()
	return s, nil
}

// featureInfoResponse is the JSON GetFeatureInfo body.
type featureInfoResponse struct {
	Features []struct {
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

// bboxHalfWidth is the half-size in degrees of the 3x3 pixel query window
// centred on the station.
const bboxHalfWidth = 0.01

func (c *Client) featureInfo(ctx context.Context, run ForecastRun, station domain.Station, leadTime time.Time) (*float64, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	lat, lon := station.ModelLat, station.ModelLon
	params := url.Values{
		"SERVICE":      {"WMS"},
		"VERSION":      {"1.3.0"},
		"REQUEST":      {"GetFeatureInfo"},
		"LAYERS":       {run.Layer},
		"QUERY_LAYERS": {run.Layer},
		"CRS":          {"EPSG:4326"},
		"WIDTH":        {"3"},
		"HEIGHT":       {"3"},
		"I":            {"1"},
		"J":            {"1"},
		"INFO_FORMAT":  {"application/json"},
		"TIME":         {leadTime.UTC().Format(isoFormat)},
	}
	// WMS 1.3.0 EPSG:4326 axis order is lat,lon.
	params.Set("BBOX", fmt.Sprintf("%f,%f,%f,%f", lat-bboxHalfWidth, lon-bboxHalfWidth, lat+bboxHalfWidth, lon+bboxHalfWidth))
	if !run.Reference.IsZero() {
		params.Set("DIM_REFERENCE_TIME", run.Reference.UTC().Format(isoFormat))
	}

	c.logger.Debug("querying lead time", "layer", run.Layer, "reference", run.Reference, "time", leadTime)
	body, err := c.http.Get(ctx, c.baseURL, params)
	if err != nil {
		return nil, err
	}

	var resp featureInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode feature info: %w", err)
	}
	if len(resp.Features) == 0 {
		return nil, nil
	}
	return featureValue(resp.Features[0].Properties["value"])
}

// featureValue accepts the numeric or string encodings GeoMet uses for a
// pixel value. A null or NaN value is a missing observation.
func featureValue(raw any) (*float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		return domain.Float(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse feature value %q: %w", v, err)
		}
		if math.IsNaN(f) {
			return nil, nil
		}
		return domain.Float(f), nil
	default:
		return nil, fmt.Errorf("unexpected feature value type %T", raw)
	}
}
