// Package ogcapi reads hydrometric collections from an OGC API Features
// endpoint such as https://api.weather.gc.ca.
package ogcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
)

// Getter performs one HTTP GET and returns the response body.
type Getter interface {
	Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error)
}

// FeatureCollection is a GeoJSON items response.
type FeatureCollection struct {
	Type           string    `json:"type"`
	Features       []Feature `json:"features"`
	NumberMatched  *int      `json:"numberMatched,omitempty"`
	NumberReturned *int      `json:"numberReturned,omitempty"`
}

// Feature is one GeoJSON feature.
type Feature struct {
	ID         any            `json:"id"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry is a GeoJSON point; Coordinates are [lon, lat].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Client implements domain.SeriesSource and domain.StationSource.
type Client struct {
	baseURL            string
	http               Getter
	pageLimit          int
	stationsCollection string
	logger             *slog.Logger
	metrics            *observability.Metrics
}

// NewClient creates an OGC API Features client. pageLimit is the number of
// items requested per page.
func NewClient(baseURL string, getter Getter, pageLimit int, stationsCollection string, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:            strings.TrimRight(baseURL, "/"),
		http:               getter,
		pageLimit:          pageLimit,
		stationsCollection: stationsCollection,
		logger:             logger,
		metrics:            metrics,
	}
}

// Items returns every feature of a collection matching params, following
// limit/offset pages until a short page is returned.
func (c *Client) Items(ctx context.Context, collection string, params url.Values) ([]Feature, error) {
	u := fmt.Sprintf("%s/collections/%s/items", c.baseURL, url.PathEscape(collection))

	var all []Feature
	for offset := 0; ; {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("f", "json")
		q.Set("limit", strconv.Itoa(c.pageLimit))
		q.Set("offset", strconv.Itoa(offset))

		body, err := c.http.Get(ctx, u, q)
		if err != nil {
			return nil, fmt.Errorf("collection %s items: %w", collection, err)
		}

		var fc FeatureCollection
		if err := json.Unmarshal(body, &fc); err != nil {
			return nil, fmt.Errorf("decode collection %s items: %w", collection, err)
		}
		all = append(all, fc.Features...)

		returned := len(fc.Features)
		if fc.NumberReturned != nil {
			returned = *fc.NumberReturned
		}
		if returned < c.pageLimit || len(fc.Features) == 0 {
			return all, nil
		}
		offset += returned
		c.logger.Debug("fetching next page", "collection", collection, "offset", offset)
	}
}

// Series fetches one station's variable. Rows are sorted by time; a null
// value becomes a missing observation.
func (c *Client) Series(ctx context.Context, q domain.SeriesQuery) (domain.Series, error) {
	start := time.Now()
	defer func() {
		c.metrics.FetchDuration.WithLabelValues("ogcapi").Observe(time.Since(start).Seconds())
	}()

	params := url.Values{"STATION_NUMBER": {q.Station}}
	if iv := q.Interval(); iv != "" {
		params.Set("datetime", iv)
	}

	features, err := c.Items(ctx, q.Collection, params)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("ogcapi", "error").Inc()
		return domain.Series{}, err
	}

	s, err := FeaturesToSeries(features, q.Station, q.Variable)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("ogcapi", "error").Inc()
		return domain.Series{}, fmt.Errorf("collection %s station %s: %w", q.Collection, q.Station, err)
	}
	outcome := "success"
	if s.Empty() {
		outcome = "empty"
	}
	c.metrics.FetchRequests.WithLabelValues("ogcapi", outcome).Inc()
	return s, nil
}

// Stations looks up name and coordinates for each code. Codes the
// collection does not know are skipped with a warning.
func (c *Client) Stations(ctx context.Context, codes []string) ([]domain.Station, error) {
	stations := make([]domain.Station, 0, len(codes))
	for _, code := range codes {
		features, err := c.Items(ctx, c.stationsCollection, url.Values{"STATION_NUMBER": {code}})
		if err != nil {
			return nil, err
		}
		if len(features) == 0 {
			c.logger.Warn("station not found", "station", code, "collection", c.stationsCollection)
			continue
		}
		stations = append(stations, featureToStation(features[0], code))
	}
	return stations, nil
}

// FeaturesToSeries converts features carrying a DATETIME or DATE property
// into a time-sorted series of the variable.
func FeaturesToSeries(features []Feature, station string, variable domain.Variable) (domain.Series, error) {
	s := domain.Series{Station: station, Variable: variable}
	for _, f := range features {
		ts, err := featureTime(f.Properties)
		if err != nil {
			return domain.Series{}, err
		}
		obs := domain.Observation{Time: ts}
		if v, ok := f.Properties[string(variable)].(float64); ok {
			obs.Value = domain.Float(v)
		}
		s.Points = append(s.Points, obs)
	}
	return s.Sorted(), nil
}

func featureTime(props map[string]any) (time.Time, error) {
	if raw, ok := props["DATETIME"].(string); ok {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse DATETIME %q: %w", raw, err)
		}
		return t.UTC(), nil
	}
	if raw, ok := props["DATE"].(string); ok {
		t, err := time.Parse(time.DateOnly, raw[:min(len(raw), len(time.DateOnly))])
		if err != nil {
			return time.Time{}, fmt.Errorf("parse DATE %q: %w", raw, err)
		}
		return t, nil
	}
	return time.Time{}, errors.New("feature has neither DATETIME nor DATE")
}

func featureToStation(f Feature, code string) domain.Station {
	st := domain.Station{Code: code}
	if name, ok := f.Properties["STATION_NAME"].(string); ok {
		st.Name = name
	}
	if f.Geometry != nil && len(f.Geometry.Coordinates) >= 2 {
		st.Lon, st.Lat = f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
	}
	st.ModelLat, st.ModelLon = st.Lat, st.Lon
	return st
}
