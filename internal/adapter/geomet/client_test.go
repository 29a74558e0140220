package geomet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydrometric-etl/internal/adapter/upstream"
	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
)

var bow = domain.Station{Code: "05BH004", Name: "BOW RIVER AT CALGARY", Lat: 51.05, Lon: -114.05, ModelLat: 51.04, ModelLon: -114.06}

// fakeGeoMet serves capabilities and per-time feature info. Values are keyed
// by the TIME parameter; a missing key returns a 500.
type fakeGeoMet struct {
	t              *testing.T
	values         map[string]string
	capabilityHits atomic.Int32
	infoHits       atomic.Int32
}

func (f *fakeGeoMet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch q.Get("REQUEST") {
	case "GetCapabilities":
		f.capabilityHits.Add(1)
		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, capabilitiesXML)
	case "GetFeatureInfo":
		f.infoHits.Add(1)
		assert.Equal(f.t, testLayer, q.Get("QUERY_LAYERS"))
		assert.Equal(f.t, "application/json", q.Get("INFO_FORMAT"))
		assert.Equal(f.t, "2024-05-02T00:00:00Z", q.Get("DIM_REFERENCE_TIME"))
		v, ok := f.values[q.Get("TIME")]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"value":%s}}]}`, v)
	default:
		http.Error(w, "unknown request", http.StatusBadRequest)
	}
}

func testClient(baseURL string, utcOffset time.Duration) (*Client, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	getter := upstream.New(upstream.Options{Name: "geomet-test", Timeout: 5 * time.Second, BreakerFailures: 100})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(Options{BaseURL: baseURL, Concurrency: 2, RequestTimeout: time.Second, UTCOffset: utcOffset}, getter, logger, metrics), metrics
}

func TestClient_ForecastRun(t *testing.T) {
	fake := &fakeGeoMet{t: t}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, _ := testClient(srv.URL, 0)
	run, err := c.ForecastRun(context.Background(), testLayer)
	require.NoError(t, err)
	assert.Len(t, run.Times, 3)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), run.Reference)

	analysis, err := c.AnalysisTime(context.Background(), testLayer)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), analysis)

	_, err = c.ForecastRun(context.Background(), "NOPE")
	assert.ErrorContains(t, err, "not found")
}

func TestClient_Forecast(t *testing.T) {
	fake := &fakeGeoMet{t: t, values: map[string]string{
		"2024-05-02T00:00:00Z": `10.5`,
		"2024-05-02T03:00:00Z": `"11.25"`,
		"2024-05-02T06:00:00Z": `null`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, metrics := testClient(srv.URL, -7*time.Hour)
	run, err := c.ForecastRun(context.Background(), testLayer)
	require.NoError(t, err)

	s, err := c.Forecast(context.Background(), bow, run, domain.Discharge)
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, bow.Code, s.Station)
	assert.Equal(t, domain.Discharge, s.Variable)
	assert.Equal(t, time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC), s.Points[0].Time)
	assert.Equal(t, time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC), s.Points[1].Time)
	assert.Equal(t, 10.5, *s.Points[0].Value)
	assert.Equal(t, 11.25, *s.Points[1].Value)
	assert.Nil(t, s.Points[2].Value)
	assert.EqualValues(t, 3, fake.infoHits.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.FetchRequests.WithLabelValues("geomet", "success")), 0)
}

func TestClient_Forecast_DropsFailedLeadTimes(t *testing.T) {
	fake := &fakeGeoMet{t: t, values: map[string]string{
		"2024-05-02T00:00:00Z": `1`,
		"2024-05-02T06:00:00Z": `3`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, _ := testClient(srv.URL, 0)
	run, err := c.ForecastRun(context.Background(), testLayer)
	require.NoError(t, err)

	s, err := c.Forecast(context.Background(), bow, run, domain.Discharge)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, s.Valid())
	assert.Equal(t, run.Times[2], s.Points[1].Time)
}

func TestClient_Forecast_AllFail(t *testing.T) {
	fake := &fakeGeoMet{t: t}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, metrics := testClient(srv.URL, 0)
	run, err := c.ForecastRun(context.Background(), testLayer)
	require.NoError(t, err)

	_, err = c.Forecast(context.Background(), bow, run, domain.Discharge)
	require.ErrorIs(t, err, ErrNoLeadTimes)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.FetchRequests.WithLabelValues("geomet", "error")), 0)
}

func TestSource_ReusesRun(t *testing.T) {
	fake := &fakeGeoMet{t: t, values: map[string]string{
		"2024-05-02T00:00:00Z": `1`,
		"2024-05-02T03:00:00Z": `2`,
		"2024-05-02T06:00:00Z": `3`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, _ := testClient(srv.URL, 0)
	clock := clockwork.NewFakeClock()
	src := NewSource(c, testLayer, domain.Discharge, clock)

	_, err := src.Forecast(context.Background(), bow)
	require.NoError(t, err)
	_, err = src.Forecast(context.Background(), bow)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fake.capabilityHits.Load())

	clock.Advance(runTTL + time.Second)
	_, err = src.Forecast(context.Background(), bow)
	require.NoError(t, err)
	assert.EqualValues(t, 2, fake.capabilityHits.Load())
}

func TestFeatureValue(t *testing.T) {
	v, err := featureValue(2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, *v)

	v, err = featureValue(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = featureValue("NaN")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = featureValue("n/a")
	assert.Error(t, err)

	_, err = featureValue(true)
	assert.Error(t, err)
}
