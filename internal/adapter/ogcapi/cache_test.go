package ogcapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
)

// --- mock for cache tests ---

type countingSource struct {
	calls  int
	series domain.Series
	err    error
}

func (m *countingSource) Series(_ context.Context, q domain.SeriesQuery) (domain.Series, error) {
	m.calls++
	s := m.series.Clone()
	s.Station = q.Station
	return s, m.err
}

func historical() domain.Series {
	return domain.Series{Variable: domain.Discharge, Points: []domain.Observation{
		{Time: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Value: domain.Float(5)},
	}}
}

// --- CachedSource tests ---

func TestCachedSource_Hit(t *testing.T) {
	inner := &countingSource{series: historical()}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedSource(inner, 10, metrics)
	q := domain.SeriesQuery{Collection: "hydrometric-daily-mean", Station: testStation, Variable: domain.Discharge}

	s1, err := cached.Series(context.Background(), q)
	require.NoError(t, err)
	s2, err := cached.Series(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SeriesCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SeriesCache.WithLabelValues("miss")), 0)
}

func TestCachedSource_ReturnsCopies(t *testing.T) {
	inner := &countingSource{series: historical()}
	cached := NewCachedSource(inner, 10, observability.NewMetricsForTesting())
	q := domain.SeriesQuery{Collection: "c", Station: testStation, Variable: domain.Discharge}

	s1, _ := cached.Series(context.Background(), q)
	*s1.Points[0].Value = -1
	s2, _ := cached.Series(context.Background(), q)
	assert.Equal(t, 5.0, *s2.Points[0].Value)
}

func TestCachedSource_DifferentKeysMiss(t *testing.T) {
	inner := &countingSource{series: historical()}
	cached := NewCachedSource(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Series(context.Background(), domain.SeriesQuery{Collection: "c", Station: "A", Variable: domain.Discharge})
	_, _ = cached.Series(context.Background(), domain.SeriesQuery{Collection: "c", Station: "B", Variable: domain.Discharge})
	_, _ = cached.Series(context.Background(), domain.SeriesQuery{Collection: "c", Station: "A", Variable: domain.Level})

	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 3, cached.Len())
}

func TestCachedSource_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingSource{}
	cached := NewCachedSource(inner, 10, observability.NewMetricsForTesting())
	q := domain.SeriesQuery{Collection: "c", Station: testStation, Variable: domain.Discharge}

	_, _ = cached.Series(context.Background(), q)
	_, _ = cached.Series(context.Background(), q)
	assert.Equal(t, 2, inner.calls)

	inner.series, inner.err = historical(), errors.New("boom")
	_, err := cached.Series(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, 0, cached.Len())
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache[string](3)

	c.put("a", "A")
	c.put("b", "B")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.put("c", "C") // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.get("a")
	c.put("c", "C")

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A1")
	c.put("a", "A2")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result)
	assert.Equal(t, 1, c.len())
}
