package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t1.Add(time.Hour)
	t3 = t2.Add(time.Hour)
)

func series(points ...Observation) Series {
	return Series{Station: testStation, Variable: Discharge, Points: points}
}

func at(t time.Time, v float64) Observation { return Observation{Time: t, Value: Float(v)} }

func values(s Series) []*float64 {
	out := make([]*float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

func TestBiasCorrect_LastOverlap(t *testing.T) {
	observed := series(at(t0, 10), at(t1, 12))
	forecast := series(at(t0, 8), at(t1, 9), at(t2, 11))

	got, corr, err := BiasCorrect(observed, forecast)
	require.NoError(t, err)

	assert.Equal(t, t1, corr.Anchor)
	assert.Equal(t, 12.0, corr.Observed)
	assert.Equal(t, 9.0, corr.Forecast)
	assert.Equal(t, 3.0, corr.Offset)
	assert.False(t, corr.Surrogate)
	assert.Equal(t, []*float64{Float(11), Float(12), Float(14)}, values(got))
	assert.Equal(t, []time.Time{t0, t1, t2}, []time.Time{got.Points[0].Time, got.Points[1].Time, got.Points[2].Time})

	// Inputs untouched.
	assert.Equal(t, 8.0, *forecast.Points[0].Value)
	assert.Equal(t, 12.0, *observed.Points[1].Value)
}

func TestBiasCorrect_NaNIsMissing(t *testing.T) {
	observed := series(at(t0, 10), at(t1, 12))
	forecast := series(at(t0, 8), at(t1, math.NaN()), at(t2, 11))

	got, corr, err := BiasCorrect(observed, forecast)
	require.NoError(t, err)

	assert.Equal(t, t0, corr.Anchor, "NaN forecast at t1 cannot anchor")
	assert.Equal(t, 2.0, corr.Offset)
	assert.Equal(t, []*float64{Float(10), nil, Float(13)}, values(got))

	labels := Classify(got.Points, testThresholds(), testStation)
	assert.Equal(t, LabelMissing, labels[1].Kind)
	assert.NotEqual(t, LabelMissing, labels[2].Kind)
}

func TestBiasCorrect_NaNSurrogate(t *testing.T) {
	observed := series(at(t0, 10), at(t1, math.NaN()))
	forecast := series(at(t2, math.NaN()), at(t3, 7))

	got, corr, err := BiasCorrect(observed, forecast)
	require.NoError(t, err)
	assert.True(t, corr.Surrogate)
	assert.Equal(t, t0, corr.Anchor)
	assert.Equal(t, 3.0, corr.Offset)
	assert.Equal(t, []*float64{nil, Float(10)}, values(got))

	_, _, err = BiasCorrect(series(at(t0, math.NaN())), forecast)
	assert.ErrorIs(t, err, ErrNoObservations)
	_, _, err = BiasCorrect(observed, series(at(t2, math.NaN())))
	assert.ErrorIs(t, err, ErrNoForecast)
}

func TestBiasCorrect_SortsInputs(t *testing.T) {
	observed := series(at(t1, 12), at(t0, 10))
	forecast := series(at(t2, 11), at(t0, 8), at(t1, 9))

	got, corr, err := BiasCorrect(observed, forecast)
	require.NoError(t, err)
	assert.Equal(t, t1, corr.Anchor)
	assert.Equal(t, []*float64{Float(11), Float(12), Float(14)}, values(got))
}

func TestBiasCorrect_NoOverlapUsesSurrogate(t *testing.T) {
	observed := series(at(t0, 10), at(t1, 12))
	forecast := series(at(t2, 20), at(t3, 25))

	got, corr, err := BiasCorrect(observed, forecast)
	require.NoError(t, err)
	assert.True(t, corr.Surrogate)
	assert.Equal(t, t1, corr.Anchor)
	assert.Equal(t, 20.0, corr.Forecast)
	assert.Equal(t, -8.0, corr.Offset)
	assert.Equal(t, []*float64{Float(12), Float(17)}, values(got))
}

func TestBiasCorrect_OverlapNeedsValuesOnBothSides(t *testing.T) {
	observed := series(at(t0, 10), Observation{Time: t1})
	forecast := series(at(t0, 8), at(t1, 9))

	got, corr, err := BiasCorrect(observed, forecast)
	require.NoError(t, err)
	assert.Equal(t, t0, corr.Anchor)
	assert.Equal(t, 2.0, corr.Offset)
	assert.Equal(t, []*float64{Float(10), Float(11)}, values(got))
}

func TestBiasCorrect_KeepsMissingForecastValues(t *testing.T) {
	observed := series(at(t0, 10))
	forecast := series(at(t0, 7), Observation{Time: t1}, at(t2, 9))

	got, _, err := BiasCorrect(observed, forecast)
	require.NoError(t, err)
	require.Len(t, got.Points, 3)
	assert.Nil(t, got.Points[1].Value)
	assert.Equal(t, 12.0, *got.Points[2].Value)
}

func TestBiasCorrect_Errors(t *testing.T) {
	t.Run("empty observed", func(t *testing.T) {
		_, _, err := BiasCorrect(series(), series(at(t0, 1)))
		require.ErrorIs(t, err, ErrNoObservations)
	})

	t.Run("observed all missing", func(t *testing.T) {
		_, _, err := BiasCorrect(series(Observation{Time: t0}), series(at(t0, 1)))
		require.ErrorIs(t, err, ErrNoObservations)
	})

	t.Run("empty forecast", func(t *testing.T) {
		_, _, err := BiasCorrect(series(at(t0, 1)), series())
		require.ErrorIs(t, err, ErrNoForecast)
	})
}
