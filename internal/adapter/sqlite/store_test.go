package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

var t0 = time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)

func report(code string, at time.Time, peak domain.Label) domain.StationReport {
	r := domain.StationReport{
		Station:     domain.Station{Code: code, Name: "BOW RIVER AT CALGARY"},
		Variable:    domain.Discharge,
		Peak:        peak,
		GeneratedAt: at,
	}
	r.Realtime = domain.Series{Station: code, Variable: domain.Discharge, Points: []domain.Observation{
		{Time: at.Add(-time.Hour), Value: domain.Float(212.5)},
	}}
	return r
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveAndLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, report("05BH004", t0, domain.Label{Kind: domain.LabelFloor, ReturnPeriod: 2})))
	require.NoError(t, s.Save(ctx, report("05BH004", t0.Add(time.Hour), domain.Label{Kind: domain.LabelExceeds, ReturnPeriod: 5})))

	got, err := s.Latest(ctx, "05BH004")
	require.NoError(t, err)
	assert.Equal(t, "05BH004", got.Station)
	assert.Equal(t, domain.Label{Kind: domain.LabelExceeds, ReturnPeriod: 5}, got.PeakLabel)
	assert.True(t, t0.Add(time.Hour).Equal(got.GeneratedAt))
	require.NotNil(t, got.LatestValue)
	assert.InDelta(t, 212.5, *got.LatestValue, 1e-9)
}

func TestStore_Latest_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Latest(context.Background(), "05BH004")
	require.ErrorIs(t, err, domain.ErrNotArchived)
}

func TestStore_SaveReplacesSameRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, report("05BH004", t0, domain.Label{Kind: domain.LabelFloor, ReturnPeriod: 2})))
	require.NoError(t, s.Save(ctx, report("05BH004", t0, domain.Label{Kind: domain.LabelExceeds, ReturnPeriod: 10})))

	hist, err := s.History(ctx, "05BH004", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "10-year", hist[0].PeakLabel.String())
}

func TestStore_HistoryAndStations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, s.Save(ctx, report("05BH004", t0.Add(time.Duration(i)*time.Hour), domain.Label{Kind: domain.LabelMissing})))
	}
	require.NoError(t, s.Save(ctx, report("05BB001", t0, domain.Label{Kind: domain.LabelMissing})))

	hist, err := s.History(ctx, "05BH004", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].GeneratedAt.After(hist[1].GeneratedAt), "newest first")

	codes, err := s.Stations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"05BB001", "05BH004"}, codes)
	assert.Equal(t, "archive", s.Name())
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Save(context.Background(), report("05BH004", t0, domain.Label{Kind: domain.LabelMissing})))
	_, err = s.Latest(context.Background(), "05BH004")
	require.NoError(t, err)
}
