package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("station skipped", "station", "05BH004")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "station skipped", entry["msg"])
	assert.Equal(t, "05BH004", entry["station"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "TEXT")
	logger.Debug("fetching", "collection", "hydrometric-realtime")
	assert.Contains(t, buf.String(), "collection=hydrometric-realtime")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()
	m.StationsFailed.WithLabelValues("extract").Inc()
	m.ExceedanceLabels.WithLabelValues("5-year").Add(3)

	assert.InDelta(t, 1, testutil.ToFloat64(m.StationsFailed.WithLabelValues("extract")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.ExceedanceLabels.WithLabelValues("5-year")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.StationsProcessed), 0)
}
