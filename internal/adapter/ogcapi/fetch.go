package ogcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// ErrNoData is returned by FetchAll when no station has data.
var ErrNoData = errors.New("no station returned data")

// FetchAll runs q for every station in order. Stations whose fetch fails or
// returns no rows are dropped with a warning; the returned slice lists the
// survivors in input order. A context error aborts the loop.
func FetchAll(ctx context.Context, src domain.SeriesSource, q domain.SeriesQuery, stations []string, logger *slog.Logger) (map[string]domain.Series, []string, error) {
	out := make(map[string]domain.Series, len(stations))
	survivors := make([]string, 0, len(stations))

	for _, code := range stations {
		sq := q
		sq.Station = code
		s, err := src.Series(ctx, sq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("series fetch failed, dropping station",
				"station", code, "collection", q.Collection, "variable", q.Variable, "error", err)
			continue
		}
		if s.Empty() {
			logger.Warn("station has no data for the chosen period, dropping station",
				"station", code, "collection", q.Collection, "variable", q.Variable)
			continue
		}
		out[code] = s
		survivors = append(survivors, code)
	}

	if len(survivors) == 0 {
		return nil, nil, fmt.Errorf("no %s data returned from %s: %w", q.Variable, q.Collection, ErrNoData)
	}
	return out, survivors, nil
}
