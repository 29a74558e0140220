package geomet

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// runTTL bounds how long a capabilities lookup is reused across stations.
const runTTL = 10 * time.Minute

// Source adapts Client to domain.ForecastSource for one layer. The newest
// run is looked up once and shared by every station until it expires.
type Source struct {
	client   *Client
	layer    string
	variable domain.Variable
	clock    clockwork.Clock

	mu      sync.Mutex
	run     ForecastRun
	fetched time.Time
}

// NewSource creates a forecast source for layer, labelling the series with
// variable.
func NewSource(client *Client, layer string, variable domain.Variable, clock clockwork.Clock) *Source {
	return &Source{client: client, layer: layer, variable: variable, clock: clock}
}

// Forecast implements domain.ForecastSource.
func (s *Source) Forecast(ctx context.Context, station domain.Station) (domain.Series, error) {
	run, err := s.currentRun(ctx)
	if err != nil {
		return domain.Series{}, err
	}
	return s.client.Forecast(ctx, station, run, s.variable)
}

func (s *Source) currentRun(ctx context.Context) (ForecastRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !s.run.Empty() && now.Sub(s.fetched) < runTTL {
		return s.run, nil
	}
	run, err := s.client.ForecastRun(ctx, s.layer)
	if err != nil {
		return ForecastRun{}, err
	}
	s.run, s.fetched = run, now
	return run, nil
}
