// Package upstream is the shared HTTP transport for ECCC services. Requests
// go through a resty client that retries 429 and 5xx responses, and each
// logical request (retries included) runs inside a circuit breaker so a dead
// upstream fails fast instead of stalling every station.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("upstream unavailable: circuit open")

// StatusError is a non-2xx response that was not retried away.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.URL, e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	Name      string // circuit breaker name, used in logs and errors
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	Username  string
	Password  string
	// BreakerFailures is the number of consecutive failed requests that
	// opens the breaker. Zero means 5.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open. Zero means 30s.
	BreakerCooldown time.Duration
}

// Client performs GET requests with retries and circuit breaking.
type Client struct {
	name    string
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

// New creates a Client.
func New(opts Options) *Client {
	rc := resty.New()
	rc.SetTimeout(opts.Timeout)
	rc.SetRetryCount(opts.Retries)
	rc.SetRetryWaitTime(opts.RetryWait)
	rc.SetRetryMaxWaitTime(8 * opts.RetryWait)
	rc.SetHeader("User-Agent", "hydrometric-etl")
	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})
	if opts.Username != "" {
		rc.SetBasicAuth(opts.Username, opts.Password)
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Client errors and cancellations say nothing about upstream health.
			var se *StatusError
			if errors.As(err, &se) && se.Status < 500 && se.Status != http.StatusTooManyRequests {
				return true
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{name: opts.Name, http: rc, breaker: cb}
}

// Get fetches rawURL with the given query parameters and returns the body of
// a 2xx response.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		r, err := c.http.R().
			SetContext(ctx).
			SetQueryParamsFromValues(params).
			Get(rawURL)
		if err != nil {
			return nil, err
		}
		if r.IsError() {
			return r, &StatusError{URL: rawURL, Status: r.StatusCode(), Body: truncate(r.String(), 256)}
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", c.name, ErrUnavailable)
		}
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}
	return resp.Body(), nil
}

// State reports the breaker state, for readiness and logging.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
