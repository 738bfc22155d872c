// Package routing fetches driving distance and duration between two points
// from an OSRM-compatible routing service.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/resilience"
)

// DefaultBaseURL is the public OSRM demo server.
const DefaultBaseURL = "https://router.project-osrm.org"

// ErrNoRoute is returned when the service finds no route between the points.
var ErrNoRoute = eris.New("routing: no route found")

// IsServiceFailure reports whether err should count against the routing
// service's circuit breaker. A NoRoute answer is a valid reply.
func IsServiceFailure(err error) bool {
	return !errors.Is(err, ErrNoRoute) && !errors.Is(err, context.Canceled)
}

// BreakerConfig adapts cfg so NoRoute answers do not trip the breaker.
func BreakerConfig(cfg resilience.CircuitBreakerConfig) resilience.CircuitBreakerConfig {
	cfg.IsFailure = IsServiceFailure
	return cfg
}

// Summary is the route information attached to a record.
type Summary struct {
	DistanceKm float64 `json:"distanceKm"`
	Minutes    float64 `json:"minutes"`
}

// Client requests route summaries.
type Client interface {
	Route(ctx context.Context, from, to model.Coordinate) (*Summary, error)
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// Option configures the OSRM client.
type Option func(*osrm)

// WithBaseURL sets a custom base URL (for testing or a self-hosted server).
func WithBaseURL(u string) Option {
	return func(c *osrm) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithProfile sets the routing profile (driving, walking, cycling).
func WithProfile(p string) Option {
	return func(c *osrm) {
		if p != "" {
			c.profile = p
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *osrm) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. Zero or less disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *osrm) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithCircuitBreaker guards requests with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *osrm) {
		c.breaker = cb
	}
}

type osrm struct {
	baseURL string
	profile string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewClient creates an OSRM route client.
func NewClient(opts ...Option) Client {
	c := &osrm{
		baseURL: DefaultBaseURL,
		profile: "driving",
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(1, 1),
		breaker: resilience.NewCircuitBreaker(BreakerConfig(resilience.DefaultCircuitBreakerConfig())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Route implements Client. OSRM takes coordinates as lng,lat.
func (c *osrm) Route(ctx context.Context, from, to model.Coordinate) (*Summary, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "routing: rate limit wait")
		}
	}

	reqURL := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		c.baseURL, c.profile, from.Lng, from.Lat, to.Lng, to.Lat)

	var summary *Summary
	call := func(ctx context.Context) error {
		s, err := c.fetch(ctx, reqURL)
		summary = s
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (c *osrm) fetch(ctx context.Context, reqURL string) (*Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "routing: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "routing: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "routing: read body")
	}

	var out osrmResponse
	// OSRM answers 400 with a JSON code such as NoRoute.
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError("routing", resp)
		}
		return nil, eris.Wrap(jsonErr, "routing: parse response")
	}

	switch {
	case out.Code == "NoRoute" || (out.Code == "Ok" && len(out.Routes) == 0):
		return nil, ErrNoRoute
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Wrapf(resilience.StatusError("routing", resp), "routing: %s %s", out.Code, out.Message)
	case out.Code != "Ok":
		return nil, eris.Errorf("routing: %s %s", out.Code, out.Message)
	}

	r := out.Routes[0]
	return &Summary{
		DistanceKm: r.Distance / 1000,
		Minutes:    r.Duration / 60,
	}, nil
}
