package main

import (
	"net/http"
	"time"

	"github.com/sells-group/routemap/internal/config"
	"github.com/sells-group/routemap/internal/resilience"
	"github.com/sells-group/routemap/internal/scan"
	"github.com/sells-group/routemap/pkg/geocode"
	"github.com/sells-group/routemap/pkg/grist"
	"github.com/sells-group/routemap/pkg/routing"
)

// newGeocoder builds the configured backend once. An unsupported backend
// falls back to the default with a warning.
func newGeocoder(c config.GeocodeConfig, backend string) geocode.Client {
	if backend == "" {
		backend = c.Backend
	}
	return geocode.Select(backend,
		geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(c.TimeoutSecs) * time.Second}),
		geocode.WithUserAgent(c.UserAgent),
		geocode.WithGoogleAPIKey(c.GoogleAPIKey),
		geocode.WithNominatimURL(c.NominatimURL),
		geocode.WithCensusURL(c.CensusURL),
		geocode.WithRetry(resilience.FromRetryConfig("geocode", c.MaxAttempts, 0)),
	)
}

// newRouter returns nil when routing is disabled, so the scheduler skips
// route lookups entirely.
func newRouter(c config.RoutingConfig) scan.Router {
	if !c.Enabled {
		return nil
	}
	return routing.NewClient(
		routing.WithBaseURL(c.BaseURL),
		routing.WithProfile(c.Profile),
		routing.WithRateLimit(c.RateLimit),
		routing.WithCircuitBreaker(resilience.NewCircuitBreaker(routing.BreakerConfig(
			resilience.FromCircuitConfig("routing", c.FailureThreshold, c.ResetTimeoutSecs),
		))),
	)
}

func newGrist(c config.GristConfig) grist.Client {
	return grist.NewClient(c.APIKey, c.DocID,
		grist.WithBaseURL(c.BaseURL),
		grist.WithRetry(resilience.FromRetryConfig("grist", 0, 0)),
	)
}

func scanConfig(c config.ScanConfig) scan.Config {
	return scan.Config{
		WriteDelay:         time.Duration(c.WriteDelayMs) * time.Millisecond,
		RequireGeocodeFlag: c.RequireGeocodeFlag,
	}
}
