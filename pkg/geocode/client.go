// Package geocode resolves free-text addresses to coordinates through a
// pluggable backend chosen once at startup.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/routemap/internal/resilience"
)

// ErrNotFound is returned when a backend answers but has no match.
var ErrNotFound = eris.New("geocode: address not found")

// ErrUnknownBackend is returned by New for an unregistered backend name.
var ErrUnknownBackend = eris.New("geocode: unknown backend")

// Backend names accepted by New.
const (
	BackendNominatim = "nominatim"
	BackendCensus    = "census"
	BackendGoogle    = "google"
	BackendCascade   = "cascade"
)

// maxBody bounds a decoded backend response.
const maxBody = 4 << 20

// DefaultBackend is used when no backend is configured or the configured
// one is not supported.
const DefaultBackend = BackendNominatim

// Client geocodes a single free-text address. It neither caches nor rate
// limits; callers pace their own requests.
type Client interface {
	// Name identifies the backend in logs.
	Name() string

	// Geocode returns the best match for address, ErrNotFound when the
	// service has none, or a wrapped transport/service error.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude    float64
	Longitude   float64
	Source      string // backend name
	Quality     string // "rooftop", "range", "centroid", "approximate"
	DisplayName string
}

// Option configures a backend.
type Option func(*options)

type options struct {
	httpClient   *http.Client
	userAgent    string
	googleKey    string
	nominatimURL string
	censusURL    string
	googleURL    string
	retry        resilience.RetryConfig
}

// WithHTTPClient sets a custom HTTP client for backend requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header. Nominatim's usage policy
// requires an identifying agent.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithGoogleAPIKey sets the Google Geocoding API key.
func WithGoogleAPIKey(key string) Option {
	return func(o *options) {
		o.googleKey = key
	}
}

// WithNominatimURL overrides the Nominatim search endpoint.
func WithNominatimURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.nominatimURL = u
		}
	}
}

// WithCensusURL overrides the Census one-line endpoint.
func WithCensusURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.censusURL = u
		}
	}
}

// WithGoogleURL overrides the Google Geocoding endpoint.
func WithGoogleURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.googleURL = u
		}
	}
}

// WithRetry sets the retry policy for transient backend failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

func defaultOptions() *options {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("geocode", "geocode")
	return &options{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    "routemap/1.0",
		nominatimURL: nominatimSearchURL,
		censusURL:    censusOneLineURL,
		googleURL:    googleGeocodeURL,
		retry:        retry,
	}
}

type factory func(o *options) (Client, error)

var backends = map[string]factory{
	BackendNominatim: func(o *options) (Client, error) { return &nominatim{opts: o}, nil },
	BackendCensus:    func(o *options) (Client, error) { return &census{opts: o}, nil },
	BackendGoogle: func(o *options) (Client, error) {
		if o.googleKey == "" {
			return nil, eris.New("geocode: google api key not configured")
		}
		return &google{opts: o}, nil
	},
	BackendCascade: func(o *options) (Client, error) {
		providers := []Client{&nominatim{opts: o}, &census{opts: o}}
		if o.googleKey != "" {
			providers = append(providers, &google{opts: o})
		}
		return NewCascade(providers...), nil
	},
}

// Backends lists the supported backend names in sorted order.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named backend.
func New(name string, opts ...Option) (Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	f, ok := backends[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownBackend, "geocode: %q", name)
	}
	return f(o)
}

// Select builds the named backend, falling back to DefaultBackend with a
// warning when the name is empty, unsupported or cannot be configured.
func Select(name string, opts ...Option) Client {
	if name != "" {
		c, err := New(name, opts...)
		if err == nil {
			zap.L().Info("using geocoder", zap.String("backend", c.Name()))
			return c
		}
		zap.L().Warn("unsupported geocoder, using default",
			zap.String("backend", name),
			zap.String("default", DefaultBackend),
			zap.Error(err),
		)
	}
	c, _ := New(DefaultBackend, opts...)
	return c
}

// normalizeAddress collapses whitespace and applies NFC so the same text
// typed on different systems produces the same query.
func normalizeAddress(address string) string {
	return norm.NFC.String(strings.Join(strings.Fields(address), " "))
}

// getJSON fetches reqURL into out, retrying transient failures.
func getJSON(ctx context.Context, o *options, service, reqURL string, out any) error {
	return resilience.Do(ctx, o.retry, func(ctx context.Context) error {
		return fetchJSON(ctx, o, service, reqURL, out)
	})
}

// fetchJSON is a single GET decoded into out.
func fetchJSON(ctx context.Context, o *options, service, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrapf(err, "geocode: %s build request", service)
	}
	req.Header.Set("User-Agent", o.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "geocode: %s request", service)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return resilience.StatusError("geocode: "+service, resp)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return eris.Wrapf(err, "geocode: %s parse response", service)
	}
	return nil
}
