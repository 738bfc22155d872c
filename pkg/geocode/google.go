package geocode

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/routemap/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googleMatch struct {
	FormattedAddress string `json:"formatted_address"`
	PartialMatch     bool   `json:"partial_match"`
	Geometry         struct {
		Location     googleLatLng `json:"location"`
		LocationType string       `json:"location_type"`
	} `json:"geometry"`
}

type googleReply struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []googleMatch `json:"results"`
}

// googleQuality maps location_type onto Result.Quality.
var googleQuality = map[string]string{
	"ROOFTOP":            "rooftop",
	"RANGE_INTERPOLATED": "range",
	"GEOMETRIC_CENTER":   "centroid",
}

func googleLocationTypeToQuality(locType string) string {
	if q, ok := googleQuality[strings.ToUpper(locType)]; ok {
		return q
	}
	return "approximate"
}

// err turns a non-OK status into ErrNotFound, a transient error the retry
// loop backs off on, or a permanent failure.
func (r *googleReply) err() error {
	switch r.Status {
	case "OK":
		if len(r.Results) == 0 {
			return ErrNotFound
		}
		return nil
	case "ZERO_RESULTS":
		return ErrNotFound
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return resilience.NewTransientError(eris.Errorf("geocode: google status %s", r.Status), 0)
	}
	if r.ErrorMessage != "" {
		return eris.Errorf("geocode: google status %s: %s", r.Status, r.ErrorMessage)
	}
	return eris.Errorf("geocode: google status %s", r.Status)
}

type google struct {
	opts *options
}

// Name implements Client.
func (g *google) Name() string { return BackendGoogle }

// Geocode implements Client against the Google Geocoding API. Google reports
// quota and lookup failures in a 200 body, so the status is checked inside
// the retry loop.
func (g *google) Geocode(ctx context.Context, address string) (*Result, error) {
	q := normalizeAddress(address)
	if q == "" {
		return nil, ErrNotFound
	}
	reqURL := g.opts.googleURL + "?" + url.Values{"address": {q}, "key": {g.opts.googleKey}}.Encode()

	var reply googleReply
	err := resilience.Do(ctx, g.opts.retry, func(ctx context.Context) error {
		reply = googleReply{}
		if err := fetchJSON(ctx, g.opts, "google", reqURL, &reply); err != nil {
			return err
		}
		return reply.err()
	})
	if err != nil {
		return nil, err
	}

	best := reply.Results[0]
	quality := googleLocationTypeToQuality(best.Geometry.LocationType)
	if best.PartialMatch {
		quality = "approximate"
	}
	return &Result{
		Latitude:    best.Geometry.Location.Lat,
		Longitude:   best.Geometry.Location.Lng,
		Source:      BackendGoogle,
		Quality:     quality,
		DisplayName: best.FormattedAddress,
	}, nil
}
