package geocode

import (
	"context"
	"net/url"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark  = "Public_AR_Current"
)

type censusReply struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

type census struct {
	opts *options
}

// Name implements Client.
func (c *census) Name() string { return BackendCensus }

// Geocode implements Client against the US Census one-line locator. The
// service only knows US addresses; anything else comes back unmatched.
func (c *census) Geocode(ctx context.Context, address string) (*Result, error) {
	q := normalizeAddress(address)
	if q == "" {
		return nil, ErrNotFound
	}
	reqURL := c.opts.censusURL + "?" + url.Values{
		"address":   {q},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}.Encode()

	var reply censusReply
	if err := getJSON(ctx, c.opts, "census", reqURL, &reply); err != nil {
		return nil, err
	}
	matches := reply.Result.AddressMatches
	if len(matches) == 0 {
		return nil, ErrNotFound
	}

	// Positions are interpolated along the matched street segment.
	return &Result{
		Latitude:    matches[0].Coordinates.Y,
		Longitude:   matches[0].Coordinates.X,
		Source:      BackendCensus,
		Quality:     "range",
		DisplayName: matches[0].MatchedAddress,
	}, nil
}
