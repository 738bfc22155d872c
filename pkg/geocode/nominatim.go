package geocode

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

// nominatimPlace is one element of the Nominatim search response. Nominatim
// encodes coordinates as strings.
type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Class       string  `json:"class"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

type nominatim struct {
	opts *options
}

// Name implements Client.
func (n *nominatim) Name() string { return BackendNominatim }

// Geocode implements Client using the OpenStreetMap Nominatim search API.
func (n *nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	q := normalizeAddress(address)
	if q == "" {
		return nil, ErrNotFound
	}

	params := url.Values{
		"q":      {q},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}

	var places []nominatimPlace
	if err := getJSON(ctx, n.opts, "nominatim", n.opts.nominatimURL+"?"+params.Encode(), &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, ErrNotFound
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lat")
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lon")
	}

	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		Source:      BackendNominatim,
		Quality:     nominatimQuality(p.Class, p.Type),
		DisplayName: p.DisplayName,
	}, nil
}

// nominatimQuality maps the OSM feature class/type to our quality taxonomy.
func nominatimQuality(class, typ string) string {
	switch {
	case class == "building" || typ == "house":
		return "rooftop"
	case class == "highway":
		return "range"
	case class == "place" || class == "boundary":
		return "centroid"
	default:
		return "approximate"
	}
}
