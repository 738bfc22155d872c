// Package scan decides which record coordinates are stale and resolves them
// through a geocoder, writing results back to the host one record at a time.
package scan

import (
	"github.com/sells-group/routemap/internal/model"
)

// Decision is the outcome of checking one endpoint of one record.
type Decision struct {
	// Invalidated is set when the cached address differs from the current
	// one, so any coordinates on the record no longer apply.
	Invalidated bool

	// NeedsGeocode is set when Address must be resolved to coordinates.
	NeedsGeocode bool

	// Address is the current address text.
	Address string

	// Position is the usable position on the record, nil when the
	// coordinates are absent, unparsable or invalidated.
	Position *model.Coordinate
}

// Check decides whether the coordinates of ep on rec must be recomputed.
// rec is keyed by role. The cache comparison only happens when the
// GeocodedAddress role is mapped; without it a record is geocoded once, when
// its coordinates are empty, and never refreshed. When requireFlag is set and
// the Geocode role is mapped, a falsy flag suppresses geocoding.
func Check(rec model.Record, ep model.Endpoint, m model.FieldMapping, requireFlag bool) Decision {
	d := Decision{Address: rec.String(ep.Address)}

	hasCoords := rec.Truthy(ep.Longitude)
	if m.Has(ep.GeocodedAddress) {
		if cached := rec.String(ep.GeocodedAddress); cached != "" && cached != d.Address {
			d.Invalidated = true
			hasCoords = false
		}
	}

	if hasCoords {
		lat, okLat := rec.Float(ep.Latitude)
		lng, okLng := rec.Float(ep.Longitude)
		if okLat && okLng {
			d.Position = &model.Coordinate{Lat: lat, Lng: lng}
		}
		return d
	}

	if d.Address == "" {
		return d
	}
	if requireFlag && m.Has(ep.Geocode) && !rec.Truthy(ep.Geocode) {
		return d
	}
	d.NeedsGeocode = true
	return d
}
