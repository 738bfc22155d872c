package model

// Role is a logical field name, e.g. "LongitudeDepart". The host may store
// it under a differently named column; FieldMapping resolves that.
type Role = string

// Departure roles.
const (
	NameDepart            Role = "NameDepart"
	LongitudeDepart       Role = "LongitudeDepart"
	LatitudeDepart        Role = "LatitudeDepart"
	GeocodeDepart         Role = "GeocodeDepart"
	AddressDepart         Role = "AddressDepart"
	GeocodedAddressDepart Role = "GeocodedAddressDepart"
)

// Arrival roles.
const (
	NameArrivee            Role = "NameArrivee"
	LongitudeArrivee       Role = "LongitudeArrivee"
	LatitudeArrivee        Role = "LatitudeArrivee"
	GeocodeArrivee         Role = "GeocodeArrivee"
	AddressArrivee         Role = "AddressArrivee"
	GeocodedAddressArrivee Role = "GeocodedAddressArrivee"
)

// Endpoint groups the roles describing one end of a route.
type Endpoint struct {
	Label           string
	Name            Role
	Longitude       Role
	Latitude        Role
	Geocode         Role
	Address         Role
	GeocodedAddress Role
}

// Departure is the route origin. Markers are placed at its position.
var Departure = Endpoint{
	Label:           "departure",
	Name:            NameDepart,
	Longitude:       LongitudeDepart,
	Latitude:        LatitudeDepart,
	Geocode:         GeocodeDepart,
	Address:         AddressDepart,
	GeocodedAddress: GeocodedAddressDepart,
}

// Arrival is the route destination.
var Arrival = Endpoint{
	Label:           "arrival",
	Name:            NameArrivee,
	Longitude:       LongitudeArrivee,
	Latitude:        LatitudeArrivee,
	Geocode:         GeocodeArrivee,
	Address:         AddressArrivee,
	GeocodedAddress: GeocodedAddressArrivee,
}

// Endpoints returns departure then arrival, the order scans visit them in.
func Endpoints() []Endpoint {
	return []Endpoint{Departure, Arrival}
}

// Required returns the roles a table must provide for this endpoint.
func (e Endpoint) Required() []Role {
	return []Role{e.Name, e.Longitude, e.Latitude}
}

// Optional returns the roles that enable geocoding for this endpoint.
func (e Endpoint) Optional() []Role {
	return []Role{e.Geocode, e.Address, e.GeocodedAddress}
}
