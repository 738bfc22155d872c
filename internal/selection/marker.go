// Package selection keeps the mapping from record id to on-screen marker and
// tracks which marker is selected.
package selection

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/routemap/internal/model"
)

// Panes a marker can be drawn in, with their stacking order.
const (
	PaneSelected = "selectedMarker"
	PaneClusters = "clusters"
	PaneOther    = "otherMarkers"
)

// PaneZIndex keeps cluster icons above ordinary markers and the selected
// marker above both.
var PaneZIndex = map[string]int{
	PaneSelected: 620,
	PaneClusters: 610,
	PaneOther:    600,
}

// NullIslandTolerance is the distance from (0,0) under which both
// coordinates must fall for a point to be rejected as a bad import.
const NullIslandTolerance = 0.01

// Style is the visual state of a marker.
type Style int

const (
	StyleDefault Style = iota
	StyleSelected
)

func (s Style) String() string {
	if s == StyleSelected {
		return "selected"
	}
	return "default"
}

// Marker is the rendered form of one record.
type Marker struct {
	ID    model.RecordID
	Name  string
	Point *geom.Point // XY = lng, lat
	Style Style
	Pane  string
}

// Position returns the marker location.
func (m *Marker) Position() model.Coordinate {
	return model.Coordinate{Lat: m.Point.Y(), Lng: m.Point.X()}
}

// Selected reports whether the marker carries the selected style.
func (m *Marker) Selected() bool {
	return m.Style == StyleSelected
}

func (m *Marker) setStyle(s Style) {
	m.Style = s
	if s == StyleSelected {
		m.Pane = PaneSelected
	} else {
		m.Pane = PaneOther
	}
}

// NewMarker builds the marker for a role-keyed record from its departure
// position. It returns false when the record has no renderable position:
// the position is still being resolved, missing, or within
// NullIslandTolerance of (0,0).
func NewMarker(rec model.Record) (*Marker, bool) {
	if rec.String(model.LongitudeDepart) == model.InProgress {
		return nil, false
	}
	lng, ok := rec.Float(model.LongitudeDepart)
	if !ok {
		return nil, false
	}
	lat, ok := rec.Float(model.LatitudeDepart)
	if !ok {
		return nil, false
	}
	if !Renderable(lat, lng) {
		return nil, false
	}

	m := &Marker{
		ID:    rec.ID,
		Name:  rec.String(model.NameDepart),
		Point: geom.NewPointFlat(geom.XY, []float64{lng, lat}),
	}
	m.setStyle(StyleDefault)
	return m, true
}

// Renderable rejects points near (0,0), which usually come from bad
// imports or failed geocoding.
func Renderable(lat, lng float64) bool {
	return !(math.Abs(lat) < NullIslandTolerance && math.Abs(lng) < NullIslandTolerance)
}
