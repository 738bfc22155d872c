// Package render keeps an in-memory picture of the map: markers, clusters,
// the fitted viewport and any diagnostic replacing the map.
package render

import (
	"sort"
	"sync"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/selection"
)

// Default viewport used to choose the fit zoom.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Selector answers whether a record is the selected one.
type Selector interface {
	IsSelected(id model.RecordID) bool
}

// Scene implements selection.Layer and the panel's diagnostic surface.
type Scene struct {
	mu        sync.RWMutex
	selector  Selector
	markers   map[model.RecordID]selection.Marker
	bounds    *geom.Bounds
	focus     *model.RecordID
	problem   string
	sessions  int
	width     int
	height    int
	listeners []func()
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{
		markers: make(map[model.RecordID]selection.Marker),
		width:   DefaultWidth,
		height:  DefaultHeight,
	}
}

// Bind sets the selection accessor used when drawing clusters.
func (s *Scene) Bind(sel Selector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selector = sel
}

// OnChange registers fn to run after every visible change. fn may run while
// the selection registry is locked, so it must not block or read the scene
// synchronously.
func (s *Scene) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Scene) changed() {
	s.mu.RLock()
	ls := append([]func(){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range ls {
		fn()
	}
}

// Reset implements selection.Layer. Each reset starts a new map session.
func (s *Scene) Reset() error {
	s.mu.Lock()
	s.markers = make(map[model.RecordID]selection.Marker)
	s.bounds = nil
	s.focus = nil
	s.problem = ""
	s.sessions++
	s.mu.Unlock()
	s.changed()
	return nil
}

// AddMarker implements selection.Layer.
func (s *Scene) AddMarker(m *selection.Marker) {
	s.mu.Lock()
	s.markers[m.ID] = *m
	s.mu.Unlock()
}

// SetStyle implements selection.Layer.
func (s *Scene) SetStyle(m *selection.Marker) {
	s.mu.Lock()
	if _, ok := s.markers[m.ID]; ok {
		s.markers[m.ID] = *m
	}
	s.mu.Unlock()
}

// RefreshClusters implements selection.Layer. Cluster icons are derived on
// every View, so only listeners need to hear about it.
func (s *Scene) RefreshClusters(...*selection.Marker) {
	s.changed()
}

// EnsureVisible implements selection.Layer.
func (s *Scene) EnsureVisible(m *selection.Marker) {
	s.mu.Lock()
	id := m.ID
	s.focus = &id
	s.mu.Unlock()
	s.changed()
}

// FitBounds implements selection.Layer.
func (s *Scene) FitBounds(b *geom.Bounds) {
	s.mu.Lock()
	s.bounds = b.Clone()
	s.mu.Unlock()
	s.changed()
}

// Clear implements selection.Layer.
func (s *Scene) Clear() {
	s.mu.Lock()
	s.markers = make(map[model.RecordID]selection.Marker)
	s.focus = nil
	s.mu.Unlock()
	s.changed()
}

// ShowProblem replaces the map with a diagnostic message.
func (s *Scene) ShowProblem(msg string) {
	s.mu.Lock()
	s.problem = msg
	s.mu.Unlock()
	s.changed()
}

// ClearProblem removes the diagnostic message.
func (s *Scene) ClearProblem() {
	s.mu.Lock()
	s.problem = ""
	s.mu.Unlock()
	s.changed()
}

// Problem returns the current diagnostic, or "".
func (s *Scene) Problem() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.problem
}

// Viewport is the map position chosen by the last FitBounds.
type Viewport struct {
	BBox []float64 `json:"bbox"` // minLng, minLat, maxLng, maxLat
	Zoom int       `json:"zoom"`
}

// View is a point-in-time rendering of the scene.
type View struct {
	Session  int                        `json:"session"`
	Problem  string                     `json:"problem,omitempty"`
	Markers  *geojson.FeatureCollection `json:"markers"`
	Clusters []Cluster                  `json:"clusters"`
	Viewport *Viewport                  `json:"viewport,omitempty"`
	Focus    *model.RecordID            `json:"focus,omitempty"`
	Panes    map[string]int             `json:"panes"`
}

// View renders the scene at zoom. A negative zoom uses the fitted zoom.
// The selector is queried after the scene lock is released so View never
// holds it while waiting on the registry.
func (s *Scene) View(zoom int) View {
	s.mu.RLock()
	selector := s.selector
	markers := s.sortedMarkers()
	v := View{
		Session: s.sessions,
		Problem: s.problem,
		Panes:   selection.PaneZIndex,
		Focus:   s.focus,
	}
	if s.bounds != nil && !s.bounds.IsEmpty() {
		b := s.bounds
		v.Viewport = &Viewport{
			BBox: []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)},
			Zoom: fitZoom(b.Min(0), b.Min(1), b.Max(0), b.Max(1), s.width, s.height),
		}
	}
	s.mu.RUnlock()

	styles := make(map[model.RecordID]bool, len(markers))
	for _, m := range markers {
		styles[m.ID] = m.Selected()
	}
	isSelected := func(id model.RecordID) bool {
		if selector != nil {
			return selector.IsSelected(id)
		}
		return styles[id]
	}

	if zoom < 0 {
		zoom = MaxFitZoom
		if v.Viewport != nil {
			zoom = v.Viewport.Zoom
		}
	}
	v.Markers = featureCollection(markers, isSelected)
	v.Clusters, _ = clusterMarkers(markers, zoom, isSelected)
	if v.Clusters == nil {
		v.Clusters = []Cluster{}
	}
	return v
}

func (s *Scene) sortedMarkers() []selection.Marker {
	out := make([]selection.Marker, 0, len(s.markers))
	for _, m := range s.markers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func featureCollection(markers []selection.Marker, isSelected func(model.RecordID) bool) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(markers))}
	for _, m := range markers {
		sel := isSelected(m.ID)
		pane := selection.PaneOther
		if sel {
			pane = selection.PaneSelected
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       m.ID.String(),
			Geometry: m.Point,
			Properties: map[string]any{
				"name":     m.Name,
				"selected": sel,
				"pane":     pane,
			},
		})
	}
	return fc
}
