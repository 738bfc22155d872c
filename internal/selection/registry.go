package selection

import (
	"context"
	"sort"
	"sync"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/routemap/internal/model"
)

// Layer is the map library boundary. Calls are made with the registry
// locked, so implementations must not call back into the Registry.
type Layer interface {
	// Reset tears down the previous rendering before a rebuild.
	Reset() error
	AddMarker(m *Marker)
	SetStyle(m *Marker)
	// RefreshClusters redraws the cluster icons containing the markers.
	RefreshClusters(ms ...*Marker)
	// EnsureVisible zooms far enough that m is not hidden in a cluster.
	EnsureVisible(m *Marker)
	FitBounds(b *geom.Bounds)
	// Clear removes every marker without a rebuild.
	Clear()
}

// CursorSink moves the host's cursor to a record. Calls are advisory.
type CursorSink interface {
	SetCursor(ctx context.Context, id model.RecordID) error
}

// Registry maps record ids to markers and owns the current selection. The
// selected id may outlive its marker; it applies again on the next rebuild.
type Registry struct {
	layer  Layer
	cursor CursorSink

	mu          sync.RWMutex
	markers     map[model.RecordID]*Marker
	selected    model.RecordID
	hasSelected bool
}

// NewRegistry creates a Registry drawing on layer. cursor may be nil.
func NewRegistry(layer Layer, cursor CursorSink) *Registry {
	return &Registry{
		layer:   layer,
		cursor:  cursor,
		markers: make(map[model.RecordID]*Marker),
	}
}

// Rebuild discards every marker and creates new ones from records, skipping
// records without a renderable position. It returns the number of markers.
func (r *Registry) Rebuild(records []model.Record) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.layer.Reset(); err != nil {
		zap.L().Warn("selection: layer reset failed", zap.Error(err))
	}

	r.markers = make(map[model.RecordID]*Marker, len(records))
	bounds := geom.NewBounds(geom.XY)
	for _, rec := range records {
		m, ok := NewMarker(rec)
		if !ok {
			continue
		}
		if r.hasSelected && m.ID == r.selected {
			m.setStyle(StyleSelected)
		}
		r.markers[m.ID] = m
		r.layer.AddMarker(m)
		bounds.Extend(m.Point)
	}

	if len(r.markers) > 0 {
		r.layer.FitBounds(bounds)
	}
	if m := r.selectedMarker(); m != nil {
		r.layer.EnsureVisible(m)
	}
	return len(r.markers)
}

// Select makes id the selected marker and tells the host cursor. Selecting
// the already selected id does nothing. An id without a marker returns
// false and leaves the selection untouched.
func (r *Registry) Select(ctx context.Context, id model.RecordID) (Marker, bool) {
	r.mu.Lock()
	m, ok := r.markers[id]
	if !ok {
		r.mu.Unlock()
		return Marker{}, false
	}
	if r.hasSelected && r.selected == id {
		out := *m
		r.mu.Unlock()
		return out, true
	}

	refresh := []*Marker{m}
	if prev := r.selectedMarker(); prev != nil {
		prev.setStyle(StyleDefault)
		r.layer.SetStyle(prev)
		refresh = append([]*Marker{prev}, refresh...)
	}
	m.setStyle(StyleSelected)
	r.layer.SetStyle(m)
	r.selected, r.hasSelected = id, true
	r.layer.RefreshClusters(refresh...)
	out := *m
	r.mu.Unlock()

	r.propagate(ctx, id)
	return out, true
}

// Focus brings the marker for id into view, zooming past any cluster
// hiding it. It reports whether id has a marker.
func (r *Registry) Focus(id model.RecordID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markers[id]
	if !ok {
		return false
	}
	r.layer.EnsureVisible(m)
	return true
}

// propagate is fire-and-forget: the host cursor is advisory, so a failure
// is logged and dropped.
func (r *Registry) propagate(ctx context.Context, id model.RecordID) {
	if r.cursor == nil {
		return
	}
	if err := r.cursor.SetCursor(ctx, id); err != nil {
		zap.L().Debug("selection: cursor update rejected", zap.String("record_id", id.String()), zap.Error(err))
	}
}

// Remember sets the selected id without touching any marker. The next
// Rebuild styles the matching marker as selected.
func (r *Registry) Remember(id model.RecordID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected, r.hasSelected = id, true
}

// Selected returns the selected id, whether or not it has a marker.
func (r *Registry) Selected() (model.RecordID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected, r.hasSelected
}

// IsSelected reports whether id is the selected record.
func (r *Registry) IsSelected(id model.RecordID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasSelected && r.selected == id
}

// Marker returns a copy of the marker for id.
func (r *Registry) Marker(id model.RecordID) (Marker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markers[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// Markers returns copies of the current markers ordered by id.
func (r *Registry) Markers() []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Marker, 0, len(r.markers))
	for _, m := range r.markers {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear removes every marker. The selected id is kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers = make(map[model.RecordID]*Marker)
	r.layer.Clear()
}

func (r *Registry) selectedMarker() *Marker {
	if !r.hasSelected {
		return nil
	}
	return r.markers[r.selected]
}
