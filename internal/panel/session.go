// Package panel ties the pieces of one map panel together: it reacts to host
// pushes, chooses between single and multi record display, drives the
// selection registry and offers record snapshots to the scan scheduler.
package panel

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/scan"
	"github.com/sells-group/routemap/internal/selection"
	"github.com/sells-group/routemap/pkg/routing"
)

// Diagnostics shown in place of the map.
const (
	ProblemNoData         = "No data found yet"
	ProblemMissingColumns = "Table does not yet have all expected columns: Name, Longitude, Latitude. " +
		"You can map custom columns in the Creator Panel."
)

// Surface shows or hides a diagnostic in place of the map.
type Surface interface {
	ShowProblem(msg string)
	ClearProblem()
}

// OptionStore persists panel options.
type OptionStore interface {
	SetOption(ctx context.Context, key string, value any) error
	Options(ctx context.Context) (map[string]any, error)
}

// RouteStore persists route summaries. Optional.
type RouteStore interface {
	SaveRoute(ctx context.Context, tableID string, id model.RecordID, s routing.Summary) error
}

// HostNotifier receives the column contract once per session.
type HostNotifier interface {
	Ready(ctx context.Context, contract model.Contract) error
}

// Scanner is the part of scan.Scheduler the session drives.
type Scanner interface {
	Offer(ctx context.Context, b scan.Batch, canWrite bool) bool
}

// Deps are the collaborators of a Session. Store, Routes and Notifier may be nil.
type Deps struct {
	Registry *selection.Registry
	Surface  Surface
	Scanner  Scanner
	Store    OptionStore
	Routes   RouteStore
	Notifier HostNotifier
	Columns  *model.ColumnRegistry
}

// Session is the state of one panel for its lifetime. All host pushes and
// local actions go through it; it is safe for concurrent use.
type Session struct {
	id   string
	ctx  context.Context
	deps Deps

	readyOnce sync.Once
	readyErr  error

	mu          sync.Mutex
	opts        model.Options
	canWrite    bool
	tableID     string
	lastRecord  *model.Record
	lastRecords []model.Record
	rendered    []model.Record
	routes      map[model.RecordID]routing.Summary
}

// New creates a session. ctx bounds background scans and should live as
// long as the session.
func New(ctx context.Context, deps Deps, opts model.Options) *Session {
	if deps.Columns == nil {
		deps.Columns = model.DefaultColumns()
	}
	if opts.Mode == "" {
		opts.Mode = model.ModeMulti
	}
	if opts.MapSource == "" {
		opts.MapSource = model.DefaultMapSource
	}
	if opts.MapCopyright == "" {
		opts.MapCopyright = model.DefaultMapCopyright
	}
	return &Session{
		id:       uuid.New().String(),
		ctx:      ctx,
		deps:     deps,
		opts:     opts,
		canWrite: true,
		routes:   make(map[model.RecordID]routing.Summary),
	}
}

// ID identifies the session in logs and event streams.
func (s *Session) ID() string { return s.id }

// Ready loads persisted options and sends the column contract to the host.
// Only the first call has any effect.
func (s *Session) Ready(ctx context.Context) error {
	s.readyOnce.Do(func() {
		if s.deps.Store != nil {
			stored, err := s.deps.Store.Options(ctx)
			if err != nil {
				s.readyErr = eris.Wrap(err, "panel: load options")
				return
			}
			s.mu.Lock()
			s.opts = s.opts.Merge(stored)
			s.mu.Unlock()
		}
		if s.deps.Notifier != nil {
			if err := s.deps.Notifier.Ready(ctx, s.deps.Columns.Contract()); err != nil {
				s.readyErr = eris.Wrap(err, "panel: announce columns")
				return
			}
		}
		zap.L().Info("panel: ready", zap.String("session_id", s.id), zap.String("mode", string(s.Options().Mode)))
	})
	return s.readyErr
}

// Contract returns the declared column contract.
func (s *Session) Contract() model.Contract {
	return s.deps.Columns.Contract()
}

// OnRecord handles the host moving its cursor to raw. In single mode the
// record becomes the only one shown; in multi mode its marker is selected.
// A push identical to the record already shown does not redraw.
func (s *Session) OnRecord(ctx context.Context, raw model.Record, declared model.FieldMapping) {
	mapped := model.MapColumns(raw, declared)

	s.mu.Lock()
	prev := s.lastRecord
	s.lastRecord = &mapped

	if s.opts.Mode == model.ModeSingle {
		duplicate := prev != nil && prev.ID == mapped.ID && s.deps.Registry.IsSelected(mapped.ID) &&
			reflect.DeepEqual(prev.Fields, mapped.Fields)
		if !duplicate {
			s.deps.Registry.Remember(mapped.ID)
			s.updateMap([]model.Record{mapped})
		}
	}
	batch := s.batch(model.DefaultMapping(raw, declared))
	canWrite := s.canWrite
	mode := s.opts.Mode
	s.mu.Unlock()

	if mode != model.ModeSingle {
		if _, ok := s.deps.Registry.Select(ctx, mapped.ID); ok {
			s.deps.Registry.Focus(mapped.ID)
		}
	}
	s.offer(batch, canWrite)
}

// OnRecords handles a new record set for tableID. Outside single mode the
// set is drawn and the remembered record stays selected.
func (s *Session) OnRecords(_ context.Context, tableID string, raw []model.Record, declared model.FieldMapping) {
	mapped := model.MapRecords(raw, declared)

	s.mu.Lock()
	if tableID != "" {
		s.tableID = tableID
	}
	s.lastRecords = mapped
	if s.opts.Mode == model.ModeSingle {
		s.mu.Unlock()
		return
	}

	if s.lastRecord != nil {
		s.deps.Registry.Remember(s.lastRecord.ID)
	}
	s.updateMap(mapped)

	var sample model.Record
	if len(raw) > 0 {
		sample = raw[0]
	}
	batch := s.batch(model.DefaultMapping(sample, declared))
	canWrite := s.canWrite
	s.mu.Unlock()

	s.offer(batch, canWrite)
}

// OnNewRecord clears every marker: the host is inserting a record that has
// no position yet. The selected id is kept for the next push.
func (s *Session) OnNewRecord() {
	s.deps.Registry.Clear()
}

// OnOptions applies options pushed by the host along with the current
// access level. The view is redrawn only if the mode changed.
func (s *Session) OnOptions(raw map[string]any, access model.Access) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canWrite = access.CanWrite()
	next := s.opts.Merge(raw)
	changed := next.Mode != s.opts.Mode
	s.opts = next
	if changed {
		s.updateMode()
	}
}

// SetMode switches mode from a local action. The option is persisted
// outside the session lock and the mode re-checked once it is held.
func (s *Session) SetMode(ctx context.Context, mode model.DisplayMode) error {
	if _, ok := model.ParseMode(string(mode)); !ok {
		return eris.Errorf("panel: invalid mode %q", mode)
	}
	if s.Options().Mode == mode {
		return nil
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.SetOption(ctx, model.OptionMode, string(mode)); err != nil {
			return eris.Wrap(err, "panel: persist mode")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == s.opts.Mode {
		return nil
	}
	s.opts.Mode = mode
	s.updateMode()
	return nil
}

// SetOption persists a display option from a local action.
func (s *Session) SetOption(ctx context.Context, key string, value string) error {
	if key == model.OptionMode {
		m, ok := model.ParseMode(value)
		if !ok {
			return eris.Errorf("panel: invalid mode %q", value)
		}
		return s.SetMode(ctx, m)
	}
	if key != model.OptionMapSource && key != model.OptionMapCopyright {
		return eris.Errorf("panel: unknown option %q", key)
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.SetOption(ctx, key, value); err != nil {
			return eris.Wrapf(err, "panel: persist %s", key)
		}
	}
	s.mu.Lock()
	s.opts = s.opts.Merge(map[string]any{key: value})
	s.mu.Unlock()
	return nil
}

// SelectMarker handles a click on a marker.
func (s *Session) SelectMarker(ctx context.Context, id model.RecordID) bool {
	_, ok := s.deps.Registry.Select(ctx, id)
	return ok
}

// RecordRoute stores a route summary found by a scan.
func (s *Session) RecordRoute(id model.RecordID, summary routing.Summary) {
	s.mu.Lock()
	s.routes[id] = summary
	tableID := s.tableID
	s.mu.Unlock()

	if s.deps.Routes != nil && tableID != "" {
		if err := s.deps.Routes.SaveRoute(s.ctx, tableID, id, summary); err != nil {
			zap.L().Warn("panel: save route failed", zap.String("record_id", id.String()), zap.Error(err))
		}
	}
}

// Options returns the current options.
func (s *Session) Options() model.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// CanWrite reports whether the last options push granted write access.
func (s *Session) CanWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canWrite
}

// TableID returns the table of the last record set.
func (s *Session) TableID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableID
}

// Routes returns a copy of the route summaries found so far.
func (s *Session) Routes() map[model.RecordID]routing.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.RecordID]routing.Summary, len(s.routes))
	for k, v := range s.routes {
		out[k] = v
	}
	return out
}

// updateMode redraws from the snapshot matching the current mode. s.mu must be held.
func (s *Session) updateMode() {
	if s.opts.Mode == model.ModeSingle {
		if s.lastRecord == nil {
			s.showProblem(ProblemNoData)
			return
		}
		s.deps.Registry.Remember(s.lastRecord.ID)
		s.updateMap([]model.Record{*s.lastRecord})
		return
	}
	s.updateMap(s.lastRecords)
}

// updateMap draws data, or the last drawn snapshot when data is nil. s.mu must be held.
func (s *Session) updateMap(data []model.Record) {
	if data == nil {
		data = s.rendered
	}
	s.rendered = data

	if len(data) == 0 {
		s.showProblem(ProblemNoData)
		return
	}
	first := data[0]
	if !first.Has(model.LongitudeDepart) || !first.Has(model.LatitudeDepart) || !first.Has(model.NameDepart) {
		s.showProblem(ProblemMissingColumns)
		return
	}

	s.deps.Surface.ClearProblem()
	n := s.deps.Registry.Rebuild(data)
	zap.L().Debug("panel: map rebuilt", zap.Int("records", len(data)), zap.Int("markers", n))
}

func (s *Session) showProblem(msg string) {
	s.deps.Registry.Clear()
	s.deps.Surface.ShowProblem(msg)
}

// batch snapshots what the scheduler needs. s.mu must be held.
func (s *Session) batch(m model.FieldMapping) scan.Batch {
	return scan.Batch{
		TableID: s.tableID,
		Records: append([]model.Record(nil), s.rendered...),
		Mapping: m,
	}
}

func (s *Session) offer(b scan.Batch, canWrite bool) {
	if s.deps.Scanner == nil {
		return
	}
	if s.deps.Scanner.Offer(s.ctx, b, canWrite) {
		zap.L().Debug("panel: scan started", zap.String("table_id", b.TableID), zap.Int("records", len(b.Records)))
	}
}

// State is the session part of the view sent to clients.
type State struct {
	SessionID string                             `json:"sessionId"`
	Options   model.Options                      `json:"options"`
	CanWrite  bool                               `json:"canWrite"`
	TableID   string                             `json:"tableId,omitempty"`
	Selected  *model.RecordID                    `json:"selected,omitempty"`
	Routes    map[model.RecordID]routing.Summary `json:"routes"`
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	st := State{
		SessionID: s.id,
		Routes:    s.Routes(),
	}
	s.mu.Lock()
	st.Options = s.opts
	st.CanWrite = s.canWrite
	st.TableID = s.tableID
	s.mu.Unlock()

	if id, ok := s.deps.Registry.Selected(); ok {
		st.Selected = &id
	}
	return st
}
