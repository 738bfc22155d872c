package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/resilience"
	"github.com/sells-group/routemap/pkg/geocode"
	"github.com/sells-group/routemap/pkg/routing"
)

// DefaultWriteDelay is the pause after each write back to the host.
const DefaultWriteDelay = time.Second

// ErrBusy is returned by Run when another scan holds the slot.
var ErrBusy = eris.New("scan: already running")

// Mutator applies an atomic field update to one host record.
type Mutator interface {
	UpdateRecord(ctx context.Context, tableID string, id model.RecordID, fields map[string]any) error
}

// Router requests route information between two positions.
type Router interface {
	Route(ctx context.Context, from, to model.Coordinate) (*routing.Summary, error)
}

// Batch is one record snapshot offered for scanning. Records are keyed by
// role; Mapping names the columns writes go to.
type Batch struct {
	TableID string
	Records []model.Record
	Mapping model.FieldMapping
}

// Stats summarises a finished pass.
type Stats struct {
	Records  int
	Geocoded int
	Writes   int
	Routes   int
}

// Config controls a Scheduler.
type Config struct {
	// WriteDelay is waited after every successful write. Default: 1s.
	WriteDelay time.Duration

	// RequireGeocodeFlag makes a mapped Geocode role gate geocoding.
	RequireGeocodeFlag bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSleep replaces the delay function, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.sleep = fn
	}
}

// WithRouteHandler registers a callback for every route summary found.
func WithRouteHandler(fn func(id model.RecordID, summary routing.Summary)) Option {
	return func(s *Scheduler) {
		s.onRoute = fn
	}
}

// Scheduler runs at most one scan at a time. A trigger that arrives while a
// scan is running is dropped, not queued; the next host push triggers again.
type Scheduler struct {
	geocoder geocode.Client
	mutator  Mutator
	router   Router
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	onRoute  func(id model.RecordID, summary routing.Summary)

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. router may be nil to skip route lookups.
func NewScheduler(g geocode.Client, m Mutator, r Router, cfg Config, opts ...Option) *Scheduler {
	if cfg.WriteDelay <= 0 {
		cfg.WriteDelay = DefaultWriteDelay
	}
	s := &Scheduler{
		geocoder: g,
		mutator:  m,
		router:   r,
		cfg:      cfg,
		sleep:    resilience.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a scan holds the slot.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Wait blocks until every scan started by Offer has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Offer starts a background scan of b when canWrite is set, b carries a
// table id and records, and no scan is running. It reports whether a scan
// was started. ctx must outlive the scan.
func (s *Scheduler) Offer(ctx context.Context, b Batch, canWrite bool) bool {
	if !canWrite || b.TableID == "" || len(b.Records) == 0 {
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		zap.L().Debug("scan: trigger dropped, scan in progress", zap.String("table_id", b.TableID))
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("scan: panic", zap.String("table_id", b.TableID), zap.Any("panic", r))
			}
		}()

		stats, err := s.pass(ctx, b)
		if err != nil {
			zap.L().Warn("scan: aborted",
				zap.String("table_id", b.TableID),
				zap.Int("writes", stats.Writes),
				zap.Error(err),
			)
			return
		}
		logStats(b.TableID, stats)
	}()
	return true
}

// Run scans b synchronously, holding the same slot Offer uses.
func (s *Scheduler) Run(ctx context.Context, b Batch) (stats Stats, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return Stats{}, ErrBusy
	}
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scan: panic: %v", r)
		}
	}()

	stats, err = s.pass(ctx, b)
	if err == nil {
		logStats(b.TableID, stats)
	}
	return stats, err
}

func logStats(tableID string, st Stats) {
	zap.L().Info("scan: complete",
		zap.String("table_id", tableID),
		zap.Int("records", st.Records),
		zap.Int("geocoded", st.Geocoded),
		zap.Int("writes", st.Writes),
		zap.Int("routes", st.Routes),
	)
}

// pass visits every record once. A geocoder or host failure ends the pass;
// writes already issued stay in place.
func (s *Scheduler) pass(ctx context.Context, b Batch) (Stats, error) {
	var st Stats
	zap.L().Info("scan: start", zap.String("table_id", b.TableID), zap.Int("records", len(b.Records)))

	for _, rec := range b.Records {
		if err := ctx.Err(); err != nil {
			return st, eris.Wrap(err, "scan: cancelled")
		}
		st.Records++

		positions := make([]*model.Coordinate, 0, 2)
		for _, ep := range model.Endpoints() {
			pos, wrote, err := s.resolve(ctx, b, rec, ep)
			if err != nil {
				return st, err
			}
			if wrote {
				st.Geocoded++
				st.Writes++
			}
			positions = append(positions, pos)
		}

		if positions[0] != nil && positions[1] != nil && s.router != nil {
			if s.route(ctx, rec.ID, *positions[0], *positions[1]) {
				st.Routes++
			}
		}
	}
	return st, nil
}

// resolve handles one endpoint and returns the position it ends up with.
func (s *Scheduler) resolve(ctx context.Context, b Batch, rec model.Record, ep model.Endpoint) (*model.Coordinate, bool, error) {
	d := Check(rec, ep, b.Mapping, s.cfg.RequireGeocodeFlag)
	if !d.NeedsGeocode {
		return d.Position, false, nil
	}

	res, err := s.geocoder.Geocode(ctx, d.Address)
	if err != nil {
		return nil, false, eris.Wrapf(err, "scan: geocode %s of record %d", ep.Label, rec.ID)
	}

	fields, err := writeFields(b.Mapping, ep, res, d.Address)
	if err != nil {
		return nil, false, err
	}
	if err := s.mutator.UpdateRecord(ctx, b.TableID, rec.ID, fields); err != nil {
		return nil, false, eris.Wrapf(err, "scan: update record %d", rec.ID)
	}
	zap.L().Debug("scan: coordinates written",
		zap.String("record_id", rec.ID.String()),
		zap.String("endpoint", ep.Label),
		zap.Float64("lat", res.Latitude),
		zap.Float64("lng", res.Longitude),
	)

	if err := s.sleep(ctx, s.cfg.WriteDelay); err != nil {
		return nil, true, eris.Wrap(err, "scan: write delay")
	}
	return &model.Coordinate{Lat: res.Latitude, Lng: res.Longitude}, true, nil
}

// writeFields builds the single update carrying both coordinates and, when
// the cache role is mapped, the address that produced them.
func writeFields(m model.FieldMapping, ep model.Endpoint, res *geocode.Result, address string) (map[string]any, error) {
	lngCol, ok := m.Column(ep.Longitude)
	if !ok {
		return nil, eris.Errorf("scan: %s not mapped", ep.Longitude)
	}
	latCol, ok := m.Column(ep.Latitude)
	if !ok {
		return nil, eris.Errorf("scan: %s not mapped", ep.Latitude)
	}
	fields := map[string]any{
		lngCol: res.Longitude,
		latCol: res.Latitude,
	}
	if col, ok := m.Column(ep.GeocodedAddress); ok {
		fields[col] = address
	}
	return fields, nil
}

// route fetches route information. Failures are logged and never end the pass.
func (s *Scheduler) route(ctx context.Context, id model.RecordID, from, to model.Coordinate) bool {
	summary, err := s.router.Route(ctx, from, to)
	if err != nil {
		zap.L().Warn("scan: route lookup failed", zap.String("record_id", id.String()), zap.Error(err))
		return false
	}
	zap.L().Info("scan: route found",
		zap.String("record_id", id.String()),
		zap.Float64("distance_km", summary.DistanceKm),
		zap.Float64("minutes", summary.Minutes),
	)
	if s.onRoute != nil {
		s.onRoute(id, *summary)
	}
	return true
}
