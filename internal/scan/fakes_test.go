package scan

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/pkg/geocode"
	"github.com/sells-group/routemap/pkg/routing"
)

// journal records the order of side effects across fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeGeocoder struct {
	results map[string]geocode.Result
	errs    map[string]error
	block   chan struct{}
	panics  bool
	j       *journal

	mu    sync.Mutex
	calls []string
}

func (f *fakeGeocoder) Name() string { return "fake" }

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (*geocode.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, address)
	f.mu.Unlock()
	if f.j != nil {
		f.j.add("geocode " + address)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panics {
		panic("geocoder exploded")
	}
	if err := f.errs[address]; err != nil {
		return nil, err
	}
	r, ok := f.results[address]
	if !ok {
		return nil, geocode.ErrNotFound
	}
	return &r, nil
}

func (f *fakeGeocoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type update struct {
	TableID string
	ID      model.RecordID
	Fields  map[string]any
}

type fakeMutator struct {
	err error
	j   *journal

	mu      sync.Mutex
	updates []update
}

func (f *fakeMutator) UpdateRecord(_ context.Context, tableID string, id model.RecordID, fields map[string]any) error {
	if f.j != nil {
		f.j.add("update")
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update{TableID: tableID, ID: id, Fields: fields})
	return nil
}

func (f *fakeMutator) all() []update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]update(nil), f.updates...)
}

type fakeRouter struct {
	summary routing.Summary
	err     error

	mu    sync.Mutex
	calls [][2]model.Coordinate
}

func (f *fakeRouter) Route(_ context.Context, from, to model.Coordinate) (*routing.Summary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, [2]model.Coordinate{from, to})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := f.summary
	return &s, nil
}

// recordingSleep returns a sleep func that logs delays instead of waiting.
func recordingSleep(j *journal, delays *[]time.Duration, mu *sync.Mutex) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if j != nil {
			j.add("sleep")
		}
		mu.Lock()
		*delays = append(*delays, d)
		mu.Unlock()
		return nil
	}
}

func rec(id model.RecordID, fields map[string]any) model.Record {
	return model.NewRecord(id, fields)
}

// identity maps every role to a column of the same name.
func identity() model.FieldMapping {
	m := model.FieldMapping{}
	for _, ep := range model.Endpoints() {
		for _, r := range append(ep.Required(), ep.Optional()...) {
			m[r] = r
		}
	}
	return m
}
