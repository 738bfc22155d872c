package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/routemap/internal/model"
)

// Event names sent on the SSE stream.
const (
	EventCursor = "cursor"
	EventReady  = "ready"
	EventView   = "view"
)

// subscriberBuffer is how many events a slow client may lag before events
// are dropped for it.
const subscriberBuffer = 16

// Event is one server-sent event.
type Event struct {
	Name string
	Data json.RawMessage
}

// Broker fans events out to SSE subscribers. It is the panel's cursor sink
// and host notifier: cursor moves and the column contract are published as
// events instead of being sent to an embedding host.
type Broker struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]chan Event
	sticky map[string]Event

	dirty chan struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[uuid.UUID]chan Event),
		sticky: make(map[string]Event),
		dirty:  make(chan struct{}, 1),
	}
}

// Subscribe registers a subscriber. Sticky events already published are
// delivered first. The returned cancel func must be called when the
// subscriber goes away.
func (b *Broker) Subscribe() (uuid.UUID, <-chan Event, func()) {
	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	for _, ev := range b.sticky {
		ch <- ev
	}
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return id, ch, cancel
}

// Subscribers returns the number of live subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish sends an event to every subscriber without blocking.
func (b *Broker) Publish(name string, payload any) error {
	ev, err := newEvent(name, payload)
	if err != nil {
		return err
	}
	b.publish(ev, false)
	return nil
}

func (b *Broker) publish(ev Event, sticky bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sticky {
		b.sticky[ev.Name] = ev
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			zap.L().Debug("server: subscriber lagging, event dropped",
				zap.String("subscriber", id.String()),
				zap.String("event", ev.Name),
			)
		}
	}
}

// SetCursor implements selection.CursorSink.
func (b *Broker) SetCursor(_ context.Context, id model.RecordID) error {
	return b.Publish(EventCursor, map[string]model.RecordID{"rowId": id})
}

// Ready implements panel.HostNotifier. The contract is kept and replayed to
// later subscribers.
func (b *Broker) Ready(_ context.Context, contract model.Contract) error {
	ev, err := newEvent(EventReady, contract)
	if err != nil {
		return err
	}
	b.publish(ev, true)
	return nil
}

// Invalidate marks the scene as changed. It never blocks and may be called
// while registry or scene locks are held.
func (b *Broker) Invalidate() {
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

// Changes signals after each Invalidate, coalescing bursts.
func (b *Broker) Changes() <-chan struct{} {
	return b.dirty
}

func newEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, eris.Wrapf(err, "server: encode %s event", name)
	}
	return Event{Name: name, Data: data}, nil
}

func writeSSEEvent(w http.ResponseWriter, ev Event) error {
	if _, err := w.Write([]byte("event: " + ev.Name + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: " + string(ev.Data) + "\n\n")); err != nil {
		return err
	}
	return nil
}
