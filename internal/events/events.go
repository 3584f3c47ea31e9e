package events

import (
	"encoding/json"
	"sync"
	"time"

	"obdscan/internal/models"
)

// Kind tells subscribers which fields of an Event are meaningful.
type Kind string

const (
	ConnectionChanged Kind = "connection"
	ClearingChanged   Kind = "clearing"
	CodesChanged      Kind = "codes"
	TelemetryTick     Kind = "telemetry"
	Notice            Kind = "notice"
)

// Level of a Notice, mirroring the toast styles of the display.
type Level string

const (
	LevelLoading Level = "loading"
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// ErrKind tags failures reported through the event stream.
type ErrKind string

const (
	ConnectionError ErrKind = "connection_error"
	ClearCodesError ErrKind = "clear_codes_error"
)

// Event is a single change published by the session.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	State    models.ConnectionState `json:"state"`
	Clearing bool                   `json:"clearing"`

	Codes           []models.DTCEntry         `json:"codes"`
	Parameters      []models.VehicleParameter `json:"parameters,omitempty"`
	Recommendations []models.Recommendation   `json:"recommendations,omitempty"`

	Level   Level   `json:"level,omitempty"`
	Message string  `json:"message,omitempty"`
	ErrKind ErrKind `json:"errKind,omitempty"`
	Err     error   `json:"-"`
}

// MarshalJSON adds the error text, which the error interface cannot carry.
// A CodesChanged event always sends its set, so a cleared set is [].
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	if e.Kind == CodesChanged && e.Codes == nil {
		e.Codes = []models.DTCEntry{}
	}
	var errText string
	if e.Err != nil {
		errText = e.Err.Error()
	}
	return json.Marshal(struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain(e), errText})
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	dropped func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// OnDrop registers a hook called for every event a slow subscriber missed.
func (b *Bus) OnDrop(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = fn
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; !ok {
			return
		}
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers e to every subscriber.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			if b.dropped != nil {
				b.dropped(e)
			}
		}
	}
}

// Close unsubscribes everybody.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
