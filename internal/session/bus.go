package session

import "sync"

// EventKind names a session event.
type EventKind string

const (
	EventFlash         EventKind = "flash"
	EventPlaySound     EventKind = "playSound"
	EventProcessAction EventKind = "process-action"
	EventRefresh       EventKind = "refresh"
	EventUpdate        EventKind = "update"
	EventHistoryBack   EventKind = "history-back"
)

// Sounds a model may request.
const (
	SoundNotify = "notify"
	SoundError  = "error"
)

// Event is published by the model on the session bus.
type Event struct {
	Kind    EventKind
	Sound   string         // playSound
	Action  Action         // process-action
	Refresh *RefreshParams // refresh
}

// Bus is a synchronous publish/subscribe channel between the model and the
// controller. Handlers run on the publisher's goroutine, after the bus lock
// has been released, so a handler may publish again.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[EventKind]map[int]func(Event)
	closed   bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventKind]map[int]func(Event))}
}

// Subscribe registers fn for kind and returns a function that removes it.
func (b *Bus) Subscribe(kind EventKind, fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	id := b.next
	b.next++
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[int]func(Event))
	}
	b.handlers[kind][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[kind], id)
	}
}

// Publish delivers ev to every handler subscribed to its kind.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	fns := make([]func(Event), 0, len(b.handlers[ev.Kind]))
	for _, fn := range b.handlers[ev.Kind] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Close drops every handler; later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[EventKind]map[int]func(Event))
}
