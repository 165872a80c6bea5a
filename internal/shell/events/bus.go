package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler observes a lifecycle event.
type Handler func(Event)

// Bus delivers lifecycle events to subscribers synchronously, in emission
// order. Publishers on different goroutines are serialized, so every
// subscriber sees the same total order. Handlers must not publish.
type Bus struct {
	mu     sync.Mutex
	byName map[Name][]Handler
	all    []Handler
	logger *slog.Logger
}

// NewBus creates an empty bus. Panicking handlers are logged to logger.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		byName: make(map[Name][]Handler),
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers h for events named name.
func (b *Bus) Subscribe(name Name, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byName[name] = append(b.byName[name], h)
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers an event to the name subscribers, then to the
// catch-all subscribers, in registration order. A panicking handler is
// recovered and logged; delivery continues with the next handler.
func (b *Bus) Publish(name Name, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev := Event{Name: name, Payload: payload}
	for _, h := range b.byName[name] {
		b.deliver(h, ev)
	}
	for _, h := range b.all {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(ev.Name),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	h(ev)
}
