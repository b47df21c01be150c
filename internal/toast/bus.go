package toast

import "sync"

// Event is a cross-cutting failure report, e.g. from the request layer.
type Event struct {
	Message string
	Type    string // "network", "server", "rate_limit", ...
}

// Bus decouples failure reporters from the sink that renders them.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Event)
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]func(Event))}
}

// Subscribe registers fn and returns an idempotent disposer.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber synchronously.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.handlers))
	for _, fn := range b.handlers {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
