package storage

import "sync"

// EventBus is the synchronous post-commit publish/subscribe helper
// shared by filestore and memstore. Handlers run on the publishing
// goroutine and must not block (spec §4.1).
type EventBus struct {
	mu       sync.Mutex
	handlers map[int]EventHandler
	nextID   int
}

// Subscribe registers fn and returns a function that removes it.
func (b *EventBus) Subscribe(fn EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[int]EventHandler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Publish delivers ev to every current subscriber.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}
