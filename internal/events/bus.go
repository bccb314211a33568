// Package events provides a lightweight in-process event bus.
// Consumers subscribe by event name; emission is synchronous and
// best-effort - a slow or panicking listener must not break the emitter.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Listener handles an emitted event.
type Listener func(data any)

// Bus dispatches events to registered listeners.
type Bus struct {
	listeners map[string][]Listener
	mu        sync.RWMutex
	log       zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		listeners: make(map[string][]Listener),
		log:       log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a listener for an event name.
func (b *Bus) Subscribe(event string, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners[event] = append(b.listeners[event], fn)
}

// Emit dispatches an event to all listeners registered for its name.
// Listener panics are recovered and logged.
func (b *Bus) Emit(event string, data any) {
	b.mu.RLock()
	fns := make([]Listener, len(b.listeners[event]))
	copy(fns, b.listeners[event])
	b.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if p := recover(); p != nil {
					b.log.Error().
						Str("event", event).
						Interface("panic", p).
						Msg("Event listener panicked")
				}
			}()
			fn(data)
		}()
	}
}
