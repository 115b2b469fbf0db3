package events

import (
	"sync"
)

// CallbackEvent delivers typed values to registered callbacks. It is the
// notification mechanism of the device state store: mutators fire the event
// synchronously after applying a change, so observers see the new state in
// the same loop iteration.
//
// Callbacks run outside the event's lock but must not call back into a
// mutator of the store that fired them; that reentrancy is not guarded.
type CallbackEvent[T any] struct {
	mu        sync.RWMutex
	listeners map[uint64]func(T)
	nextID    uint64
}

// NewCallbackEvent creates an empty CallbackEvent.
func NewCallbackEvent[T any]() *CallbackEvent[T] {
	return &CallbackEvent[T]{
		listeners: make(map[uint64]func(T)),
	}
}

// Listen registers a callback to be invoked on every Notify.
// Returns a deregistration function that removes the listener.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = callback
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Notify invokes all registered callbacks with value. Callbacks are called
// outside the lock so a callback may register or deregister listeners.
func (e *CallbackEvent[T]) Notify(value T) {
	e.mu.RLock()
	listenersCopy := make([]func(T), 0, len(e.listeners))
	for _, callback := range e.listeners {
		listenersCopy = append(listenersCopy, callback)
	}
	e.mu.RUnlock()

	for _, callback := range listenersCopy {
		callback(value)
	}
}

// ListenerCount returns the current number of registered listeners.
func (e *CallbackEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
