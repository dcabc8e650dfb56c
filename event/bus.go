// Package event provides a minimal typed publish/subscribe bus.
//
// Each concern owns its own Bus instance (one for conversation changes, one for
// chat-setting changes); there is no shared global bus.
package event

import (
	"reflect"
	"sync"
)

// Listener receives the payload of an emitted event.
type Listener[T any] func(T)

// Bus dispatches named events to registered listeners synchronously, in
// registration order. Listeners are not isolated from each other: a panicking
// listener aborts delivery to the listeners registered after it.
type Bus[T any] struct {
	mu        sync.Mutex
	listeners map[string][]Listener[T]
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{listeners: make(map[string][]Listener[T])}
}

// On registers a listener for the named event. Duplicate registrations are
// allowed and each one is invoked.
func (b *Bus[T]) On(name string, fn Listener[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], fn)
}

// Off removes the first registration of fn for the named event, matched by
// function identity. Removing a listener that was never registered is a no-op.
func (b *Bus[T]) Off(name string, fn Listener[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := reflect.ValueOf(fn).Pointer()
	list := b.listeners[name]
	for i, l := range list {
		if reflect.ValueOf(l).Pointer() == target {
			b.listeners[name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit invokes every listener currently registered for the named event with
// the given payload, in registration order.
func (b *Bus[T]) Emit(name string, payload T) {
	b.mu.Lock()
	list := make([]Listener[T], len(b.listeners[name]))
	copy(list, b.listeners[name])
	b.mu.Unlock()

	for _, l := range list {
		l(payload)
	}
}
