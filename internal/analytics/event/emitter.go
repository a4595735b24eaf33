// Package event provides the synchronous observer primitive shared by the
// analytics components. Dispatch order is: perform the mutation, then notify
// listeners in registration order. Listeners run on the caller's goroutine.
package event

import "sync"

// Emitter dispatches values of type T to registered listeners.
type Emitter[T any] struct {
	mu        sync.Mutex
	listeners []func(T)
}

// Subscribe registers fn; it will be invoked synchronously on every Publish.
func (e *Emitter[T]) Subscribe(fn func(T)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Publish invokes every listener in registration order with v.
func (e *Emitter[T]) Publish(v T) {
	e.mu.Lock()
	ls := make([]func(T), len(e.listeners))
	copy(ls, e.listeners)
	e.mu.Unlock()
	for _, fn := range ls {
		fn(v)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
