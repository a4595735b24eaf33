// Package instance holds process-wide shared analyzer instances. Each
// component exposes four distinct operations through a Holder: construct
// (the component's New), get-or-create-default, set, and reset, so tests can
// inject fakes and guarantee isolation between cases.
package instance

import "sync"

// Holder lazily constructs and guards one shared instance of T.
type Holder[T any] struct {
	mu         sync.Mutex
	current    *T
	newDefault func() *T
}

// NewHolder creates a holder that builds defaults with newDefault.
func NewHolder[T any](newDefault func() *T) *Holder[T] {
	return &Holder[T]{newDefault: newDefault}
}

// Get returns the shared instance, constructing the default on first access.
func (h *Holder[T]) Get() *T {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		h.current = h.newDefault()
	}
	return h.current
}

// Set replaces the shared instance.
func (h *Holder[T]) Set(v *T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = v
}

// Reset clears the shared instance; the next Get constructs a fresh default.
func (h *Holder[T]) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = nil
}
