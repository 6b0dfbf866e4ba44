// Package localrelay is an in-memory halyard.Relay. It links registries
// living in the same process, which is mostly useful for tests and for
// running several servers behind one listener.
package localrelay

import (
	"sync"

	"github.com/RobertWHurst/halyard"
)

type Relay struct {
	mu               sync.RWMutex
	dispatchHandlers map[string]func(string, string)
}

var _ halyard.Relay = &Relay{}

func New() *Relay {
	return &Relay{
		dispatchHandlers: map[string]func(string, string){},
	}
}

// Dispatch hands text to every bound registry. Registries that do not hold
// the connection ignore it.
func (r *Relay) Dispatch(connectionID string, text string) error {
	r.mu.RLock()
	handlers := make([]func(string, string), 0, len(r.dispatchHandlers))
	for _, handler := range r.dispatchHandlers {
		handlers = append(handlers, handler)
	}
	r.mu.RUnlock()

	for _, handler := range handlers {
		handler(connectionID, text)
	}
	return nil
}

func (r *Relay) BindDispatch(registryID string, handler func(connectionID string, text string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchHandlers[registryID] = handler
	return nil
}

func (r *Relay) UnbindDispatch(registryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dispatchHandlers, registryID)
	return nil
}

// Len returns the number of bound registries.
func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dispatchHandlers)
}
