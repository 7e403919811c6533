package providers

import (
	"fmt"
	"sync"
)

// Registry keeps providers in registration order, which is the order used to
// merge results.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	index     map[string]int
}

// NewRegistry creates a registry holding the given providers
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{index: make(map[string]int)}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a provider. Names must be unique.
func (r *Registry) Register(p Provider) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("provider must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.index[p.Name()] = len(r.providers)
	r.providers = append(r.providers, p)
	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.providers[i], true
}

// List returns a snapshot of the providers in registration order
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Names returns provider names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
