// Package registry indexes the language adapters known to a session.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/switchboard/pkg/ports"
)

// Registry manages the available language adapters.
// Adapters are reachable both by language name ("R") and by engine name ("ir").
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ports.Adapter
}

// NewRegistry creates a registry holding adapters.
func NewRegistry(adapters ...ports.Adapter) *Registry {
	r := &Registry{
		adapters: make(map[string]ports.Adapter),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter to the registry.
// If an adapter with the same language or engine name exists, it is overwritten.
func (r *Registry) Register(a ports.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	r.adapters[a.KernelName()] = a
}

// Lookup finds an adapter by language or engine name. Exact matches win over
// case-insensitive ones.
func (r *Registry) Lookup(name string) (ports.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.adapters[name]; ok {
		return a, true
	}
	for key, a := range r.adapters {
		if strings.EqualFold(key, name) {
			return a, true
		}
	}
	return nil, false
}

// MustLookup is Lookup returning an error for unknown names.
func (r *Registry) MustLookup(name string) (ports.Adapter, error) {
	a, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("adapter not found: %s", name)
	}
	return a, nil
}

// KernelName resolves a language name to the engine it runs in.
// Unknown names are returned unchanged.
func (r *Registry) KernelName(name string) string {
	if a, ok := r.Lookup(name); ok {
		return a.KernelName()
	}
	return name
}

// Adapters returns each registered (language, engine) pair once, sorted by
// language name and then engine name.
func (r *Registry) Adapters() []ports.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[[2]string]bool)
	var out []ports.Adapter
	for _, a := range r.adapters {
		key := [2]string{a.Name(), a.KernelName()}
		if !seen[key] {
			seen[key] = true
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].KernelName() < out[j].KernelName()
	})
	return out
}
