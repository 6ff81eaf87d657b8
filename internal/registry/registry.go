// ABOUTME: Server-name registry boundary for resolving peer addresses.
// ABOUTME: The durable backend lives elsewhere; InMemory covers local use and tests.

package registry

import (
	"sort"
	"sync"
)

// Registry resolves routing-server names to network addresses.
type Registry interface {
	// Register maps a server name to an address, replacing any
	// previous mapping.
	Register(name, addr string)
	// Resolve looks up a server name.
	Resolve(name string) (string, bool)
	// Deregister removes a mapping. Unknown names are a no-op.
	Deregister(name string)
	// All returns every registered name, sorted.
	All() []string
}

// InMemory is a mutex-guarded map implementation of Registry.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewInMemory creates an empty in-memory registry.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]string)}
}

func (r *InMemory) Register(name, addr string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = addr
}

func (r *InMemory) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.entries[name]
	return addr, ok
}

func (r *InMemory) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

func (r *InMemory) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
