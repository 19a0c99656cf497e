package statusdev

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry is the namespace of device nodes.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Endpoint
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Endpoint)}
}

// Register exposes e under its name.
func (r *Registry) Register(e *Endpoint) error {
	if e == nil || e.Name() == "" {
		return fmt.Errorf("statusdev: register: endpoint has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[e.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrExists, e.Name())
	}
	r.nodes[e.Name()] = e
	slog.Info("statusdev: node registered", "path", e.Path(), "class", e.Class(), "capacity", e.Capacity())
	return nil
}

// Unregister removes the node called name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.nodes, name)
	slog.Info("statusdev: node unregistered", "name", name)
	return nil
}

// Lookup returns the node called name.
func (r *Registry) Lookup(name string) (*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

// Names returns registered node names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
