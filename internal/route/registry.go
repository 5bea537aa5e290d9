package route

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Lister loads the persisted route set. Satisfied by the record store.
type Lister interface {
	ListRoutes(ctx context.Context) ([]Route, error)
}

// Registry is the in-memory route set the engine resolves against.
// Refreshes replace the whole map; handed-out pointers stay valid for
// in-flight passes and simply go stale.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]*Route
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]*Route)}
}

// ReplaceAll swaps in a new route set.
func (r *Registry) ReplaceAll(routes []Route) {
	next := make(map[string]*Route, len(routes))
	for i := range routes {
		rt := routes[i]
		next[rt.ID] = &rt
	}

	r.mu.Lock()
	r.routes = next
	r.mu.Unlock()
}

// Upsert adds or replaces a single route.
func (r *Registry) Upsert(rt Route) {
	r.mu.Lock()
	r.routes[rt.ID] = &rt
	r.mu.Unlock()
}

// Get returns the route with the given ID.
func (r *Registry) Get(id string) (*Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[id]
	return rt, ok
}

// All returns every registered route.
func (r *Registry) All() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Route, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt)
	}
	return out
}

// ActiveAt returns the routes in scheduled service at t.
func (r *Registry) ActiveAt(t time.Time) []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Route, 0, len(r.routes))
	for _, rt := range r.routes {
		if rt.Active(t) {
			out = append(out, rt)
		}
	}
	return out
}

// Len returns the number of registered routes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// LoadFrom refreshes the registry from the persisted route set. On error the
// previous set stays in place, so a failed refresh degrades to stale routes
// rather than no routes.
func (r *Registry) LoadFrom(ctx context.Context, lister Lister) error {
	routes, err := lister.ListRoutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list routes: %w", err)
	}
	r.ReplaceAll(routes)
	return nil
}
