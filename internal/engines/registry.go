package engines

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the strategy map of engines keyed by id.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry builds a registry holding the given engines.
func NewRegistry(list ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(list))}
	for _, e := range list {
		r.Register(e)
	}
	return r
}

// Register adds or replaces an engine.
func (r *Registry) Register(e Engine) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.ID()] = e
}

// Get returns the engine for id.
func (r *Registry) Get(id string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, id)
	}
	return e, nil
}

// List returns engine descriptions ordered by kind then id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListKind filters List by kind.
func (r *Registry) ListKind(kind Kind) []Info {
	var out []Info
	for _, info := range r.List() {
		if info.Kind == kind {
			out = append(out, info)
		}
	}
	return out
}
