package rules

import (
	"sync"

	"github.com/thraizz/oath-server-go/internal/game/state"
)

// Binding pairs a power with the in-play entity declaring it.
type Binding struct {
	Source state.Key
	Power  *Power
}

// Registry maps a target type tag (an action or effect kind) to the powers
// that intercept it. It is rebuilt from the in-play entities whenever the
// view's layout version moves; a view reporting version zero gets a fresh
// build that is not cached.
type Registry struct {
	mu      sync.Mutex
	catalog Catalog
	version uint64
	byTag   map[string][]Binding
	builds  int
}

// NewRegistry creates a registry over a catalog.
func NewRegistry(catalog Catalog) *Registry {
	return &Registry{catalog: catalog}
}

// For returns the bindings for tag, in arena order.
func (r *Registry) For(v state.View, tag string) []Binding {
	version := v.LayoutVersion()

	r.mu.Lock()
	defer r.mu.Unlock()
	if version != 0 && version == r.version && r.byTag != nil {
		return r.byTag[tag]
	}
	byTag := r.build(v)
	if version != 0 {
		r.version = version
		r.byTag = byTag
	}
	return byTag[tag]
}

// Builds reports how many times the registry was rebuilt.
func (r *Registry) Builds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.builds
}

func (r *Registry) build(v state.View) map[string][]Binding {
	r.builds++
	byTag := make(map[string][]Binding)
	for _, e := range state.InPlay(v) {
		for _, name := range e.Powers {
			p, ok := r.catalog[name]
			if !ok {
				continue
			}
			byTag[p.AppliesTo] = append(byTag[p.AppliesTo], Binding{Source: e.Key, Power: p})
		}
	}
	return byTag
}
