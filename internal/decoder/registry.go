package decoder

import "sync"

// Registry maps kinds to the families available in this process.
type Registry struct {
	mu       sync.RWMutex
	families map[Kind]Family
}

// NewRegistry returns a Registry holding fams.
func NewRegistry(fams ...Family) *Registry {
	r := &Registry{families: make(map[Kind]Family)}
	for _, f := range fams {
		r.Register(f)
	}
	return r
}

// Register adds f, replacing any family of the same kind.
func (r *Registry) Register(f Family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[f.Kind()] = f
}

// Lookup returns the family registered for k.
func (r *Registry) Lookup(k Kind) (Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[k]
	return f, ok
}

// Kinds returns the registered kinds in ascending order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Kind
	for k := KindSoftware; int(k) < len(kindNames); k++ {
		if _, ok := r.families[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
