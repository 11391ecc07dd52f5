package verify

import (
	"sync"

	"github.com/sells-group/provider-validator/internal/model"
)

// Registry holds at most one verifier per kind.
type Registry struct {
	mu sync.RWMutex
	m  map[model.VerifierKind]Verifier
}

// NewRegistry returns a registry holding vs. Later entries replace earlier
// ones of the same kind.
func NewRegistry(vs ...Verifier) *Registry {
	r := &Registry{m: make(map[model.VerifierKind]Verifier)}
	for _, v := range vs {
		r.Register(v)
	}
	return r
}

// Register adds or replaces the verifier for v's kind. Nil is ignored.
func (r *Registry) Register(v Verifier) {
	if v == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[v.Kind()] = v
}

// Get returns the verifier for kind.
func (r *Registry) Get(kind model.VerifierKind) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[kind]
	return v, ok
}

// All returns the registered verifiers in collection order.
func (r *Registry) All() []Verifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Verifier, 0, len(r.m))
	for _, k := range model.VerifierKinds {
		if v, ok := r.m[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of registered verifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
