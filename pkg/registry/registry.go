package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/tasktree/pkg/domain"
)

// Constructor returns a fresh, zero-valued variant ready to be decoded into.
type Constructor func() domain.Variant

// Registry maps persisted discriminators to variant constructors.
type Registry struct {
	mu    sync.RWMutex
	kinds map[domain.Kind]Constructor
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[domain.Kind]Constructor),
	}
}

// Default returns a registry holding every built-in variant.
func Default() *Registry {
	r := NewRegistry()
	r.Register(domain.KindContainer, func() domain.Variant { return &domain.Container{} })
	r.Register(domain.KindScript, func() domain.Variant { return &domain.Script{} })
	r.Register(domain.KindModel, func() domain.Variant { return &domain.Model{} })
	r.Register(domain.KindAssist, func() domain.Variant { return &domain.Assist{} })
	r.Register(domain.KindDisaggregator, func() domain.Variant { return &domain.Disaggregator{} })
	return r
}

// Register adds a constructor to the registry.
// If a constructor with the same kind exists, it is overwritten.
func (r *Registry) Register(kind domain.Kind, fn Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = fn
}

// New constructs the variant registered under kind.
// Unknown kinds are an error; there is no fallback variant.
func (r *Registry) New(kind domain.Kind) (domain.Variant, error) {
	r.mu.RLock()
	fn, ok := r.kinds[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown node type %q", domain.ErrNotFound, kind)
	}

	return fn(), nil
}

// Kinds lists the registered discriminators in sorted order.
func (r *Registry) Kinds() []domain.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Kind, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
