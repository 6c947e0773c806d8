package voxel

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates an empty array of the given dimensions.
type Factory func(sx, sy, sz int) Array

// Registry maps configuration names such as "dense-8bit" to array factories.
// It is constructed explicitly and passed to the components that need it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding every built-in representation.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindDense4.String(), func(sx, sy, sz int) Array { return NewDense4(sx, sy, sz) })
	r.Register(KindDense8.String(), func(sx, sy, sz int) Array { return NewDense8(sx, sy, sz) })
	r.Register(KindDense16.String(), func(sx, sy, sz int) Array { return NewDense16(sx, sy, sz) })
	r.Register(KindSparse4.String(), func(sx, sy, sz int) Array { return NewSparse(4, sx, sy, sz) })
	r.Register(KindSparse8.String(), func(sx, sy, sz int) Array { return NewSparse(8, sx, sy, sz) })
	r.Register(KindSparse16.String(), func(sx, sy, sz int) Array { return NewSparse(16, sx, sy, sz) })
	r.Register(KindPalette16.String(), func(sx, sy, sz int) Array { return NewPalette(sx, sy, sz) })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFactory, name)
	}
	return f, nil
}

// Bits reports the value width produced by the named factory.
func (r *Registry) Bits(name string) (int, error) {
	f, err := r.Lookup(name)
	if err != nil {
		return 0, err
	}
	return f(1, 1, 1).Bits(), nil
}

// Names returns the registered factory names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
