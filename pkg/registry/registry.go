// Package registry maps wire type names to the resource classes that represent them
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/conduit-lang/spine/pkg/resource"
)

var (
	// ErrUnknownResourceType is returned when no class is registered for a type name
	ErrUnknownResourceType = errors.New("unknown resource type")

	// ErrInvalidFactory is returned when a factory yields nil or an empty type name
	ErrInvalidFactory = errors.New("invalid resource factory")
)

// Factory constructs an empty instance of a resource class
type Factory func() resource.Resource

// Registry manages the resource classes known to a mapper. Registration is expected up
// front; lookups are safe for concurrent use by independent mapping runs.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register records f under the type name its instances report. Registering a second
// class for the same name replaces the first.
func (r *Registry) Register(f Factory) error {
	if f == nil {
		return ErrInvalidFactory
	}
	probe := f()
	if probe == nil {
		return fmt.Errorf("%w: factory returned nil", ErrInvalidFactory)
	}
	name := probe.ResourceType()
	if name == "" {
		return fmt.Errorf("%w: empty type name", ErrInvalidFactory)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = f
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(factories ...Factory) {
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
}

// FactoryFor returns the factory registered for name
func (r *Registry) FactoryFor(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResourceType, name)
	}
	return f, nil
}

// New constructs an empty resource of type name
func (r *Registry) New(name string) (resource.Resource, error) {
	f, err := r.FactoryFor(name)
	if err != nil {
		return nil, err
	}
	return f(), nil
}

// Placeholder constructs a stub of type name carrying only id
func (r *Registry) Placeholder(name, id string) (resource.Resource, error) {
	res, err := r.New(name)
	if err != nil {
		return nil, err
	}
	return resource.MarkPlaceholder(res, id), nil
}

// Has checks if a class is registered for name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[name]
	return ok
}

// Types returns the registered type names, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered classes
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.factories)
}
