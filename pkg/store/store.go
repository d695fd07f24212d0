// Package store provides the identity map that holds deserialized resources
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/conduit-lang/spine/pkg/resource"
)

var (
	// ErrMissingID is returned when adding a resource that has no id
	ErrMissingID = errors.New("resource has no id")

	// ErrDuplicate is returned when another instance already occupies the key
	ErrDuplicate = errors.New("resource already present in store")
)

// Store is an identity map of resources keyed by (type, id). A key maps to exactly one
// instance for the store's whole lifetime.
//
// A Store is not safe for concurrent use. Callers sharing one across goroutines must
// serialize access.
type Store struct {
	resources map[resource.Key]resource.Resource
	order     []resource.Key
}

// New creates an empty store
func New() *Store {
	return &Store{
		resources: make(map[resource.Key]resource.Resource),
	}
}

// Add registers r under its (type, id) key
func (s *Store) Add(r resource.Resource) error {
	key, ok := resource.KeyOf(r)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingID, r.ResourceType())
	}
	if existing, exists := s.resources[key]; exists {
		if existing == r {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	s.resources[key] = r
	s.order = append(s.order, key)
	return nil
}

// Lookup returns the resource stored under (typ, id)
func (s *Store) Lookup(typ, id string) (resource.Resource, bool) {
	r, ok := s.resources[resource.Key{Type: typ, ID: id}]
	return r, ok
}

// Contains reports whether r itself (not merely its key) is held by the store
func (s *Store) Contains(r resource.Resource) bool {
	key, ok := resource.KeyOf(r)
	if !ok {
		return false
	}
	existing, exists := s.resources[key]
	return exists && existing == r
}

// Remove drops the resource stored under (typ, id). Other resources keep any
// references they hold to it.
func (s *Store) Remove(typ, id string) bool {
	key := resource.Key{Type: typ, ID: id}
	if _, ok := s.resources[key]; !ok {
		return false
	}
	delete(s.resources, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns every stored resource in insertion order
func (s *Store) All() []resource.Resource {
	out := make([]resource.Resource, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.resources[k])
	}
	return out
}

// OfType returns the stored resources of typ in insertion order
func (s *Store) OfType(typ string) []resource.Resource {
	var out []resource.Resource
	for _, k := range s.order {
		if k.Type == typ {
			out = append(out, s.resources[k])
		}
	}
	return out
}

// Types returns the distinct type names present, sorted
func (s *Store) Types() []string {
	seen := make(map[string]bool)
	var types []string
	for _, k := range s.order {
		if !seen[k.Type] {
			seen[k.Type] = true
			types = append(types, k.Type)
		}
	}
	sort.Strings(types)
	return types
}

// Len returns the number of stored resources
func (s *Store) Len() int {
	return len(s.order)
}
