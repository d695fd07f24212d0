// Package mapper converts JSON:API compound documents into graphs of resources and back.
//
// Deserialization runs in two passes. The build pass walks every representation of the
// document (top-level arrays and the "linked" section), reusing the store's instance for
// a (type, id) key when there is one, and records relationships as descriptors. The
// resolve pass then swaps each descriptor for a reference to the stored resource, or to
// a placeholder carrying only type and id when the target was not part of the document.
//
// Placeholders are not added to the store and are not shared: two relationships that
// point at the same missing resource each receive their own placeholder, and a
// placeholder is never upgraded when the full resource shows up later.
//
// Every run is self-contained. Runs on distinct stores may execute concurrently and
// share one Mapper; runs targeting the same store must not overlap.
package mapper

import (
	"encoding/json"

	"github.com/conduit-lang/spine/pkg/formatter"
	"github.com/conduit-lang/spine/pkg/registry"
	"github.com/conduit-lang/spine/pkg/resource"
	"github.com/conduit-lang/spine/pkg/store"
)

// Mapper ties a type registry to the deserializer and serializer
type Mapper struct {
	registry      *registry.Registry
	formatterOpts []formatter.Option
}

// Option configures a Mapper
type Option func(*Mapper)

// WithFormatterOptions configures the value formatter created for every run
func WithFormatterOptions(opts ...formatter.Option) Option {
	return func(m *Mapper) {
		m.formatterOpts = append(m.formatterOpts, opts...)
	}
}

// New creates a Mapper over reg. A nil registry gets replaced by an empty one.
func New(reg *registry.Registry, opts ...Option) *Mapper {
	if reg == nil {
		reg = registry.New()
	}
	m := &Mapper{registry: reg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the type registry used by m
func (m *Mapper) Registry() *registry.Registry {
	return m.registry
}

// Register records resource classes with the mapper's registry
func (m *Mapper) Register(factories ...registry.Factory) error {
	for _, f := range factories {
		if err := m.registry.Register(f); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize maps doc into a fresh store
func (m *Mapper) Deserialize(doc interface{}) (*store.Store, error) {
	return m.DeserializeInto(doc, nil)
}

// DeserializeInto maps doc into s, enriching resources already held there. A nil store
// is replaced by a fresh one. On error s is left unchanged.
func (m *Mapper) DeserializeInto(doc interface{}, s *store.Store) (*store.Store, error) {
	res, err := m.Load(doc, s)
	if err != nil {
		return nil, err
	}
	return res.Store, nil
}

// Load maps doc into s and reports the document's primary resources as well. When s is
// not nil the document is first mapped into a scratch store, so a rejected document
// never reaches s.
func (m *Mapper) Load(doc interface{}, s *store.Store) (*Result, error) {
	if s != nil {
		if _, err := m.run(doc, nil); err != nil {
			return nil, err
		}
	}
	return m.run(doc, s)
}

func (m *Mapper) run(doc interface{}, s *store.Store) (*Result, error) {
	d := newDeserializer(m.registry, formatter.New(m.formatterOpts...), s)
	return d.run(doc)
}

// Unmarshal decodes raw JSON and maps it into s
func (m *Mapper) Unmarshal(data []byte, s *store.Store) (*Result, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return m.Load(doc, s)
}

// Serialize renders resources as a wire document grouped by type
func (m *Mapper) Serialize(resources ...resource.Resource) (Document, error) {
	s := &serializer{formatter: formatter.New(m.formatterOpts...)}
	grouped, err := s.group(resources)
	if err != nil {
		return Document{}, err
	}
	return Document{Resources: grouped}, nil
}

// SerializeCompound renders primary resources plus a "linked" section for related ones
func (m *Mapper) SerializeCompound(primary, linked []resource.Resource) (Document, error) {
	s := &serializer{formatter: formatter.New(m.formatterOpts...)}
	grouped, err := s.group(primary)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Resources: grouped}
	if len(linked) > 0 {
		doc.Linked, err = s.group(linked)
		if err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

// Marshal renders resources as JSON
func (m *Mapper) Marshal(resources ...resource.Resource) ([]byte, error) {
	doc, err := m.Serialize(resources...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Related returns the non-placeholder resources directly referenced by r's
// relationships, without duplicates, in schema order
func Related(r resource.Resource) []resource.Resource {
	base := resource.BaseOf(r)
	seen := make(map[resource.Resource]bool)
	var out []resource.Resource
	add := func(t resource.Resource) {
		if t == nil || seen[t] || resource.BaseOf(t).IsPlaceholder() {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, attr := range r.Schema().Attributes() {
		if !attr.Kind.IsRelationship() {
			continue
		}
		slot := base.Slot(attr.Name)
		add(slot.One())
		for _, t := range slot.Many() {
			add(t)
		}
	}
	return out
}
