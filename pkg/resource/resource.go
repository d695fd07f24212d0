package resource

import "sort"

// Resource is implemented by every mapped resource class. Concrete classes embed Base,
// report a fixed type name and return a schema built once at package init.
//
//	type Article struct {
//	    resource.Base
//	    Title string
//	}
//
//	func (*Article) ResourceType() string      { return "articles" }
//	func (*Article) Schema() *resource.Schema { return articleSchema }
type Resource interface {
	// ResourceType returns the wire type name of the class, e.g. "articles"
	ResourceType() string
	// Schema returns the attribute table of the class
	Schema() *Schema

	base() *Base
}

// Key identifies a resource inside a store
type Key struct {
	Type string
	ID   string
}

// String renders the key as type/id
func (k Key) String() string {
	return k.Type + "/" + k.ID
}

// Base carries the state shared by all resources: identity, location, undeclared
// attribute values and relationship slots.
type Base struct {
	id          string
	hasID       bool
	location    string
	extras      map[string]Value
	slots       map[string]*Slot
	placeholder bool
}

func (b *Base) base() *Base { return b }

// ID returns the identifier, or "" if the resource was never persisted
func (b *Base) ID() string { return b.id }

// HasID reports whether an identifier is set
func (b *Base) HasID() bool { return b.hasID }

// SetID sets the identifier
func (b *Base) SetID(id string) {
	b.id = id
	b.hasID = true
}

// ClearID removes the identifier
func (b *Base) ClearID() {
	b.id = ""
	b.hasID = false
}

// Location returns the href the resource was read from
func (b *Base) Location() string { return b.location }

// SetLocation sets the href
func (b *Base) SetLocation(href string) { b.location = href }

// IsPlaceholder reports whether the resource is a stub standing in for a relationship
// target that was absent from the document
func (b *Base) IsPlaceholder() bool { return b.placeholder }

// Extra returns an undeclared attribute value
func (b *Base) Extra(name string) (Value, bool) {
	v, ok := b.extras[name]
	return v, ok
}

// SetExtra stores an undeclared attribute value
func (b *Base) SetExtra(name string, v Value) {
	if b.extras == nil {
		b.extras = make(map[string]Value)
	}
	b.extras[name] = v
}

// Extras returns a copy of all undeclared attribute values
func (b *Base) Extras() map[string]Value {
	out := make(map[string]Value, len(b.extras))
	for k, v := range b.extras {
		out[k] = v
	}
	return out
}

// Slot returns the relationship slot for name, or nil if it was never touched
func (b *Base) Slot(name string) *Slot {
	return b.slots[name]
}

// SlotNames returns the names of all touched relationship slots, sorted
func (b *Base) SlotNames() []string {
	names := make([]string, 0, len(b.slots))
	for name := range b.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// One returns the resolved to-one target for name
func (b *Base) One(name string) Resource {
	return b.slots[name].One()
}

// Many returns the resolved to-many targets for name
func (b *Base) Many(name string) []Resource {
	return b.slots[name].Many()
}

// SetOne points the relationship name at r (nil clears the target)
func (b *Base) SetOne(name string, r Resource) {
	b.slot(name).setOne(r)
}

// SetMany points the relationship name at rs, in order
func (b *Base) SetMany(name string, rs []Resource) {
	b.slot(name).setMany(rs)
}

// SetPending records an unresolved descriptor for name, replacing whatever the slot held
func (b *Base) SetPending(name string, d *Descriptor) {
	b.slot(name).setPending(d)
}

// Unset empties the relationship slot for name
func (b *Base) Unset(name string) {
	delete(b.slots, name)
}

func (b *Base) slot(name string) *Slot {
	if b.slots == nil {
		b.slots = make(map[string]*Slot)
	}
	s, ok := b.slots[name]
	if !ok {
		s = &Slot{}
		b.slots[name] = s
	}
	return s
}

// BaseOf returns the embedded Base of r
func BaseOf(r Resource) *Base {
	return r.base()
}

// KeyOf returns the identity key of r; ok is false when r has no id
func KeyOf(r Resource) (Key, bool) {
	b := r.base()
	if !b.hasID {
		return Key{}, false
	}
	return Key{Type: r.ResourceType(), ID: b.id}, true
}

// Describe renders r as type/id for logs and CLI output
func Describe(r Resource) string {
	if r == nil {
		return "<nil>"
	}
	b := r.base()
	if !b.hasID {
		return r.ResourceType() + "/<new>"
	}
	return r.ResourceType() + "/" + b.id
}

// MarkPlaceholder turns a freshly constructed resource into a placeholder for id
func MarkPlaceholder(r Resource, id string) Resource {
	b := r.base()
	b.SetID(id)
	b.placeholder = true
	return r
}
