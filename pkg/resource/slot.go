package resource

// Descriptor is the unresolved form of a relationship, recorded while a representation
// is parsed and replaced by resolved references afterwards.
type Descriptor struct {
	// Kind is ToOne or ToMany
	Kind Kind
	// Href is the relationship location, if the wire payload carried one
	Href string
	// TargetType is the type name of the related resources
	TargetType string
	// TargetID is the related id for ToOne
	TargetID string
	// TargetIDs are the related ids for ToMany, in wire order
	TargetIDs []string
}

// IDs returns the target ids of d in wire order
func (d *Descriptor) IDs() []string {
	if d.Kind == ToOne {
		return []string{d.TargetID}
	}
	return d.TargetIDs
}

// SlotState describes what a Slot currently holds
type SlotState uint8

const (
	// SlotEmpty holds nothing
	SlotEmpty SlotState = iota
	// SlotPending holds a descriptor awaiting resolution
	SlotPending
	// SlotOne holds a single resolved reference (which may be nil)
	SlotOne
	// SlotMany holds an ordered sequence of resolved references
	SlotMany
)

// Slot is the per-relationship field of a resource
type Slot struct {
	state   SlotState
	pending *Descriptor
	one     Resource
	many    []Resource
}

// State returns what the slot currently holds
func (s *Slot) State() SlotState {
	if s == nil {
		return SlotEmpty
	}
	return s.state
}

// Pending returns the unresolved descriptor, if any
func (s *Slot) Pending() (*Descriptor, bool) {
	if s == nil || s.state != SlotPending {
		return nil, false
	}
	return s.pending, true
}

// One returns the resolved single reference
func (s *Slot) One() Resource {
	if s == nil || s.state != SlotOne {
		return nil
	}
	return s.one
}

// Many returns the resolved ordered references
func (s *Slot) Many() []Resource {
	if s == nil || s.state != SlotMany {
		return nil
	}
	return s.many
}

func (s *Slot) setPending(d *Descriptor) {
	*s = Slot{state: SlotPending, pending: d}
}

func (s *Slot) setOne(r Resource) {
	*s = Slot{state: SlotOne, one: r}
}

func (s *Slot) setMany(rs []Resource) {
	if rs == nil {
		rs = []Resource{}
	}
	*s = Slot{state: SlotMany, many: rs}
}
