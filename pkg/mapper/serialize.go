package mapper

import (
	"fmt"

	"github.com/conduit-lang/spine/pkg/formatter"
	"github.com/conduit-lang/spine/pkg/resource"
)

// serializer turns resources back into wire representations
type serializer struct {
	formatter *formatter.Formatter
}

// group serializes resources, grouping them by type and keeping their relative order
func (s *serializer) group(resources []resource.Resource) (map[string][]Representation, error) {
	out := make(map[string][]Representation)
	for _, r := range resources {
		if r == nil {
			continue
		}
		rep, err := s.represent(r)
		if err != nil {
			return nil, err
		}
		typ := r.ResourceType()
		out[typ] = append(out[typ], rep)
	}
	return out, nil
}

// represent builds the representation of a single resource. Relationship slots are the
// only source for links.
func (s *serializer) represent(r resource.Resource) (Representation, error) {
	base := resource.BaseOf(r)
	rep := make(Representation)
	links := make(map[string]interface{})

	if base.HasID() {
		rep["id"] = base.ID()
	}

	for _, attr := range r.Schema().Attributes() {
		switch attr.Kind {
		case resource.Property:
			rep[attr.Name] = attr.Get(r).Interface()

		case resource.Date:
			rep[attr.Name] = s.formatter.Format(resource.Date, attr.Get(r)).Interface()

		case resource.ToOne:
			slot := base.Slot(attr.Name)
			switch slot.State() {
			case resource.SlotOne:
				target := slot.One()
				if target == nil {
					links[attr.Name] = nil
					continue
				}
				// A target without an id has nothing to link to
				if tb := resource.BaseOf(target); tb.HasID() {
					links[attr.Name] = tb.ID()
				}
			case resource.SlotMany:
				ids, err := savedIDs(r, attr.Name, slot.Many())
				if err != nil {
					return nil, err
				}
				links[attr.Name] = ids
			case resource.SlotPending:
				links[attr.Name] = pendingLinkage(slot)
			default:
				links[attr.Name] = nil
			}

		case resource.ToMany:
			slot := base.Slot(attr.Name)
			switch slot.State() {
			case resource.SlotMany:
				ids, err := savedIDs(r, attr.Name, slot.Many())
				if err != nil {
					return nil, err
				}
				links[attr.Name] = ids
			case resource.SlotOne:
				var related []resource.Resource
				if target := slot.One(); target != nil {
					related = append(related, target)
				}
				ids, err := savedIDs(r, attr.Name, related)
				if err != nil {
					return nil, err
				}
				links[attr.Name] = ids
			case resource.SlotPending:
				links[attr.Name] = pendingLinkage(slot)
			default:
				links[attr.Name] = []string{}
			}
		}
	}

	if len(links) > 0 {
		rep["links"] = links
	}

	return rep, nil
}

func savedIDs(owner resource.Resource, name string, related []resource.Resource) ([]string, error) {
	ids := make([]string, 0, len(related))
	for i, target := range related {
		if target == nil || !resource.BaseOf(target).HasID() {
			return nil, fmt.Errorf("%w: %s.%s[%d]", ErrUnsavedRelatedResource, resource.Describe(owner), name, i)
		}
		ids = append(ids, resource.BaseOf(target).ID())
	}
	return ids, nil
}

func pendingLinkage(slot *resource.Slot) interface{} {
	desc, _ := slot.Pending()
	if desc.Kind == resource.ToOne {
		return desc.TargetID
	}
	ids := make([]string, len(desc.TargetIDs))
	copy(ids, desc.TargetIDs)
	return ids
}
