package mapper

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/spine/pkg/formatter"
	"github.com/conduit-lang/spine/pkg/registry"
	"github.com/conduit-lang/spine/pkg/resource"
	"github.com/conduit-lang/spine/pkg/store"
)

// Result is the outcome of a deserialization run
type Result struct {
	// Store holds every identified resource of the document, fully resolved
	Store *store.Store
	// Primary lists the top-level (non-linked) resources in document order, including
	// representations without an id which are never added to the store
	Primary []resource.Resource
}

// pendingLink is a relationship recorded in pass 1 and resolved in pass 2
type pendingLink struct {
	owner resource.Resource
	name  string
	desc  *resource.Descriptor
	path  string
}

// deserializer performs a single build-then-resolve run over one document
type deserializer struct {
	registry  *registry.Registry
	formatter *formatter.Formatter
	store     *store.Store
	primary   []resource.Resource
}

func newDeserializer(reg *registry.Registry, f *formatter.Formatter, s *store.Store) *deserializer {
	if s == nil {
		s = store.New()
	}
	return &deserializer{
		registry:  reg,
		formatter: f,
		store:     s,
	}
}

// run builds every representation of doc into the store, then resolves the
// relationships recorded along the way
func (d *deserializer) run(doc interface{}) (*Result, error) {
	root, err := rootObject(doc)
	if err != nil {
		return nil, err
	}

	pending, err := d.build(root)
	if err != nil {
		return nil, err
	}

	if err := d.resolve(pending); err != nil {
		return nil, err
	}

	return &Result{Store: d.store, Primary: d.primary}, nil
}

func rootObject(doc interface{}) (map[string]interface{}, error) {
	switch x := doc.(type) {
	case map[string]interface{}:
		return x, nil
	case Document:
		return x.Tree(), nil
	case *Document:
		if x == nil {
			return nil, malformed("$", "nil document")
		}
		return x.Tree(), nil
	default:
		return nil, malformed("$", "expected object, got %s", jsonType(doc))
	}
}

// build is pass 1: it flattens the document into resources held by the store and
// returns the relationships that still need resolving
func (d *deserializer) build(root map[string]interface{}) ([]pendingLink, error) {
	var pending []pendingLink

	for _, key := range sortedKeys(root) {
		value := root[key]

		if key == LinkedKey {
			linked, ok := value.(map[string]interface{})
			if !ok {
				return nil, malformed(LinkedKey, "expected object, got %s", jsonType(value))
			}
			for _, typ := range sortedKeys(linked) {
				items, ok := linked[typ].([]interface{})
				if !ok {
					return nil, malformed(LinkedKey+"."+typ, "expected array, got %s", jsonType(linked[typ]))
				}
				for i, item := range items {
					path := fmt.Sprintf("%s.%s[%d]", LinkedKey, typ, i)
					if _, err := d.buildOne(typ, item, true, path, &pending); err != nil {
						return nil, err
					}
				}
			}
			continue
		}

		// Non-array members such as "meta" do not describe resources
		items, ok := value.([]interface{})
		if !ok {
			continue
		}
		for i, item := range items {
			path := fmt.Sprintf("%s[%d]", key, i)
			res, err := d.buildOne(key, item, false, path, &pending)
			if err != nil {
				return nil, err
			}
			d.primary = append(d.primary, res)
		}
	}

	return pending, nil
}

// buildOne maps a single representation onto the stored instance for its key, or onto
// a new instance that is added to the store once fully populated
func (d *deserializer) buildOne(typ string, raw interface{}, requireID bool, path string, pending *[]pendingLink) (resource.Resource, error) {
	rep, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed(path, "expected object, got %s", jsonType(raw))
	}

	id, hasID, err := representationID(rep, path)
	if err != nil {
		return nil, err
	}
	if requireID && !hasID {
		return nil, malformed(path, "missing id")
	}

	var res resource.Resource
	existing := false
	if hasID {
		res, existing = d.store.Lookup(typ, id)
	}
	if !existing {
		res, err = d.registry.New(typ)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	base := resource.BaseOf(res)
	schema := res.Schema()

	for _, key := range sortedKeys(rep) {
		value := rep[key]
		switch key {
		case "links":
			links, err := d.parseLinks(res, value, path+".links")
			if err != nil {
				return nil, err
			}
			*pending = append(*pending, links...)

		case "id":
			if hasID {
				base.SetID(id)
			}

		case "href":
			switch href := value.(type) {
			case nil:
				base.SetLocation("")
			case string:
				base.SetLocation(href)
			default:
				return nil, malformed(path+".href", "expected string, got %s", jsonType(value))
			}

		default:
			v, err := resource.FromJSON(value)
			if err != nil {
				return nil, malformed(path+"."+key, "%v", err)
			}
			attr, declared := schema.Lookup(key)
			if !declared || attr.Kind.IsRelationship() {
				base.SetExtra(key, v)
				continue
			}
			if err := attr.Set(res, d.formatter.Unformat(attr.Kind, v)); err != nil {
				return nil, malformed(path+"."+key, "%v", err)
			}
		}
	}

	if !existing && hasID {
		if err := d.store.Add(res); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return res, nil
}

func representationID(rep map[string]interface{}, path string) (string, bool, error) {
	raw, present := rep["id"]
	if !present || raw == nil {
		return "", false, nil
	}
	id, ok := raw.(string)
	if !ok {
		return "", false, malformed(path+".id", "expected string, got %s", jsonType(raw))
	}
	return id, true, nil
}

// parseLinks records a descriptor in the owner's slot for every relationship in raw
func (d *deserializer) parseLinks(owner resource.Resource, raw interface{}, path string) ([]pendingLink, error) {
	if raw == nil {
		return nil, nil
	}
	links, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed(path, "expected object, got %s", jsonType(raw))
	}

	base := resource.BaseOf(owner)
	var out []pendingLink

	for _, name := range sortedKeys(links) {
		linkPath := path + "." + name
		desc, err := d.descriptor(owner, name, links[name], linkPath)
		if err != nil {
			return nil, err
		}
		if desc == nil {
			if attr, ok := owner.Schema().Lookup(name); ok && attr.Kind == resource.ToMany {
				base.SetMany(name, nil)
			} else {
				base.SetOne(name, nil)
			}
			continue
		}
		base.SetPending(name, desc)
		out = append(out, pendingLink{owner: owner, name: name, desc: desc, path: linkPath})
	}

	return out, nil
}

// descriptor turns one link payload into a descriptor. A nil descriptor with a nil error
// means the payload explicitly clears the relationship.
func (d *deserializer) descriptor(owner resource.Resource, name string, raw interface{}, path string) (*resource.Descriptor, error) {
	target := name
	if attr, ok := owner.Schema().Lookup(name); ok && attr.Kind.IsRelationship() {
		target = attr.TargetType()
	}

	switch x := raw.(type) {
	case nil:
		return nil, nil

	case string:
		return &resource.Descriptor{Kind: resource.ToOne, TargetType: target, TargetID: x}, nil

	case []interface{}, []string:
		ids, err := stringIDs(x, path)
		if err != nil {
			return nil, err
		}
		return &resource.Descriptor{Kind: resource.ToMany, TargetType: target, TargetIDs: ids}, nil

	case map[string]interface{}:
		desc := &resource.Descriptor{TargetType: target}
		if href, ok := x["href"]; ok && href != nil {
			s, ok := href.(string)
			if !ok {
				return nil, malformed(path+".href", "expected string, got %s", jsonType(href))
			}
			desc.Href = s
		}
		if typ, ok := x["type"]; ok && typ != nil {
			s, ok := typ.(string)
			if !ok {
				return nil, malformed(path+".type", "expected string, got %s", jsonType(typ))
			}
			desc.TargetType = s
		}

		// "ids" wins when a payload carries both forms
		if rawIDs, ok := x["ids"]; ok && rawIDs != nil {
			ids, err := stringIDs(rawIDs, path+".ids")
			if err != nil {
				return nil, err
			}
			desc.Kind = resource.ToMany
			desc.TargetIDs = ids
			return desc, nil
		}
		if rawID, ok := x["id"]; ok {
			if rawID == nil {
				return nil, nil
			}
			id, ok := rawID.(string)
			if !ok {
				return nil, malformed(path+".id", "expected string, got %s", jsonType(rawID))
			}
			desc.Kind = resource.ToOne
			desc.TargetID = id
			return desc, nil
		}
		return nil, malformed(path, "relationship has neither id nor ids")

	default:
		return nil, malformed(path, "unexpected relationship payload of type %s", jsonType(raw))
	}
}

func stringIDs(raw interface{}, path string) ([]string, error) {
	switch x := raw.(type) {
	case []string:
		ids := make([]string, len(x))
		copy(ids, x)
		return ids, nil
	case []interface{}:
		ids := make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, malformed(fmt.Sprintf("%s[%d]", path, i), "expected string, got %s", jsonType(item))
			}
			ids[i] = s
		}
		return ids, nil
	default:
		return nil, malformed(path, "expected array, got %s", jsonType(raw))
	}
}

// resolve is pass 2: it replaces every recorded descriptor with references to stored
// resources, or to placeholders when a target is not in the store. It never changes
// store membership.
func (d *deserializer) resolve(pending []pendingLink) error {
	for _, p := range pending {
		base := resource.BaseOf(p.owner)

		// A later representation of the same resource may have replaced the descriptor
		current, ok := base.Slot(p.name).Pending()
		if !ok || current != p.desc {
			continue
		}

		switch p.desc.Kind {
		case resource.ToOne:
			target, err := d.target(p.desc.TargetType, p.desc.TargetID, p.path)
			if err != nil {
				return err
			}
			base.SetOne(p.name, target)

		case resource.ToMany:
			targets := make([]resource.Resource, 0, len(p.desc.TargetIDs))
			for i, id := range p.desc.TargetIDs {
				target, err := d.target(p.desc.TargetType, id, fmt.Sprintf("%s[%d]", p.path, i))
				if err != nil {
					return err
				}
				targets = append(targets, target)
			}
			base.SetMany(p.name, targets)
		}
	}
	return nil
}

func (d *deserializer) target(typ, id, path string) (resource.Resource, error) {
	if r, ok := d.store.Lookup(typ, id); ok {
		return r, nil
	}
	placeholder, err := d.registry.Placeholder(typ, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return placeholder, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
