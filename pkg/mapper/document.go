package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LinkedKey is the reserved top-level key holding the compound section of a document
const LinkedKey = "linked"

// Representation is the wire form of a single resource
type Representation map[string]interface{}

// Document is a wire document grouped by resource type name. Resources holds the
// primary section; Linked, when non-empty, is emitted under the "linked" key.
type Document struct {
	Resources map[string][]Representation
	Linked    map[string][]Representation
}

// Len returns the number of representations in the primary section
func (d Document) Len() int {
	n := 0
	for _, reps := range d.Resources {
		n += len(reps)
	}
	return n
}

// Tree converts the document into the generic tree encoding/json produces when
// decoding, so it can be fed straight back into a deserializer
func (d Document) Tree() map[string]interface{} {
	root := make(map[string]interface{}, len(d.Resources)+1)
	for typ, reps := range d.Resources {
		root[typ] = treeOf(reps)
	}
	if len(d.Linked) > 0 {
		linked := make(map[string]interface{}, len(d.Linked))
		for typ, reps := range d.Linked {
			linked[typ] = treeOf(reps)
		}
		root[LinkedKey] = linked
	}
	return root
}

// MarshalJSON implements json.Marshaler
func (d Document) MarshalJSON() ([]byte, error) {
	root := make(map[string]interface{}, len(d.Resources)+1)
	for typ, reps := range d.Resources {
		root[typ] = reps
	}
	if len(d.Linked) > 0 {
		root[LinkedKey] = d.Linked
	}
	return json.Marshal(root)
}

// ParseDocument decodes data into a generic tree, keeping number literals intact
func ParseDocument(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return root, nil
}

func treeOf(reps []Representation) []interface{} {
	out := make([]interface{}, len(reps))
	for i, rep := range reps {
		obj := make(map[string]interface{}, len(rep))
		for k, v := range rep {
			obj[k] = normalize(v)
		}
		out[i] = obj
	}
	return out
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case Representation:
		obj := make(map[string]interface{}, len(x))
		for k, item := range x {
			obj[k] = normalize(item)
		}
		return obj
	case map[string]interface{}:
		obj := make(map[string]interface{}, len(x))
		for k, item := range x {
			obj[k] = normalize(item)
		}
		return obj
	case []string:
		arr := make([]interface{}, len(x))
		for i, s := range x {
			arr[i] = s
		}
		return arr
	case []interface{}:
		arr := make([]interface{}, len(x))
		for i, item := range x {
			arr[i] = normalize(item)
		}
		return arr
	default:
		return v
	}
}
