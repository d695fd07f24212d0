package resource

import (
	"fmt"
	"time"
)

// Attribute declares one attribute of a resource class. Property and Date attributes
// carry an accessor pair bound to the class; relationships live in slots and only need
// a default target type.
type Attribute struct {
	Name string
	Kind Kind
	// Target is the type name of related resources, used when the wire payload does not
	// carry one. Empty means "same as the attribute name".
	Target string

	get func(Resource) Value
	set func(Resource, Value) error
}

// Get reads the attribute from r through its accessor
func (a Attribute) Get(r Resource) Value {
	if a.get == nil {
		return Null()
	}
	return a.get(r)
}

// Set writes v into r through the attribute's accessor
func (a Attribute) Set(r Resource, v Value) error {
	if a.set == nil {
		return fmt.Errorf("attribute %s has no setter", a.Name)
	}
	return a.set(r, v)
}

// TargetType returns the related type name for a relationship attribute
func (a Attribute) TargetType() string {
	if a.Target != "" {
		return a.Target
	}
	return a.Name
}

// Schema is the static attribute table of a resource class
type Schema struct {
	attrs []Attribute
	index map[string]int
}

// NewSchema builds a schema from attrs, keeping declaration order. It panics on
// duplicate names since schemas are declared once per class.
func NewSchema(attrs ...Attribute) *Schema {
	s := &Schema{
		attrs: make([]Attribute, 0, len(attrs)),
		index: make(map[string]int, len(attrs)),
	}
	for _, a := range attrs {
		if a.Name == "" {
			panic("resource: attribute with empty name")
		}
		if _, exists := s.index[a.Name]; exists {
			panic(fmt.Sprintf("resource: attribute %s declared twice", a.Name))
		}
		switch a.Name {
		case "id", "href", "links":
			panic(fmt.Sprintf("resource: attribute name %s is reserved", a.Name))
		}
		s.index[a.Name] = len(s.attrs)
		s.attrs = append(s.attrs, a)
	}
	return s
}

// Lookup returns the attribute declared under name
func (s *Schema) Lookup(name string) (Attribute, bool) {
	if s == nil {
		return Attribute{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Attribute{}, false
	}
	return s.attrs[i], true
}

// Attributes returns the attributes in declaration order
func (s *Schema) Attributes() []Attribute {
	if s == nil {
		return nil
	}
	out := make([]Attribute, len(s.attrs))
	copy(out, s.attrs)
	return out
}

// Len returns the number of declared attributes
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.attrs)
}

// Field declares an attribute with a custom accessor pair
func Field[R Resource](name string, kind Kind, get func(R) Value, set func(R, Value) error) Attribute {
	return Attribute{
		Name: name,
		Kind: kind,
		get: func(r Resource) Value {
			return get(r.(R))
		},
		set: func(r Resource, v Value) error {
			return set(r.(R), v)
		},
	}
}

// ValueField declares a property stored as a raw Value
func ValueField[R Resource](name string, field func(R) *Value) Attribute {
	return Field(name, Property,
		func(r R) Value { return *field(r) },
		func(r R, v Value) error {
			*field(r) = v
			return nil
		})
}

// StringField declares a string property
func StringField[R Resource](name string, field func(R) *string) Attribute {
	return Field(name, Property,
		func(r R) Value { return String(*field(r)) },
		func(r R, v Value) error {
			if v.IsNull() {
				*field(r) = ""
				return nil
			}
			s, ok := v.AsString()
			if !ok {
				return mismatch(name, "string", v)
			}
			*field(r) = s
			return nil
		})
}

// IntField declares an integer property
func IntField[R Resource](name string, field func(R) *int64) Attribute {
	return Field(name, Property,
		func(r R) Value { return Int(*field(r)) },
		func(r R, v Value) error {
			if v.IsNull() {
				*field(r) = 0
				return nil
			}
			n, ok := v.AsInt()
			if !ok {
				return mismatch(name, "integer", v)
			}
			*field(r) = n
			return nil
		})
}

// FloatField declares a floating point property
func FloatField[R Resource](name string, field func(R) *float64) Attribute {
	return Field(name, Property,
		func(r R) Value { return Float(*field(r)) },
		func(r R, v Value) error {
			if v.IsNull() {
				*field(r) = 0
				return nil
			}
			f, ok := v.AsFloat()
			if !ok {
				return mismatch(name, "number", v)
			}
			*field(r) = f
			return nil
		})
}

// BoolField declares a boolean property
func BoolField[R Resource](name string, field func(R) *bool) Attribute {
	return Field(name, Property,
		func(r R) Value { return Bool(*field(r)) },
		func(r R, v Value) error {
			if v.IsNull() {
				*field(r) = false
				return nil
			}
			b, ok := v.AsBool()
			if !ok {
				return mismatch(name, "bool", v)
			}
			*field(r) = b
			return nil
		})
}

// TimeField declares a Date attribute. The zero time reads back as null.
func TimeField[R Resource](name string, field func(R) *time.Time) Attribute {
	return Field(name, Date,
		func(r R) Value {
			t := *field(r)
			if t.IsZero() {
				return Null()
			}
			return Time(t)
		},
		func(r R, v Value) error {
			if v.IsNull() {
				*field(r) = time.Time{}
				return nil
			}
			t, ok := v.AsTime()
			if !ok {
				return mismatch(name, "time", v)
			}
			*field(r) = t
			return nil
		})
}

// HasOne declares a to-one relationship to resources of type target
func HasOne(name, target string) Attribute {
	return Attribute{Name: name, Kind: ToOne, Target: target}
}

// HasMany declares a to-many relationship to resources of type target
func HasMany(name, target string) Attribute {
	return Attribute{Name: name, Kind: ToMany, Target: target}
}

func mismatch(name, want string, got Value) error {
	return fmt.Errorf("attribute %s: expected %s, got %s", name, want, got.Kind())
}
