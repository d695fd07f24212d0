package resource

import "sort"

// Declaration names one attribute of a class declared at runtime
type Declaration struct {
	Name   string
	Kind   Kind
	Target string
}

// DynamicClass is a resource class whose type name and attributes are only known at
// runtime, e.g. read from a schema file. Its instances keep attribute values in a map.
type DynamicClass struct {
	typ    string
	schema *Schema
}

// NewDynamicClass builds a class for typ from decls
func NewDynamicClass(typ string, decls ...Declaration) *DynamicClass {
	attrs := make([]Attribute, 0, len(decls))
	for _, d := range decls {
		switch d.Kind {
		case ToOne:
			attrs = append(attrs, HasOne(d.Name, d.Target))
		case ToMany:
			attrs = append(attrs, HasMany(d.Name, d.Target))
		default:
			attrs = append(attrs, dynamicField(d.Name, d.Kind))
		}
	}
	return &DynamicClass{typ: typ, schema: NewSchema(attrs...)}
}

// Type returns the type name of the class
func (c *DynamicClass) Type() string { return c.typ }

// Schema returns the attribute table of the class
func (c *DynamicClass) Schema() *Schema { return c.schema }

// New constructs an empty instance
func (c *DynamicClass) New() Resource {
	return &Dynamic{class: c, values: make(map[string]Value)}
}

// Dynamic is an instance of a DynamicClass
type Dynamic struct {
	Base
	class  *DynamicClass
	values map[string]Value
}

// ResourceType implements Resource
func (d *Dynamic) ResourceType() string { return d.class.typ }

// Schema implements Resource
func (d *Dynamic) Schema() *Schema { return d.class.schema }

// Get returns the value of a declared attribute (null when unset)
func (d *Dynamic) Get(name string) Value {
	return d.values[name]
}

// Set stores the value of a declared attribute
func (d *Dynamic) Set(name string, v Value) {
	d.values[name] = v
}

// Names returns the names of attributes holding a value, sorted
func (d *Dynamic) Names() []string {
	names := make([]string, 0, len(d.values))
	for name := range d.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func dynamicField(name string, kind Kind) Attribute {
	return Field(name, kind,
		func(d *Dynamic) Value { return d.values[name] },
		func(d *Dynamic, v Value) error {
			if v.IsNull() {
				delete(d.values, name)
				return nil
			}
			if kind == Date {
				if _, ok := v.AsTime(); !ok {
					return mismatch(name, "time", v)
				}
			}
			d.values[name] = v
			return nil
		})
}
