// Package schema loads resource class declarations from YAML so that documents can be
// mapped without compiled resource types.
//
//	resources:
//	  - type: articles
//	    attributes:
//	      - name: title
//	      - name: published_at
//	        kind: date
//	      - name: author
//	        kind: to-one
//	        target: authors
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/spine/pkg/registry"
	"github.com/conduit-lang/spine/pkg/resource"
)

// ErrInvalidSchema is returned when a schema file declares something inconsistent
var ErrInvalidSchema = errors.New("invalid schema")

// File is the top-level structure of a schema file
type File struct {
	Resources []Class `yaml:"resources"`
}

// Class declares one resource class
type Class struct {
	Type       string      `yaml:"type"`
	Attributes []Attribute `yaml:"attributes"`
}

// Attribute declares one attribute of a class. Kind defaults to property.
type Attribute struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind,omitempty"`
	Target string `yaml:"target,omitempty"`
}

// Load reads and validates the schema file at path
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a schema document
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if _, err := f.Classes(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Classes builds a dynamic resource class for every declared type
func (f *File) Classes() ([]*resource.DynamicClass, error) {
	seen := make(map[string]bool, len(f.Resources))
	classes := make([]*resource.DynamicClass, 0, len(f.Resources))

	for i, c := range f.Resources {
		if c.Type == "" {
			return nil, fmt.Errorf("%w: resources[%d]: missing type", ErrInvalidSchema, i)
		}
		if seen[c.Type] {
			return nil, fmt.Errorf("%w: type %s declared twice", ErrInvalidSchema, c.Type)
		}
		seen[c.Type] = true

		decls, err := c.declarations()
		if err != nil {
			return nil, err
		}
		classes = append(classes, resource.NewDynamicClass(c.Type, decls...))
	}

	return classes, nil
}

// Register adds every declared class to reg
func (f *File) Register(reg *registry.Registry) error {
	classes, err := f.Classes()
	if err != nil {
		return err
	}
	for _, c := range classes {
		if err := reg.Register(c.New); err != nil {
			return err
		}
	}
	return nil
}

func (c Class) declarations() ([]resource.Declaration, error) {
	names := make(map[string]bool, len(c.Attributes))
	decls := make([]resource.Declaration, 0, len(c.Attributes))

	for i, a := range c.Attributes {
		if a.Name == "" {
			return nil, fmt.Errorf("%w: %s.attributes[%d]: missing name", ErrInvalidSchema, c.Type, i)
		}
		switch a.Name {
		case "id", "href", "links":
			return nil, fmt.Errorf("%w: %s.%s: reserved attribute name", ErrInvalidSchema, c.Type, a.Name)
		}
		if names[a.Name] {
			return nil, fmt.Errorf("%w: %s.%s declared twice", ErrInvalidSchema, c.Type, a.Name)
		}
		names[a.Name] = true

		kind, err := resource.ParseKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, c.Type, a.Name, err)
		}
		if a.Target != "" && !kind.IsRelationship() {
			return nil, fmt.Errorf("%w: %s.%s: target is only valid on relationships", ErrInvalidSchema, c.Type, a.Name)
		}

		decls = append(decls, resource.Declaration{Name: a.Name, Kind: kind, Target: a.Target})
	}

	return decls, nil
}

// Marshal renders f as YAML
func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// ParseClass reads the compact form used on the command line:
//
//	articles:title,published_at:date,author:to-one:authors
//
// Each comma-separated attribute is name[:kind[:target]]. The class is not validated
// against other classes.
func ParseClass(spec string) (Class, error) {
	typ, rest, _ := strings.Cut(strings.TrimSpace(spec), ":")
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return Class{}, fmt.Errorf("%w: %q: missing type", ErrInvalidSchema, spec)
	}

	c := Class{Type: typ}
	if strings.TrimSpace(rest) == "" {
		return c, nil
	}

	for _, field := range strings.Split(rest, ",") {
		parts := strings.Split(strings.TrimSpace(field), ":")
		if len(parts) > 3 {
			return Class{}, fmt.Errorf("%w: %s: too many parts in %q", ErrInvalidSchema, typ, field)
		}
		a := Attribute{Name: parts[0]}
		if len(parts) > 1 {
			a.Kind = parts[1]
		}
		if len(parts) > 2 {
			a.Target = parts[2]
		}
		c.Attributes = append(c.Attributes, a)
	}

	if _, err := c.declarations(); err != nil {
		return Class{}, err
	}
	return c, nil
}
