// Package resource defines the in-memory side of the mapper: resource classes, their
// attribute schemas, relationship slots and the tagged Value type used for attribute
// storage.
package resource

import "fmt"

// Kind classifies a declared attribute
type Kind int

const (
	// Property is a plain attribute stored verbatim
	Property Kind = iota
	// Date is a timestamp carried on the wire as an ISO-8601 string
	Date
	// ToOne is a relationship to a single resource
	ToOne
	// ToMany is an ordered relationship to several resources
	ToMany
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case Property:
		return "property"
	case Date:
		return "date"
	case ToOne:
		return "to-one"
	case ToMany:
		return "to-many"
	default:
		return "unknown"
	}
}

// IsRelationship returns true for ToOne and ToMany
func (k Kind) IsRelationship() bool {
	return k == ToOne || k == ToMany
}

// ParseKind converts a string to a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "property", "":
		return Property, nil
	case "date":
		return Date, nil
	case "to-one", "toOne", "one":
		return ToOne, nil
	case "to-many", "toMany", "many":
		return ToMany, nil
	default:
		return 0, fmt.Errorf("unknown attribute kind: %s", s)
	}
}
