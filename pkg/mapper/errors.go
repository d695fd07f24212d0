package mapper

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/spine/pkg/registry"
)

// Mapping error types. All of them are terminal for the run that produced them.
var (
	// ErrMalformedDocument is returned when the document or one of its representations
	// does not have the expected object/array shape
	ErrMalformedDocument = errors.New("malformed document")

	// ErrUnknownResourceType is returned when a type name, found in the document or
	// referenced by a relationship, has no registered class
	ErrUnknownResourceType = registry.ErrUnknownResourceType

	// ErrUnsavedRelatedResource is returned when a to-many relationship references a
	// resource that has no id yet
	ErrUnsavedRelatedResource = errors.New("related resource must be saved before its parent")
)

func malformed(path, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedDocument, path, fmt.Sprintf(format, args...))
}

// IsMalformed returns true if the error is ErrMalformedDocument
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedDocument)
}

// IsUnknownType returns true if the error is ErrUnknownResourceType
func IsUnknownType(err error) bool {
	return errors.Is(err, ErrUnknownResourceType)
}

// IsUnsaved returns true if the error is ErrUnsavedRelatedResource
func IsUnsaved(err error) bool {
	return errors.Is(err, ErrUnsavedRelatedResource)
}

// jsonType names the JSON shape of a decoded value for error messages
func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}, []string:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	default:
		return "number"
	}
}
