package response

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/resource"
)

const (
	// JSONAPIMediaType is the media type of linked resource documents
	JSONAPIMediaType = "application/vnd.api+json"
)

// IsJSONAPI checks if the request accepts the linked document format
func IsJSONAPI(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}

	// Parse media type to handle parameters like charset
	mediaType, _, err := mime.ParseMediaType(accept)
	if err != nil {
		// Fall back to simple check if parsing fails
		return strings.Contains(accept, JSONAPIMediaType)
	}

	return mediaType == JSONAPIMediaType
}

// HasJSONAPIBody checks if the request body is declared as a linked document. A plain
// application/json body is accepted as well.
func HasJSONAPIBody(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == JSONAPIMediaType || mediaType == "application/json"
}

// RenderDocument writes doc with the linked document media type
func RenderDocument(w http.ResponseWriter, status int, doc mapper.Document) error {
	// Marshal FIRST, before touching the response
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", JSONAPIMediaType)
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// RenderResources serializes primary resources, plus related ones under "linked", and
// writes the resulting document. Serialization failures are rendered as errors.
func RenderResources(w http.ResponseWriter, status int, m *mapper.Mapper, primary, linked []resource.Resource) error {
	doc, err := m.SerializeCompound(primary, linked)
	if err != nil {
		RenderMappingError(w, err)
		return err
	}
	return RenderDocument(w, status, doc)
}
