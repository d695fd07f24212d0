package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/registry"
	"github.com/conduit-lang/spine/pkg/resource"
	"github.com/conduit-lang/spine/pkg/store"
)

func TestIsJSONAPI(t *testing.T) {
	tests := []struct {
		accept string
		want   bool
	}{
		{"", false},
		{"application/json", false},
		{JSONAPIMediaType, true},
		{JSONAPIMediaType + "; charset=utf-8", true},
		{"text/html, " + JSONAPIMediaType, true},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.accept != "" {
			r.Header.Set("Accept", tt.accept)
		}
		if got := IsJSONAPI(r); got != tt.want {
			t.Errorf("IsJSONAPI(%q) = %v, want %v", tt.accept, got, tt.want)
		}
	}
}

func TestHasJSONAPIBody(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"application/json", true},
		{JSONAPIMediaType, true},
		{"text/plain", false},
		{";;", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", tt.contentType)
		if got := HasJSONAPIBody(r); got != tt.want {
			t.Errorf("HasJSONAPIBody(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestRenderResources(t *testing.T) {
	reg := registry.New()
	class := resource.NewDynamicClass("notes", resource.Declaration{Name: "text"})
	reg.MustRegister(class.New)
	m := mapper.New(reg)

	note := class.New()
	resource.BaseOf(note).SetID("1")
	note.(*resource.Dynamic).Set("text", resource.String("hello"))

	w := httptest.NewRecorder()
	if err := RenderResources(w, http.StatusOK, m, []resource.Resource{note}, nil); err != nil {
		t.Fatalf("RenderResources() error = %v", err)
	}

	if w.Code != http.StatusOK {
		t.Errorf("status code = %v, want %v", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != JSONAPIMediaType {
		t.Errorf("Content-Type = %v, want %v", ct, JSONAPIMediaType)
	}

	var body map[string][]map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body["notes"]) != 1 || body["notes"][0]["text"] != "hello" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestRenderMappingError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"malformed", fmt.Errorf("%w: $: bad", mapper.ErrMalformedDocument), http.StatusBadRequest, "malformed_document"},
		{"unknown type", fmt.Errorf("x: %w", mapper.ErrUnknownResourceType), http.StatusUnprocessableEntity, "unknown_resource_type"},
		{"unsaved", mapper.ErrUnsavedRelatedResource, http.StatusUnprocessableEntity, "unsaved_related_resource"},
		{"duplicate", store.ErrDuplicate, http.StatusConflict, "duplicate_resource"},
		{"http error", NewHTTPError(http.StatusNotFound, "gone"), http.StatusNotFound, "not_found"},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RenderMappingError(w, tt.err)

			if w.Code != tt.status {
				t.Errorf("status code = %v, want %v", w.Code, tt.status)
			}

			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Code != tt.code {
				t.Errorf("code = %v, want %v", resp.Code, tt.code)
			}
			if resp.Message != tt.err.Error() {
				t.Errorf("message = %v, want %v", resp.Message, tt.err.Error())
			}
		})
	}
}

func TestRenderMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	RenderMethodNotAllowed(w, []string{"GET", "POST"})

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %v, want %v", w.Code, http.StatusMethodNotAllowed)
	}
	if allow := w.Header().Get("Allow"); allow != "GET, POST" {
		t.Errorf("Allow = %q, want %q", allow, "GET, POST")
	}
}

func TestHTTPErrorWithCode(t *testing.T) {
	err := NewHTTPError(http.StatusConflict, "taken").WithCode("id_taken")
	w := httptest.NewRecorder()
	err.Render(w)

	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Code != "id_taken" {
		t.Errorf("code = %v, want 'id_taken'", resp.Code)
	}
	if w.Code != http.StatusConflict {
		t.Errorf("status code = %v, want %v", w.Code, http.StatusConflict)
	}
}
