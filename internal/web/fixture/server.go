// Package fixture serves an in-memory resource API speaking the linked document format.
// It backs the "serve" command and the HTTP client tests.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/spine/internal/web/auth"
	"github.com/conduit-lang/spine/internal/web/cache"
	"github.com/conduit-lang/spine/internal/web/middleware"
	"github.com/conduit-lang/spine/internal/web/ratelimit"
	"github.com/conduit-lang/spine/internal/web/response"
	"github.com/conduit-lang/spine/internal/web/websocket"
	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/resource"
	"github.com/conduit-lang/spine/pkg/store"
)

// DefaultMaxBodySize caps request bodies
const DefaultMaxBodySize = 1 << 20

// Server holds fixture API state. The store is shared by all requests and only touched
// with mu held.
type Server struct {
	mapper      *mapper.Mapper
	logger      *zap.Logger
	newID       func() string
	maxBodySize int64
	cache       cache.Cache
	hub         *websocket.Hub
	issuer      *auth.Issuer
	limiter     ratelimit.Limiter

	mu    sync.Mutex
	store *store.Store
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request and error logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator sets the function assigning ids to created resources
func WithIDGenerator(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithMaxBodySize caps the size of request bodies
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// WithCache serves repeated reads from c. Writes clear it.
func WithCache(c cache.Cache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithHub publishes every store change to h and serves it at GET /_events
func WithHub(h *websocket.Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithAuth requires a bearer token signed by issuer on every write
func WithAuth(issuer *auth.Issuer) Option {
	return func(s *Server) {
		s.issuer = issuer
	}
}

// WithRateLimit throttles every client with l
func WithRateLimit(l ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// New creates a fixture server mapping documents with m
func New(m *mapper.Mapper, opts ...Option) *Server {
	s := &Server{
		mapper:      m,
		logger:      zap.NewNop(),
		newID:       func() string { return uuid.New().String() },
		maxBodySize: DefaultMaxBodySize,
		store:       store.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed merges a document into the server's store
func (s *Server) Seed(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.mapper.Unmarshal(data, nil); err != nil {
		return err
	}
	if _, err := s.mapper.Unmarshal(data, s.store); err != nil {
		return err
	}
	if s.cache != nil {
		return s.cache.Clear(context.Background())
	}
	return nil
}

// SeedFile merges the document stored at path
func (s *Server) SeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := s.Seed(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Snapshot renders every stored resource as one document that Seed accepts
func (s *Server) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapper.Marshal(s.store.All()...)
}

// Len returns the number of stored resources
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

// Handler returns the routes wrapped in the standard middleware chain
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.Recovery(s.logger),
	)
	if s.limiter != nil {
		chain.Use(ratelimit.Throttle(s.limiter, s.logger))
	}
	if s.issuer != nil {
		chain.Use(auth.RequireWriteToken(s.issuer, s.logger))
	}
	if s.cache != nil {
		chain.Use(cache.Documents(s.cache, s.logger))
	}
	r.Use(chain.Handlers()...)
	s.Routes(r)
	return r
}

// Routes mounts the resource routes
func (s *Server) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/_events", s.hub.ServeHTTP)
	}
	r.Get("/{type}", s.List)
	r.Post("/{type}", s.Create)
	r.Get("/{type}/{id}", s.Show)
	r.Put("/{type}/{id}", s.Update)
	r.Delete("/{type}/{id}", s.Delete)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, "")
	})
}

// List handles GET /{type}
func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.resourceType(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	primary := s.store.OfType(typ)
	s.render(w, http.StatusOK, primary, s.linkedFor(primary))
}

// Show handles GET /{type}/{id}
func (s *Server) Show(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	res, found := s.store.Lookup(typ, id)
	if !found {
		response.RenderNotFound(w, fmt.Sprintf("%s/%s not found", typ, id))
		return
	}
	primary := []resource.Resource{res}
	s.render(w, http.StatusOK, primary, s.linkedFor(primary))
}

// Create handles POST /{type}. Resources without an id get one assigned.
func (s *Server) Create(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	root, ok := s.readDocument(w, r)
	if !ok {
		return
	}

	items, _ := root[typ].([]interface{})
	if len(items) == 0 {
		response.RenderBadRequest(w, fmt.Sprintf("document has no %s", typ))
		return
	}
	if !onlySection(w, root, typ) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		rep, _ := item.(map[string]interface{})
		if id, ok := rep["id"].(string); ok {
			if _, exists := s.store.Lookup(typ, id); exists {
				response.RenderConflict(w, fmt.Sprintf("%s/%s already exists", typ, id))
				return
			}
		}
	}

	res, ok := s.load(w, root)
	if !ok {
		return
	}

	var created []resource.Resource
	seen := make(map[resource.Resource]bool, len(res.Primary))
	for _, p := range res.Primary {
		if seen[p] {
			continue
		}
		seen[p] = true
		base := resource.BaseOf(p)
		if !base.HasID() {
			base.SetID(s.newID())
			if err := s.store.Add(p); err != nil {
				response.RenderMappingError(w, err)
				return
			}
		}
		base.SetLocation(fmt.Sprintf("/%s/%s", typ, base.ID()))
		created = append(created, p)
	}

	s.logger.Debug("created resources", zap.String("type", typ), zap.Int("count", len(created)))
	for _, c := range created {
		s.publish(websocket.Created, typ, resource.BaseOf(c).ID())
	}

	if len(created) == 1 {
		w.Header().Set("Location", resource.BaseOf(created[0]).Location())
	}
	s.render(w, http.StatusCreated, created, nil)
}

// Update handles PUT /{type}/{id}
func (s *Server) Update(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	root, ok := s.readDocument(w, r)
	if !ok {
		return
	}

	items, _ := root[typ].([]interface{})
	if len(items) != 1 {
		response.RenderBadRequest(w, fmt.Sprintf("expected exactly one %s representation", typ))
		return
	}
	if !onlySection(w, root, typ) {
		return
	}
	rep, isObject := items[0].(map[string]interface{})
	if !isObject {
		response.RenderMappingError(w, fmt.Errorf("%w: %s[0]: expected object", mapper.ErrMalformedDocument, typ))
		return
	}
	if given, present := rep["id"]; present && given != nil && given != id {
		response.RenderConflict(w, fmt.Sprintf("id %v does not match %s", given, id))
		return
	}
	rep["id"] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.store.Lookup(typ, id); !exists {
		response.RenderNotFound(w, fmt.Sprintf("%s/%s not found", typ, id))
		return
	}

	if _, ok := s.load(w, root); !ok {
		return
	}

	updated, _ := s.store.Lookup(typ, id)
	s.publish(websocket.Updated, typ, id)
	s.render(w, http.StatusOK, []resource.Resource{updated}, nil)
}

// Delete handles DELETE /{type}/{id}
func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.Remove(typ, id) {
		response.RenderNotFound(w, fmt.Sprintf("%s/%s not found", typ, id))
		return
	}
	s.publish(websocket.Deleted, typ, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publish(action, typ, id string) {
	if s.hub != nil {
		s.hub.Publish(websocket.Change{Action: action, Type: typ, ID: id})
	}
}

func (s *Server) resourceType(w http.ResponseWriter, r *http.Request) (string, bool) {
	typ := chi.URLParam(r, "type")
	if !s.mapper.Registry().Has(typ) {
		response.RenderNotFound(w, fmt.Sprintf("%s: %s", mapper.ErrUnknownResourceType, typ))
		return "", false
	}
	return typ, true
}

func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	if !response.HasJSONAPIBody(r) {
		response.RenderUnsupportedMediaType(w)
		return nil, false
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RenderError(w, http.StatusRequestEntityTooLarge, err)
			return nil, false
		}
		response.RenderBadRequest(w, err.Error())
		return nil, false
	}

	doc, err := mapper.ParseDocument(data)
	if err != nil {
		response.RenderMappingError(w, err)
		return nil, false
	}
	root, ok := doc.(map[string]interface{})
	if !ok {
		response.RenderMappingError(w, fmt.Errorf("%w: $: expected object", mapper.ErrMalformedDocument))
		return nil, false
	}
	return root, true
}

// onlySection rejects documents whose top level describes resources of another type
// than the route's. Those would enter the store without the route's checks.
func onlySection(w http.ResponseWriter, root map[string]interface{}, typ string) bool {
	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == typ || key == mapper.LinkedKey {
			continue
		}
		if _, isArray := root[key].([]interface{}); isArray {
			response.RenderBadRequest(w, fmt.Sprintf("unexpected top-level %s in a %s request", key, typ))
			return false
		}
	}
	return true
}

// load maps root into the shared store. Callers hold mu.
func (s *Server) load(w http.ResponseWriter, root map[string]interface{}) (*mapper.Result, bool) {
	res, err := s.mapper.Load(root, s.store)
	if err != nil {
		response.RenderMappingError(w, err)
		return nil, false
	}
	return res, true
}

func (s *Server) render(w http.ResponseWriter, status int, primary, linked []resource.Resource) {
	if err := response.RenderResources(w, status, s.mapper, primary, linked); err != nil {
		s.logger.Warn("render failed", zap.Error(err))
	}
}

// linkedFor collects the stored resources related to primary that are not primary
// themselves. Targets deleted since they were linked are left out. Callers hold mu.
func (s *Server) linkedFor(primary []resource.Resource) []resource.Resource {
	seen := make(map[resource.Resource]bool, len(primary))
	for _, p := range primary {
		seen[p] = true
	}
	var linked []resource.Resource
	for _, p := range primary {
		for _, rel := range mapper.Related(p) {
			if !seen[rel] && s.store.Contains(rel) {
				seen[rel] = true
				linked = append(linked, rel)
			}
		}
	}
	return linked
}
