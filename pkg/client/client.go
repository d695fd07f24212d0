// Package client fetches and saves resources over HTTP, mapping response documents into
// a caller-held store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/spine/internal/web/response"
	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/resource"
	"github.com/conduit-lang/spine/pkg/store"
)

// maxErrorBody caps how much of a failed response is kept in an HTTPError
const maxErrorBody = 4096

// HTTPError is returned when the server answers with a non-2xx status
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Client talks to a resource API rooted at a base URL
type Client struct {
	baseURL    string
	mapper     *mapper.Mapper
	httpClient *http.Client
	logger     *zap.Logger
	timeout    time.Duration
	token      string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds every request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithToken sends token as a bearer credential on every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a client for the API at baseURL
func New(baseURL string, m *mapper.Mapper, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		mapper:     m,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch GETs path and maps the response document into s. A nil store is replaced by a
// fresh one.
func (c *Client) Fetch(ctx context.Context, path string, s *store.Store) (*mapper.Result, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.mapper.Unmarshal(data, s)
}

// Save sends resources to the collection at path. Resources without an id are POSTed
// together and receive the ids the server assigned, in order; persisted resources are
// PUT to path/{id} one by one. Response documents are merged into s, which is returned.
func (c *Client) Save(ctx context.Context, path string, s *store.Store, resources ...resource.Resource) (*store.Store, error) {
	if s == nil {
		s = store.New()
	}

	var fresh, persisted []resource.Resource
	for _, r := range resources {
		if r == nil {
			continue
		}
		if resource.BaseOf(r).HasID() {
			persisted = append(persisted, r)
		} else {
			fresh = append(fresh, r)
		}
	}

	if len(fresh) > 0 {
		if err := c.create(ctx, path, s, fresh); err != nil {
			return s, err
		}
	}

	for _, r := range persisted {
		body, err := c.mapper.Marshal(r)
		if err != nil {
			return s, err
		}
		data, err := c.do(ctx, http.MethodPut, path+"/"+resource.BaseOf(r).ID(), body)
		if err != nil {
			return s, err
		}
		if err := adopt(s, r); err != nil {
			return s, err
		}
		if _, err := c.mapper.Unmarshal(data, s); err != nil {
			return s, err
		}
	}

	return s, nil
}

func (c *Client) create(ctx context.Context, path string, s *store.Store, fresh []resource.Resource) error {
	body, err := c.mapper.Marshal(fresh...)
	if err != nil {
		return err
	}
	data, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}

	// Read the assigned ids from a scratch run, then let the caller's instances take
	// their keys before the real merge so the response enriches them in place
	scratch, err := c.mapper.Unmarshal(data, nil)
	if err != nil {
		return err
	}
	typ := fresh[0].ResourceType()
	var assigned []string
	for _, p := range scratch.Primary {
		if p.ResourceType() == typ && resource.BaseOf(p).HasID() {
			assigned = append(assigned, resource.BaseOf(p).ID())
		}
	}
	if len(assigned) != len(fresh) {
		return fmt.Errorf("server returned %d %s for %d created resources", len(assigned), typ, len(fresh))
	}

	for i, r := range fresh {
		resource.BaseOf(r).SetID(assigned[i])
		if err := adopt(s, r); err != nil {
			return err
		}
	}

	_, err = c.mapper.Unmarshal(data, s)
	return err
}

// adopt puts r into s unless its key is already taken
func adopt(s *store.Store, r resource.Resource) error {
	key, _ := resource.KeyOf(r)
	if _, exists := s.Lookup(key.Type, key.ID); exists {
		return nil
	}
	return s.Add(r)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", response.JSONAPIMediaType)
	if body != nil {
		req.Header.Set("Content-Type", response.JSONAPIMediaType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("method", method), zap.String("url", url), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &HTTPError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: data}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	return data, nil
}

// Message extracts the server's error message from e's body, if it carries one
func (e *HTTPError) Message() string {
	var body response.ErrorResponse
	if err := json.Unmarshal(e.Body, &body); err != nil || body.Message == "" {
		return strings.TrimSpace(string(e.Body))
	}
	return body.Message
}
