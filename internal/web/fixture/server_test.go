package fixture_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/spine/internal/web/auth"
	"github.com/conduit-lang/spine/internal/web/cache"
	"github.com/conduit-lang/spine/internal/web/fixture"
	"github.com/conduit-lang/spine/internal/web/ratelimit"
	"github.com/conduit-lang/spine/internal/web/response"
	"github.com/conduit-lang/spine/internal/web/websocket"
	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/registry"
	"github.com/conduit-lang/spine/pkg/schema"
)

const blogSchema = `
resources:
  - type: articles
    attributes:
      - name: title
      - name: author
        kind: to-one
        target: authors
  - type: authors
    attributes:
      - name: name
`

const blogSeed = `{
	"articles":[
		{"id":"1","title":"Hello","links":{"author":"9"}},
		{"id":"2","title":"Again","links":{"author":"9"}}
	],
	"linked":{"authors":[{"id":"9","name":"Ann"}]}
}`

func setupFixture(t *testing.T) (*httptest.Server, *fixture.Server) {
	t.Helper()

	f, err := schema.Parse([]byte(blogSchema))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, f.Register(reg))

	n := 0
	srv := fixture.New(mapper.New(reg), fixture.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}))
	require.NoError(t, srv.Seed([]byte(blogSeed)))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Accept", response.JSONAPIMediaType)
	if body != "" {
		req.Header.Set("Content-Type", response.JSONAPIMediaType)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), string(data))
	}
	return resp, decoded
}

func TestListIncludesLinkedResources(t *testing.T) {
	ts, _ := setupFixture(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/articles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, response.JSONAPIMediaType, resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	articles := body["articles"].([]interface{})
	assert.Len(t, articles, 2)

	linked := body["linked"].(map[string]interface{})
	authors := linked["authors"].([]interface{})
	require.Len(t, authors, 1)
	assert.Equal(t, "Ann", authors[0].(map[string]interface{})["name"])
}

func TestShow(t *testing.T) {
	ts, _ := setupFixture(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/articles/2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	article := body["articles"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Again", article["title"])
	assert.Equal(t, "9", article["links"].(map[string]interface{})["author"])
	assert.Contains(t, body, "linked")

	resp, body = do(t, http.MethodGet, ts.URL+"/articles/42", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["code"])
}

func TestUnknownTypeIsNotFound(t *testing.T) {
	ts, _ := setupFixture(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/planets", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["message"], "planets")
}

func TestCreateAssignsIDs(t *testing.T) {
	ts, srv := setupFixture(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/articles", `{"articles":[{"title":"Fresh","links":{"author":"9"}}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/articles/new-1", resp.Header.Get("Location"))

	created := body["articles"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "new-1", created["id"])
	assert.Equal(t, 4, srv.Len())

	resp, body = do(t, http.MethodGet, ts.URL+"/articles/new-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Fresh", body["articles"].([]interface{})[0].(map[string]interface{})["title"])
	assert.Contains(t, body, "linked")
}

func TestCreateCollapsesRepeatedIDs(t *testing.T) {
	ts, srv := setupFixture(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/articles", `{"articles":[{"id":"a1","title":"x"},{"id":"a1","title":"y"}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/articles/a1", resp.Header.Get("Location"))

	created := body["articles"].([]interface{})
	require.Len(t, created, 1)
	assert.Equal(t, "y", created[0].(map[string]interface{})["title"])
	assert.Equal(t, 4, srv.Len())
}

func TestCreateRejections(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		status      int
		code        string
	}{
		{name: "existing id", body: `{"articles":[{"id":"1"}]}`, status: http.StatusConflict, code: "conflict"},
		{name: "invalid json", body: `{"articles":`, status: http.StatusBadRequest, code: "malformed_document"},
		{name: "root array", body: `[{"title":"x"}]`, status: http.StatusBadRequest, code: "malformed_document"},
		{name: "wrong type", body: `{"authors":[{"name":"x"}]}`, status: http.StatusBadRequest, code: "bad_request"},
		{name: "second top-level type", body: `{"articles":[{"title":"x"}],"authors":[{"id":"5","name":"Zed"}]}`, status: http.StatusBadRequest, code: "bad_request"},
		{name: "unknown relationship type", body: `{"articles":[{"links":{"author":{"id":"1","type":"ghosts"}}}]}`, status: http.StatusUnprocessableEntity, code: "unknown_resource_type"},
		{name: "plain text", body: `{"articles":[{}]}`, contentType: "text/plain", status: http.StatusUnsupportedMediaType, code: "unsupported_media_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, srv := setupFixture(t)

			req, err := http.NewRequest(http.MethodPost, ts.URL+"/articles", strings.NewReader(tt.body))
			require.NoError(t, err)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			var body response.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, 3, srv.Len())
		})
	}
}

func TestUpdate(t *testing.T) {
	ts, _ := setupFixture(t)

	resp, body := do(t, http.MethodPut, ts.URL+"/articles/1", `{"articles":[{"title":"Edited","links":{"author":null}}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	article := body["articles"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Edited", article["title"])
	assert.Nil(t, article["links"].(map[string]interface{})["author"])

	_, body = do(t, http.MethodGet, ts.URL+"/articles/1", "")
	assert.Equal(t, "Edited", body["articles"].([]interface{})[0].(map[string]interface{})["title"])
	assert.NotContains(t, body, "linked")
}

func TestUpdateRejections(t *testing.T) {
	ts, _ := setupFixture(t)

	resp, _ := do(t, http.MethodPut, ts.URL+"/articles/1", `{"articles":[{"id":"2","title":"x"}]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/articles/77", `{"articles":[{"title":"x"}]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/articles/1", `{"articles":[{"title":"x"},{"title":"y"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/articles/1", `{"articles":[{"title":"x"}],"authors":[{"id":"9","name":"Eve"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A rejected document leaves the stored resource untouched
	resp, _ = do(t, http.MethodPut, ts.URL+"/articles/1", `{"articles":[{"title":"x","links":{"author":{"id":"1","type":"ghosts"}}}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	_, body := do(t, http.MethodGet, ts.URL+"/articles/1", "")
	assert.Equal(t, "Hello", body["articles"].([]interface{})[0].(map[string]interface{})["title"])
}

func TestDelete(t *testing.T) {
	ts, srv := setupFixture(t)

	resp, _ := do(t, http.MethodDelete, ts.URL+"/articles/1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 2, srv.Len())

	resp, _ = do(t, http.MethodDelete, ts.URL+"/articles/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletedResourcesAreNotLinked(t *testing.T) {
	ts, _ := setupFixture(t)

	resp, _ := do(t, http.MethodDelete, ts.URL+"/authors/9", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, http.MethodGet, ts.URL+"/articles/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "linked")

	resp, body = do(t, http.MethodGet, ts.URL+"/articles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "linked")
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := setupFixture(t)

	resp, _ := do(t, http.MethodPatch, ts.URL+"/articles/1", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Allow"))
}

func TestSeedRejectsBadDocuments(t *testing.T) {
	_, srv := setupFixture(t)

	err := srv.Seed([]byte(`{"ghosts":[{"id":"1"}]}`))
	require.Error(t, err)
	assert.True(t, mapper.IsUnknownType(err))
	assert.Equal(t, 3, srv.Len())
}

func TestCachedReadsAreClearedByWrites(t *testing.T) {
	f, err := schema.Parse([]byte(blogSchema))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, f.Register(reg))

	srv := fixture.New(mapper.New(reg), fixture.WithCache(cache.NewMemoryCache(cache.DefaultConfig())))
	require.NoError(t, srv.Seed([]byte(blogSeed)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, _ := do(t, http.MethodGet, ts.URL+"/articles", "")
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	resp, body := do(t, http.MethodGet, ts.URL+"/articles", "")
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Len(t, body["articles"].([]interface{}), 2)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/articles/2", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/articles", "")
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.Len(t, body["articles"].([]interface{}), 1)
}

func TestSnapshotReseedsAnEqualStore(t *testing.T) {
	ts, srv := setupFixture(t)

	resp, _ := do(t, http.MethodPost, ts.URL+"/articles", `{"articles":[{"title":"Fresh","links":{"author":"9"}}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data, err := srv.Snapshot()
	require.NoError(t, err)

	f, err := schema.Parse([]byte(blogSchema))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, f.Register(reg))

	restored := fixture.New(mapper.New(reg))
	require.NoError(t, restored.Seed(data))
	assert.Equal(t, srv.Len(), restored.Len())

	again, err := restored.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestChangesArePublished(t *testing.T) {
	f, err := schema.Parse([]byte(blogSchema))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, f.Register(reg))

	hub := websocket.NewHub(nil)
	defer hub.Close()
	srv := fixture.New(mapper.New(reg),
		fixture.WithHub(hub),
		fixture.WithCache(cache.NewMemoryCache(cache.DefaultConfig())),
		fixture.WithIDGenerator(func() string { return "n1" }),
	)
	require.NoError(t, srv.Seed([]byte(blogSeed)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/_events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	resp, _ := do(t, http.MethodPost, ts.URL+"/authors", `{"authors":[{"name":"Bo"}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, ts.URL+"/authors/n1", `{"authors":[{"name":"Bob"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, ts.URL+"/authors/n1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	want := []websocket.Change{
		{Action: websocket.Created, Type: "authors", ID: "n1"},
		{Action: websocket.Updated, Type: "authors", ID: "n1"},
		{Action: websocket.Deleted, Type: "authors", ID: "n1"},
	}
	for _, w := range want {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var got websocket.Change
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, w, got)
	}
}

func TestWritesRequireToken(t *testing.T) {
	f, err := schema.Parse([]byte(blogSchema))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, f.Register(reg))

	issuer := auth.NewIssuer("s3cret", time.Hour)
	srv := fixture.New(mapper.New(reg), fixture.WithAuth(issuer))
	require.NoError(t, srv.Seed([]byte(blogSeed)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, _ := do(t, http.MethodGet, ts.URL+"/articles", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodDelete, ts.URL+"/articles/2", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["code"])
	assert.Equal(t, 3, srv.Len())

	token, err := issuer.Issue("tester")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/articles/2", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authed.Body.Close()
	assert.Equal(t, http.StatusNoContent, authed.StatusCode)
	assert.Equal(t, 2, srv.Len())
}

func TestRateLimitedClients(t *testing.T) {
	f, err := schema.Parse([]byte(blogSchema))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, f.Register(reg))

	limiter, err := ratelimit.NewTokenBucket(ratelimit.Config{Limit: 2, Window: time.Hour}, 0)
	require.NoError(t, err)
	defer limiter.Close()

	srv := fixture.New(mapper.New(reg), fixture.WithRateLimit(limiter))
	require.NoError(t, srv.Seed([]byte(blogSeed)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	for i := 0; i < 2; i++ {
		resp, _ := do(t, http.MethodGet, ts.URL+"/articles", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := do(t, http.MethodGet, ts.URL+"/articles", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
