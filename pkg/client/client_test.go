package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/spine/internal/web/fixture"
	"github.com/conduit-lang/spine/pkg/client"
	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/registry"
	"github.com/conduit-lang/spine/pkg/resource"
)

type Post struct {
	resource.Base
	Title string
}

var postSchema = resource.NewSchema(
	resource.StringField("title", func(p *Post) *string { return &p.Title }),
	resource.HasOne("writer", "writers"),
	resource.HasMany("tags", "tags"),
)

func (*Post) ResourceType() string      { return "posts" }
func (*Post) Schema() *resource.Schema { return postSchema }

type Writer struct {
	resource.Base
	Name string
}

var writerSchema = resource.NewSchema(
	resource.StringField("name", func(w *Writer) *string { return &w.Name }),
)

func (*Writer) ResourceType() string      { return "writers" }
func (*Writer) Schema() *resource.Schema { return writerSchema }

type Tag struct {
	resource.Base
	Label string
}

var tagSchema = resource.NewSchema(
	resource.StringField("label", func(t *Tag) *string { return &t.Label }),
)

func (*Tag) ResourceType() string      { return "tags" }
func (*Tag) Schema() *resource.Schema { return tagSchema }

func newMapper() *mapper.Mapper {
	reg := registry.New()
	reg.MustRegister(
		func() resource.Resource { return &Post{} },
		func() resource.Resource { return &Writer{} },
		func() resource.Resource { return &Tag{} },
	)
	return mapper.New(reg)
}

func setupAPI(t *testing.T) *httptest.Server {
	t.Helper()

	n := 0
	srv := fixture.New(newMapper(), fixture.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("p%d", n)
	}))
	require.NoError(t, srv.Seed([]byte(`{
		"posts":[{"id":"1","title":"First","links":{"writer":"w1","tags":["t1","t2"]}}],
		"linked":{
			"writers":[{"id":"w1","name":"Wren"}],
			"tags":[{"id":"t1","label":"go"},{"id":"t2","label":"json"}]
		}
	}`)))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestFetch(t *testing.T) {
	ts := setupAPI(t)
	c := client.New(ts.URL+"/", newMapper())

	res, err := c.Fetch(context.Background(), "/posts/1", nil)
	require.NoError(t, err)
	require.Len(t, res.Primary, 1)

	post := res.Primary[0].(*Post)
	assert.Equal(t, "First", post.Title)

	writer, ok := res.Store.Lookup("writers", "w1")
	require.True(t, ok)
	assert.Same(t, writer, post.One("writer"))
	assert.Equal(t, "Wren", writer.(*Writer).Name)
	assert.Len(t, post.Many("tags"), 2)
}

func TestFetchMergesIntoStore(t *testing.T) {
	ts := setupAPI(t)
	c := client.New(ts.URL, newMapper())

	first, err := c.Fetch(context.Background(), "writers/w1", nil)
	require.NoError(t, err)
	writer, _ := first.Store.Lookup("writers", "w1")

	second, err := c.Fetch(context.Background(), "posts", first.Store)
	require.NoError(t, err)
	assert.Same(t, first.Store, second.Store)
	assert.Same(t, writer, second.Primary[0].(*Post).One("writer"))
}

func TestFetchErrors(t *testing.T) {
	ts := setupAPI(t)
	c := client.New(ts.URL, newMapper())

	_, err := c.Fetch(context.Background(), "posts/404", nil)
	require.Error(t, err)

	var httpErr *client.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, "posts/404 not found", httpErr.Message())
	assert.Contains(t, httpErr.Error(), "404")
}

func TestFetchRejectsMalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["not","a","document"]`))
	}))
	defer ts.Close()

	_, err := client.New(ts.URL, newMapper()).Fetch(context.Background(), "posts", nil)
	require.Error(t, err)
	assert.True(t, mapper.IsMalformed(err))
}

func TestFetchTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	c := client.New(ts.URL, newMapper(), client.WithTimeout(50*time.Millisecond))
	_, err := c.Fetch(context.Background(), "posts", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSaveCreatesAndUpdates(t *testing.T) {
	ts := setupAPI(t)
	core, logs := observer.New(zap.DebugLevel)
	c := client.New(ts.URL, newMapper(), client.WithLogger(zap.New(core)), client.WithHTTPClient(ts.Client()))

	res, err := c.Fetch(context.Background(), "posts/1", nil)
	require.NoError(t, err)
	s := res.Store
	writer, _ := s.Lookup("writers", "w1")

	draft := &Post{Title: "Draft"}
	draft.SetOne("writer", writer)
	draft.SetMany("tags", nil)

	existing := res.Primary[0].(*Post)
	existing.Title = "First, revised"

	out, err := c.Save(context.Background(), "posts", s, draft, existing)
	require.NoError(t, err)
	assert.Same(t, s, out)

	assert.Equal(t, "p1", draft.ID())
	stored, ok := s.Lookup("posts", "p1")
	require.True(t, ok)
	assert.Same(t, draft, stored)
	assert.Same(t, writer, draft.One("writer"))

	check, err := c.Fetch(context.Background(), "posts/1", nil)
	require.NoError(t, err)
	assert.Equal(t, "First, revised", check.Primary[0].(*Post).Title)

	assert.GreaterOrEqual(t, logs.FilterMessage("request").Len(), 4)
}

func TestSaveRefusesUnsavedChildren(t *testing.T) {
	ts := setupAPI(t)
	c := client.New(ts.URL, newMapper())

	post := &Post{Title: "With new tag"}
	post.SetMany("tags", []resource.Resource{&Tag{Label: "new"}})

	_, err := c.Save(context.Background(), "posts", nil, post)
	require.Error(t, err)
	assert.True(t, mapper.IsUnsaved(err))
	assert.False(t, post.HasID())
}
