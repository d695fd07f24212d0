package mapper_test

import (
	"time"

	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/registry"
	"github.com/conduit-lang/spine/pkg/resource"
)

// Test models for mapping tests

type Article struct {
	resource.Base
	Title       string
	Views       int64
	PublishedAt time.Time
}

var articleSchema = resource.NewSchema(
	resource.StringField("title", func(a *Article) *string { return &a.Title }),
	resource.IntField("views", func(a *Article) *int64 { return &a.Views }),
	resource.TimeField("published_at", func(a *Article) *time.Time { return &a.PublishedAt }),
	resource.HasOne("author", "authors"),
	resource.HasMany("comments", "comments"),
)

func (*Article) ResourceType() string      { return "articles" }
func (*Article) Schema() *resource.Schema { return articleSchema }

type Author struct {
	resource.Base
	Name string
}

var authorSchema = resource.NewSchema(
	resource.StringField("name", func(a *Author) *string { return &a.Name }),
	resource.HasMany("articles", "articles"),
)

func (*Author) ResourceType() string      { return "authors" }
func (*Author) Schema() *resource.Schema { return authorSchema }

type Comment struct {
	resource.Base
	Body string
}

var commentSchema = resource.NewSchema(
	resource.StringField("body", func(c *Comment) *string { return &c.Body }),
)

func (*Comment) ResourceType() string      { return "comments" }
func (*Comment) Schema() *resource.Schema { return commentSchema }

// Artist, Album and Song mirror a music catalogue API

type Artist struct {
	resource.Base
	Name    string
	Website string
}

var artistSchema = resource.NewSchema(
	resource.StringField("name", func(a *Artist) *string { return &a.Name }),
	resource.StringField("website", func(a *Artist) *string { return &a.Website }),
	resource.HasMany("albums", "albums"),
	resource.HasMany("songs", "songs"),
)

func (*Artist) ResourceType() string      { return "artists" }
func (*Artist) Schema() *resource.Schema { return artistSchema }

type Album struct {
	resource.Base
	Title      string
	ReleasedAt time.Time
}

var albumSchema = resource.NewSchema(
	resource.StringField("title", func(a *Album) *string { return &a.Title }),
	resource.TimeField("released_at", func(a *Album) *time.Time { return &a.ReleasedAt }),
	resource.HasOne("artist", "artists"),
	resource.HasMany("songs", "songs"),
)

func (*Album) ResourceType() string      { return "albums" }
func (*Album) Schema() *resource.Schema { return albumSchema }

type Song struct {
	resource.Base
	Title    string
	Duration int64
	Explicit bool
}

var songSchema = resource.NewSchema(
	resource.StringField("title", func(s *Song) *string { return &s.Title }),
	resource.IntField("duration", func(s *Song) *int64 { return &s.Duration }),
	resource.BoolField("explicit", func(s *Song) *bool { return &s.Explicit }),
	resource.HasOne("album", "albums"),
	resource.HasOne("artist", "artists"),
)

func (*Song) ResourceType() string      { return "songs" }
func (*Song) Schema() *resource.Schema { return songSchema }

func newTestMapper(opts ...mapper.Option) *mapper.Mapper {
	reg := registry.New()
	reg.MustRegister(
		func() resource.Resource { return &Article{} },
		func() resource.Resource { return &Author{} },
		func() resource.Resource { return &Comment{} },
		func() resource.Resource { return &Artist{} },
		func() resource.Resource { return &Album{} },
		func() resource.Resource { return &Song{} },
	)
	return mapper.New(reg, opts...)
}
