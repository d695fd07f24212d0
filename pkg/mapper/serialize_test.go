package mapper_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/resource"
)

func TestSerializeRepresentationShape(t *testing.T) {
	m := newTestMapper()

	article := &Article{Title: "Hi", Views: 3}
	article.SetID("1")
	comment := &Comment{Body: "Nice"}

	doc, err := m.Serialize(article, comment)
	require.NoError(t, err)
	require.Len(t, doc.Resources["articles"], 1)
	require.Len(t, doc.Resources["comments"], 1)

	rep := doc.Resources["articles"][0]
	assert.Equal(t, "1", rep["id"])
	assert.Equal(t, "Hi", rep["title"])
	assert.Equal(t, json.Number("3"), rep["views"])
	assert.Nil(t, rep["published_at"])

	links, ok := rep["links"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, links, "author")
	assert.Nil(t, links["author"])
	assert.Equal(t, []string{}, links["comments"])

	// No id and no relationships: neither key is emitted
	rep = doc.Resources["comments"][0]
	assert.NotContains(t, rep, "id")
	assert.NotContains(t, rep, "links")
	assert.Equal(t, "Nice", rep["body"])
}

func TestSerializeRelationships(t *testing.T) {
	m := newTestMapper()

	author := &Author{Name: "Ann"}
	author.SetID("9")
	first := &Comment{}
	first.SetID("5")
	second := &Comment{}
	second.SetID("6")

	article := &Article{}
	article.SetID("1")
	article.SetOne("author", author)
	article.SetMany("comments", []resource.Resource{second, first})

	doc, err := m.Serialize(article)
	require.NoError(t, err)

	links := doc.Resources["articles"][0]["links"].(map[string]interface{})
	assert.Equal(t, "9", links["author"])
	assert.Equal(t, []string{"6", "5"}, links["comments"])
}

func TestSerializeOmitsUnsavedToOneTarget(t *testing.T) {
	m := newTestMapper()

	article := &Article{}
	article.SetID("1")
	article.SetOne("author", &Author{Name: "New"})

	doc, err := m.Serialize(article)
	require.NoError(t, err)

	links := doc.Resources["articles"][0]["links"].(map[string]interface{})
	assert.NotContains(t, links, "author")
	assert.Contains(t, links, "comments")
}

func TestSerializeFailsOnUnsavedToManyMember(t *testing.T) {
	m := newTestMapper()

	saved := &Comment{}
	saved.SetID("5")
	article := &Article{}
	article.SetID("1")
	article.SetMany("comments", []resource.Resource{saved, &Comment{Body: "draft"}})

	_, err := m.Serialize(article)
	require.Error(t, err)
	assert.True(t, mapper.IsUnsaved(err))
	assert.Contains(t, err.Error(), "articles/1.comments[1]")
}

func TestSerializePendingRelationships(t *testing.T) {
	m := newTestMapper()

	article := &Article{}
	article.SetID("1")
	article.SetPending("author", &resource.Descriptor{Kind: resource.ToOne, TargetType: "authors", TargetID: "9"})
	article.SetPending("comments", &resource.Descriptor{Kind: resource.ToMany, TargetType: "comments", TargetIDs: []string{"1", "2"}})

	doc, err := m.Serialize(article)
	require.NoError(t, err)

	links := doc.Resources["articles"][0]["links"].(map[string]interface{})
	assert.Equal(t, "9", links["author"])
	assert.Equal(t, []string{"1", "2"}, links["comments"])
}

func TestSerializeDateAttribute(t *testing.T) {
	m := newTestMapper()

	zone := time.FixedZone("", 2*60*60)
	article := &Article{PublishedAt: time.Date(2014, 8, 23, 10, 0, 0, 0, zone)}
	article.SetID("1")

	doc, err := m.Serialize(article)
	require.NoError(t, err)
	assert.Equal(t, "2014-08-23T10:00:00+02:00", doc.Resources["articles"][0]["published_at"])

	article.PublishedAt = time.Date(2014, 8, 23, 8, 0, 0, 0, time.UTC)
	doc, err = m.Serialize(article)
	require.NoError(t, err)
	assert.Equal(t, "2014-08-23T08:00:00Z", doc.Resources["articles"][0]["published_at"])
}

func TestSerializeGroupsByTypeInOrder(t *testing.T) {
	m := newTestMapper()

	var resources []resource.Resource
	for _, id := range []string{"3", "1", "2"} {
		c := &Comment{}
		c.SetID(id)
		resources = append(resources, c)
	}
	resources = append(resources, nil)

	doc, err := m.Serialize(resources...)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Len())

	var ids []interface{}
	for _, rep := range doc.Resources["comments"] {
		ids = append(ids, rep["id"])
	}
	assert.Equal(t, []interface{}{"3", "1", "2"}, ids)
}

func TestRoundTripThroughDocumentTree(t *testing.T) {
	m := newTestMapper()

	s, err := m.Deserialize(parse(t, `{
		"albums":[{"id":"10","title":"Blue","released_at":"1971-06-22T00:00:00Z","links":{"artist":"1","songs":["100","101"]}}],
		"linked":{
			"artists":[{"id":"1","name":"Joni","website":"https://jonimitchell.com","links":{"albums":["10"],"songs":[]}}],
			"songs":[
				{"id":"100","title":"All I Want","duration":214,"explicit":false,"links":{"album":"10","artist":"1"}},
				{"id":"101","title":"My Old Man","duration":214,"explicit":false,"links":{"album":"10","artist":"1"}}
			]
		}
	}`))
	require.NoError(t, err)

	album := lookup(t, s, "albums", "10")
	doc, err := m.SerializeCompound([]resource.Resource{album}, mapper.Related(album))
	require.NoError(t, err)
	require.Len(t, doc.Linked["artists"], 1)
	require.Len(t, doc.Linked["songs"], 2)

	again, err := m.Deserialize(doc.Tree())
	require.NoError(t, err)
	assert.Equal(t, s.Len()-0, again.Len())

	copyAlbum := lookup(t, again, "albums", "10").(*Album)
	assert.Equal(t, "Blue", copyAlbum.Title)
	assert.True(t, album.(*Album).ReleasedAt.Equal(copyAlbum.ReleasedAt))
	assert.Same(t, lookup(t, again, "artists", "1"), copyAlbum.One("artist"))

	songs := copyAlbum.Many("songs")
	require.Len(t, songs, 2)
	assert.Equal(t, "100", resource.BaseOf(songs[0]).ID())
	assert.Equal(t, "101", resource.BaseOf(songs[1]).ID())
	assert.Equal(t, int64(214), songs[0].(*Song).Duration)
	assert.Same(t, copyAlbum, songs[0].(*Song).One("album"))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	m := newTestMapper()

	song := &Song{Title: "Case of You", Duration: 260, Explicit: true}
	song.SetID("7")
	song.SetExtra("bpm", resource.Int(120))

	data, err := m.Marshal(song)
	require.NoError(t, err)
	assert.JSONEq(t, `{"songs":[{"id":"7","title":"Case of You","duration":260,"explicit":true,"links":{"album":null,"artist":null}}]}`, string(data))

	res, err := m.Unmarshal(data, nil)
	require.NoError(t, err)
	got := lookup(t, res.Store, "songs", "7").(*Song)
	assert.Equal(t, song.Title, got.Title)
	assert.Equal(t, song.Duration, got.Duration)
	assert.True(t, got.Explicit)
	assert.Nil(t, got.One("album"))
}

func TestRelatedSkipsPlaceholdersAndDuplicates(t *testing.T) {
	m := newTestMapper()

	s, err := m.Deserialize(parse(t, `{
		"songs":[{"id":"1","links":{"album":"10","artist":"2"}}],
		"linked":{"albums":[{"id":"10","links":{"artist":"2"}}]}
	}`))
	require.NoError(t, err)

	related := mapper.Related(lookup(t, s, "songs", "1"))
	require.Len(t, related, 1)
	assert.Same(t, lookup(t, s, "albums", "10"), related[0])
}
