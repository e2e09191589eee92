package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticBeatsParam(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/users/:id/posts", "param-handler", nil))
	require.NoError(t, rt.Insert("GET", "/users/me/posts", "static-handler", nil))

	m, ok := rt.Match("GET", "/users/me/posts")
	require.True(t, ok)
	assert.Equal(t, "static-handler", m.Route.Handler)

	m, ok = rt.Match("GET", "/users/123/posts")
	require.True(t, ok)
	assert.Equal(t, "param-handler", m.Route.Handler)
	assert.Equal(t, "123", m.Params["id"])
}

func TestWildcardLast(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/files/:name", "name-handler", nil))
	require.NoError(t, rt.Insert("GET", "/files/*rest", "wild-handler", nil))

	m, ok := rt.Match("GET", "/files/a")
	require.True(t, ok)
	assert.Equal(t, "name-handler", m.Route.Handler)
	assert.Equal(t, "a", m.Params["name"])

	m, ok = rt.Match("GET", "/files/a/b/c")
	require.True(t, ok)
	assert.Equal(t, "wild-handler", m.Route.Handler)
	assert.Equal(t, "a/b/c", m.Params["rest"])
}

func TestRegexParam(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/items/:id(\\d+)", "numeric", nil))
	require.NoError(t, rt.Insert("GET", "/items/:slug", "slug", nil))

	m, ok := rt.Match("GET", "/items/42")
	require.True(t, ok)
	assert.Equal(t, "numeric", m.Route.Handler)
	assert.Equal(t, "42", m.Params["id"])

	m, ok = rt.Match("GET", "/items/latest")
	require.True(t, ok)
	assert.Equal(t, "slug", m.Route.Handler)
	assert.Equal(t, "latest", m.Params["slug"])
}

func TestInlinePattern(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/posts/category-:slug(\\w+)-:page(\\d+)", "pattern-handler", nil))

	m, ok := rt.Match("GET", "/posts/category-tech-3")
	require.True(t, ok)
	assert.Equal(t, "pattern-handler", m.Route.Handler)
	assert.Equal(t, "tech", m.Params["slug"])
	assert.Equal(t, "3", m.Params["page"])

	_, ok = rt.Match("GET", "/posts/not-a-match")
	assert.False(t, ok)
}

func TestFileDotExtPattern(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/download/file.:ext", "download", nil))

	m, ok := rt.Match("GET", "/download/file.png")
	require.True(t, ok)
	assert.Equal(t, "png", m.Params["ext"])
}

func TestDuplicatePath(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/a/b", "h1", nil))
	err := rt.Insert("GET", "/a/b", "h2", nil)
	require.Error(t, err)
	var dup *DuplicatePathError
	assert.ErrorAs(t, err, &dup)
}

func TestEmptyPathIsRoot(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/", "root", nil))
	m, ok := rt.Match("GET", "")
	require.True(t, ok)
	assert.Equal(t, "root", m.Route.Handler)
}

func TestTrailingSlashTrimmed(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/a/b/", "h", nil))
	m, ok := rt.Match("GET", "/a/b")
	require.True(t, ok)
	assert.Equal(t, "h", m.Route.Handler)
}

func TestMiss(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/a", "h", nil))
	_, ok := rt.Match("GET", "/b")
	assert.False(t, ok)
	_, ok = rt.Match("POST", "/a")
	assert.False(t, ok)
}

func TestWildcardBindsEmptyString(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Insert("GET", "/assets/*path", "assets", nil))
	m, ok := rt.Match("GET", "/assets")
	require.True(t, ok)
	assert.Equal(t, "", m.Params["path"])
}

func TestFreezeRejectsInsert(t *testing.T) {
	rt := New()
	rt.Freeze()
	err := rt.Insert("GET", "/x", "h", nil)
	require.Error(t, err)
	var fe *FrozenError
	assert.ErrorAs(t, err, &fe)
}
