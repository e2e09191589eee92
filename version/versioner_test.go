package version

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestVersioner() *Versioner {
	return New(Config{
		Strategies:     []Strategy{StrategyPath, StrategyHeader},
		Header:         "api-version",
		DefaultVersion: "v1",
		Register:       []string{"v1", "v2"},
	})
}

func TestResolveDefault(t *testing.T) {
	v := newTestVersioner()
	r := httptest.NewRequest("POST", "/login", nil)
	res := v.Resolve(r)
	assert.Equal(t, "v1", res.Version)
	assert.Equal(t, SourceDefault, res.Source)
	assert.Equal(t, "/v1/login", res.MatchPath)
}

func TestResolvePath(t *testing.T) {
	v := newTestVersioner()
	r := httptest.NewRequest("POST", "/v2/login", nil)
	res := v.Resolve(r)
	assert.Equal(t, "v2", res.Version)
	assert.Equal(t, SourcePath, res.Source)
	assert.Equal(t, "/v2/login", res.MatchPath)
}

func TestResolveHeader(t *testing.T) {
	v := newTestVersioner()
	r := httptest.NewRequest("POST", "/login", nil)
	r.Header.Set("api-version", "v2")
	res := v.Resolve(r)
	assert.Equal(t, "v2", res.Version)
	assert.Equal(t, SourceHeader, res.Source)
	assert.Equal(t, "/v2/login", res.MatchPath)
}

func TestUnregisteredVersionFallsThrough(t *testing.T) {
	v := newTestVersioner()
	r := httptest.NewRequest("POST", "/v9/login", nil)
	res := v.Resolve(r)
	assert.Equal(t, "v1", res.Version)
	assert.Equal(t, SourceDefault, res.Source)
}

func TestExpandRegistrationPaths(t *testing.T) {
	v := newTestVersioner()
	paths := v.ExpandRegistrationPaths("/login")
	assert.ElementsMatch(t, []string{"/v1/login", "/v2/login"}, paths)
}

func TestExpandAlreadyVersionedPathUnchanged(t *testing.T) {
	v := newTestVersioner()
	paths := v.ExpandRegistrationPaths("/v2/admin/login")
	assert.Equal(t, []string{"/v2/admin/login"}, paths)
}
