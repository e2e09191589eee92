package reqctx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/store"
)

func newTestContext(method, target string) (*Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := New()
	c.Reinitialize(rec, req, "/x", store.NewRegistry(), di.New())
	return c, rec
}

func TestLazyFieldsMemoizeAcrossAccessOrder(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/search?q=flash&q=again")
	u1 := c.URL()
	q := c.Query()
	u2 := c.URL()
	assert.Same(t, u1, u2)
	assert.Equal(t, "flash", q.Get("q"))
}

func TestSetGetClearedOnDispose(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	c.Set("user", 42)
	assert.Equal(t, 42, c.Get("user"))
	assert.Nil(t, c.Get("missing"))
	assert.Equal(t, "def", c.Get("missing", "def"))

	c.Dispose()
	assert.Nil(t, c.Get("user"))
}

func TestParamsDefaultEmptyMap(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	assert.Equal(t, map[string]string{}, c.Params())
	assert.Equal(t, "", c.Param("id"))

	c.SetParams(map[string]string{"id": "42"})
	assert.Equal(t, "42", c.Param("id"))
	assert.Equal(t, 42, c.ParamInt("id"))
}

func TestStoreNotRegisteredPropagates(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	_, err := c.Store("missing")
	require.Error(t, err)
}

func TestRequestStoreLazyCreatedAndDisposed(t *testing.T) {
	reg := store.NewRegistry()
	disposed := false
	reg.RegisterRequestScoped("counter", func() store.Store {
		return &disposableStore{Base: store.NewBase(0, func(_, p any) any { return p }), onDispose: func() { disposed = true }}
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := New()
	c.Reinitialize(rec, req, "/", reg, di.New())

	s1, err := c.RequestStore("counter")
	require.NoError(t, err)
	s2, err := c.RequestStore("counter")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	c.Dispose()
	assert.True(t, disposed)
}

type disposableStore struct {
	*store.Base
	onDispose func()
}

func (d *disposableStore) Dispose() { d.onDispose() }
