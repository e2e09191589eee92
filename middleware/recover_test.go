package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

func runMiddleware(mw pipeline.Middleware, terminal pipeline.Next, r *http.Request) (*reqctx.Context, any, error) {
	w := httptest.NewRecorder()
	c := reqctx.New()
	c.Reinitialize(w, r, r.URL.Path, nil, nil)
	result, err := mw(c, terminal, di.New())
	return c, result, err
}

func TestRecoverMiddlewareRecoversPanic(t *testing.T) {
	mw := Recover()
	r := httptest.NewRequest(http.MethodGet, "/panic", nil)
	_, result, err := runMiddleware(mw, func(c *reqctx.Context) (any, error) { panic("boom") }, r)

	assert.NoError(t, err)
	resp, ok := result.(*reqctx.Response)
	assert.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRecoverMiddlewareWithCustomErrorResponse(t *testing.T) {
	called := false
	mw := Recover(RecoverConfig{
		ErrorResponse: func(c *reqctx.Context, recovered any) error {
			called = true
			return assert.AnError
		},
	})
	r := httptest.NewRequest(http.MethodGet, "/panic", nil)
	_, _, err := runMiddleware(mw, func(c *reqctx.Context) (any, error) { panic("boom") }, r)

	assert.True(t, called)
	assert.Equal(t, assert.AnError, err)
}

func TestRecoverMiddlewareWithOnPanic(t *testing.T) {
	var panicValue any
	mw := Recover(RecoverConfig{
		OnPanic: func(c *reqctx.Context, recovered any) { panicValue = recovered },
	})
	r := httptest.NewRequest(http.MethodGet, "/panic", nil)
	runMiddleware(mw, func(c *reqctx.Context) (any, error) { panic("test panic value") }, r)

	assert.Equal(t, "test panic value", panicValue)
}

func TestRecoverMiddlewareWithPanicInCallback(t *testing.T) {
	mw := Recover(RecoverConfig{
		OnPanic: func(c *reqctx.Context, recovered any) { panic("callback panic") },
	})
	r := httptest.NewRequest(http.MethodGet, "/panic", nil)
	_, result, err := runMiddleware(mw, func(c *reqctx.Context) (any, error) { panic("original panic") }, r)

	assert.NoError(t, err)
	resp := result.(*reqctx.Response)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRecoverMiddlewareNoPanic(t *testing.T) {
	callbackCalled := false
	mw := Recover(RecoverConfig{
		OnPanic: func(c *reqctx.Context, recovered any) { callbackCalled = true },
	})
	r := httptest.NewRequest(http.MethodGet, "/normal", nil)
	_, result, err := runMiddleware(mw, func(c *reqctx.Context) (any, error) {
		return &reqctx.Response{StatusCode: http.StatusOK, Body: []byte("normal response")}, nil
	}, r)

	assert.False(t, callbackCalled)
	assert.NoError(t, err)
	resp := result.(*reqctx.Response)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "normal response", string(resp.Body))
}
