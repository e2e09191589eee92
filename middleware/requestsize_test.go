package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/reqctx"
)

func TestRequestSizeWithinLimit(t *testing.T) {
	mw := RequestSize(RequestSizeConfig{MaxSize: 1024})
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("small body"))
	req.Header.Set("Content-Length", "10")
	req.ContentLength = 10

	_, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.(*reqctx.Response).StatusCode)
}

func TestRequestSizeExceedsLimit(t *testing.T) {
	mw := RequestSize(RequestSizeConfig{MaxSize: 10})
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("this body is longer than 10 bytes"))
	req.ContentLength = 35

	c, result, err := runMiddleware(mw, func(c *reqctx.Context) (any, error) {
		t.Fatal("handler should not be reached")
		return nil, nil
	}, req)
	require.NoError(t, err)

	resp := result.(*reqctx.Response)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Headers.Get("X-Content-Type-Options"))
	body := string(resp.Body)
	for _, field := range []string{"error", "code", "limit"} {
		assert.Contains(t, body, field)
	}
	_ = c
}

func TestRequestSizeNoContentLength(t *testing.T) {
	mw := RequestSize(RequestSizeConfig{MaxSize: 10})
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("this body is longer than 10 bytes"))
	req.ContentLength = -1

	_, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.(*reqctx.Response).StatusCode)
}

func TestRequestSizeZeroMaxSizeIsNoOp(t *testing.T) {
	mw := RequestSize(RequestSizeConfig{MaxSize: 0})
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("anything, any size"))
	req.ContentLength = 1 << 30

	_, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.(*reqctx.Response).StatusCode)
}

func TestRequestSizeExactlyAtLimitPasses(t *testing.T) {
	mw := RequestSize(RequestSizeConfig{MaxSize: 10})
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("0123456789"))
	req.ContentLength = 10

	_, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.(*reqctx.Response).StatusCode)
}

func TestRequestSizeCustomErrorResponse(t *testing.T) {
	var gotSize, gotLimit int64
	mw := RequestSize(RequestSizeConfig{
		MaxSize: 5,
		ErrorResponse: func(c *reqctx.Context, size, limit int64) (any, error) {
			gotSize, gotLimit = size, limit
			return &reqctx.Response{StatusCode: 599, Body: []byte("too big")}, nil
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("way too much data"))
	req.ContentLength = 18

	_, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	resp := result.(*reqctx.Response)
	assert.Equal(t, 599, resp.StatusCode)
	assert.Equal(t, "too big", string(resp.Body))
	assert.Equal(t, int64(18), gotSize)
	assert.Equal(t, int64(5), gotLimit)
}
