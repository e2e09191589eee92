package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/reqctx"
)

func TestCSRFGetSetsCookie(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.(*reqctx.Response).StatusCode)

	rec := c.ResponseWriter().(*httptest.ResponseRecorder)
	require.NotEmpty(t, rec.Result().Cookies())
}

func TestCSRFPostWithoutHeaderForbidden(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c, _, _ := runMiddleware(mw, okTerminal, req)
	ck := c.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies()[0]

	req2 := httptest.NewRequest(http.MethodPost, "/", nil)
	req2.AddCookie(ck)
	_, result, err := runMiddleware(mw, okTerminal, req2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result.(*reqctx.Response).StatusCode)
}

func TestCSRFPostWithMatchingHeaderPasses(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c, _, _ := runMiddleware(mw, okTerminal, req)
	ck := c.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies()[0]

	req2 := httptest.NewRequest(http.MethodPost, "/", nil)
	req2.AddCookie(ck)
	req2.Header.Set("X-CSRF-Token", ck.Value)
	_, result, err := runMiddleware(mw, okTerminal, req2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.(*reqctx.Response).StatusCode)
}

func TestCSRFSafeMethodsSetCookieOnly(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodHead, "/h", nil)
	c, _, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies())
}

func TestCSRFInvalidHeaderForbidden(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	c, _, _ := runMiddleware(mw, okTerminal, req)
	ck := c.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies()[0]

	req2 := httptest.NewRequest(http.MethodPost, "/p", nil)
	req2.AddCookie(ck)
	req2.Header.Set("X-CSRF-Token", "bad")
	_, result, err := runMiddleware(mw, okTerminal, req2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result.(*reqctx.Response).StatusCode)
}

func TestCSRFEnsureCookieNotOverwriteExisting(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c, _, _ := runMiddleware(mw, okTerminal, req)
	first := c.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies()[0]

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(first)
	c2, _, _ := runMiddleware(mw, okTerminal, req2)
	cks2 := c2.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies()
	if len(cks2) > 0 {
		assert.Equal(t, first.Value, cks2[0].Value)
	}
}

func TestCSRFPostNoCookieForbidden(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	_, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result.(*reqctx.Response).StatusCode)
}

func TestCSRFOptionsSetsCookie(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodOptions, "/opt", nil)
	c, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.(*reqctx.Response).StatusCode)
	assert.NotEmpty(t, c.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies())
}

func TestCSRFPostWithEmptyCookieForbidden(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodPost, "/p2", nil)
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: ""})
	_, result, err := runMiddleware(mw, okTerminal, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result.(*reqctx.Response).StatusCode)
}

func TestCSRFPostHeaderWrongLengthForbidden(t *testing.T) {
	mw := CSRF()
	req := httptest.NewRequest(http.MethodGet, "/z", nil)
	c, _, _ := runMiddleware(mw, okTerminal, req)
	ck := c.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies()[0]

	req2 := httptest.NewRequest(http.MethodPost, "/z", nil)
	req2.AddCookie(ck)
	req2.Header.Set("X-CSRF-Token", ck.Value+"x")
	_, result, err := runMiddleware(mw, okTerminal, req2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result.(*reqctx.Response).StatusCode)
}

func TestCSRFCustomConfig(t *testing.T) {
	cfg := CSRFConfig{
		CookieName:     "TKN",
		HeaderName:     "X-My-CSRF",
		TokenLength:    8,
		CookiePath:     "/c",
		CookieDomain:   "example.com",
		CookieSecure:   false,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteStrictMode,
		TTL:            time.Hour,
	}
	mw := CSRF(cfg)

	req := httptest.NewRequest(http.MethodGet, "/c", nil)
	c, _, _ := runMiddleware(mw, okTerminal, req)
	cks := c.ResponseWriter().(*httptest.ResponseRecorder).Result().Cookies()
	require.NotEmpty(t, cks)
	ck := cks[0]
	assert.Equal(t, "TKN", ck.Name)
	assert.Equal(t, "/c", ck.Path)
	assert.Equal(t, "example.com", ck.Domain)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)

	req2 := httptest.NewRequest(http.MethodPost, "/c", nil)
	req2.AddCookie(ck)
	req2.Header.Set("X-My-CSRF", ck.Value)
	_, result, err := runMiddleware(mw, okTerminal, req2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.(*reqctx.Response).StatusCode)

	req3 := httptest.NewRequest(http.MethodPost, "/c", nil)
	req3.AddCookie(ck)
	_, result3, err := runMiddleware(mw, okTerminal, req3)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result3.(*reqctx.Response).StatusCode)
}
