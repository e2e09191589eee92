package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

// CSRFConfig configures the double-submit cookie CSRF middleware.
type CSRFConfig struct {
	// CookieName is the name of the CSRF cookie, e.g. "_csrf".
	CookieName string
	// HeaderName is the header the client must echo the token back in.
	HeaderName string
	// TokenLength is the token size in bytes before base64 encoding.
	TokenLength int
	// CookiePath sets the cookie's path attribute.
	CookiePath string
	// CookieDomain sets the cookie's domain attribute.
	CookieDomain string
	// CookieSecure sets the cookie's Secure flag.
	CookieSecure bool
	// CookieHTTPOnly sets the cookie's HttpOnly flag.
	CookieHTTPOnly bool
	// CookieSameSite sets the cookie's SameSite policy.
	CookieSameSite http.SameSite
	// TTL sets the cookie's expiration.
	TTL time.Duration
}

// DefaultCSRFConfig returns 32-byte tokens in a secure, HttpOnly,
// SameSite=Lax cookie with a 12-hour TTL.
func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		CookieName:     "_csrf",
		HeaderName:     "X-CSRF-Token",
		TokenLength:    32,
		CookiePath:     "/",
		CookieSecure:   true,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
		TTL:            12 * time.Hour,
	}
}

// CSRF protects unsafe methods (everything but GET/HEAD/OPTIONS) with the
// double-submit cookie pattern: safe methods get a token cookie if they
// don't already carry one; unsafe methods must echo that cookie's value
// back in HeaderName, compared in constant time.
func CSRF(cfgs ...CSRFConfig) pipeline.Middleware {
	cfg := DefaultCSRFConfig()
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		if c.Method() == http.MethodGet || c.Method() == http.MethodHead || c.Method() == http.MethodOptions {
			ensureCSRFCookie(c, cfg)
			return next(c)
		}
		cookie, err := c.Request().Cookie(cfg.CookieName)
		if err != nil || cookie.Value == "" {
			return &reqctx.Response{StatusCode: http.StatusForbidden, Body: []byte("CSRF token missing")}, nil
		}
		headerTok := c.Request().Header.Get(cfg.HeaderName)
		if headerTok == "" || !compareTokens(cookie.Value, headerTok) {
			return &reqctx.Response{StatusCode: http.StatusForbidden, Body: []byte("CSRF token invalid")}, nil
		}
		return next(c)
	}
}

// ensureCSRFCookie sets a CSRF cookie if one doesn't already exist.
func ensureCSRFCookie(c *reqctx.Context, cfg CSRFConfig) {
	cookie, err := c.Request().Cookie(cfg.CookieName)
	if err == nil && cookie.Value != "" {
		return
	}
	tok := generateCSRFToken(cfg.TokenLength)
	http.SetCookie(c.ResponseWriter(), &http.Cookie{
		Name:     cfg.CookieName,
		Value:    tok,
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		HttpOnly: cfg.CookieHTTPOnly,
		SameSite: cfg.CookieSameSite,
		Expires:  time.Now().Add(cfg.TTL),
	})
}

// generateCSRFToken creates a cryptographically secure, URL-safe token.
func generateCSRFToken(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// compareTokens compares two tokens in constant time to avoid leaking
// token contents through response-timing side channels.
func compareTokens(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var res byte
	for i := 0; i < len(a); i++ {
		res |= a[i] ^ b[i]
	}
	return res == 0
}
