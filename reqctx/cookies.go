package reqctx

import (
	"net/http"
	"time"
)

// Cookies returns the request's parsed cookies, computed once per request.
func (c *Context) Cookies() []*http.Cookie {
	c.cookiesOnce.Do(func() {
		c.cookiesVal = c.raw.Cookies()
	})
	return c.cookiesVal
}

// Cookie returns a single cookie by name, or an error if absent.
func (c *Context) Cookie(name string) (*http.Cookie, error) {
	for _, ck := range c.Cookies() {
		if ck.Name == name {
			return ck, nil
		}
	}
	return nil, http.ErrNoCookie
}

// SameSite names the emitted Set-Cookie SameSite attribute.
type SameSite string

const (
	SameSiteStrict SameSite = "strict"
	SameSiteLax    SameSite = "lax"
	SameSiteNone   SameSite = "none"
)

func (s SameSite) toStd() http.SameSite {
	switch s {
	case SameSiteStrict:
		return http.SameSiteStrictMode
	case SameSiteNone:
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SetCookie writes a Set-Cookie header, honoring Max-Age, Expires, Path,
// Domain, Secure, HttpOnly and SameSite.
func (c *Context) SetCookie(cookie *http.Cookie) {
	http.SetCookie(c.res, cookie)
}

// ClearCookie expires a cookie immediately.
func (c *Context) ClearCookie(name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}
