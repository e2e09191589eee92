package reqctx

import (
	"html"
	"net/url"
	"strconv"
	"strings"
)

// Typed path parameter helpers with optional defaults.

func (c *Context) ParamInt(name string, def ...int) int {
	s := c.Param(name)
	fallback := 0
	if len(def) > 0 {
		fallback = def[0]
	}
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 0)
	if err != nil {
		return fallback
	}
	return int(v)
}

func (c *Context) ParamInt64(name string, def ...int64) int64 {
	s := c.Param(name)
	var fallback int64
	if len(def) > 0 {
		fallback = def[0]
	}
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func (c *Context) ParamBool(name string, def ...bool) bool {
	s := c.Param(name)
	fallback := false
	if len(def) > 0 {
		fallback = def[0]
	}
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

func (c *Context) QueryInt(key string, def ...int) int {
	s := c.QueryGet(key)
	fallback := 0
	if len(def) > 0 {
		fallback = def[0]
	}
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 0)
	if err != nil {
		return fallback
	}
	return int(v)
}

func (c *Context) QueryBool(key string, def ...bool) bool {
	s := c.QueryGet(key)
	fallback := false
	if len(def) > 0 {
		fallback = def[0]
	}
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

// Security-hardened accessors: sanitize path/query input so a handler
// that echoes it back (into HTML, a filesystem path, or a shell-adjacent
// string) isn't an XSS/path-traversal vector by default.

// ParamSafe HTML-escapes a path parameter.
func (c *Context) ParamSafe(name string) string { return html.EscapeString(c.Param(name)) }

// QuerySafe HTML-escapes a query parameter.
func (c *Context) QuerySafe(key string) string { return html.EscapeString(c.QueryGet(key)) }

// ParamAlphaNum strips everything but letters and digits from a path parameter.
func (c *Context) ParamAlphaNum(name string) string { return alphaNumOnly(c.Param(name)) }

// QueryAlphaNum strips everything but letters and digits from a query parameter.
func (c *Context) QueryAlphaNum(key string) string { return alphaNumOnly(c.QueryGet(key)) }

// ParamFilename reduces a path parameter to a safe filename: URL-decoded,
// alphanumeric/dot/dash/underscore only, no leading dot (so it can't
// resolve to a hidden file or a ".." traversal segment).
func (c *Context) ParamFilename(name string) string { return safeFilename(c.Param(name)) }

// QueryFilename reduces a query parameter to a safe filename.
func (c *Context) QueryFilename(key string) string { return safeFilename(c.QueryGet(key)) }

func alphaNumOnly(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func safeFilename(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		decoded = s
	}
	var b strings.Builder
	for _, r := range decoded {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), ".")
}
