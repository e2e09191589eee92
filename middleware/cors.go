package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

// CORSConfig configures the CORS middleware.
//
// Origins, Methods, and Headers control allowed cross-origin requests.
// Expose lists headers exposed to the browser. Credentials enables cookies.
// MaxAge sets preflight cache duration (seconds).
type CORSConfig struct {
	// Origins specifies allowed origins. If empty, no
	// Access-Control-Allow-Origin header is set. "*" allows all origins.
	Origins []string
	// Methods specifies allowed methods; defaults to GET, POST, PUT,
	// PATCH, DELETE, HEAD, OPTIONS if empty.
	Methods []string
	// Headers specifies allowed request headers.
	Headers []string
	// Expose specifies response headers exposed to browser JavaScript.
	Expose []string
	// Credentials enables Access-Control-Allow-Credentials. Cannot be
	// combined with a wildcard origin.
	Credentials bool
	// MaxAge is the preflight cache duration in seconds.
	MaxAge int
}

// CORS returns middleware that sets CORS headers and handles preflight
// (OPTIONS) requests per the given config.
func CORS(cfg CORSConfig) pipeline.Middleware {
	allowedMethods := uniqOrDefault(cfg.Methods, []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"})
	allowedMethodsStr := strings.Join(allowedMethods, ", ")
	allowedHeaders := cfg.Headers
	allowedHeadersStr := strings.Join(allowedHeaders, ", ")
	exposeHeaders := strings.Join(cfg.Expose, ", ")

	hasWildcard := false
	for _, origin := range cfg.Origins {
		if origin == "*" {
			hasWildcard = true
			break
		}
	}
	if hasWildcard && cfg.Credentials {
		panic("CORS: cannot use wildcard origin (*) with credentials=true for security reasons")
	}

	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		origin := c.Request().Header.Get("Origin")

		var allowedOrigin string
		if len(cfg.Origins) > 0 {
			if hasWildcard {
				allowedOrigin = "*"
			} else if origin != "" && origin != "null" {
				for _, allowed := range cfg.Origins {
					if origin == allowed {
						allowedOrigin = origin
						break
					}
				}
			}
		}

		if allowedOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowedOrigin)
		}
		if cfg.Credentials && allowedOrigin != "*" {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if exposeHeaders != "" {
			c.Header("Access-Control-Expose-Headers", exposeHeaders)
		}
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		if c.Method() != http.MethodOptions {
			return next(c)
		}

		requestMethod := c.Request().Header.Get("Access-Control-Request-Method")
		if requestMethod == "" {
			return next(c)
		}

		methodAllowed := false
		for _, method := range allowedMethods {
			if requestMethod == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			return &reqctx.Response{StatusCode: http.StatusForbidden, Body: []byte("Method not allowed")}, nil
		}

		if requestHeaders := c.Request().Header.Get("Access-Control-Request-Headers"); requestHeaders != "" && len(allowedHeaders) > 0 {
			for _, reqHeader := range strings.Split(strings.ToLower(requestHeaders), ",") {
				reqHeader = strings.TrimSpace(reqHeader)
				headerAllowed := false
				for _, allowed := range allowedHeaders {
					if reqHeader == strings.ToLower(allowed) {
						headerAllowed = true
						break
					}
				}
				if !headerAllowed {
					return &reqctx.Response{StatusCode: http.StatusForbidden, Body: []byte("Header not allowed")}, nil
				}
			}
		}

		if allowedMethodsStr != "" {
			c.Header("Access-Control-Allow-Methods", allowedMethodsStr)
		}
		if allowedHeadersStr != "" {
			c.Header("Access-Control-Allow-Headers", allowedHeadersStr)
		}
		if cfg.MaxAge > 0 {
			c.Header("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}
		return &reqctx.Response{StatusCode: http.StatusNoContent}, nil
	}
}

// uniqOrDefault returns v with duplicates removed, or def if v is empty.
func uniqOrDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	seen := map[string]struct{}{}
	res := make([]string, 0, len(v))
	for _, s := range v {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			res = append(res, s)
		}
	}
	return res
}
