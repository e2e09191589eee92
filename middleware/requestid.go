package middleware

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

// RequestIDConfig configures the RequestID middleware.
type RequestIDConfig struct {
	// Header is the response header carrying the request ID. Defaults to
	// X-Request-ID.
	Header string
}

const requestIDDataKey = "middleware.request_id"

// RequestID returns middleware that assigns a unique ID to each request,
// reusing one supplied by the caller in the configured header if present,
// and stashes it in the Context's per-request data for downstream
// middleware and handlers (e.g. Logger).
func RequestID(cfgs ...RequestIDConfig) pipeline.Middleware {
	cfg := RequestIDConfig{Header: "X-Request-ID"}
	if len(cfgs) > 0 && cfgs[0].Header != "" {
		cfg.Header = cfgs[0].Header
	}

	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		id := c.Request().Header.Get(cfg.Header)
		if id == "" {
			id = newRequestID()
		}
		c.Header(cfg.Header, id)
		c.Set(requestIDDataKey, id)
		return next(c)
	}
}

// RequestIDFromContext returns the request ID assigned by RequestID, if any.
func RequestIDFromContext(c *reqctx.Context) (string, bool) {
	v := c.Get(requestIDDataKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func newRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
