package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

// RequestSizeConfig configures the request size limiting middleware.
//
//	app.Use(middleware.RequestSize(middleware.RequestSizeConfig{
//		MaxSize: 10 << 20, // 10MB
//	}))
type RequestSizeConfig struct {
	// MaxSize is the maximum allowed request body size in bytes, checked
	// against Content-Length. If 0 or negative, no limit is enforced.
	MaxSize int64

	// ErrorResponse customizes the response when the limit is exceeded.
	// If nil, a default JSON 413 response is returned.
	ErrorResponse func(c *reqctx.Context, size, limit int64) (any, error)
}

// RequestSize rejects requests whose Content-Length exceeds MaxSize with
// a 413 before the body is read, to avoid buffering oversized payloads.
// Requests without a Content-Length (e.g. chunked transfer) pass through
// unchecked.
func RequestSize(cfg RequestSizeConfig) pipeline.Middleware {
	if cfg.MaxSize <= 0 {
		return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
			return next(c)
		}
	}

	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		contentLength := c.Request().ContentLength

		if contentLength > 0 && contentLength > cfg.MaxSize {
			if cfg.ErrorResponse != nil {
				return cfg.ErrorResponse(c, contentLength, cfg.MaxSize)
			}
			body, _ := json.Marshal(map[string]any{
				"error": "Request entity too large",
				"code":  "REQUEST_TOO_LARGE",
				"limit": cfg.MaxSize,
			})
			return &reqctx.Response{
				StatusCode: http.StatusRequestEntityTooLarge,
				Headers: http.Header{
					"Content-Type":           []string{"application/json; charset=utf-8"},
					"X-Content-Type-Options": []string{"nosniff"},
				},
				Body: body,
			}, nil
		}

		return next(c)
	}
}
