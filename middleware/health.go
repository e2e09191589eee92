// Health check endpoint middleware.
//
//	app.Use(middleware.Health())
//	// GET/HEAD /health now respond {"status":"healthy"} without reaching
//	// the rest of the pipeline.
//
//	app.Use(middleware.Health(middleware.HealthConfig{
//		Path:        "/healthz",
//		ServiceName: "orders-api",
//		HealthCheckFunc: func() error { return db.Ping() },
//	}))
package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
	"github.com/nexuscore/nexus/security"
)

// HealthConfig configures the health check middleware.
type HealthConfig struct {
	// Path is the health check endpoint. Defaults to "/health".
	Path string

	// ServiceName, if set, is included in the response body.
	ServiceName string

	// HealthCheckFunc, if set, is invoked on each request; a non-nil error
	// marks the service unhealthy (503) instead of healthy (200).
	HealthCheckFunc func() error

	// Handler, if set, takes full control of the response and bypasses
	// HealthCheckFunc/ServiceName/IncludeTimestamp entirely.
	Handler func(c *reqctx.Context) (any, error)

	// IncludeTimestamp adds a timestamp to the default response body.
	// Ignored when Handler is set.
	IncludeTimestamp bool
}

// DefaultHealthConfig returns the default health check configuration.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{Path: "/health"}
}

// Health returns middleware that intercepts GET/HEAD requests to Path and
// responds with a health status instead of invoking the rest of the
// pipeline. Requests to any other path pass straight through.
func Health(cfgs ...HealthConfig) pipeline.Middleware {
	cfg := DefaultHealthConfig()
	if len(cfgs) > 0 {
		if cfgs[0].Path != "" {
			cfg.Path = cfgs[0].Path
		}
		cfg.ServiceName = cfgs[0].ServiceName
		cfg.HealthCheckFunc = cfgs[0].HealthCheckFunc
		cfg.Handler = cfgs[0].Handler
		cfg.IncludeTimestamp = cfgs[0].IncludeTimestamp
	}

	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		if security.SanitizePath(c.Path()) != cfg.Path || (c.Method() != http.MethodGet && c.Method() != http.MethodHead) {
			return next(c)
		}

		if cfg.Handler != nil {
			return cfg.Handler(c)
		}

		status := "healthy"
		code := http.StatusOK
		if cfg.HealthCheckFunc != nil {
			if err := cfg.HealthCheckFunc(); err != nil {
				status = "unhealthy"
				code = http.StatusServiceUnavailable
			}
		}

		body := map[string]any{"status": status}
		if cfg.ServiceName != "" {
			body["service"] = cfg.ServiceName
		}
		if cfg.IncludeTimestamp {
			body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		}
		b, _ := json.Marshal(body)

		return &reqctx.Response{
			StatusCode: code,
			Headers:    http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
			Body:       b,
		}, nil
	}
}
