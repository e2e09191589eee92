package middleware

import (
	"time"

	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

const loggerAttrsDataKey = "middleware.logger_attrs"

// AddLoggerAttributes appends key/value pairs to the current request's log
// attributes, picked up by Logger when it emits the request's log line.
// Pairs must alternate key (string), value (any).
func AddLoggerAttributes(c *reqctx.Context, pairs ...any) {
	existing, _ := c.Get(loggerAttrsDataKey).([]any)
	c.Set(loggerAttrsDataKey, append(existing, pairs...))
}

// LoggerConfig configures the Logger middleware.
type LoggerConfig struct {
	// ExcludeFields drops standard fields from the log line. Valid values:
	// method, path, route, status, duration_ms, remote, user_agent, request_id.
	ExcludeFields []string
	// CustomAttributesFunc, if set, is called for every request and its
	// return value is appended to the log line's attributes.
	CustomAttributesFunc func(c *reqctx.Context) []any
	// Message is the log message. Defaults to "request".
	Message string
}

// LoggerOption configures Logger via the functional-options idiom.
type LoggerOption func(*LoggerConfig)

// WithExcludeFields excludes the named standard fields from the log line.
func WithExcludeFields(fields ...string) LoggerOption {
	return func(cfg *LoggerConfig) { cfg.ExcludeFields = append(cfg.ExcludeFields, fields...) }
}

// WithCustomAttributes attaches a per-request attribute function.
func WithCustomAttributes(fn func(c *reqctx.Context) []any) LoggerOption {
	return func(cfg *LoggerConfig) { cfg.CustomAttributesFunc = fn }
}

// WithMessage overrides the default "request" log message.
func WithMessage(message string) LoggerOption {
	return func(cfg *LoggerConfig) { cfg.Message = message }
}

// Logger returns middleware that logs one structured line per request via
// the ambient *slog.Logger installed in the request context
// (Application.ServeHTTP attaches it through core.ContextWithLogger), including method, path, matched
// route, status, duration, remote address, user agent, and the request ID
// if RequestID ran earlier in the chain.
func Logger(options ...LoggerOption) pipeline.Middleware {
	cfg := &LoggerConfig{Message: "request"}
	for _, opt := range options {
		opt(cfg)
	}

	exclude := make(map[string]bool, len(cfg.ExcludeFields))
	for _, f := range cfg.ExcludeFields {
		exclude[f] = true
	}

	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		start := time.Now()
		result, err := next(c)
		dur := time.Since(start)

		status := c.StatusCode()
		if status == 0 {
			status = 200
		}

		attrs := make([]any, 0, 16)
		add := func(key string, val any) {
			if !exclude[key] {
				attrs = append(attrs, key, val)
			}
		}
		add("method", c.Method())
		add("path", c.Path())
		add("route", c.Route())
		add("status", status)
		add("duration_ms", float64(dur.Microseconds())/1000.0)
		add("remote", c.Request().RemoteAddr)
		add("user_agent", c.Request().UserAgent())
		if !exclude["request_id"] {
			if rid, ok := RequestIDFromContext(c); ok {
				attrs = append(attrs, "request_id", rid)
			}
		}
		if extra, ok := c.Get(loggerAttrsDataKey).([]any); ok {
			attrs = append(attrs, extra...)
		}
		if cfg.CustomAttributesFunc != nil {
			attrs = append(attrs, cfg.CustomAttributesFunc(c)...)
		}

		core.LoggerFromContext(c.StdContext()).Info(cfg.Message, attrs...)
		return result, err
	}
}
