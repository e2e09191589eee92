// Package pipeline composes global middleware, route middleware, the
// fixed lifecycle hooks, schema validation, and the terminal handler
// into one call graph per route.
package pipeline

import (
	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/reqctx"
)

// Handler is a terminal route handler. Its return value is normalized: a
// *reqctx.Response is sent unchanged; any other value is JSON-encoded at
// 200; a returned error propagates to onError / the application error
// handler.
type Handler func(c *reqctx.Context, deps *di.Container) (any, error)

// Next invokes the remainder of the middleware chain (the next
// middleware, or the terminal lifecycle sub-pipeline if this is the
// last one).
type Next func(c *reqctx.Context) (any, error)

// Middleware receives the context, a Next to continue the chain, and
// the (possibly projected) dependency container. Returning a
// *reqctx.Response short-circuits: neither later middleware nor the
// terminal handler runs, but onResponse still does.
type Middleware func(c *reqctx.Context, next Next, deps *di.Container) (any, error)

// Schema validates a route's params/query/headers/body. A custom error
// handler may be supplied by the schema implementation itself;
// ErrorResponse lets a Schema return either a
// *reqctx.Response or a plain value (wrapped as 400 JSON by the
// pipeline) on validation failure.
type Schema interface {
	Validate(c *reqctx.Context) error
}

// SchemaErrorResponder is implemented by a Schema that wants to control
// the exact response shape on a validation failure, instead of the
// pipeline's default 400 JSON envelope.
type SchemaErrorResponder interface {
	ErrorResponse(c *reqctx.Context, err error) any
}

// Hooks are the fixed lifecycle extension points of the pipeline. Each
// may be nil; a nil hook is treated as a no-op. A hook returning a
// non-nil, non-error result short-circuits (see Hooks doc per-field).
type Hooks struct {
	// OnRequest runs before route matching has any further effect;
	// returning a non-nil result short-circuits the entire request.
	OnRequest func(c *reqctx.Context) (any, error)

	BeforeValidation func(c *reqctx.Context) (any, error)
	AfterValidation  func(c *reqctx.Context) (any, error)
	BeforeHandler    func(c *reqctx.Context) (any, error)

	// AfterHandler observes/transforms the handler's result.
	AfterHandler func(c *reqctx.Context, result any) (any, error)

	// OnResponse observes/transforms the final normalized Response.
	OnResponse func(c *reqctx.Context, resp *reqctx.Response) (*reqctx.Response, error)

	// OnError is offered any error raised by middleware, validation, or
	// the handler; returning a non-nil result or *reqctx.Response
	// becomes the sent response instead of falling through to the
	// application's default error handler.
	OnError func(c *reqctx.Context, err error) (any, error)
}
