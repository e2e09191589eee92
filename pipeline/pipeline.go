package pipeline

import (
	"net/http"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/nexerr"
	"github.com/nexuscore/nexus/reqctx"
)

// Route is everything the pipeline needs to compile a single registered
// route's call graph.
type Route struct {
	Middlewares []Middleware
	Handler     Handler
	Schema      Schema
	// Inject names a projection of the dependency container this route's
	// handler and middleware should see; nil means the full container.
	Inject []string
}

// Pipeline holds the application-wide composition inputs: global
// middleware (applied before any route middleware), the fixed lifecycle
// hooks, the dependency container, and the default error handler invoked
// when onError yields nothing.
type Pipeline struct {
	Global      []Middleware
	Hooks       Hooks
	Deps        *di.Container
	ErrorHandler func(c *reqctx.Context, err error)
}

// New constructs a Pipeline. A nil ErrorHandler defaults to DefaultErrorHandler.
func New(deps *di.Container) *Pipeline {
	return &Pipeline{Deps: deps, ErrorHandler: DefaultErrorHandler}
}

// DefaultErrorHandler writes the error's mapped status with a JSON body,
// so responses always have a defined status and Content-Type and never
// an empty body on error.
func DefaultErrorHandler(c *reqctx.Context, err error) {
	if c.WroteHeader() {
		return
	}
	status := nexerr.StatusFor(err)
	_ = c.Status(status).JSON(map[string]any{
		"success": false,
		"message": err.Error(),
	})
}

// Compile builds the callable call graph for one route: global
// middleware, then route middleware, wrapping the fixed terminal
// sub-pipeline (validation + handler stages). When there is no
// middleware at all, the terminal sub-pipeline is invoked directly
// without constructing a closure chain.
func (p *Pipeline) Compile(route Route) func(c *reqctx.Context) {
	terminal := func(c *reqctx.Context) (any, error) {
		return p.runTerminal(c, route)
	}

	chain := p.composeMiddleware(route.Middlewares, terminal)

	return func(c *reqctx.Context) {
		p.run(c, route, chain)
	}
}

// composeMiddleware builds a Next chain running global middleware, then
// route middleware, then terminal, in that order: A.pre -> B.pre ->
// C.pre -> ... -> C.post -> B.post -> A.post.
func (p *Pipeline) composeMiddleware(routeMW []Middleware, terminal Next) Next {
	if len(p.Global) == 0 && len(routeMW) == 0 {
		return terminal
	}
	all := make([]Middleware, 0, len(p.Global)+len(routeMW))
	all = append(all, p.Global...)
	all = append(all, routeMW...)

	next := terminal
	for i := len(all) - 1; i >= 0; i-- {
		mw := all[i]
		prevNext := next
		next = func(c *reqctx.Context) (any, error) {
			return mw(c, prevNext, c.Deps())
		}
	}
	return next
}

func (p *Pipeline) run(c *reqctx.Context, route Route, chain Next) {
	fullDeps := p.Deps
	if len(route.Inject) > 0 {
		c.SetDeps(p.Deps.Project(route.Inject))
	} else {
		c.SetDeps(p.Deps)
	}
	defer c.SetDeps(fullDeps)

	if p.Hooks.OnRequest != nil {
		result, err := p.Hooks.OnRequest(c)
		if err != nil {
			p.handleError(c, err)
			return
		}
		if result != nil {
			p.respond(c, result)
			return
		}
	}

	result, err := chain(c)
	if err != nil {
		p.handleError(c, err)
		return
	}
	p.respond(c, result)
}

func (p *Pipeline) runTerminal(c *reqctx.Context, route Route) (any, error) {
	if p.Hooks.BeforeValidation != nil {
		r, err := p.Hooks.BeforeValidation(c)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}
	}
	if route.Schema != nil {
		if err := route.Schema.Validate(c); err != nil {
			return p.validationFailure(c, route.Schema, err), nil
		}
	}
	if p.Hooks.AfterValidation != nil {
		r, err := p.Hooks.AfterValidation(c)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}
	}

	if p.Hooks.BeforeHandler != nil {
		r, err := p.Hooks.BeforeHandler(c)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}
	}

	result, err := route.Handler(c, c.Deps())
	if err != nil {
		return nil, err
	}

	if p.Hooks.AfterHandler != nil {
		return p.Hooks.AfterHandler(c, result)
	}
	return result, nil
}

// validationFailure synthesizes the 400 response for a failed Schema,
// unless the schema provides a custom error handler.
func (p *Pipeline) validationFailure(c *reqctx.Context, schema Schema, err error) any {
	if responder, ok := schema.(SchemaErrorResponder); ok {
		if resp := responder.ErrorResponse(c, err); resp != nil {
			if r, ok := resp.(*reqctx.Response); ok {
				return r
			}
			return &reqctx.Response{
				StatusCode: http.StatusBadRequest,
				Headers:    http.Header{"Content-Type": []string{"application/json"}},
				Body:       mustJSON(resp),
			}
		}
	}
	return &reqctx.Response{
		StatusCode: http.StatusBadRequest,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       mustJSON(map[string]any{"success": false, "message": err.Error()}),
	}
}

// respond normalizes result, runs onResponse, and writes the response.
func (p *Pipeline) respond(c *reqctx.Context, result any) {
	resp, err := normalize(result)
	if err != nil {
		p.handleError(c, err)
		return
	}
	if p.Hooks.OnResponse != nil {
		resp, err = p.Hooks.OnResponse(c, resp)
		if err != nil {
			p.handleError(c, err)
			return
		}
	}
	_ = write(c, resp)
}

// handleError offers err to onError first; if it yields nothing, falls
// through to the Pipeline's default error handler.
func (p *Pipeline) handleError(c *reqctx.Context, err error) {
	if p.Hooks.OnError != nil {
		result, hookErr := p.Hooks.OnError(c, err)
		if hookErr == nil && result != nil {
			p.respond(c, result)
			return
		}
	}
	if p.ErrorHandler == nil {
		DefaultErrorHandler(c, err)
		return
	}
	p.ErrorHandler(c, err)
}
