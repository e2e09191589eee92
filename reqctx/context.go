// Package reqctx implements the per-request Context: a record with
// fields immutable after construction, fields computed lazily on first
// access and memoized, and a pooling contract so the object graph can be
// reused across requests without the allocation pressure of constructing
// a fresh Context per request.
package reqctx

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/store"
	"github.com/nexuscore/nexus/version"
)

// Context is the per-request state threaded through the pipeline. A
// Context is never safe for concurrent response writes; it is safe for
// concurrent reads of its lazy fields (url, query, cookies, body).
type Context struct {
	// Immutable after construction.
	method string
	path   string
	route  string
	raw    *http.Request
	res    http.ResponseWriter

	reqCtx context.Context

	// Lazy, memoized on first access.
	urlOnce  sync.Once
	urlVal   *url.URL
	queryOnce sync.Once
	queryVal url.Values
	cookiesOnce sync.Once
	cookiesVal  []*http.Cookie

	bodyOnce sync.Once
	bodyVal  any
	bodyErr  error

	// Set by the router.
	params map[string]string

	// Set by the Versioner.
	version       string
	versionSource version.Source

	// Mutable user area, cleared on dispose.
	data map[string]any

	// Borrowed references: the Context never owns these, only consults
	// them.
	stores  *store.Registry
	deps    *di.Container
	reqStores *store.RequestScope

	resp *ResponseBuilder

	status      int
	wroteHeader bool
}

// New constructs a Context not backed by a pool (used by tests and by the
// pool's New func); production acquisition goes through Pool.Acquire.
func New() *Context {
	c := &Context{}
	c.resp = newResponseBuilder()
	return c
}

// Reinitialize resets c to look fresh for a new request without
// allocating, per the pooling contract.
func (c *Context) Reinitialize(w http.ResponseWriter, r *http.Request, route string, stores *store.Registry, deps *di.Container) {
	c.method = r.Method
	c.path = r.URL.Path
	c.route = route
	c.raw = r
	c.res = w
	c.reqCtx = r.Context()

	c.urlOnce = sync.Once{}
	c.urlVal = nil
	c.queryOnce = sync.Once{}
	c.queryVal = nil
	c.cookiesOnce = sync.Once{}
	c.cookiesVal = nil

	c.bodyOnce = sync.Once{}
	c.bodyVal = nil
	c.bodyErr = nil

	c.params = nil
	c.version = ""
	c.versionSource = ""

	c.data = nil

	c.stores = stores
	c.deps = deps
	c.reqStores = nil

	c.status = 0
	c.wroteHeader = false
	c.resp.reset()
}

// Dispose clears request-scoped state: the user data map and any
// request-scoped stores created during this request, so a reacquired
// Context has no user-set keys and no stale request-scoped stores.
func (c *Context) Dispose() {
	if c.reqStores != nil {
		c.reqStores.Dispose()
		c.reqStores = nil
	}
	c.data = nil
}

// SetParams is called by the router/pipeline after a successful match.
func (c *Context) SetParams(params map[string]string) { c.params = params }

// SetVersion is called by the Versioner after resolving a request.
func (c *Context) SetVersion(v string, source version.Source) {
	c.version = v
	c.versionSource = source
}

// Method returns the request's HTTP method.
func (c *Context) Method() string { return c.method }

// Path returns the raw request path.
func (c *Context) Path() string { return c.path }

// Route returns the registered route pattern (e.g. "/users/:id"), if set.
func (c *Context) Route() string { return c.route }

// Version returns the resolved API version and the strategy that found it.
func (c *Context) Version() (string, version.Source) { return c.version, c.versionSource }

// Request returns the underlying *http.Request.
func (c *Context) Request() *http.Request { return c.raw }

// ResponseWriter returns the underlying http.ResponseWriter.
func (c *Context) ResponseWriter() http.ResponseWriter { return c.res }

// SetResponseWriter replaces the response writer for the remainder of this
// request, used by middleware that wraps the writer (e.g. gzip
// compression). Must be called before any response is written.
func (c *Context) SetResponseWriter(w http.ResponseWriter) { c.res = w }

// StdContext returns the request-scoped context.Context.
func (c *Context) StdContext() context.Context { return c.reqCtx }

// SetStdContext replaces the request-scoped context.Context, used by
// middleware that imposes a deadline or attaches values (e.g. a request
// timeout). Request() still returns the original *http.Request; callers
// needing the updated context must use StdContext, not Request().Context().
func (c *Context) SetStdContext(ctx context.Context) { c.reqCtx = ctx }

// Clone returns a new Context sharing this one's immutable request state
// (method, path, route, params, version, deps, stores) but with its own
// ResponseBuilder. Middleware that hands the handler to a separate
// goroutine while retaining the ability to write a response on the
// original Context (e.g. on timeout) should run the handler against a
// clone rather than the original, so the two don't race over response
// state.
func (c *Context) Clone() *Context {
	cp := New()
	cp.method = c.method
	cp.path = c.path
	cp.route = c.route
	cp.raw = c.raw
	cp.res = c.res
	cp.reqCtx = c.reqCtx
	cp.params = c.params
	cp.version = c.version
	cp.versionSource = c.versionSource
	cp.data = c.data
	cp.stores = c.stores
	cp.deps = c.deps
	cp.reqStores = c.reqStores
	return cp
}

// Param returns a path parameter captured by the router, or "".
func (c *Context) Param(name string) string {
	if c.params == nil {
		return ""
	}
	return c.params[name]
}

// Params returns the full captured parameter map (never nil).
func (c *Context) Params() map[string]string {
	if c.params == nil {
		return map[string]string{}
	}
	return c.params
}

// Set stores a value in the per-request user map.
func (c *Context) Set(key string, value any) {
	if c.data == nil {
		c.data = make(map[string]any, 4)
	}
	c.data[key] = value
}

// Get retrieves a value from the per-request user map, returning def (or
// nil) if key was never Set.
func (c *Context) Get(key string, def ...any) any {
	if c.data != nil {
		if v, ok := c.data[key]; ok {
			return v
		}
	}
	if len(def) > 0 {
		return def[0]
	}
	return nil
}

// URL returns the parsed request URL, computed once per request.
func (c *Context) URL() *url.URL {
	c.urlOnce.Do(func() {
		cp := *c.raw.URL
		c.urlVal = &cp
	})
	return c.urlVal
}

// Query returns the parsed query string, computed once per request.
func (c *Context) Query() url.Values {
	c.queryOnce.Do(func() {
		c.queryVal = c.raw.URL.Query()
	})
	return c.queryVal
}

// QueryGet returns a single query parameter value, or "".
func (c *Context) QueryGet(key string) string { return c.Query().Get(key) }

// Store returns the named singleton store from the store registry,
// failing with an error if called before app-level registration.
func (c *Context) Store(name string) (store.Store, error) {
	return c.stores.Singleton(name)
}

// RequestStore returns a request-scoped store instance, created lazily
// and shared for the lifetime of this request.
func (c *Context) RequestStore(name string) (store.Store, error) {
	if c.reqStores == nil {
		c.reqStores = store.NewRequestScope(c.stores)
	}
	return c.reqStores.Get(name)
}

// Deps returns the process-wide dependency container (or a projection of
// it assembled by the pipeline for a specific handler's inject list).
func (c *Context) Deps() *di.Container { return c.deps }

// SetDeps installs a (possibly projected) dependency container for the
// duration of a single pipeline step; the pipeline restores the full
// container afterward.
func (c *Context) SetDeps(d *di.Container) { c.deps = d }
