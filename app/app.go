// Package app implements Application, the core's top-level wiring point:
// it wires the radix Router, Context pool, Pipeline, dependency
// container, Versioner, store registry, plugin manager, and shutdown
// coordinator into one net/http.Handler.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/nexerr"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/plugin"
	"github.com/nexuscore/nexus/reqctx"
	"github.com/nexuscore/nexus/router"
	"github.com/nexuscore/nexus/shutdown"
	"github.com/nexuscore/nexus/store"
	"github.com/nexuscore/nexus/version"
)

// ObservabilityProvider is the thin, swappable hook through which an
// out-of-core collaborator renders /__nexus/metrics and /__nexus/health;
// the core only performs route-conflict checking and the draining-aware
// 503 behavior.
type ObservabilityProvider interface {
	Metrics(w http.ResponseWriter, r *http.Request)
	Health(r *http.Request) (healthy bool, checks map[string]any)
}

// Application is the nexus core's http.Handler and top-level wiring
// point.
type Application struct {
	router    *router.Router
	pool      *reqctx.Pool
	pipeline  *pipeline.Pipeline
	deps      *di.Container
	stores    *store.Registry
	versioner *version.Versioner
	plugins   *plugin.Manager
	shutdown  *shutdown.Coordinator

	logger *slog.Logger

	observability ObservabilityProvider
	metricsPath   string
	healthPath    string

	server *http.Server
}

// Option configures an Application at construction time, the same
// functional-options idiom used throughout this module's middleware
// packages (CORSConfig/WithOrigins, RateLimit(WithStrategy(...))).
type Option func(*Application)

// WithVersioning installs a Versioner built from cfg.
func WithVersioning(cfg version.Config) Option {
	return func(a *Application) { a.versioner = version.New(cfg) }
}

// WithLogger installs the application's ambient *slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// WithShutdown installs a pre-built shutdown.Coordinator. If omitted, New
// constructs one with shutdown.Options{} defaults.
func WithShutdown(c *shutdown.Coordinator) Option {
	return func(a *Application) { a.shutdown = c }
}

// WithPluginLogger overrides the *zap.Logger the plugin manager uses for
// its own lifecycle logging; defaults to zap.NewNop() if never set.
func WithPluginLogger(l *zap.Logger) Option {
	return func(a *Application) { a.plugins = plugin.New(a, l) }
}

// WithObservability registers the metrics/health rendering collaborator
// at the given paths (defaults "/__nexus/metrics" and "/__nexus/health").
func WithObservability(p ObservabilityProvider, metricsPath, healthPath string) Option {
	return func(a *Application) {
		a.observability = p
		if metricsPath != "" {
			a.metricsPath = metricsPath
		}
		if healthPath != "" {
			a.healthPath = healthPath
		}
	}
}

// WithTracing layers an OTel span per request onto the pipeline's
// onRequest/onResponse hooks. Composes with any hooks already installed
// rather than replacing them, so it can be applied alongside
// application-specific hooks in either order.
func WithTracing(cfg pipeline.TracingConfig) Option {
	return func(a *Application) {
		a.pipeline.Hooks = pipeline.ComposeTracing(a.pipeline.Hooks, cfg)
	}
}

// New constructs an Application with sensible defaults: an empty radix
// router, a fresh reqctx.Pool, an unfrozen DI container, an in-memory
// store registry, a default-strategy Versioner, a no-op-logged plugin
// manager, and a shutdown coordinator with default timings.
func New(opts ...Option) *Application {
	a := &Application{
		router:      router.New(),
		pool:        reqctx.NewPool(),
		deps:        di.New(),
		stores:      store.NewRegistry(),
		logger:      slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		metricsPath: "/__nexus/metrics",
		healthPath:  "/__nexus/health",
	}
	a.pipeline = pipeline.New(a.deps)
	a.versioner = version.New(version.Config{})
	a.plugins = plugin.New(a, zap.NewNop())
	a.shutdown = shutdown.New(shutdown.Options{})

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Logger returns the application's ambient logger.
func (a *Application) Logger() *slog.Logger { return a.logger }

// Deps returns the process-wide dependency container for Provide calls
// before the listener starts.
func (a *Application) Deps() *di.Container { return a.deps }

// Stores returns the store registry for RegisterSingleton/RegisterRequestScoped calls.
func (a *Application) Stores() *store.Registry { return a.stores }

// Plugins returns the plugin manager for Add calls before Start.
func (a *Application) Plugins() *plugin.Manager { return a.plugins }

// Shutdown returns the shutdown coordinator for AddHook calls before Listen.
func (a *Application) Shutdown() *shutdown.Coordinator { return a.shutdown }

// Pipeline returns the compiled pipeline, exposing Hooks/Global/ErrorHandler
// for configuration before the first route is registered.
func (a *Application) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Use registers global middleware, applied to every route ahead of any
// group or route-specific middleware.
func (a *Application) Use(mw ...pipeline.Middleware) {
	a.pipeline.Global = append(a.pipeline.Global, mw...)
}

// Group creates a route group scoped under prefix with optional
// middleware.
func (a *Application) Group(prefix string, mw ...pipeline.Middleware) *Group {
	return &Group{app: a, prefix: cleanPath(prefix), middleware: mw}
}

// RouteOption customizes a single route registration beyond method/path/handler.
type RouteOption func(*pipeline.Route)

// WithSchema attaches a validation schema to the route.
func WithSchema(s pipeline.Schema) RouteOption {
	return func(r *pipeline.Route) { r.Schema = s }
}

// WithInject scopes the dependency container the route's handler/middleware see.
func WithInject(names ...string) RouteOption {
	return func(r *pipeline.Route) { r.Inject = names }
}

// WithMiddleware appends route-specific middleware, run after any
// global/group middleware and before the handler.
func WithMiddleware(mw ...pipeline.Middleware) RouteOption {
	return func(r *pipeline.Route) { r.Middlewares = append(r.Middlewares, mw...) }
}

func (a *Application) register(method, path string, h pipeline.Handler, mws []pipeline.Middleware, ropts []RouteOption) {
	route := pipeline.Route{Middlewares: mws, Handler: h}
	for _, opt := range ropts {
		opt(&route)
	}

	compiled := a.pipeline.Compile(route)

	// A non-versioned registration is reachable under every version the
	// application recognizes (spec §4.V: "Route registration automatically
	// prefixes non-versioned paths with /{defaultVersion}"), and under every
	// other registered version too, so a request resolved to any of them by
	// path/header/query still finds the route.
	for _, registeredPath := range a.versioner.ExpandRegistrationPaths(path) {
		if err := a.router.Insert(method, registeredPath, compiled, nil); err != nil {
			panic(err) // route registration conflicts abort startup
		}
	}
}

func (a *Application) GET(path string, h pipeline.Handler, opts ...RouteOption) {
	a.register(http.MethodGet, path, h, nil, opts)
}
func (a *Application) POST(path string, h pipeline.Handler, opts ...RouteOption) {
	a.register(http.MethodPost, path, h, nil, opts)
}
func (a *Application) PUT(path string, h pipeline.Handler, opts ...RouteOption) {
	a.register(http.MethodPut, path, h, nil, opts)
}
func (a *Application) PATCH(path string, h pipeline.Handler, opts ...RouteOption) {
	a.register(http.MethodPatch, path, h, nil, opts)
}
func (a *Application) DELETE(path string, h pipeline.Handler, opts ...RouteOption) {
	a.register(http.MethodDelete, path, h, nil, opts)
}
func (a *Application) OPTIONS(path string, h pipeline.Handler, opts ...RouteOption) {
	a.register(http.MethodOptions, path, h, nil, opts)
}
func (a *Application) HEAD(path string, h pipeline.Handler, opts ...RouteOption) {
	a.register(http.MethodHead, path, h, nil, opts)
}

// Handle registers h for an arbitrary method/path.
func (a *Application) Handle(method, path string, h pipeline.Handler, opts ...RouteOption) {
	a.register(method, path, h, nil, opts)
}

// ServeHTTP is the single dispatch entrypoint: drain gating, version
// resolution + path rewrite, router match, Context acquire/release,
// compiled-route invocation.
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.shutdown != nil && a.shutdown.IsDraining() {
		a.writeDraining(w)
		return
	}

	var untrack func()
	if a.shutdown != nil {
		untrack = a.shutdown.TrackRequest(requestID(r), r.Method, r.URL.Path)
		defer untrack()
	}

	r = r.WithContext(core.ContextWithLogger(r.Context(), a.logger))

	result := a.versioner.Resolve(r)

	match, ok := a.router.Match(r.Method, result.MatchPath)
	if !ok {
		// Unversioned fallback: observability endpoints and mounted
		// static/http.Handler routes are registered without a version
		// prefix (see RouteOption-free Mount/Static registrations).
		match, ok = a.router.Match(r.Method, r.URL.Path)
	}
	if !ok {
		a.writeNotFound(w, r)
		return
	}

	compiled, ok := match.Route.Handler.(func(*reqctx.Context))
	if !ok {
		a.writeNotFound(w, r)
		return
	}

	c := a.pool.Acquire(w, r, match.Route.Path, a.stores, a.deps)
	defer a.pool.Release(c)

	c.SetParams(match.Params)
	c.SetVersion(result.Version, result.Source)

	compiled(c)
}

func (a *Application) writeNotFound(w http.ResponseWriter, r *http.Request) {
	err := nexerr.NotFound()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(nexerr.StatusFor(err))
	_, _ = w.Write([]byte(`{"success":false,"message":"` + err.Error() + `"}`))
}

func (a *Application) writeDraining(w http.ResponseWriter) {
	resp := shutdown.Draining503()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Connection", "close")
	w.Header().Set("Retry-After", "30")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"error":"` + resp.Error + `","message":"` + resp.Message + `","retryAfter":30}`))
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return r.Method + " " + r.URL.Path + " " + r.RemoteAddr
}

// Freeze stops accepting new route registrations and dependency
// provisions. Call it once route setup is complete and before Listen,
// after which the router and dependency container are read-only.
func (a *Application) Freeze() {
	a.router.Freeze()
	a.deps.Freeze()
}

// Listen starts the plugin lifecycle, freezes the router/DI container,
// and serves HTTP on addr until Shutdown's coordinator completes its
// drain sequence.
func (a *Application) Listen(addr string) error {
	a.registerObservability()

	if err := a.plugins.Start(); err != nil {
		return err
	}
	a.Freeze()

	a.server = &http.Server{Addr: addr, Handler: a}
	a.shutdown.SetCloser(func(ctx context.Context) error {
		return a.server.Shutdown(ctx)
	})
	a.shutdown.ListenForSignals()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-waitForShutdown(a.shutdown):
		a.plugins.Shutdown()
		a.stores.DisposeAll()
		return <-errCh
	}
}

func waitForShutdown(c *shutdown.Coordinator) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		c.Wait()
		close(ch)
	}()
	return ch
}
