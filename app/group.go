package app

import "github.com/nexuscore/nexus/pipeline"

// Group is a route prefix plus inherited middleware.
//
// Middleware runs in this order: global (Application.Use) first, then
// parent group middleware, then child group middleware outer->inner,
// then route-specific middleware, then the handler.
type Group struct {
	app        *Application
	prefix     string
	middleware []pipeline.Middleware
}

// Use adds middleware to the group, applied in the order added.
func (g *Group) Use(mw ...pipeline.Middleware) { g.middleware = append(g.middleware, mw...) }

// Group creates a nested group inheriting the parent's prefix and middleware.
func (g *Group) Group(prefix string, mw ...pipeline.Middleware) *Group {
	child := &Group{app: g.app, prefix: joinPath(g.prefix, prefix)}
	child.middleware = append(child.middleware, g.middleware...)
	child.middleware = append(child.middleware, mw...)
	return child
}

func (g *Group) handle(method, path string, h pipeline.Handler, opts []RouteOption) {
	g.app.register(method, joinPath(g.prefix, path), h, append([]pipeline.Middleware{}, g.middleware...), opts)
}

func (g *Group) GET(path string, h pipeline.Handler, opts ...RouteOption) {
	g.handle("GET", path, h, opts)
}
func (g *Group) POST(path string, h pipeline.Handler, opts ...RouteOption) {
	g.handle("POST", path, h, opts)
}
func (g *Group) PUT(path string, h pipeline.Handler, opts ...RouteOption) {
	g.handle("PUT", path, h, opts)
}
func (g *Group) PATCH(path string, h pipeline.Handler, opts ...RouteOption) {
	g.handle("PATCH", path, h, opts)
}
func (g *Group) DELETE(path string, h pipeline.Handler, opts ...RouteOption) {
	g.handle("DELETE", path, h, opts)
}
func (g *Group) OPTIONS(path string, h pipeline.Handler, opts ...RouteOption) {
	g.handle("OPTIONS", path, h, opts)
}
func (g *Group) HEAD(path string, h pipeline.Handler, opts ...RouteOption) {
	g.handle("HEAD", path, h, opts)
}
