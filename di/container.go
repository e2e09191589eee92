// Package di implements a process-wide, write-once name -> value map
// that becomes immutable once the listener starts, with purely
// positional projection for handlers/hooks that declare a subset of
// names to receive.
package di

import "sync"

// Container is a typed facade over a name -> value map; the generic
// Get[T] function backs typed lookups without a type assertion at each
// call site.
type Container struct {
	mu     sync.RWMutex
	values map[string]any
	frozen bool
}

// New creates an empty Container.
func New() *Container {
	return &Container{values: make(map[string]any)}
}

// Provide merges deps into the container. Panics if called after Freeze,
// since the container must be immutable once the listener starts.
func (c *Container) Provide(deps map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		panic("di: Provide called after the container was frozen")
	}
	for k, v := range deps {
		c.values[k] = v
	}
}

// Freeze marks the container read-only.
func (c *Container) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Get returns the value registered under name and whether it was present.
func (c *Container) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[name]
	return v, ok
}

// MustGet returns the value registered under name, panicking if absent.
// Intended for framework-internal wiring where absence is a programming
// error, not a request-time condition.
func (c *Container) MustGet(name string) any {
	v, ok := c.Get(name)
	if !ok {
		panic("di: dependency " + name + " not provided")
	}
	return v
}

// Project returns a new Container exposing only the named subset — the
// projection the pipeline passes to a handler/hook that declared an
// inject list. Injection is purely positional: callers must still look
// values up by name, there is no reflection-based binding.
func (c *Container) Project(names []string) *Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub := &Container{values: make(map[string]any, len(names)), frozen: true}
	for _, n := range names {
		if v, ok := c.values[n]; ok {
			sub.values[n] = v
		}
	}
	return sub
}

// Get[T] is a generic typed accessor built on Container.Get, letting
// callers avoid a type assertion at each call site.
func Get[T any](c *Container, name string) (T, bool) {
	var zero T
	v, ok := c.Get(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
