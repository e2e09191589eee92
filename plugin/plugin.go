// Package plugin implements a plugin manager: plugin registration,
// Kahn-sort dependency resolution, priority tie-breaking, and
// phase-ordered lifecycle execution (configure -> register -> boot ->
// ready -> shutdown).
package plugin

import (
	"time"

	"go.uber.org/zap"
)

// Priority breaks ties within a dependency tier (critical < high <
// normal < low). Lower values run first. PriorityNormal is the zero
// value, so a Meta literal that leaves Priority unset behaves as
// "normal" rather than "critical".
type Priority int

const (
	PriorityCritical Priority = -2
	PriorityHigh     Priority = -1
	PriorityNormal   Priority = 0
	PriorityLow      Priority = 1
)

// State is a plugin's current lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateConfigured State = "configured"
	StateRegistered State = "registered"
	StateBooted     State = "booted"
	StateReady      State = "ready"
	StateShutdown   State = "shutdown"
	StateError      State = "error"
)

// Meta describes a plugin's identity and its place in the dependency
// graph and priority ordering.
type Meta struct {
	Name         string
	Version      string
	Deps         []string
	OptionalDeps []string
	Conflicts    []string
	Priority     Priority
	// ShutdownTimeout bounds how long this plugin's Shutdown hook may run
	// before the manager abandons it and moves on. Defaults to 10s when
	// left zero.
	ShutdownTimeout time.Duration
}

// Plugin is the minimal contract every plugin satisfies. The lifecycle
// phases themselves are optional interfaces (Configurer, Registerer,
// Booter, ReadyNotifier, Shutdowner) so a plugin only implements the
// phases it needs, rather than stubbing no-ops for the rest.
type Plugin interface {
	PluginMeta() Meta
}

// ConfigValidator is implemented by a plugin whose config needs
// validation before it is accepted.
type ConfigValidator interface {
	ValidateConfig(config any) error
}

type Configurer interface {
	Configure(ctx *Context) error
}

type Registerer interface {
	Register(ctx *Context) error
}

type Booter interface {
	Boot(ctx *Context) error
}

type ReadyNotifier interface {
	Ready(ctx *Context) error
}

type Shutdowner interface {
	Shutdown(ctx *Context) error
}

// Exporter is implemented by a plugin that exposes a cross-plugin API;
// its Exports value is what GetPlugin returns once boot has run.
type Exporter interface {
	Exports(ctx *Context) any
}

// Context is what every lifecycle phase receives. Log is scoped with
// the plugin's name via a zap.String field. Storage is a private map
// the plugin may use for instance state across phases.
type Context struct {
	App       any
	Config    any
	Log       *zap.Logger
	Storage   map[string]any
	getPlugin func(name string) (any, bool)
	hasPlugin func(name string) bool
}

// GetPlugin returns another plugin's Exports value, or its PluginMeta's
// zero-value export (nil, false) if it hasn't reached boot yet. Lookup
// rather than a direct handle keeps cyclic plugin references resolvable
// without requiring either side to hold the other at construction time.
func (c *Context) GetPlugin(name string) (any, bool) { return c.getPlugin(name) }

// HasPlugin reports whether a plugin by that name was registered.
func (c *Context) HasPlugin(name string) bool { return c.hasPlugin(name) }
