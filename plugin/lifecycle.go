package plugin

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscore/nexus/nexerr"
)

// defaultShutdownTimeout bounds a plugin's Shutdown hook when its Meta
// leaves ShutdownTimeout unset.
const defaultShutdownTimeout = 10 * time.Second

// Start resolves the dependency order and drives every plugin through
// configure -> register -> boot -> ready, in that order, before moving
// any plugin to the next phase: each phase runs for every plugin, in
// resolved order, before the next phase begins. The resolved order is
// kept so Shutdown can reverse it.
func (m *Manager) Start() error {
	order, err := m.Resolve()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.resolvedOrder = order
	m.mu.Unlock()

	m.events.emit(Event{Type: "lifecycle:start"})

	phases := []struct {
		name  string
		state State
		run   func(*record, *Context) error
	}{
		{"configured", StateConfigured, func(r *record, ctx *Context) error {
			if c, ok := r.plugin.(Configurer); ok {
				return c.Configure(ctx)
			}
			return nil
		}},
		{"registered", StateRegistered, func(r *record, ctx *Context) error {
			if c, ok := r.plugin.(Registerer); ok {
				return c.Register(ctx)
			}
			return nil
		}},
		{"booted", StateBooted, func(r *record, ctx *Context) error {
			if c, ok := r.plugin.(Booter); ok {
				if err := c.Boot(ctx); err != nil {
					return err
				}
			}
			if e, ok := r.plugin.(Exporter); ok {
				r.exports = e.Exports(ctx)
			}
			return nil
		}},
		{"ready", StateReady, func(r *record, ctx *Context) error {
			if c, ok := r.plugin.(ReadyNotifier); ok {
				return c.Ready(ctx)
			}
			return nil
		}},
	}

	for _, phase := range phases {
		for _, name := range order {
			if err := m.runPhase(name, phase.state, phase.run); err != nil {
				m.events.emit(Event{Type: "lifecycle:complete", Err: err})
				return err
			}
		}
	}

	m.events.emit(Event{Type: "lifecycle:complete"})
	return nil
}

func (m *Manager) runPhase(name string, next State, run func(*record, *Context) error) error {
	m.mu.Lock()
	r := m.records[name]
	ctx := m.contextFor(r)
	m.mu.Unlock()

	if err := run(r, ctx); err != nil {
		m.mu.Lock()
		r.state = StateError
		m.mu.Unlock()
		m.events.emit(Event{Type: "plugin:error", Plugin: name, Err: err})
		return fmt.Errorf("plugin %q: %s: %w", name, next, err)
	}

	m.mu.Lock()
	r.state = next
	m.mu.Unlock()
	m.events.emit(Event{Type: "plugin:" + string(next), Plugin: name})
	return nil
}

// Shutdown runs the shutdown phase over the last resolved order,
// reversed. Each plugin's Shutdown hook races against its own
// Meta.ShutdownTimeout (defaultShutdownTimeout when unset), mirroring
// shutdown.Coordinator.runHooks: a plugin whose Shutdown hangs is
// abandoned rather than blocking the rest of the phase. Shutdown
// continues through every plugin even if one fails or times out,
// collecting and returning the first error while still attempting the
// rest so a single misbehaving plugin cannot block the others from
// releasing resources.
func (m *Manager) Shutdown() error {
	m.mu.RLock()
	order := append([]string{}, m.resolvedOrder...)
	m.mu.RUnlock()

	var first error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]

		m.mu.Lock()
		r := m.records[name]
		ctx := m.contextFor(r)
		m.mu.Unlock()

		if c, ok := r.plugin.(Shutdowner); ok {
			if err := m.shutdownWithTimeout(name, r, c, ctx); err != nil {
				m.mu.Lock()
				r.state = StateError
				m.mu.Unlock()
				m.events.emit(Event{Type: "plugin:error", Plugin: name, Err: err})
				if first == nil {
					first = err
				}
				continue
			}
		}

		m.mu.Lock()
		r.state = StateShutdown
		m.mu.Unlock()
		m.events.emit(Event{Type: "plugin:shutdown", Plugin: name})
	}
	return first
}

// shutdownWithTimeout runs c.Shutdown(ctx) on its own goroutine and
// races it against r.meta.ShutdownTimeout, returning early on timeout so
// the caller can move on to the next plugin. The goroutine itself is
// never killed, since Shutdowner.Shutdown takes no context of its own to
// cancel; a plugin that ignores a timed-out shutdown leaks a goroutine
// until it eventually returns.
func (m *Manager) shutdownWithTimeout(name string, r *record, c Shutdowner, ctx *Context) error {
	timeout := r.meta.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.Shutdown(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("plugin %q: shutdown: %w", name, err)
		}
		return nil
	case <-time.After(timeout):
		return nexerr.HookTimeout(name)
	}
}

// contextFor builds the PluginContext for one plugin. Must be called
// with m.mu held.
func (m *Manager) contextFor(r *record) *Context {
	return &Context{
		App:     m.app,
		Config:  r.config,
		Log:     m.log.With(zap.String("plugin", r.meta.Name), zap.String("instance", r.instanceID)),
		Storage: r.storage,
		getPlugin: func(name string) (any, bool) {
			return m.Get(name)
		},
		hasPlugin: func(name string) bool {
			return m.Has(name)
		},
	}
}
