package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexuscore/nexus/nexerr"
)

// record is one plugin's registration bookkeeping: a per-plugin state
// machine carrying lifecycle state, its own config/storage, and its
// eventual Exports value.
type record struct {
	plugin     Plugin
	meta       Meta
	config     any
	state      State
	storage    map[string]any
	exports    any
	instanceID string // correlates this registration's log lines
}

// Manager registers plugins by name (mu-guarded map, reject
// empty/duplicate names), then resolves a dependency- and
// priority-ordered run order and drives each plugin through its
// lifecycle phases.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string // insertion order, used as the final tie-break

	resolvedOrder []string

	app    any
	log    *zap.Logger
	events *eventBus
}

// New constructs a Manager. app is handed to every PluginContext
// untyped, so plugin does not import the app package (which imports
// plugin to wire it in — see app/app.go).
func New(app any, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		records: make(map[string]*record),
		app:     app,
		log:     log,
		events:  newEventBus(),
	}
}

// On subscribes to a plugin lifecycle event: one of
// plugin:added|configured|registered|booted|ready|shutdown|error or
// lifecycle:start|complete.
func (m *Manager) On(event string, fn func(Event)) {
	m.events.on(event, fn)
}

// Add registers a plugin under its own Meta.Name. A plugin implementing
// ConfigValidator has its config validated before being accepted; an
// empty name or a name already registered is rejected.
func (m *Manager) Add(p Plugin, config any) error {
	meta := p.PluginMeta()
	if meta.Name == "" {
		return nexerr.PluginResolution("plugin name cannot be empty")
	}

	if validator, ok := p.(ConfigValidator); ok {
		if err := validator.ValidateConfig(config); err != nil {
			return nexerr.PluginResolution(fmt.Sprintf("plugin %q: invalid config: %v", meta.Name, err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[meta.Name]; exists {
		return nexerr.PluginResolution(fmt.Sprintf("plugin %q already registered", meta.Name))
	}

	m.records[meta.Name] = &record{
		plugin:     p,
		meta:       meta,
		config:     config,
		state:      StatePending,
		storage:    make(map[string]any),
		instanceID: uuid.NewString(),
	}
	m.order = append(m.order, meta.Name)

	m.events.emit(Event{Type: "plugin:added", Plugin: meta.Name})
	return nil
}

// Get returns a plugin's Exports value once it has booted. ok is false
// if the plugin doesn't exist or hasn't booted yet.
func (m *Manager) Get(name string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, exists := m.records[name]
	if !exists {
		return nil, false
	}
	switch r.state {
	case StateBooted, StateReady, StateShutdown:
		return r.exports, true
	default:
		return nil, false
	}
}

// Has reports whether a plugin by that name was ever registered.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.records[name]
	return exists
}

// InstanceID returns the correlation id (a fresh UUID per Add) assigned to
// name at Add time; it is attached to the plugin's scoped logger so log
// lines of one registration can be tied together.
func (m *Manager) InstanceID(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, exists := m.records[name]
	if !exists {
		return "", false
	}
	return r.instanceID, true
}

// State returns a plugin's current lifecycle state.
func (m *Manager) State(name string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, exists := m.records[name]
	if !exists {
		return "", false
	}
	return r.state, true
}

// Resolve computes the dependency- and priority-ordered run sequence:
// conflicts are rejected before the topological sort runs, required
// dependencies that are missing or that form a cycle fail with a
// PluginResolutionError, missing optional dependencies are logged as
// warnings and otherwise ignored, and ties within the same dependency
// tier are broken by Priority then registration order.
func (m *Manager) Resolve() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, name := range m.order {
		r := m.records[name]
		for _, conflict := range r.meta.Conflicts {
			if _, exists := m.records[conflict]; exists {
				return nil, nexerr.PluginResolution(fmt.Sprintf("plugin %q conflicts with registered plugin %q", name, conflict))
			}
		}
		for _, dep := range r.meta.Deps {
			if _, exists := m.records[dep]; !exists {
				return nil, nexerr.PluginResolution(fmt.Sprintf("plugin %q requires missing plugin %q", name, dep))
			}
		}
		for _, dep := range r.meta.OptionalDeps {
			if _, exists := m.records[dep]; !exists {
				m.log.Warn("plugin optional dependency missing",
					zap.String("plugin", name), zap.String("dependency", dep))
			}
		}
	}

	return m.topoSort()
}

// topoSort runs Kahn's algorithm over required Deps edges plus the
// OptionalDeps edges whose target is registered. A missing optional dep
// adds no edge; a present one is an ordinary edge, so a cycle through it
// fails resolution like any other cycle.
func (m *Manager) topoSort() ([]string, error) {
	indegree := make(map[string]int, len(m.order))
	edges := make(map[string][]string, len(m.order)) // dep -> dependents

	for _, name := range m.order {
		indegree[name] = 0
	}
	for _, name := range m.order {
		r := m.records[name]
		deps := append([]string{}, r.meta.Deps...)
		for _, dep := range r.meta.OptionalDeps {
			if _, exists := m.records[dep]; exists {
				deps = append(deps, dep)
			}
		}
		for _, dep := range deps {
			edges[dep] = append(edges[dep], name)
			indegree[name]++
		}
	}

	var ready []string
	for _, name := range m.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	var resolved []string
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			ri, rj := m.records[ready[i]], m.records[ready[j]]
			if ri.meta.Priority != rj.meta.Priority {
				return ri.meta.Priority < rj.meta.Priority
			}
			return m.insertionIndex(ready[i]) < m.insertionIndex(ready[j])
		})

		next := ready[0]
		ready = ready[1:]
		resolved = append(resolved, next)

		for _, dependent := range edges[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(resolved) != len(m.order) {
		var stuck []string
		for _, name := range m.order {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, nexerr.PluginResolution(fmt.Sprintf("cyclic plugin dependency involving: %v", stuck))
	}

	return resolved, nil
}

func (m *Manager) insertionIndex(name string) int {
	for i, n := range m.order {
		if n == name {
			return i
		}
	}
	return -1
}
