package plugin

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	meta      Meta
	calls     *[]string
	failBoot  bool
	configErr error
}

func (p *fakePlugin) PluginMeta() Meta { return p.meta }

func (p *fakePlugin) Configure(ctx *Context) error {
	*p.calls = append(*p.calls, "configure:"+p.meta.Name)
	return nil
}

func (p *fakePlugin) Register(ctx *Context) error {
	*p.calls = append(*p.calls, "register:"+p.meta.Name)
	return nil
}

func (p *fakePlugin) Boot(ctx *Context) error {
	*p.calls = append(*p.calls, "boot:"+p.meta.Name)
	if p.failBoot {
		return fmt.Errorf("boom")
	}
	return nil
}

func (p *fakePlugin) Ready(ctx *Context) error {
	*p.calls = append(*p.calls, "ready:"+p.meta.Name)
	return nil
}

func (p *fakePlugin) Shutdown(ctx *Context) error {
	*p.calls = append(*p.calls, "shutdown:"+p.meta.Name)
	return nil
}

func (p *fakePlugin) Exports(ctx *Context) any { return p.meta.Name + ":export" }

func TestResolveOrdersByDependencyThenPriority(t *testing.T) {
	m := New(nil, nil)
	var calls []string

	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "b", Deps: []string{"a"}}, calls: &calls}, nil))
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "a"}, calls: &calls}, nil))
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "c", Deps: []string{"a"}, Priority: PriorityCritical}, calls: &calls}, nil))

	order, err := m.Resolve()
	require.NoError(t, err)

	// a has no deps so it must resolve first; among b and c (both
	// depending only on a) the critical-priority one, c, goes first.
	assert.Equal(t, []string{"a", "c", "b"}, order)
}

func TestResolveDetectsCycle(t *testing.T) {
	m := New(nil, nil)
	var calls []string
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "x", Deps: []string{"y"}}, calls: &calls}, nil))
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "y", Deps: []string{"x"}}, calls: &calls}, nil))

	_, err := m.Resolve()
	require.Error(t, err)
}

func TestResolveRejectsMissingRequiredDep(t *testing.T) {
	m := New(nil, nil)
	var calls []string
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "x", Deps: []string{"missing"}}, calls: &calls}, nil))

	_, err := m.Resolve()
	require.Error(t, err)
}

func TestResolveRejectsConflict(t *testing.T) {
	m := New(nil, nil)
	var calls []string
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "x"}, calls: &calls}, nil))
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "y", Conflicts: []string{"x"}}, calls: &calls}, nil))

	_, err := m.Resolve()
	require.Error(t, err)
}

func TestResolveToleratesMissingOptionalDep(t *testing.T) {
	m := New(nil, nil)
	var calls []string
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "x", OptionalDeps: []string{"missing"}}, calls: &calls}, nil))

	order, err := m.Resolve()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, order)
}

func TestStartRunsPhasesInOrderAcrossAllPluginsBeforeNextPhase(t *testing.T) {
	m := New(nil, nil)
	var calls []string
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "a"}, calls: &calls}, nil))
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "b", Deps: []string{"a"}}, calls: &calls}, nil))

	require.NoError(t, m.Start())

	assert.Equal(t, []string{
		"configure:a", "configure:b",
		"register:a", "register:b",
		"boot:a", "boot:b",
		"ready:a", "ready:b",
	}, calls)

	exports, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b:export", exports)
}

func TestStartStopsOnFirstPhaseFailure(t *testing.T) {
	m := New(nil, nil)
	var calls []string
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "a", Priority: PriorityCritical}, failBoot: true, calls: &calls}, nil))
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "b"}, calls: &calls}, nil))

	err := m.Start()
	require.Error(t, err)

	state, _ := m.State("a")
	assert.Equal(t, StateError, state)
}

func TestShutdownRunsInReverseResolvedOrder(t *testing.T) {
	m := New(nil, nil)
	var calls []string
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "a"}, calls: &calls}, nil))
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "b", Deps: []string{"a"}}, calls: &calls}, nil))

	require.NoError(t, m.Start())
	calls = nil

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []string{"shutdown:b", "shutdown:a"}, calls)
}

type hangingPlugin struct {
	name    string
	timeout time.Duration
	started chan struct{}
}

func (p *hangingPlugin) PluginMeta() Meta {
	return Meta{Name: p.name, ShutdownTimeout: p.timeout}
}

func (p *hangingPlugin) Shutdown(ctx *Context) error {
	close(p.started)
	select {} // never returns within any reasonable test timeout
}

func TestShutdownAbandonsPluginThatExceedsShutdownTimeout(t *testing.T) {
	m := New(nil, nil)
	var calls []string

	hung := &hangingPlugin{name: "hung", timeout: 20 * time.Millisecond, started: make(chan struct{})}
	require.NoError(t, m.Add(hung, nil))
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "quick", Deps: []string{"hung"}}, calls: &calls}, nil))

	require.NoError(t, m.Start())
	calls = nil

	done := make(chan error, 1)
	go func() { done <- m.Shutdown() }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return within its per-plugin timeout")
	}

	<-hung.started
	assert.Equal(t, []string{"shutdown:quick"}, calls)

	state, _ := m.State("hung")
	assert.Equal(t, StateError, state)
}

func TestEventsEmittedOnAddAndLifecycle(t *testing.T) {
	m := New(nil, nil)
	var events []string
	m.On("plugin:added", func(e Event) { events = append(events, e.Type+":"+e.Plugin) })
	m.On("plugin:booted", func(e Event) { events = append(events, e.Type+":"+e.Plugin) })

	var calls []string
	require.NoError(t, m.Add(&fakePlugin{meta: Meta{Name: "a"}, calls: &calls}, nil))
	require.NoError(t, m.Start())

	assert.Contains(t, events, "plugin:added:a")
	assert.Contains(t, events, "plugin:booted:a")
}
