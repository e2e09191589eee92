package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingletonCreatedOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.RegisterSingleton("counter", func() Store {
		calls++
		return NewBase(0, func(_, patch any) any { return patch })
	})

	s1, err := r.Singleton("counter")
	require.NoError(t, err)
	s2, err := r.Singleton("counter")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, calls)
}

func TestSingletonNotRegistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Singleton("missing")
	require.Error(t, err)
}

func TestRequestScopeDisposeClearsStores(t *testing.T) {
	r := NewRegistry()
	disposed := false
	r.RegisterRequestScoped("req", func() Store {
		return &disposableStore{Base: NewBase(nil, func(_, p any) any { return p }), onDispose: func() { disposed = true }}
	})

	scope := NewRequestScope(r)
	s, err := scope.Get("req")
	require.NoError(t, err)
	require.NotNil(t, s)

	scope.Dispose()
	assert.True(t, disposed)
}

func TestBaseUpdateNotifiesListeners(t *testing.T) {
	b := NewBase(map[string]int{"n": 0}, func(cur, patch any) any {
		c := cur.(map[string]int)
		p := patch.(map[string]int)
		out := map[string]int{}
		for k, v := range c {
			out[k] = v
		}
		for k, v := range p {
			out[k] = v
		}
		return out
	})
	var seen any
	b.Subscribe(func(state any) { seen = state })
	b.Update(map[string]int{"n": 5})
	assert.Equal(t, 5, seen.(map[string]int)["n"])
}

type disposableStore struct {
	*Base
	onDispose func()
}

func (d *disposableStore) Dispose() { d.onDispose() }
