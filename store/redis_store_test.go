package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// unreachableAddr is a loopback address nothing listens on; go-redis fails
// fast with connection refused rather than hanging for these tests.
const unreachableAddr = "127.0.0.1:1"

func TestRedisStoreFallsBackToEmptyStateWhenUnreachable(t *testing.T) {
	rs := NewRedisStore(unreachableAddr, "nexus:test", time.Minute)
	defer rs.Dispose()

	assert.Equal(t, map[string]any{}, rs.State())
}

func TestRedisStoreUpdateMergesAndWritesThrough(t *testing.T) {
	rs := NewRedisStore(unreachableAddr, "nexus:test", time.Minute)
	defer rs.Dispose()

	rs.Update(map[string]any{"count": float64(1)})
	assert.Equal(t, map[string]any{"count": float64(1)}, rs.State())
}

func TestRedisStoreSubscribeNotifiesOnUpdate(t *testing.T) {
	rs := NewRedisStore(unreachableAddr, "nexus:test", time.Minute)
	defer rs.Dispose()

	var got any
	unsubscribe := rs.Subscribe(func(state any) { got = state })
	defer unsubscribe()

	rs.Update(map[string]any{"count": float64(2)})
	assert.Equal(t, map[string]any{"count": float64(2)}, got)
}

func TestRedisStoreImplementsDisposer(t *testing.T) {
	rs := NewRedisStore(unreachableAddr, "nexus:test", time.Minute)
	var d Disposer = rs
	assert.NotPanics(t, func() { d.Dispose() })
}
