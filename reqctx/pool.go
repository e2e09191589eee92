package reqctx

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/store"
)

// Pool hands out pooled Context instances. It wraps sync.Pool rather
// than hand-rolling a bounded stack: sync.Pool already discards overflow
// to GC under memory pressure, so Release never needs its own eviction
// policy.
type Pool struct {
	pool    sync.Pool
	created int64
	reused  int64
}

// NewPool constructs an empty Context pool.
func NewPool() *Pool {
	p := &Pool{}
	p.pool.New = func() any {
		atomic.AddInt64(&p.created, 1)
		return New()
	}
	return p
}

// Acquire returns a Context ready for a new request, reinitializing a
// pooled instance when one is available.
func (p *Pool) Acquire(w http.ResponseWriter, r *http.Request, route string, stores *store.Registry, deps *di.Container) *Context {
	v := p.pool.Get()
	c := v.(*Context)
	if c.raw != nil { // a reused instance carries state from a prior request
		atomic.AddInt64(&p.reused, 1)
	}
	c.Reinitialize(w, r, route, stores, deps)
	return c
}

// Release disposes request-scoped state and returns c to the pool.
func (p *Pool) Release(c *Context) {
	c.Dispose()
	p.pool.Put(c)
}

// Stats reports pool hit-rate diagnostics.
type Stats struct {
	Created int64
	Reused  int64
	HitRate float64
}

// Stats returns a snapshot of the pool's usage counters.
func (p *Pool) Stats() Stats {
	created := atomic.LoadInt64(&p.created)
	reused := atomic.LoadInt64(&p.reused)
	total := created + reused
	var hitRate float64
	if total > 0 {
		hitRate = float64(reused) / float64(total)
	}
	return Stats{Created: created, Reused: reused, HitRate: hitRate}
}
