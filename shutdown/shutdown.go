// Package shutdown implements a graceful-shutdown coordinator:
// signal-driven draining, connection tracking, priority-ordered hooks
// run under their own timeout, and a forced exit after a grace period.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscore/nexus/nexerr"
)

// Status is the value a health endpoint reports.
type Status string

const (
	StatusUp       Status = "up"
	StatusDraining Status = "draining"
	StatusDown     Status = "down"
)

// HookPriority orders shutdown hooks; higher-priority hooks run first.
type HookPriority int

const (
	HookPriorityHigh HookPriority = iota
	HookPriorityNormal
	HookPriorityLow
)

// Hook is a single shutdown-sequence step, e.g. closing a database pool
// or flushing a metrics exporter.
type Hook struct {
	Name     string
	Priority HookPriority
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Connection is one tracked in-flight request.
type Connection struct {
	ID        string
	StartTime time.Time
	Path      string
	Method    string
}

// Options configures a Coordinator.
type Options struct {
	// Signals defaults to SIGTERM and SIGINT.
	Signals []os.Signal
	// DrainTimeout bounds how long the coordinator waits for in-flight
	// requests to finish before running hooks regardless.
	DrainTimeout time.Duration
	// DrainPollInterval is how often the drain loop checks the active count.
	DrainPollInterval time.Duration
	// GracePeriod bounds the whole sequence; the process is force-exited
	// after it elapses.
	GracePeriod time.Duration
	// OnShutdownComplete runs after the listener closes.
	OnShutdownComplete func()
	// Exit is the function called to force-exit the process; overridable for tests.
	Exit func(code int)
	Log  *zap.Logger
}

// Coordinator drives the drain/hook/close sequence exactly once per
// process: it runs N prioritized hooks rather than delegating straight
// to one server's Shutdown call.
type Coordinator struct {
	opts Options

	mu          sync.Mutex
	hooks       []Hook
	closeFn     func(context.Context) error
	connections sync.Map // id -> *Connection
	active      int64

	draining  atomic.Bool
	startOnce sync.Once
	done      chan struct{}
}

// New constructs a Coordinator with defaults filled in: SIGTERM/SIGINT,
// a 30s drain timeout, a 200ms poll interval, and a 60s grace period.
func New(opts Options) *Coordinator {
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}
	if opts.DrainPollInterval <= 0 {
		opts.DrainPollInterval = 200 * time.Millisecond
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 60 * time.Second
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Coordinator{opts: opts, done: make(chan struct{})}
}

// SetCloser registers the callback that stops accepting new connections
// and closes the listener, typically http.Server.Shutdown or
// http.Server.Close.
func (c *Coordinator) SetCloser(fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFn = fn
}

// AddHook registers a shutdown hook. Hooks added after Listen has begun
// draining still run, on a best-effort basis, within whatever time
// remains.
func (c *Coordinator) AddHook(h Hook) {
	if h.Timeout <= 0 {
		h.Timeout = 10 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// TrackRequest records an in-flight request's start, returning the
// untrack function to call when it completes.
func (c *Coordinator) TrackRequest(id, method, path string) func() {
	atomic.AddInt64(&c.active, 1)
	c.connections.Store(id, &Connection{ID: id, StartTime: time.Now(), Path: path, Method: method})
	return func() {
		c.connections.Delete(id)
		atomic.AddInt64(&c.active, -1)
	}
}

// ActiveConnections returns the live tracked-connection list for diagnostics.
func (c *Coordinator) ActiveConnections() []Connection {
	var out []Connection
	c.connections.Range(func(_, v any) bool {
		out = append(out, *v.(*Connection))
		return true
	})
	return out
}

// IsDraining reports whether the coordinator has begun shutting down;
// callers use this to serve 503 for new requests while draining.
func (c *Coordinator) IsDraining() bool { return c.draining.Load() }

// HealthStatus reports the coordinator's current health status.
func (c *Coordinator) HealthStatus() Status {
	if c.draining.Load() {
		return StatusDraining
	}
	return StatusUp
}

// DrainResponse is the fixed 503 body served to new requests while
// draining.
type DrainResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Draining503 returns the response body for a request that arrives
// while the coordinator is draining.
func Draining503() DrainResponse {
	return DrainResponse{Error: "Service Unavailable", Message: "Server is shutting down", RetryAfter: 30}
}

// ListenForSignals blocks in a goroutine; on the first configured
// signal it runs Shutdown once. Call Wait to block the caller (e.g.
// main) until the sequence completes.
func (c *Coordinator) ListenForSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, c.opts.Signals...)
	go func() {
		<-ch
		c.Shutdown(context.Background())
	}()
}

// Wait blocks until Shutdown has completed (listener closed,
// onShutdownComplete run).
func (c *Coordinator) Wait() { <-c.done }

// Shutdown runs the full sequence exactly once. It is safe to call
// concurrently or multiple times; only the first call executes the
// sequence.
func (c *Coordinator) Shutdown(parent context.Context) {
	c.startOnce.Do(func() {
		defer close(c.done)
		c.run(parent)
	})
}

func (c *Coordinator) run(parent context.Context) {
	log := c.opts.Log
	c.draining.Store(true)
	log.Info("shutdown: draining started")

	deadline := time.Now().Add(c.opts.DrainTimeout)
	forceExitTimer := time.AfterFunc(c.opts.GracePeriod, func() {
		log.Error("shutdown: grace period exceeded, forcing exit")
		c.opts.Exit(1)
	})
	defer forceExitTimer.Stop()

	c.drain(deadline) // new requests already see 503 via IsDraining; listener close happens below

	c.runHooks(parent)

	c.closeListener(parent)

	if c.opts.OnShutdownComplete != nil {
		c.opts.OnShutdownComplete()
	}
	log.Info("shutdown: complete")
}

// drain waits until the active-request count reaches zero or deadline
// elapses, polling at a fixed interval.
func (c *Coordinator) drain(deadline time.Time) {
	for {
		if atomic.LoadInt64(&c.active) == 0 {
			return
		}
		if time.Now().After(deadline) {
			c.opts.Log.Warn("shutdown: drain deadline exceeded", zap.Int64("active", atomic.LoadInt64(&c.active)))
			return
		}
		time.Sleep(c.opts.DrainPollInterval)
	}
}

// runHooks executes hooks ordered by priority (high first, then
// registration order within a tier); a hook that times out is logged
// and abandoned, and the sequence continues.
func (c *Coordinator) runHooks(parent context.Context) {
	c.mu.Lock()
	hooks := append([]Hook{}, c.hooks...)
	c.mu.Unlock()

	ordered := stableSortByPriority(hooks)

	for _, h := range ordered {
		hookCtx, cancel := context.WithTimeout(parent, h.Timeout)
		errCh := make(chan error, 1)
		go func(h Hook) { errCh <- h.Run(hookCtx) }(h)

		select {
		case err := <-errCh:
			if err != nil {
				c.opts.Log.Error("shutdown hook failed", zap.String("hook", h.Name), zap.Error(err))
			}
		case <-hookCtx.Done():
			c.opts.Log.Error("shutdown hook timed out", zap.String("hook", h.Name),
				zap.Error(nexerr.HookTimeout(h.Name)))
		}
		cancel()
	}
}

func stableSortByPriority(hooks []Hook) []Hook {
	out := append([]Hook{}, hooks...)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j].Priority < out[j-1].Priority {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

func (c *Coordinator) closeListener(parent context.Context) {
	c.mu.Lock()
	closeFn := c.closeFn
	c.mu.Unlock()
	if closeFn == nil {
		return
	}
	if err := closeFn(parent); err != nil {
		c.opts.Log.Error("shutdown: listener close error", zap.Error(err))
	}
}
