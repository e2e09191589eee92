package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

// TimeoutConfig configures the timeout middleware. Duration sets the
// deadline; OnTimeout fires when it's exceeded; ErrorResponse can
// customize the response returned in that case.
type TimeoutConfig struct {
	Duration      time.Duration
	OnTimeout     func(c *reqctx.Context)
	ErrorResponse func(c *reqctx.Context) (any, error)
}

// timeoutWriter buffers header mutations locally and writes to the real
// writer under a mutex. Once forceTimeout is called, all further writes
// are dropped so a still-running handler can't write to the real
// response after the timeout path has taken over.
type timeoutWriter struct {
	w           http.ResponseWriter
	mu          sync.Mutex
	timedOut    bool
	header      http.Header
	wroteHeader bool
	status      int
}

func newTimeoutWriter(w http.ResponseWriter) *timeoutWriter {
	h := make(http.Header, len(w.Header()))
	for k, v := range w.Header() {
		vv := make([]string, len(v))
		copy(vv, v)
		h[k] = vv
	}
	return &timeoutWriter{w: w, header: h}
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func copyHeaders(dst, src http.Header) {
	for k := range dst {
		dst.Del(k)
	}
	for k, v := range src {
		vals := make([]string, len(v))
		copy(vals, v)
		dst[k] = vals
	}
}

func (tw *timeoutWriter) writeHeaderLocked(status int) {
	if tw.wroteHeader {
		return
	}
	copyHeaders(tw.w.Header(), tw.header)
	tw.w.WriteHeader(status)
	tw.wroteHeader = true
	tw.status = status
}

func (tw *timeoutWriter) WriteHeader(status int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	tw.writeHeaderLocked(status)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return len(b), nil
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.w.Write(b)
}

func (tw *timeoutWriter) Flush() {
	if f, ok := tw.w.(http.Flusher); ok {
		tw.mu.Lock()
		defer tw.mu.Unlock()
		if tw.timedOut {
			return
		}
		f.Flush()
	}
}

// forceTimeout waits for any write currently in flight to finish, then
// marks the writer dead so everything after is dropped.
func (tw *timeoutWriter) forceTimeout() {
	tw.mu.Lock()
	tw.timedOut = true
	tw.mu.Unlock()
}

// Timeout bounds handler execution to Duration. The handler runs against
// a Context clone wrapping a buffering writer on its own goroutine; if it
// doesn't finish in time, a 504 Gateway Timeout is returned instead and
// the handler's eventual writes to its buffering writer are dropped.
func Timeout(cfg TimeoutConfig) pipeline.Middleware {
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Second
	}
	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		ctx, cancel := context.WithTimeout(c.StdContext(), cfg.Duration)
		defer cancel()
		c.SetStdContext(ctx)

		tw := newTimeoutWriter(c.ResponseWriter())
		handlerCtx := c.Clone()
		handlerCtx.SetStdContext(ctx)
		handlerCtx.SetResponseWriter(tw)

		type outcome struct {
			result any
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			result, err := next(handlerCtx)
			done <- outcome{result, err}
		}()

		select {
		case o := <-done:
			return o.result, o.err
		case <-ctx.Done():
			select {
			case o := <-done:
				return o.result, o.err
			default:
			}

			tw.forceTimeout()
			if cfg.OnTimeout != nil {
				cfg.OnTimeout(c)
			}
			if cfg.ErrorResponse != nil {
				return cfg.ErrorResponse(c)
			}
			return &reqctx.Response{
				StatusCode: http.StatusGatewayTimeout,
				Headers:    http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
				Body:       []byte(http.StatusText(http.StatusGatewayTimeout)),
			}, nil
		}
	}
}
