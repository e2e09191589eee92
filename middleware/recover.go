package middleware

import (
	"fmt"
	"net/http"

	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

// RecoverConfig configures the Recover middleware.
type RecoverConfig struct {
	// ErrorResponse, if set, replaces the default 500 response. Any error
	// it returns propagates to the pipeline's error handler.
	ErrorResponse func(c *reqctx.Context, recovered any) error
	// OnPanic, if set, is invoked (synchronously, under its own recover) with the
	// recovered value before the response is written, for logging/metrics
	// hooks that must not themselves crash the request.
	OnPanic func(c *reqctx.Context, recovered any)
}

// Recover returns middleware that recovers panics raised by downstream
// middleware or the handler and turns them into a 500 response instead of
// crashing the serving goroutine.
func Recover(cfgs ...RecoverConfig) pipeline.Middleware {
	var cfg RecoverConfig
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}

	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (result any, err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			if cfg.OnPanic != nil {
				func() {
					defer func() { _ = recover() }()
					cfg.OnPanic(c, r)
				}()
			}

			if cfg.ErrorResponse != nil {
				err = cfg.ErrorResponse(c, r)
				return
			}

			core.LoggerFromContext(c.StdContext()).Error("panic recovered", "panic", fmt.Sprint(r), "path", c.Path())
			result = &reqctx.Response{
				StatusCode: http.StatusInternalServerError,
				Headers:    http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
				Body:       []byte(http.StatusText(http.StatusInternalServerError)),
			}
			err = nil
		}()
		return next(c)
	}
}
