package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

// GzipConfig configures the gzip middleware.
type GzipConfig struct {
	// Level is the gzip compression level (see compress/gzip). Defaults
	// to gzip.DefaultCompression.
	Level int
}

// gzipPools is a global map of sync.Pool keyed by compression level, to
// avoid repeatedly allocating gzip.Writer (expensive to create and GC).
var gzipPools sync.Map // map[int]*sync.Pool

func getGzipWriter(level int, w io.Writer) (*gzip.Writer, func()) {
	poolAny, _ := gzipPools.LoadOrStore(level, &sync.Pool{New: func() any {
		gw, _ := gzip.NewWriterLevel(io.Discard, level)
		return gw
	}})
	pool := poolAny.(*sync.Pool)
	gw := pool.Get().(*gzip.Writer)
	gw.Reset(w)
	put := func() {
		_ = gw.Close()
		gw.Reset(io.Discard)
		pool.Put(gw)
	}
	return gw, put
}

// Gzip returns middleware that compresses the response body when the
// client sends Accept-Encoding: gzip. HEAD requests are never compressed.
func Gzip(cfgs ...GzipConfig) pipeline.Middleware {
	cfg := GzipConfig{Level: gzip.DefaultCompression}
	if len(cfgs) > 0 && cfgs[0].Level != 0 {
		cfg.Level = cfgs[0].Level
	}

	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		r := c.Request()
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || c.Method() == http.MethodHead {
			return next(c)
		}

		grw := &gzipResponseWriter{rw: c.ResponseWriter(), level: cfg.Level}
		c.SetResponseWriter(grw)
		defer grw.Close()

		return next(c)
	}
}

type gzipResponseWriter struct {
	rw          http.ResponseWriter
	gz          *gzip.Writer
	put         func()
	level       int
	wroteHeader bool
	useGzip     bool
}

func (g *gzipResponseWriter) Header() http.Header { return g.rw.Header() }

func (g *gzipResponseWriter) WriteHeader(status int) {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true

	enc := g.Header().Get("Content-Encoding")
	if enc != "" && enc != "identity" {
		g.useGzip = false
		g.rw.WriteHeader(status)
		return
	}
	if status == http.StatusNoContent || status == http.StatusNotModified {
		g.useGzip = false
		g.rw.WriteHeader(status)
		return
	}

	g.useGzip = true
	g.Header().Del("Content-Length")
	g.Header().Set("Content-Encoding", "gzip")
	g.Header().Add("Vary", "Accept-Encoding")
	g.rw.WriteHeader(status)
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	if !g.useGzip {
		return g.rw.Write(p)
	}
	if g.gz == nil {
		gw, put := getGzipWriter(g.level, g.rw)
		g.gz, g.put = gw, put
	}
	return g.gz.Write(p)
}

func (g *gzipResponseWriter) Close() error {
	if g.gz != nil {
		if g.put != nil {
			g.put()
			g.gz, g.put = nil, nil
			return nil
		}
		return g.gz.Close()
	}
	return nil
}

func (g *gzipResponseWriter) Flush() {
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.rw.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*gzipResponseWriter)(nil)
var _ http.Flusher = (*gzipResponseWriter)(nil)
