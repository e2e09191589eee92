package app

import (
	"net/http"
	"os"
	"strings"

	"github.com/nexuscore/nexus/reqctx"
	"github.com/nexuscore/nexus/security"
)

// HandleHTTP mounts a raw net/http.Handler at a specific method/path,
// for interoperability with standard-library handlers.
func (a *Application) HandleHTTP(method, path string, h http.Handler) {
	_ = a.router.Insert(method, path, wrapStd(h), nil)
}

// Mount mounts h for every common HTTP method under path.
func (a *Application) Mount(path string, h http.Handler) {
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead} {
		_ = a.router.Insert(m, path, wrapStd(h), nil)
	}
}

// Static serves files from dir under prefix for GET and HEAD.
func (a *Application) Static(prefix, dir string) { a.StaticDirs(prefix, dir) }

// StaticDirs serves files from multiple directories under the same
// prefix, first match wins.
func (a *Application) StaticDirs(prefix string, dirs ...string) {
	prefix = cleanPath(prefix)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var mfs multiFS
	for _, d := range dirs {
		if d != "" {
			mfs = append(mfs, http.Dir(d))
		}
	}
	if len(mfs) == 0 {
		return
	}

	fs := http.FileServer(mfs)
	h := sanitizedStatic(http.StripPrefix(prefix, fs))
	_ = a.router.Insert(http.MethodGet, prefix+"*filepath", wrapStd(h), nil)
	_ = a.router.Insert(http.MethodHead, prefix+"*filepath", wrapStd(h), nil)
}

// sanitizedStatic rejects a static-file request whose path fails
// security.SanitizePath (encoded traversal segments, control characters,
// ...) with 400 before it ever reaches http.FileServer, rather than
// relying solely on http.Dir's own traversal guard.
func sanitizedStatic(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if security.SanitizePath(r.URL.Path) == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// wrapStd adapts a net/http.Handler into the func(*reqctx.Context) shape
// every compiled route handler in the router tree uses, so ServeHTTP's
// single type assertion covers both pipeline-compiled and raw-mounted
// routes.
func wrapStd(h http.Handler) func(*reqctx.Context) {
	return func(c *reqctx.Context) {
		h.ServeHTTP(c.ResponseWriter(), c.Request())
	}
}

// multiFS is an http.FileSystem trying multiple underlying filesystems in
// order; the first successful Open wins.
type multiFS []http.FileSystem

func (m multiFS) Open(name string) (http.File, error) {
	var lastErr error
	for _, fs := range m {
		f, err := fs.Open(name)
		if err == nil {
			return f, nil
		}
		lastErr = err
		if os.IsNotExist(err) {
			continue
		}
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return nil, lastErr
}
