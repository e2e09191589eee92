// Package version resolves an API version from the path, a header, or a
// query parameter, in a configured strategy order, falling back to a
// default and rewriting the path used for router matching.
package version

import (
	"net/http"
	"strings"
)

// Strategy names a version-resolution source, tried in the order given
// in Config.Strategies.
type Strategy string

const (
	StrategyPath   Strategy = "path"
	StrategyHeader Strategy = "header"
	StrategyQuery  Strategy = "query"
)

// Source records which strategy actually resolved a request's version,
// set on the request Context for observability.
type Source string

const (
	SourcePath    Source = "path"
	SourceHeader  Source = "header"
	SourceQuery   Source = "query"
	SourceDefault Source = "default"
)

// Config configures a Versioner.
type Config struct {
	// Strategies lists the resolution sources to try, in order.
	Strategies []Strategy
	// Header is the header name consulted by StrategyHeader.
	Header string
	// QueryParam is the query parameter name consulted by StrategyQuery.
	QueryParam string
	// DefaultVersion is used when no strategy resolves a version.
	DefaultVersion string
	// Register lists every version the application recognizes; an
	// unregistered version found by any strategy is treated as absent so
	// resolution falls through to later strategies, then to the default.
	Register []string
}

// Versioner resolves the version for each request per Config.
type Versioner struct {
	cfg        Config
	registered map[string]bool
}

// New constructs a Versioner from cfg, defaulting Header/QueryParam/
// DefaultVersion/Strategies if left zero.
func New(cfg Config) *Versioner {
	if cfg.Header == "" {
		cfg.Header = "api-version"
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = "version"
	}
	if cfg.DefaultVersion == "" {
		cfg.DefaultVersion = "v1"
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = []Strategy{StrategyPath, StrategyHeader, StrategyQuery}
	}
	registered := make(map[string]bool, len(cfg.Register)+1)
	for _, v := range cfg.Register {
		registered[v] = true
	}
	registered[cfg.DefaultVersion] = true
	return &Versioner{cfg: cfg, registered: registered}
}

// Result is the outcome of resolving a request's version.
type Result struct {
	Version    string
	Source     Source
	MatchPath  string // the path to hand to the router, with a version prefix when rewritten
}

// Resolve determines the version for an incoming request and the path
// the router should match against: for header/query/default resolution,
// the path is rewritten to /{version}{originalPath}.
func (v *Versioner) Resolve(r *http.Request) Result {
	path := r.URL.Path
	for _, strategy := range v.cfg.Strategies {
		switch strategy {
		case StrategyPath:
			if ver, rest, ok := splitVersionedPath(path); ok && v.registered[ver] {
				return Result{Version: ver, Source: SourcePath, MatchPath: "/" + ver + rest}
			}
		case StrategyHeader:
			if ver := r.Header.Get(v.cfg.Header); ver != "" && v.registered[ver] {
				return Result{Version: ver, Source: SourceHeader, MatchPath: rewrite(ver, path)}
			}
		case StrategyQuery:
			if ver := r.URL.Query().Get(v.cfg.QueryParam); ver != "" && v.registered[ver] {
				return Result{Version: ver, Source: SourceQuery, MatchPath: rewrite(ver, path)}
			}
		}
	}
	return Result{Version: v.cfg.DefaultVersion, Source: SourceDefault, MatchPath: rewrite(v.cfg.DefaultVersion, path)}
}

// RegisteredPath prefixes a non-versioned registration path with the
// default version. Use ExpandRegistrationPaths
// when the route should also be reachable under every other registered
// version.
func (v *Versioner) RegisteredPath(path string) string {
	if ver, _, ok := splitVersionedPath(path); ok && v.registered[ver] {
		return path
	}
	return rewrite(v.cfg.DefaultVersion, path)
}

// ExpandRegistrationPaths returns every path a non-versioned registration
// should be inserted under: one per version named in Config.Register (plus
// the default version), so a request resolved to any of those versions via
// path/header/query finds the same route. A path that already carries an
// explicit, registered version prefix is returned unchanged (single entry).
func (v *Versioner) ExpandRegistrationPaths(path string) []string {
	if ver, _, ok := splitVersionedPath(path); ok && v.registered[ver] {
		return []string{path}
	}
	seen := make(map[string]bool)
	var out []string
	add := func(ver string) {
		p := rewrite(ver, path)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(v.cfg.DefaultVersion)
	for _, ver := range v.cfg.Register {
		add(ver)
	}
	return out
}

func rewrite(ver, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "/" + ver + path
}

// splitVersionedPath splits off the first path segment as a candidate
// version token, returning it and the remainder (including leading slash);
// ok is false only for an empty path. Callers check the candidate against
// the registered versions.
func splitVersionedPath(path string) (ver, rest string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", "", false
	}
	idx := strings.IndexByte(trimmed, '/')
	if idx == -1 {
		return trimmed, "", true
	}
	return trimmed[:idx], trimmed[idx:], true
}
