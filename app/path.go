package app

import (
	"path"
	"strings"
)

// cleanPath normalizes a route-registration or mount path: ensures a
// leading slash and collapses duplicate slashes.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// joinPath joins a group prefix and a route path, cleaning the result.
func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return cleanPath(p)
	}
	if p == "" || p == "/" {
		return cleanPath(prefix)
	}
	return cleanPath(strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(p, "/"))
}
