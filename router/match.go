package router

import (
	"regexp"
	"strings"
)

// match walks n's children trying each in priority order, backtracking
// parameter captures on failure so a later sibling can be tried.
func (n *node) match(segments []string, params map[string]string) (*node, bool) {
	if len(segments) == 0 {
		if n.route != nil {
			return n, true
		}
		// A node with no route but a wildcard child can still match zero
		// remaining segments, binding the empty string.
		for _, c := range n.children {
			if c.kind == kindWildcard {
				if res, ok := tryWildcard(c, segments, params); ok {
					return res, true
				}
			}
		}
		return nil, false
	}

	seg := segments[0]
	rest := segments[1:]

	for _, c := range n.children {
		switch c.kind {
		case kindStatic:
			if c.segment != seg {
				continue
			}
			if res, ok := c.match(rest, params); ok {
				return res, true
			}
		case kindPattern:
			m := c.re.FindStringSubmatch(seg)
			if m == nil {
				continue
			}
			saved := captureNamed(c.re, m, params)
			if res, ok := c.match(rest, params); ok {
				return res, true
			}
			restore(params, saved)
		case kindRegex:
			if !c.re.MatchString(seg) {
				continue
			}
			saved := capture(params, c.param, seg)
			if res, ok := c.match(rest, params); ok {
				return res, true
			}
			restore(params, saved)
		case kindParam:
			saved := capture(params, c.param, seg)
			if res, ok := c.match(rest, params); ok {
				return res, true
			}
			restore(params, saved)
		case kindWildcard:
			if res, ok := tryWildcard(c, segments, params); ok {
				return res, true
			}
		}
	}
	return nil, false
}

// tryWildcard binds all remaining segments (possibly zero) to c's param
// name and returns immediately: a wildcard node has no children and
// terminates the match.
func tryWildcard(c *node, segments []string, params map[string]string) (*node, bool) {
	if c.route == nil {
		return nil, false
	}
	capture(params, c.param, strings.Join(segments, "/"))
	return c, true
}

type captured struct {
	name string
	had  bool
	val  string
}

func capture(params map[string]string, name, value string) []captured {
	old, had := params[name]
	params[name] = value
	return []captured{{name: name, had: had, val: old}}
}

func captureNamed(re *regexp.Regexp, m []string, params map[string]string) []captured {
	var saved []captured
	names := re.SubexpNames()
	for i, name := range names {
		if i == 0 || name == "" {
			continue
		}
		old, had := params[name]
		saved = append(saved, captured{name: name, had: had, val: old})
		params[name] = m[i]
	}
	return saved
}

func restore(params map[string]string, saved []captured) {
	for _, s := range saved {
		if s.had {
			params[s.name] = s.val
		} else {
			delete(params, s.name)
		}
	}
}
