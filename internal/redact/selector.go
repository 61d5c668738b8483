// SPDX-License-Identifier: MIT

package redact

import (
	"fmt"
	"strings"
)

// Element describes one node in a captured element path. Paths arrive on the
// wire as CSS-like strings ("form#checkout input.card-field[name=card]") and
// are parsed with ParsePath before matching.
type Element struct {
	Tag     string
	ID      string
	Classes []string
	Attrs   map[string]string
}

// simple is one compound selector: every populated part must match the same
// element. A zero simple ("*") matches any element.
type simple struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name  string
	value string // empty means presence-only ([attr])
	exact bool   // true for [attr=value]
}

// selector is a chain of compound selectors joined by descendant combinators.
type selector struct {
	raw   string
	chain []simple
}

// parseSelector compiles one selector string. The supported grammar is the
// subset that appears in redaction rule lists: tag, #id, .class, [attr],
// [attr=value], compounds of those, "*", and the descendant combinator.
func parseSelector(raw string) (selector, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return selector{}, fmt.Errorf("redact: empty selector")
	}
	var chain []simple
	for _, part := range strings.Fields(trimmed) {
		s, err := parseSimple(part)
		if err != nil {
			return selector{}, fmt.Errorf("redact: selector %q: %w", raw, err)
		}
		chain = append(chain, s)
	}
	return selector{raw: trimmed, chain: chain}, nil
}

func parseSimple(part string) (simple, error) {
	if part == "*" {
		return simple{}, nil
	}
	var s simple
	i := 0
	for i < len(part) {
		switch part[i] {
		case '#':
			j := tokenEnd(part, i+1)
			if j == i+1 {
				return simple{}, fmt.Errorf("empty id in %q", part)
			}
			s.id = part[i+1 : j]
			i = j
		case '.':
			j := tokenEnd(part, i+1)
			if j == i+1 {
				return simple{}, fmt.Errorf("empty class in %q", part)
			}
			s.classes = append(s.classes, part[i+1:j])
			i = j
		case '[':
			j := strings.IndexByte(part[i:], ']')
			if j < 0 {
				return simple{}, fmt.Errorf("unterminated attribute in %q", part)
			}
			body := part[i+1 : i+j]
			if body == "" {
				return simple{}, fmt.Errorf("empty attribute in %q", part)
			}
			am := attrMatch{name: body}
			if k := strings.IndexByte(body, '='); k >= 0 {
				am = attrMatch{
					name:  body[:k],
					value: strings.Trim(body[k+1:], `"'`),
					exact: true,
				}
			}
			if am.name == "" {
				return simple{}, fmt.Errorf("empty attribute name in %q", part)
			}
			s.attrs = append(s.attrs, am)
			i += j + 1
		default:
			if s.tag != "" || s.id != "" || len(s.classes) > 0 || len(s.attrs) > 0 {
				return simple{}, fmt.Errorf("unexpected %q in %q", string(part[i]), part)
			}
			j := tokenEnd(part, i)
			s.tag = strings.ToLower(part[i:j])
			i = j
		}
	}
	return s, nil
}

// tokenEnd returns the index just past an identifier starting at i.
func tokenEnd(s string, i int) int {
	for i < len(s) {
		c := s[i]
		if c == '#' || c == '.' || c == '[' {
			return i
		}
		i++
	}
	return i
}

func (s simple) matches(el Element) bool {
	if s.tag != "" && s.tag != strings.ToLower(el.Tag) {
		return false
	}
	if s.id != "" && s.id != el.ID {
		return false
	}
	for _, class := range s.classes {
		if !containsString(el.Classes, class) {
			return false
		}
	}
	for _, am := range s.attrs {
		v, ok := el.Attrs[am.name]
		if !ok {
			return false
		}
		if am.exact && v != am.value {
			return false
		}
	}
	return true
}

// matches reports whether the selector chain matches the element path with
// standard descendant semantics: the final compound must match the target
// (last element), earlier compounds must match ancestors in order.
func (s selector) matches(path []Element) bool {
	if len(s.chain) == 0 || len(path) == 0 {
		return false
	}
	last := s.chain[len(s.chain)-1]
	if !last.matches(path[len(path)-1]) {
		return false
	}
	// Greedily match remaining compounds against ancestors, right to left.
	ci := len(s.chain) - 2
	for pi := len(path) - 2; pi >= 0 && ci >= 0; pi-- {
		if s.chain[ci].matches(path[pi]) {
			ci--
		}
	}
	return ci < 0
}

// ParsePath parses a CSS-like element path string into elements. Each
// whitespace-separated token is one element, outermost first.
func ParsePath(raw string) ([]Element, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	var path []Element
	for _, part := range strings.Fields(trimmed) {
		s, err := parseSimple(part)
		if err != nil {
			return nil, fmt.Errorf("redact: path %q: %w", raw, err)
		}
		el := Element{Tag: s.tag, ID: s.id, Classes: s.classes}
		if len(s.attrs) > 0 {
			el.Attrs = make(map[string]string, len(s.attrs))
			for _, am := range s.attrs {
				el.Attrs[am.name] = am.value
			}
		}
		path = append(path, el)
	}
	return path, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
