// SPDX-License-Identifier: MIT

// Package redact implements the field-redaction engine shared by the client
// tracker and the collector. A rule set combines CSS selector rules, which
// mask captured values originating from matching elements, and field-name
// rules, which mask properties by name regardless of origin.
package redact

import (
	"strings"
	"sync"
)

// Redacted is the replacement token for non-string values.
const Redacted = "[redacted]"

// Rules is an immutable, compiled redaction rule set. Compile once, share
// freely; swap the whole set to update.
type Rules struct {
	selectors []selector
	fields    map[string]struct{}
}

// Compile builds a rule set from selector strings and field names. Invalid
// selectors fail compilation as a whole so a bad rule file cannot silently
// weaken redaction.
func Compile(selectors []string, fields []string) (*Rules, error) {
	r := &Rules{fields: make(map[string]struct{}, len(fields))}
	for _, raw := range selectors {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		sel, err := parseSelector(raw)
		if err != nil {
			return nil, err
		}
		r.selectors = append(r.selectors, sel)
	}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			r.fields[strings.ToLower(f)] = struct{}{}
		}
	}
	return r, nil
}

// Empty returns a rule set that redacts nothing.
func Empty() *Rules {
	r, _ := Compile(nil, nil)
	return r
}

// Selectors returns the raw selector strings of the rule set.
func (r *Rules) Selectors() []string {
	out := make([]string, len(r.selectors))
	for i, s := range r.selectors {
		out[i] = s.raw
	}
	return out
}

// Fields returns the redacted field names of the rule set.
func (r *Rules) Fields() []string {
	out := make([]string, 0, len(r.fields))
	for f := range r.fields {
		out = append(out, f)
	}
	return out
}

// FieldCount returns the number of redacted field names.
func (r *Rules) FieldCount() int { return len(r.fields) }

// MatchesPath reports whether any selector rule matches the element path.
func (r *Rules) MatchesPath(path []Element) bool {
	for _, sel := range r.selectors {
		if sel.matches(path) {
			return true
		}
	}
	return false
}

// MatchesTarget parses a CSS-like path string and matches it against the
// selector rules. Unparseable paths are treated as matching: a value whose
// origin cannot be established is masked rather than leaked.
func (r *Rules) MatchesTarget(target string) bool {
	if len(r.selectors) == 0 {
		return false
	}
	if strings.TrimSpace(target) == "" {
		return false
	}
	path, err := ParsePath(target)
	if err != nil {
		return true
	}
	return r.MatchesPath(path)
}

// RedactedField reports whether the property name is in the field rule set.
func (r *Rules) RedactedField(name string) bool {
	_, ok := r.fields[strings.ToLower(name)]
	return ok
}

// Mask returns the masked form of v: strings become '*' runs of equal rune
// length, everything else the Redacted token.
func Mask(v any) any {
	if s, ok := v.(string); ok {
		return MaskString(s)
	}
	return Redacted
}

// MaskString masks s preserving its rune length.
func MaskString(s string) string {
	return strings.Repeat("*", len([]rune(s)))
}

// MaskFields masks properties whose names are in the field rule set,
// returning the number of masked values. Nested maps are walked so grouped
// properties cannot smuggle a redacted field through.
func (r *Rules) MaskFields(props map[string]any) int {
	if len(r.fields) == 0 || len(props) == 0 {
		return 0
	}
	masked := 0
	for k, v := range props {
		if r.RedactedField(k) {
			props[k] = Mask(v)
			masked++
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			masked += r.MaskFields(nested)
		}
	}
	return masked
}

// MaskAll masks every value in props. Used when the event's target element
// matches a selector rule.
func MaskAll(props map[string]any) int {
	masked := 0
	for k, v := range props {
		if nested, ok := v.(map[string]any); ok {
			masked += MaskAll(nested)
			continue
		}
		props[k] = Mask(v)
		masked++
	}
	return masked
}

// Holder provides an atomically swappable rule set for components that
// observe live rule updates.
type Holder struct {
	mu    sync.RWMutex
	rules *Rules
}

// NewHolder wraps an initial rule set. A nil initial set becomes Empty.
func NewHolder(initial *Rules) *Holder {
	if initial == nil {
		initial = Empty()
	}
	return &Holder{rules: initial}
}

// Current returns the active rule set.
func (h *Holder) Current() *Rules {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rules
}

// Swap replaces the active rule set.
func (h *Holder) Swap(r *Rules) {
	if r == nil {
		r = Empty()
	}
	h.mu.Lock()
	h.rules = r
	h.mu.Unlock()
}
