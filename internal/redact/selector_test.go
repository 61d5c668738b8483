// SPDX-License-Identifier: MIT

package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPath(t *testing.T, raw string) []Element {
	t.Helper()
	path, err := ParsePath(raw)
	require.NoError(t, err)
	return path
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "tag", raw: "input"},
		{name: "id", raw: "#payment"},
		{name: "class", raw: ".card-number"},
		{name: "attr presence", raw: "[data-private]"},
		{name: "attr value", raw: "input[type=password]"},
		{name: "quoted attr value", raw: `input[name="card"]`},
		{name: "compound", raw: "input.card-field#pan[type=text]"},
		{name: "descendant", raw: "form#checkout input"},
		{name: "universal", raw: "*"},
		{name: "empty", raw: "", wantErr: true},
		{name: "empty id", raw: "#", wantErr: true},
		{name: "empty class", raw: "input.", wantErr: true},
		{name: "unterminated attr", raw: "input[type", wantErr: true},
		{name: "empty attr", raw: "input[]", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSelector(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSelectorMatching(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		path     string
		want     bool
	}{
		{"tag match", "input", "form input", true},
		{"tag mismatch", "textarea", "form input", false},
		{"tag case insensitive", "INPUT", "form input", true},
		{"id match", "#pan", "form input#pan", true},
		{"id on ancestor not target", "#checkout", "form#checkout input", false},
		{"class match", ".secret", "div input.secret", true},
		{"multi class", ".a.b", "input.b.a.c", true},
		{"missing class", ".a.b", "input.a", false},
		{"attr presence", "[data-private]", "input[data-private=yes]", true},
		{"attr exact", "input[type=password]", "input[type=password]", true},
		{"attr exact mismatch", "input[type=password]", "input[type=text]", false},
		{"descendant", "form#checkout input", "div form#checkout div input", true},
		{"descendant order violated", "input form", "form input", false},
		{"universal", "*", "span", true},
		{"empty path", "input", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := parseSelector(tt.selector)
			require.NoError(t, err)
			var path []Element
			if tt.path != "" {
				path = mustPath(t, tt.path)
			}
			assert.Equal(t, tt.want, sel.matches(path))
		})
	}
}

func TestParsePath(t *testing.T) {
	path := mustPath(t, "form#checkout input.card[name=pan]")
	require.Len(t, path, 2)
	assert.Equal(t, "form", path[0].Tag)
	assert.Equal(t, "checkout", path[0].ID)
	assert.Equal(t, "input", path[1].Tag)
	assert.Equal(t, []string{"card"}, path[1].Classes)
	assert.Equal(t, "pan", path[1].Attrs["name"])
}
