// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelight/tracelight/internal/redact"
)

func TestLoadRules(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", `
selectors:
  - input[type=password]
  - .credit-card
fields:
  - ssn
  - password
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rules.Selectors(), 2)
	assert.Equal(t, 2, rules.FieldCount())
	assert.True(t, rules.MatchesTarget("form input[type=password]"))
	assert.False(t, rules.MatchesTarget("form input[type=text]"))
}

func TestLoadRulesInvalidSelector(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", `
selectors:
  - "input[unclosed"
`)
	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules("/nonexistent/rules.yaml")
	assert.Error(t, err)
}

func TestRulesWatcherReload(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", "fields: [ssn]\n")

	initial, err := LoadRules(path)
	require.NoError(t, err)
	holder := redact.NewHolder(initial)

	ctx := t.Context()
	w := NewRulesWatcher(path, holder)
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte("fields: [ssn, password]\n"), 0o600))

	require.Eventually(t, func() bool {
		return holder.Current().FieldCount() == 2
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRulesWatcherKeepsOldOnInvalid(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", "fields: [ssn]\n")

	initial, err := LoadRules(path)
	require.NoError(t, err)
	holder := redact.NewHolder(initial)

	w := NewRulesWatcher(path, holder)
	require.NoError(t, w.Start(t.Context()))

	require.NoError(t, os.WriteFile(path, []byte("selectors: [\"input[broken\"]\n"), 0o600))

	// The bad file must not displace the compiled rules.
	time.Sleep(time.Second)
	assert.Equal(t, 1, holder.Current().FieldCount())
}

func TestRulesWatcherNoPath(t *testing.T) {
	w := NewRulesWatcher("", redact.NewHolder(nil))
	assert.NoError(t, w.Start(t.Context()))
}
