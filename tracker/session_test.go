// SPDX-License-Identifier: MIT

package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, path string, idle time.Duration) (*sessionManager, *time.Time) {
	t.Helper()
	m := newSessionManager(path, idle, zerolog.Nop())
	now := time.Now()
	m.mu.Lock()
	m.now = func() time.Time { return now }
	m.mu.Unlock()
	return m, &now
}

func TestSessionStableWithinWindow(t *testing.T) {
	m, now := newTestSession(t, "", 30*time.Minute)

	id := m.Touch()
	require.NotEmpty(t, id)

	*now = now.Add(29 * time.Minute)
	assert.Equal(t, id, m.Touch())
	assert.Equal(t, id, m.ID())
}

func TestSessionRotatesAfterIdleWindow(t *testing.T) {
	m, now := newTestSession(t, "", 30*time.Minute)

	m.SetUser("user-1")
	id := m.Touch()

	*now = now.Add(31 * time.Minute)
	rotated := m.Touch()
	assert.NotEqual(t, id, rotated)

	// Identity survives rotation.
	assert.Equal(t, "user-1", m.User())
}

func TestSessionActivityExtendsWindow(t *testing.T) {
	m, now := newTestSession(t, "", 30*time.Minute)

	id := m.Touch()
	for i := 0; i < 4; i++ {
		*now = now.Add(20 * time.Minute)
		assert.Equal(t, id, m.Touch())
	}
}

func TestSessionPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	m1 := newSessionManager(path, 30*time.Minute, zerolog.Nop())
	m1.SetUser("user-1")
	m1.MergeTraits(map[string]any{"plan": "pro"})
	id := m1.Touch()
	m1.Flush()

	m2 := newSessionManager(path, 30*time.Minute, zerolog.Nop())
	assert.Equal(t, id, m2.ID())
	assert.Equal(t, "user-1", m2.User())
}

func TestSessionRestartPastWindowRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	m1 := newSessionManager(path, 30*time.Minute, zerolog.Nop())
	m1.SetUser("user-1")
	id := m1.Touch()
	m1.Flush()

	// Age the persisted state past the idle window.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st sessionState
	require.NoError(t, json.Unmarshal(data, &st))
	st.LastSeen = time.Now().Add(-time.Hour).UnixMilli()
	aged, err := json.Marshal(st)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, aged, 0o600))

	m2 := newSessionManager(path, 30*time.Minute, zerolog.Nop())
	assert.NotEqual(t, id, m2.ID())
	assert.Equal(t, "user-1", m2.User())
}

func TestSessionCorruptStateStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o600))

	m := newSessionManager(path, 30*time.Minute, zerolog.Nop())
	assert.NotEmpty(t, m.ID())
	assert.Empty(t, m.User())
}

func TestSessionMergeTraits(t *testing.T) {
	m, _ := newTestSession(t, "", 30*time.Minute)

	m.MergeTraits(map[string]any{"plan": "free", "beta": true})
	m.MergeTraits(map[string]any{"plan": "pro"})

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, "pro", m.state.Traits["plan"])
	assert.Equal(t, true, m.state.Traits["beta"])
}
