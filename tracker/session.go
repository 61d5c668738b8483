// SPDX-License-Identifier: MIT

package tracker

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// sessionState is the persisted session record. It is the Go rendition of
// the identity cookie: a session survives restarts within the idle window,
// user identity survives session rotation.
type sessionState struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id,omitempty"`
	Traits    map[string]any `json:"traits,omitempty"`
	StartedAt int64          `json:"started_at"`
	LastSeen  int64          `json:"last_seen"`
}

// persistThrottle bounds state writes under event load.
const persistThrottle = time.Second

type sessionManager struct {
	mu        sync.Mutex
	path      string // empty keeps the session in memory only
	idle      time.Duration
	state     sessionState
	persisted time.Time
	now       func() time.Time
	log       zerolog.Logger
}

func newSessionManager(path string, idle time.Duration, logger zerolog.Logger) *sessionManager {
	m := &sessionManager{
		path: path,
		idle: idle,
		now:  time.Now,
		log:  logger,
	}
	m.load()
	m.mu.Lock()
	m.ensureFreshLocked()
	m.mu.Unlock()
	return m
}

// load restores persisted state; any failure just starts a fresh session.
func (m *sessionManager) load() {
	if m.path == "" {
		return
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn().Err(err).Str("path", m.path).Msg("session state unreadable, starting fresh")
		}
		return
	}
	var st sessionState
	if err := json.Unmarshal(data, &st); err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("session state corrupt, starting fresh")
		return
	}
	m.state = st
}

// ensureFreshLocked rotates the session if the idle window elapsed. The
// user identity carries over to the successor session.
func (m *sessionManager) ensureFreshLocked() {
	now := m.now()
	last := time.UnixMilli(m.state.LastSeen)
	if m.state.SessionID != "" && now.Sub(last) <= m.idle {
		return
	}
	old := m.state.SessionID
	m.state.SessionID = uuid.NewString()
	m.state.StartedAt = now.UnixMilli()
	m.state.LastSeen = now.UnixMilli()
	m.persistLocked(true)
	if old != "" {
		m.log.Debug().
			Str("old_session_id", old).
			Str("session_id", m.state.SessionID).
			Msg("session window expired, rotated")
	}
}

// Touch marks activity and returns the current session ID, rotating first
// if the idle window elapsed.
func (m *sessionManager) Touch() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureFreshLocked()
	m.state.LastSeen = m.now().UnixMilli()
	m.persistLocked(false)
	return m.state.SessionID
}

// ID returns the current session ID without extending the window.
func (m *sessionManager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureFreshLocked()
	return m.state.SessionID
}

// SetUser binds a user identity to the session.
func (m *sessionManager) SetUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureFreshLocked()
	m.state.UserID = userID
	m.persistLocked(true)
}

// MergeTraits merges user traits into the persisted identity.
func (m *sessionManager) MergeTraits(traits map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureFreshLocked()
	if m.state.Traits == nil {
		m.state.Traits = make(map[string]any, len(traits))
	}
	for k, v := range traits {
		m.state.Traits[k] = v
	}
	m.persistLocked(true)
}

// User returns the bound user ID, if any.
func (m *sessionManager) User() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UserID
}

// Flush forces the state to disk, ignoring the persist throttle.
func (m *sessionManager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked(true)
}

// persistLocked writes the state atomically. Writes are throttled unless
// force is set, so a hot event path does not turn into an fsync storm.
func (m *sessionManager) persistLocked(force bool) {
	if m.path == "" {
		return
	}
	now := m.now()
	if !force && now.Sub(m.persisted) < persistThrottle {
		return
	}
	data, err := json.Marshal(m.state)
	if err != nil {
		m.log.Warn().Err(err).Msg("session state marshal failed")
		return
	}
	if err := renameio.WriteFile(m.path, data, 0o600); err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("session state write failed")
		return
	}
	m.persisted = now
}
