// SPDX-License-Identifier: MIT

// Package session tracks server-side session windows. The registry is the
// collector's source of truth for the 30-minute inactivity rule: a batch
// carrying a session last seen beyond the idle window is assigned a
// successor session, and the successor mapping is remembered so the rest
// of that client's traffic lands in the same place.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session is unknown to the registry.
var ErrNotFound = errors.New("session: not found")

// Session is one bounded period of user activity.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	EventCount int64     `json:"event_count"`
}

// Registry stores and ages sessions.
type Registry interface {
	// Touch records activity for the given session ID. If the session is
	// past the idle window a successor session is created and returned;
	// callers must re-label events with the returned ID.
	Touch(ctx context.Context, id, userID string, events int) (Session, error)

	// Get returns a session by ID.
	Get(ctx context.Context, id string) (Session, error)

	// Close releases backend resources.
	Close() error
}

// Config holds registry construction parameters shared by backends.
type Config struct {
	// IdleTimeout is the inactivity window after which a session ends.
	IdleTimeout time.Duration

	// Retention is how long ended sessions stay queryable.
	Retention time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	return c
}
