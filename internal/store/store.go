// SPDX-License-Identifier: MIT

// Package store defines the collector's event persistence contract.
package store

import (
	"context"
	"time"
)

// Record is one stored event. Props is the raw JSON property map.
type Record struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	Target     string    `json:"target,omitempty"`
	Props      []byte    `json:"props,omitempty"`
	Timestamp  time.Time `json:"ts"`
	ReceivedAt time.Time `json:"received_at"`
}

// Store persists and queries event records.
type Store interface {
	// InsertBatch writes all records in one transaction. Records whose
	// IDs already exist are skipped (re-delivered batches are expected).
	InsertBatch(ctx context.Context, records []Record) error

	// EventsBySession returns records for a session ordered by event
	// timestamp, with limit/offset paging.
	EventsBySession(ctx context.Context, sessionID string, limit, offset int) ([]Record, error)

	// CountBySession returns the number of stored records for a session.
	CountBySession(ctx context.Context, sessionID string) (int64, error)

	// DeleteOlderThan removes records received before cutoff and returns
	// how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
