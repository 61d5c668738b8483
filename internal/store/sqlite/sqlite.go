// SPDX-License-Identifier: MIT

// Package sqlite implements the event store on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/tracelight/tracelight/internal/store"
)

// Config defines standard SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the recommended pool configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	target      TEXT NOT NULL DEFAULT '',
	props       BLOB,
	ts          INTEGER NOT NULL,
	received_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts);
CREATE INDEX IF NOT EXISTS idx_events_received ON events(received_at);
`

// Store is the sqlite-backed event store.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite connection pool with mandatory PRAGMAs and
// applies the schema. WAL and busy_timeout ride in the DSN so they apply
// to every pooled connection.
func Open(dbPath string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema failed: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) InsertBatch(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events
			(id, session_id, user_id, type, name, url, target, props, ts, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.SessionID, r.UserID, r.Type, r.Name, r.URL, r.Target,
			r.Props, r.Timestamp.UnixMilli(), r.ReceivedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("sqlite: insert event %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *Store) EventsBySession(ctx context.Context, sessionID string, limit, offset int) ([]store.Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, type, name, url, target, props, ts, received_at
		FROM events
		WHERE session_id = ?
		ORDER BY ts ASC
		LIMIT ? OFFSET ?`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Record
	for rows.Next() {
		var r store.Record
		var ts, received int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.Type, &r.Name,
			&r.URL, &r.Target, &r.Props, &ts, &received); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		r.ReceivedAt = time.UnixMilli(received)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count events: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE received_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: retention delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: retention delete: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
