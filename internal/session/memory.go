// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracelight/tracelight/internal/metrics"
)

// memoryRegistry is the in-process backend. Suitable for a single
// collector instance; use the redis backend when running more than one.
type memoryRegistry struct {
	mu         sync.Mutex
	cfg        Config
	sessions   map[string]*Session
	successors map[string]string // expired ID -> successor ID
	janitor    *janitor
	now        func() time.Time
}

// NewMemory creates an in-memory registry with periodic cleanup of
// sessions past retention.
func NewMemory(cfg Config) Registry {
	r := &memoryRegistry{
		cfg:        cfg.withDefaults(),
		sessions:   make(map[string]*Session),
		successors: make(map[string]string),
		now:        time.Now,
	}
	r.janitor = &janitor{
		interval: 5 * time.Minute,
		stop:     make(chan struct{}),
	}
	go r.janitor.run(r)
	return r
}

func (r *memoryRegistry) Touch(_ context.Context, id, userID string, events int) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id = r.resolveLocked(id)

	s, ok := r.sessions[id]
	if ok && now.Sub(s.LastSeen) > r.cfg.IdleTimeout {
		// Window elapsed: open a successor and remember the mapping so
		// the client's stale ID keeps resolving to it.
		succ := &Session{
			ID:        uuid.NewString(),
			UserID:    s.UserID,
			FirstSeen: now,
		}
		r.successors[id] = succ.ID
		r.sessions[succ.ID] = succ
		s = succ
		metrics.SessionStarted()
	} else if !ok {
		s = &Session{ID: id, FirstSeen: now}
		r.sessions[id] = s
		metrics.SessionStarted()
	}

	if userID != "" {
		s.UserID = userID
	}
	s.LastSeen = now
	s.EventCount += int64(events)
	return *s, nil
}

func (r *memoryRegistry) Get(_ context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[r.resolveLocked(id)]; ok {
		return *s, nil
	}
	return Session{}, ErrNotFound
}

// resolveLocked follows successor links to the live session ID.
func (r *memoryRegistry) resolveLocked(id string) string {
	for i := 0; i < len(r.successors); i++ {
		succ, ok := r.successors[id]
		if !ok {
			return id
		}
		id = succ
	}
	return id
}

func (r *memoryRegistry) Close() error {
	r.janitor.close()
	return nil
}

// sweep drops sessions past retention and their successor links.
func (r *memoryRegistry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.cfg.Retention)
	for id, s := range r.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(r.sessions, id)
		}
	}
	for old, succ := range r.successors {
		if _, ok := r.sessions[succ]; !ok {
			delete(r.successors, old)
		}
	}
}

// janitor periodically sweeps expired entries.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func (j *janitor) run(r *memoryRegistry) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-j.stop:
			return
		}
	}
}

func (j *janitor) close() {
	j.once.Do(func() { close(j.stop) })
}
