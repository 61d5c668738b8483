// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tracelight/tracelight/internal/log"
	"github.com/tracelight/tracelight/internal/session"
	"github.com/tracelight/tracelight/internal/store"
)

// sessionResponse is the session lookup payload.
type sessionResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	EventCount int64     `json:"event_count"`
}

// eventResponse is one stored event in query results.
type eventResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	URL       string          `json:"url,omitempty"`
	Target    string          `json:"target,omitempty"`
	Props     json.RawMessage `json:"props,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.registry.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "unknown session")
		return
	}
	if err != nil {
		logger := log.FromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldSessionID, id).
			Msg("session lookup failed")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "session backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		ID:         sess.ID,
		UserID:     sess.UserID,
		FirstSeen:  sess.FirstSeen,
		LastSeen:   sess.LastSeen,
		EventCount: sess.EventCount,
	})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	records, err := s.store.EventsBySession(r.Context(), id, limit, offset)
	if err != nil {
		logger := log.FromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldSessionID, id).
			Msg("event query failed")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event store unavailable")
		return
	}

	out := make([]eventResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toEventResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     out,
	})
}

func toEventResponse(rec store.Record) eventResponse {
	return eventResponse{
		ID:        rec.ID,
		Type:      rec.Type,
		Name:      rec.Name,
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		URL:       rec.URL,
		Target:    rec.Target,
		Props:     json.RawMessage(rec.Props),
		Timestamp: rec.Timestamp,
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
