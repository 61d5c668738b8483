// SPDX-License-Identifier: MIT

package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tracelight/tracelight/internal/log"
	"github.com/tracelight/tracelight/internal/metrics"
	"github.com/tracelight/tracelight/internal/redact"
	"github.com/tracelight/tracelight/internal/store"
	"github.com/tracelight/tracelight/tracker"
)

// batchResponse reports per-batch ingest results.
type batchResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// maxEventAge bounds how far in the past a client timestamp may lie
// before it is replaced with the receive time.
const maxEventAge = 7 * 24 * time.Hour

// handleBatch ingests one event batch: decompress, decode, validate,
// redact, touch sessions, persist.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx, "ingest")

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	reader := io.Reader(body)
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			metrics.IngestError("bad_gzip")
			writeError(w, http.StatusBadRequest, "bad_request", "malformed gzip body")
			return
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	var batch tracker.Batch
	if err := json.NewDecoder(reader).Decode(&batch); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			metrics.IngestError("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "batch exceeds size limit")
			return
		}
		metrics.IngestError("bad_json")
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}
	if len(batch.Events) == 0 {
		writeJSON(w, http.StatusAccepted, batchResponse{})
		return
	}

	metrics.ObserveBatch(len(batch.Events))
	rules := s.rules.Current()
	received := time.Now()

	// Sessions are touched once per distinct ID; the registry may answer
	// with a successor ID when the idle window elapsed.
	relabel := make(map[string]string)
	records := make([]store.Record, 0, len(batch.Events))
	rejected := 0

	for _, e := range batch.Events {
		if reason := validateEvent(&e); reason != "" {
			metrics.AddRejected(reason, 1)
			rejected++
			continue
		}

		live, ok := relabel[e.SessionID]
		if !ok {
			sess, err := s.registry.Touch(ctx, e.SessionID, e.UserID, 0)
			if err != nil {
				logger.Error().Err(err).
					Str(log.FieldSessionID, e.SessionID).
					Msg("session touch failed")
				metrics.IngestError("session_backend")
				writeError(w, http.StatusServiceUnavailable, "unavailable", "session backend unavailable")
				return
			}
			live = sess.ID
			relabel[e.SessionID] = live
		}
		e.SessionID = live

		s.redactEvent(rules, &e)

		if e.Timestamp <= 0 || received.Sub(time.UnixMilli(e.Timestamp)) > maxEventAge {
			e.Timestamp = received.UnixMilli()
		}

		props, err := json.Marshal(e.Props)
		if err != nil {
			metrics.AddRejected("bad_props", 1)
			rejected++
			continue
		}
		if len(e.Props) == 0 {
			props = nil
		}

		records = append(records, store.Record{
			ID:         e.ID,
			SessionID:  e.SessionID,
			UserID:     e.UserID,
			Type:       e.Type,
			Name:       e.Name,
			URL:        e.URL,
			Target:     e.Target,
			Props:      props,
			Timestamp:  time.UnixMilli(e.Timestamp),
			ReceivedAt: received,
		})
	}

	if err := s.store.InsertBatch(ctx, records); err != nil {
		logger.Error().Err(err).Int(log.FieldBatchSize, len(records)).Msg("batch insert failed")
		metrics.IngestError("store")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event store unavailable")
		return
	}

	// Event counts are credited after the insert succeeded.
	for sid, live := range relabel {
		n := 0
		for i := range records {
			if records[i].SessionID == live {
				n++
			}
		}
		if n > 0 {
			if _, err := s.registry.Touch(ctx, sid, "", n); err != nil {
				logger.Warn().Err(err).Str(log.FieldSessionID, live).Msg("event count update failed")
			}
		}
	}

	metrics.AddAccepted(len(records))
	writeJSON(w, http.StatusAccepted, batchResponse{Accepted: len(records), Rejected: rejected})
}

// validateEvent normalizes one event in place and returns a rejection
// reason, or "" when the event is acceptable.
func validateEvent(e *tracker.Event) string {
	if e.Name == "" {
		return "missing_name"
	}
	if e.SessionID == "" {
		return "missing_session"
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	switch e.Type {
	case tracker.TypeTrack, tracker.TypeCustom, tracker.TypeIdentify:
	case "":
		e.Type = tracker.TypeTrack
	default:
		return "unknown_type"
	}
	return ""
}

// redactEvent applies the collector-side rule set. Client-side redaction
// already ran, but server rules are the backstop for old or misconfigured
// clients.
func (s *Server) redactEvent(rules *redact.Rules, e *tracker.Event) {
	if rules.MatchesTarget(e.Target) {
		metrics.AddRedactions("selector", redact.MaskAll(e.Props))
	}
	metrics.AddRedactions("field", rules.MaskFields(e.Props))
}
