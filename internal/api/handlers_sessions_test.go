// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelight/tracelight/tracker"
)

func TestSessionLookup(t *testing.T) {
	ts := newTestServer(t, nil)

	batch := tracker.Batch{Events: []tracker.Event{
		testEvent("pageview", "sess-lookup", nil),
	}}
	rec := postBatch(t, ts, batch, false, testWriteKey)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-lookup", nil)
	req.Header.Set(tracker.WriteKeyHeader, testWriteKey)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-lookup", resp.ID)
	assert.Equal(t, int64(1), resp.EventCount)
}

func TestSessionLookupNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/nope", nil)
	req.Header.Set(tracker.WriteKeyHeader, testWriteKey)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionEventsPaging(t *testing.T) {
	ts := newTestServer(t, nil)

	events := make([]tracker.Event, 0, 5)
	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		e := testEvent("click", "sess-page", nil)
		e.Timestamp = base + int64(i)
		events = append(events, e)
	}
	rec := postBatch(t, ts, tracker.Batch{Events: events}, false, testWriteKey)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-page/events?limit=2&offset=2", nil)
	req.Header.Set(tracker.WriteKeyHeader, testWriteKey)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SessionID string          `json:"session_id"`
		Events    []eventResponse `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-page", resp.SessionID)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, base+2, resp.Events[0].Timestamp.UnixMilli())
	assert.Equal(t, base+3, resp.Events[1].Timestamp.UnixMilli())
}

func TestSessionEndpointsRequireAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/v1/sessions/x", "/v1/sessions/x/events"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}
