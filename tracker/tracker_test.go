// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, cs *collectServer, mutate func(*Options)) *Tracker {
	t.Helper()
	opts := Options{
		Endpoint:      cs.srv.URL,
		WriteKey:      "wk_test",
		FlushInterval: time.Hour, // flush explicitly in tests
		BatchSize:     100,
	}
	if mutate != nil {
		mutate(&opts)
	}
	tr, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, tr.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tr.Stop(ctx)
	})
	return tr
}

func flushAll(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Flush(ctx))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoEndpoint)

	_, err = New(Options{Endpoint: "http://localhost:9"})
	assert.ErrorIs(t, err, ErrNoWriteKey)

	_, err = New(Options{Endpoint: "not a url", WriteKey: "wk"})
	assert.Error(t, err)

	_, err = New(Options{
		Endpoint:        "http://localhost:9",
		WriteKey:        "wk",
		RedactSelectors: []string{"input[broken"},
	})
	assert.Error(t, err)
}

func TestTrackerLifecycle(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, nil)

	assert.ErrorIs(t, tr.Start(), ErrStarted)

	ctx := context.Background()
	require.NoError(t, tr.Stop(ctx))
	assert.ErrorIs(t, tr.Stop(ctx), ErrStopped)
	assert.ErrorIs(t, tr.AddEvent("click", nil), ErrStopped)
	assert.ErrorIs(t, tr.Flush(ctx), ErrStopped)

	// A stopped tracker can start again.
	require.NoError(t, tr.Start())
	require.NoError(t, tr.AddEvent("click", nil))
}

func TestTrackerCapturesEvents(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, nil)

	require.NoError(t, tr.AddEvent("pageview", map[string]any{"path": "/pricing"}))
	require.NoError(t, tr.CustomEvent("signup_completed", map[string]any{"plan": "pro"}))
	flushAll(t, tr)

	batches := cs.delivered()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Events, 2)

	e0, e1 := batches[0].Events[0], batches[0].Events[1]
	assert.Equal(t, TypeTrack, e0.Type)
	assert.Equal(t, "pageview", e0.Name)
	assert.Equal(t, "/pricing", e0.Props["path"])
	assert.Equal(t, TypeCustom, e1.Type)
	assert.Equal(t, "signup_completed", e1.Name)

	assert.NotEmpty(t, e0.ID)
	assert.NotZero(t, e0.Timestamp)
	assert.Equal(t, tr.GetSessionID(), e0.SessionID)
	assert.Equal(t, e0.SessionID, e1.SessionID)
}

func TestTrackerRejectsEmptyName(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, nil)

	assert.Error(t, tr.AddEvent("", nil))
	assert.Error(t, tr.CustomEvent("", nil))
}

func TestTrackerAuthBindsUser(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, nil)

	assert.Error(t, tr.Auth(""))
	require.NoError(t, tr.Auth("user-42"))
	require.NoError(t, tr.AddEvent("click", nil))
	flushAll(t, tr)

	batches := cs.delivered()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Events, 2)

	identify := batches[0].Events[0]
	assert.Equal(t, TypeIdentify, identify.Type)
	assert.Equal(t, "auth", identify.Name)
	assert.Equal(t, "user-42", identify.UserID)

	// Subsequent events carry the identity.
	assert.Equal(t, "user-42", batches[0].Events[1].UserID)
}

func TestTrackerAddUserInfo(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, func(o *Options) {
		o.RedactFields = []string{"email"}
	})

	require.NoError(t, tr.AddUserInfo(nil)) // no-op
	require.NoError(t, tr.AddUserInfo(map[string]any{
		"email": "a@b.co",
		"plan":  "pro",
	}))
	flushAll(t, tr)

	batches := cs.delivered()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Events, 1)

	e := batches[0].Events[0]
	assert.Equal(t, TypeIdentify, e.Type)
	assert.Equal(t, "user_info", e.Name)
	assert.Equal(t, "******", e.Props["email"])
	assert.Equal(t, "pro", e.Props["plan"])
}

func TestTrackerFieldRedaction(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, func(o *Options) {
		o.RedactFields = []string{"password", "card_number"}
	})

	require.NoError(t, tr.AddEvent("submit", map[string]any{
		"password":    "hunter22",
		"card_number": 4111111111111111,
		"button":      "pay",
	}))
	flushAll(t, tr)

	batches := cs.delivered()
	require.Len(t, batches, 1)
	props := batches[0].Events[0].Props
	assert.Equal(t, "********", props["password"])
	assert.Equal(t, "[redacted]", props["card_number"])
	assert.Equal(t, "pay", props["button"])
}

func TestTrackerSelectorRedaction(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, func(o *Options) {
		o.RedactSelectors = []string{"input[type=password]", ".sensitive"}
	})

	require.NoError(t, tr.AddElementEvent("input", "form div input[type=password]", map[string]any{
		"value": "secret",
	}))
	require.NoError(t, tr.AddElementEvent("input", "form input[type=text]", map[string]any{
		"value": "visible",
	}))
	flushAll(t, tr)

	batches := cs.delivered()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Events, 2)
	assert.Equal(t, "******", batches[0].Events[0].Props["value"])
	assert.Equal(t, "visible", batches[0].Events[1].Props["value"])
}

func TestTrackerRedactionDoesNotMutateCallerMap(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, func(o *Options) {
		o.RedactFields = []string{"ssn"}
	})

	props := map[string]any{"ssn": "123-45-6789"}
	require.NoError(t, tr.AddEvent("signup", props))
	assert.Equal(t, "123-45-6789", props["ssn"])
}

func TestTrackerRedactSwapsSelectors(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, func(o *Options) {
		o.RedactFields = []string{"ssn"}
	})

	require.NoError(t, tr.Redact([]string{".cc-entry"}))
	// Field rules survive a selector swap.
	require.NoError(t, tr.AddEvent("submit", map[string]any{"ssn": "123"}))
	flushAll(t, tr)

	batches := cs.delivered()
	require.Len(t, batches, 1)
	assert.Equal(t, "***", batches[0].Events[0].Props["ssn"])

	// Invalid selectors leave the rules untouched.
	assert.Error(t, tr.Redact([]string{"input[broken"}))
}

func TestTrackerSetRedactedFields(t *testing.T) {
	cs := newCollectServer(t)
	tr := newTestTracker(t, cs, nil)

	require.NoError(t, tr.SetRedactedFields([]string{"token"}))
	require.NoError(t, tr.AddEvent("api_call", map[string]any{"token": "abcd"}))
	flushAll(t, tr)

	batches := cs.delivered()
	require.Len(t, batches, 1)
	assert.Equal(t, "****", batches[0].Events[0].Props["token"])
}

func TestTrackerSessionPersistence(t *testing.T) {
	cs := newCollectServer(t)
	statePath := filepath.Join(t.TempDir(), "session.json")

	tr1 := newTestTracker(t, cs, func(o *Options) {
		o.StatePath = statePath
	})
	id := tr1.GetSessionID()
	require.NoError(t, tr1.Stop(context.Background()))

	tr2 := newTestTracker(t, cs, func(o *Options) {
		o.StatePath = statePath
	})
	assert.Equal(t, id, tr2.GetSessionID())
}

func TestTrackerSpoolsOnOutage(t *testing.T) {
	cs := newCollectServer(t)
	down := true
	cs.status = func(Batch) int {
		if down {
			return 503
		}
		return 202
	}

	tr := newTestTracker(t, cs, func(o *Options) {
		o.SpoolDir = t.TempDir()
		o.MaxRetries = 1
	})

	require.NoError(t, tr.AddEvent("offline_click", nil))
	flushAll(t, tr)
	assert.Empty(t, cs.delivered())

	// Collector recovers; the next flush replays the spooled batch.
	cs.mu.Lock()
	down = false
	cs.mu.Unlock()

	flushAll(t, tr)
	assert.Equal(t, []string{"offline_click"}, cs.eventNames())
}
