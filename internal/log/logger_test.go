// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestConfigureAttachesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "test-svc", Version: "v0.0.1"})

	l := Base()
	l.Info().Msg("hello")

	entry := captureLine(t, &buf)
	assert.Equal(t, "test-svc", entry["service"])
	assert.Equal(t, "v0.0.1", entry["version"])
	assert.Equal(t, "hello", entry["message"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "test-svc"})

	l := WithComponent("batcher")
	l.Info().Msg("tick")

	entry := captureLine(t, &buf)
	assert.Equal(t, "batcher", entry[FieldComponent])
}

func TestContextCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "test-svc"})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")
	l := FromContext(ctx, "api")
	l.Info().Msg("handled")

	entry := captureLine(t, &buf)
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "sess-1", entry[FieldSessionID])
	assert.Equal(t, "api", entry[FieldComponent])
}
