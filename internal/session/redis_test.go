// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a registry backed by a miniredis server.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redisRegistry, *time.Time) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	now := time.Now()
	r := &redisRegistry{
		client: client,
		cfg:    Config{}.withDefaults(),
		logger: zerolog.Nop(),
		now:    func() time.Time { return now },
	}
	t.Cleanup(func() { _ = r.Close() })
	return mr, r, &now
}

func TestRedisTouchAndGet(t *testing.T) {
	_, r, _ := setupMiniRedis(t)
	ctx := context.Background()

	s, err := r.Touch(ctx, "sess-1", "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, int64(2), s.EventCount)

	got, err := r.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
}

func TestRedisGetUnknown(t *testing.T) {
	_, r, _ := setupMiniRedis(t)

	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisIdleWindowRotation(t *testing.T) {
	_, r, now := setupMiniRedis(t)
	ctx := context.Background()

	first, err := r.Touch(ctx, "sess-1", "user-1", 1)
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute)
	succ, err := r.Touch(ctx, "sess-1", "", 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, succ.ID)
	assert.Equal(t, "user-1", succ.UserID)

	// The stale ID resolves through the successor link.
	got, err := r.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, succ.ID, got.ID)
}

func TestRedisSuccessorLinkOutlivesIdleWindow(t *testing.T) {
	mr, r, now := setupMiniRedis(t)
	ctx := context.Background()

	_, err := r.Touch(ctx, "sess-1", "user-1", 1)
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute)
	succ, err := r.Touch(ctx, "sess-1", "", 1)
	require.NoError(t, err)

	// The link lives as long as the session record, so a client that
	// keeps replaying the stale ID stays on one succession chain.
	assert.Equal(t, r.cfg.Retention, mr.TTL(succKeyPrefix+"sess-1"))

	mr.FastForward(r.cfg.IdleTimeout + time.Minute)
	*now = now.Add(r.cfg.IdleTimeout + time.Minute)

	again, err := r.Touch(ctx, "sess-1", "", 1)
	require.NoError(t, err)
	assert.NotEqual(t, "sess-1", again.ID)

	// Exactly one new successor per elapsed window; the chain stays linked.
	resolved, err := r.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, again.ID, resolved.ID)
	assert.Equal(t, succ.UserID, again.UserID)
}
