// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/internal/metrics"
)

const (
	sessKeyPrefix = "tl:sess:"
	succKeyPrefix = "tl:succ:"
)

// RedisConfig holds redis connection configuration.
type RedisConfig struct {
	Addr     string // redis server address (host:port)
	Password string // optional
	DB       int
}

// redisRegistry is the shared backend for multi-instance collectors.
// Retention is enforced with key TTLs instead of a janitor.
type redisRegistry struct {
	client *redis.Client
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewRedis creates a redis-backed registry and verifies connectivity.
func NewRedis(rc RedisConfig, cfg Config, logger zerolog.Logger) (Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", rc.Addr).
		Int("db", rc.DB).
		Msg("connected to redis session registry")

	return &redisRegistry{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}, nil
}

func (r *redisRegistry) Touch(ctx context.Context, id, userID string, events int) (Session, error) {
	now := r.now()
	id, err := r.resolve(ctx, id)
	if err != nil {
		return Session{}, err
	}

	s, err := r.get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		s = Session{ID: id, FirstSeen: now}
		metrics.SessionStarted()
	case err != nil:
		return Session{}, err
	case now.Sub(s.LastSeen) > r.cfg.IdleTimeout:
		succ := Session{ID: uuid.NewString(), UserID: s.UserID, FirstSeen: now}
		// Links live as long as the sessions they point at, so a client
		// replaying a stale ID keeps resolving into one chain.
		link := succKeyPrefix + id
		if err := r.client.Set(ctx, link, succ.ID, r.cfg.Retention).Err(); err != nil {
			return Session{}, fmt.Errorf("session: successor link: %w", err)
		}
		s = succ
		metrics.SessionStarted()
	}

	if userID != "" {
		s.UserID = userID
	}
	s.LastSeen = now
	s.EventCount += int64(events)

	if err := r.put(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *redisRegistry) Get(ctx context.Context, id string) (Session, error) {
	id, err := r.resolve(ctx, id)
	if err != nil {
		return Session{}, err
	}
	return r.get(ctx, id)
}

func (r *redisRegistry) Close() error {
	return r.client.Close()
}

func (r *redisRegistry) resolve(ctx context.Context, id string) (string, error) {
	// Follow at most a few links; chains longer than that mean clock
	// trouble, not real traffic.
	for i := 0; i < 8; i++ {
		succ, err := r.client.Get(ctx, succKeyPrefix+id).Result()
		if err == redis.Nil {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("session: resolve: %w", err)
		}
		id = succ
	}
	return id, nil
}

func (r *redisRegistry) get(ctx context.Context, id string) (Session, error) {
	data, err := r.client.Get(ctx, sessKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	return s, nil
}

func (r *redisRegistry) put(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := r.client.Set(ctx, sessKeyPrefix+s.ID, data, r.cfg.Retention).Err(); err != nil {
		return fmt.Errorf("session: put: %w", err)
	}
	return nil
}
