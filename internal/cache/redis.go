package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

const defaultKey = "chartscraper:movies:base64"

type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisConfig configures the Redis mirror.
type RedisConfig struct {
	Key string
	TTL time.Duration
}

// Mirrored keeps the value in a local slot and copies it to Redis so a
// restarted process can serve the last snapshot before its first run.
type Mirrored struct {
	local  *Slot
	client redisClient
	key    string
	ttl    time.Duration
}

// NewMirrored wraps local with a Redis copy.
func NewMirrored(local *Slot, client redisClient, cfg RedisConfig) (*Mirrored, error) {
	if local == nil {
		return nil, fmt.Errorf("local slot is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	key := cfg.Key
	if key == "" {
		key = defaultKey
	}
	return &Mirrored{local: local, client: client, key: key, ttl: cfg.TTL}, nil
}

// Store updates the local slot first, then Redis. A Redis failure is
// returned but the local value stays updated.
func (m *Mirrored) Store(ctx context.Context, encoded string) error {
	if err := m.local.Store(ctx, encoded); err != nil {
		return err
	}
	if err := m.client.Set(ctx, m.key, encoded, m.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", m.key, err)
	}
	return nil
}

// Load prefers the local slot and falls back to Redis when the slot is empty.
func (m *Mirrored) Load(ctx context.Context) (string, error) {
	v, err := m.local.Load(ctx)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, scraper.ErrNotReady) {
		return "", err
	}
	v, err = m.client.Get(ctx, m.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", scraper.ErrNotReady
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", m.key, err)
	}
	_ = m.local.Store(ctx, v)
	return v, nil
}
