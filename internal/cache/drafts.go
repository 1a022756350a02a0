// Package cache keeps snapshots of open prescription drafts in Redis so a
// session survives eviction from memory or a server restart.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fertility-cds-server/internal/domain"
)

const draftKeyPrefix = "fertility-cds:draft:"

// DraftCache wraps a Redis client storing one JSON snapshot per session.
type DraftCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewDraftCache connects to Redis and verifies the connection.
func NewDraftCache(ctx context.Context, config domain.CacheConfig) (*DraftCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewDraftCacheWithClient(client, config.DraftTTL), nil
}

// NewDraftCacheWithClient wraps an existing client.
func NewDraftCacheWithClient(client *redis.Client, ttl time.Duration) *DraftCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DraftCache{redis: client, defaultTTL: ttl}
}

// SaveDraft stores the snapshot, refreshing its TTL.
func (c *DraftCache) SaveDraft(ctx context.Context, draft domain.DraftSnapshot) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	if err := c.redis.Set(ctx, draftKey(draft.SessionID), data, c.defaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store draft %s: %w", draft.SessionID, err)
	}
	return nil
}

// LoadDraft returns the snapshot for a session. A miss is not an error.
func (c *DraftCache) LoadDraft(ctx context.Context, sessionID string) (*domain.DraftSnapshot, bool, error) {
	key := draftKey(sessionID)

	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load draft %s: %w", sessionID, err)
	}

	var draft domain.DraftSnapshot
	if err := json.Unmarshal(val, &draft); err != nil {
		// Remove corrupted entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return &draft, true, nil
}

// DeleteDraft removes a session's snapshot.
func (c *DraftCache) DeleteDraft(ctx context.Context, sessionID string) error {
	return c.redis.Del(ctx, draftKey(sessionID)).Err()
}

// Ping checks that Redis is reachable.
func (c *DraftCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *DraftCache) Close() error {
	return c.redis.Close()
}

func draftKey(sessionID string) string {
	return draftKeyPrefix + sessionID
}
