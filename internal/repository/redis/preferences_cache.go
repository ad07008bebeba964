package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"renamebot/internal/domain/preferences"
	"renamebot/pkg/errors"
)

// Compile-time check that we implement the interface
var _ preferences.Cache = (*PreferencesCache)(nil)

// PreferencesCache implements preferences.Cache using Redis
type PreferencesCache struct {
	client redis.UniversalClient
}

// NewPreferencesCache creates a new preferences cache
func NewPreferencesCache(client redis.UniversalClient) *PreferencesCache {
	return &PreferencesCache{client: client}
}

// Get returns cached preferences or errors.ErrNotFound on a miss
func (c *PreferencesCache) Get(ctx context.Context, userID int64) (*preferences.Preferences, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "preferences not cached for user_id=%d", userID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get preferences from redis: user_id=%d", userID)
	}

	var p preferences.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal cached preferences: user_id=%d", userID)
	}

	return &p, nil
}

// Set caches preferences with TTL
func (c *PreferencesCache) Set(ctx context.Context, p *preferences.Preferences, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal preferences: user_id=%d", p.UserID)
	}

	if err := c.client.Set(ctx, c.key(p.UserID), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to cache preferences: user_id=%d", p.UserID)
	}

	return nil
}

// Invalidate drops the cached entry
func (c *PreferencesCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return errors.Wrapf(err, "failed to invalidate cached preferences: user_id=%d", userID)
	}
	return nil
}

func (c *PreferencesCache) key(userID int64) string {
	return fmt.Sprintf("prefs:%d", userID)
}
