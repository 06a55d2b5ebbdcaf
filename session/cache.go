// Package session is the shared cache behind refresh-token rotation and
// access-token revocation.
//
// Two key namespaces live here:
//
//	refresh:{userID}        -> the single currently-valid refresh token
//	blacklist:{accessToken} -> presence marks the token as revoked
//
// The cache and the relational store are eventually consistent by
// design: losing a refresh key just means the user logs in again.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps transport failures talking to Redis. It is a
// non-operational error: callers log it and surface a generic internal
// failure.
var ErrCacheUnavailable = errors.New("session cache unavailable")

const (
	refreshPrefix   = "refresh:"
	blacklistPrefix = "blacklist:"
)

// Cache is a Redis-backed session cache. Safe for concurrent use.
type Cache struct {
	redis redis.UniversalClient
}

// NewCache wraps the given Redis client.
func NewCache(client redis.UniversalClient) *Cache {
	return &Cache{redis: client}
}

func refreshKey(userID string) string {
	return refreshPrefix + userID
}

func blacklistKey(token string) string {
	return blacklistPrefix + token
}

// SaveRefresh stores token as the user's only valid refresh token for
// ttl, overwriting any previous value. The overwrite is the rotation:
// whichever login lands last owns the session.
func (c *Cache) SaveRefresh(ctx context.Context, userID, token string, ttl time.Duration) error {
	if err := c.redis.Set(ctx, refreshKey(userID), token, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Refresh returns the user's current refresh token. Absence is reported
// as redis.Nil, matching the client's own convention.
func (c *Cache) Refresh(ctx context.Context, userID string) (string, error) {
	value, err := c.redis.Get(ctx, refreshKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return value, nil
}

// DeleteRefresh drops the user's refresh session. Deleting an absent key
// is not an error.
func (c *Cache) DeleteRefresh(ctx context.Context, userID string) error {
	if err := c.redis.Del(ctx, refreshKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Blacklist marks an access token as revoked for ttl, which should be
// the token's remaining lifetime; after that its own expiry rejects it.
func (c *Cache) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already past natural expiry; nothing to record.
		return nil
	}
	if err := c.redis.Set(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether an access token has been revoked.
func (c *Cache) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := c.redis.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n > 0, nil
}

// Ping returns a point-in-time cache availability check.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
