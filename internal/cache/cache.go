package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a resolved id is trusted without a store lookup.
const DefaultTTL = 24 * time.Hour

// IdentityCache remembers resolved internal ids keyed by (scope, name).
type IdentityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdentityCache constructs an IdentityCache. A non-positive ttl selects DefaultTTL.
func NewIdentityCache(client *redis.Client, ttl time.Duration) *IdentityCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &IdentityCache{client: client, ttl: ttl}
}

// key keeps the name verbatim: resolution is by exact name, so case and
// whitespace differences must map to different entries.
func key(scope, name string) string {
	return "identity:" + scope + ":" + name
}

// Get returns the cached id, or "" on a cache miss (not an error).
func (c *IdentityCache) Get(ctx context.Context, scope, name string) (string, error) {
	val, err := c.client.Get(ctx, key(scope, name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("cache get for %s/%q: %w", scope, name, err)
	}
	return val, nil
}

// Set stores id for (scope, name) with the configured TTL.
func (c *IdentityCache) Set(ctx context.Context, scope, name, id string) error {
	if id == "" {
		return nil
	}
	if err := c.client.Set(ctx, key(scope, name), id, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for %s/%q: %w", scope, name, err)
	}
	return nil
}

// Connect opens a client for redisURL. The initial ping is bounded so a
// missing cache fails startup quickly instead of hanging on dial retries.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}
