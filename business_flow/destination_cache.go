package businessflow

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/amirphl/Kusanagi/config"
	"github.com/redis/go-redis/v9"
)

// cachedDestination is the value stored per slug so cache hits can still
// attribute the click to the owning record.
type cachedDestination struct {
	ID             uint   `json:"id"`
	DestinationURL string `json:"destination_url"`
}

// DestinationCache is a read-through Redis cache in front of slug
// resolution. All methods are nil-safe; a nil cache behaves as always-miss,
// so the resolver works unchanged when caching is disabled.
type DestinationCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDestinationCache(client *redis.Client, cfg *config.CacheConfig) *DestinationCache {
	if client == nil || !cfg.Enabled {
		return nil
	}
	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = "kusanagi"
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DestinationCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *DestinationCache) key(slug string) string {
	return c.prefix + ":dest:" + slug
}

// Get returns the cached resolution for slug, or ok=false on any miss or
// cache failure. Cache failures never fail a resolve.
func (c *DestinationCache) Get(ctx context.Context, slug string) (cachedDestination, bool) {
	if c == nil {
		return cachedDestination{}, false
	}
	raw, err := c.client.Get(ctx, c.key(slug)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("destination cache get failed for %q: %v", slug, err)
		}
		return cachedDestination{}, false
	}
	var entry cachedDestination
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Printf("destination cache entry corrupt for %q: %v", slug, err)
		return cachedDestination{}, false
	}
	return entry, true
}

func (c *DestinationCache) Set(ctx context.Context, slug string, entry cachedDestination) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(slug), raw, c.ttl).Err(); err != nil {
		log.Printf("destination cache set failed for %q: %v", slug, err)
	}
}

// Invalidate drops the entry for slug. Called on rename, destination update
// and delete so stale redirects never outlive the TTL window.
func (c *DestinationCache) Invalidate(ctx context.Context, slugs ...string) {
	if c == nil || len(slugs) == 0 {
		return
	}
	keys := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		keys = append(keys, c.key(slug))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("destination cache invalidate failed: %v", err)
	}
}

// Ping verifies connectivity for health reporting
func (c *DestinationCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
