package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"linkedge/internal/domain"
	"linkedge/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Outcome distinguishes the three results of a cache read. A Miss sends the
// resolver to the source of truth; a Tombstone short-circuits to "not found"
// without touching it. Conflating the two would either re-open the
// cache-penetration hole or wrongly 404 uncached links.
type Outcome int

const (
	Miss Outcome = iota
	Hit
	Tombstone
)

// tombstoneValue marks a cached negative result. It can never collide with
// a real entry because real entries are JSON objects.
const tombstoneValue = "__tombstone__"

// Cache is the edge cache tier over Redis, holding denormalized link and
// domain records plus tombstones for keys that are known not to exist.
//
// Reads follow the cache-aside pattern: the resolver checks here first and
// populates on miss. Writes to the source of truth must call the Invalidate
// methods before acknowledging, which bounds staleness to the write path
// latency rather than the TTL.
type Cache struct {
	client      *redis.Client
	positiveTTL time.Duration
	negativeTTL time.Duration
}

// New creates the cache tier.
// negativeTTL should be much shorter than positiveTTL so a tombstone laid
// down by scraper traffic doesn't mask a newly created key for long.
func New(client *redis.Client, positiveTTL, negativeTTL time.Duration) *Cache {
	return &Cache{
		client:      client,
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
	}
}

// Key naming convention: "link:{domain}:{key}" and "domain:{domain}"

func linkKey(linkDomain, key string) string {
	return fmt.Sprintf("link:%s:%s", linkDomain, key)
}

func domainKey(slug string) string {
	return fmt.Sprintf("domain:%s", slug)
}

// GetLink retrieves a link from cache.
// The Outcome tells the caller how to proceed; the link is non-nil only on Hit.
func (c *Cache) GetLink(ctx context.Context, linkDomain, key string) (*domain.Link, Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	data, err := c.client.Get(ctx, linkKey(linkDomain, key)).Result()
	if err == redis.Nil {
		// Cache miss - not an error, just not found
		metrics.RecordCacheMiss()
		return nil, Miss, nil
	}
	if err != nil {
		// Actual error (connection issue, etc.)
		return nil, Miss, fmt.Errorf("redis get error: %w", err)
	}

	if data == tombstoneValue {
		metrics.RecordCacheTombstone()
		return nil, Tombstone, nil
	}

	metrics.RecordCacheHit()

	var link domain.Link
	if err := json.Unmarshal([]byte(data), &link); err != nil {
		return nil, Miss, fmt.Errorf("failed to unmarshal cached link: %w", err)
	}

	return &link, Hit, nil
}

// SetLink stores a link in cache with the positive TTL
func (c *Cache) SetLink(ctx context.Context, link *domain.Link) error {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	if err := c.client.Set(ctx, linkKey(link.Domain, link.Key), data, c.positiveTTL).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// SetLinkTombstone records that (domain, key) does not exist, with the
// short negative TTL. Only confirmed not-found results may be tombstoned;
// transient source-of-truth errors must never reach here.
func (c *Cache) SetLinkTombstone(ctx context.Context, linkDomain, key string) error {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("tombstone").Observe(time.Since(start).Seconds())
	}()

	if err := c.client.Set(ctx, linkKey(linkDomain, key), tombstoneValue, c.negativeTTL).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// InvalidateLink removes a link entry (positive or tombstone).
// Called synchronously by every write path before acknowledging success.
func (c *Cache) InvalidateLink(ctx context.Context, linkDomain, key string) error {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("invalidate").Observe(time.Since(start).Seconds())
	}()

	if err := c.client.Del(ctx, linkKey(linkDomain, key)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}

	return nil
}

// GetDomain retrieves a domain record from cache
func (c *Cache) GetDomain(ctx context.Context, slug string) (*domain.Domain, Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	data, err := c.client.Get(ctx, domainKey(slug)).Result()
	if err == redis.Nil {
		metrics.RecordCacheMiss()
		return nil, Miss, nil
	}
	if err != nil {
		return nil, Miss, fmt.Errorf("redis get error: %w", err)
	}

	if data == tombstoneValue {
		metrics.RecordCacheTombstone()
		return nil, Tombstone, nil
	}

	metrics.RecordCacheHit()

	var d domain.Domain
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, Miss, fmt.Errorf("failed to unmarshal cached domain: %w", err)
	}

	return &d, Hit, nil
}

// SetDomain stores a domain record in cache with the positive TTL
func (c *Cache) SetDomain(ctx context.Context, d *domain.Domain) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal domain: %w", err)
	}

	if err := c.client.Set(ctx, domainKey(d.Slug), data, c.positiveTTL).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// SetDomainTombstone records that a domain is not registered on the platform
func (c *Cache) SetDomainTombstone(ctx context.Context, slug string) error {
	if err := c.client.Set(ctx, domainKey(slug), tombstoneValue, c.negativeTTL).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// InvalidateDomain removes a domain entry (positive or tombstone)
func (c *Cache) InvalidateDomain(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, domainKey(slug)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}

	return nil
}

// InitRedis creates a new Redis client
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		// Connection pool settings
		PoolSize:     10,              // Maximum number of socket connections
		MinIdleConns: 2,               // Minimum number of idle connections
		MaxRetries:   3,               // Maximum number of retries
		DialTimeout:  5 * time.Second, // Timeout for establishing connection
		ReadTimeout:  3 * time.Second, // Timeout for socket reads
		WriteTimeout: 3 * time.Second, // Timeout for socket writes
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
