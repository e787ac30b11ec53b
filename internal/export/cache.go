package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haven/analytics-sync/internal/analytics"
)

const cachePrefix = "ga:chunk:"

// Cache stores chunk responses in Redis keyed by the request body, so a
// rerun after a failure skips chunks that already downloaded.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// NewRedisClient connects to a redis:// URL.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func cacheKey(req analytics.ReportRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return cachePrefix + req.ViewID + ":" + hex.EncodeToString(sum[:]), nil
}

// Get returns cached responses for req. Misses and Redis errors both report false.
func (c *Cache) Get(ctx context.Context, req analytics.ReportRequest) ([]analytics.Response, bool) {
	key, err := cacheKey(req)
	if err != nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var resps []analytics.Response
	if err := json.Unmarshal(data, &resps); err != nil {
		return nil, false
	}
	return resps, true
}

// Put stores responses for req.
func (c *Cache) Put(ctx context.Context, req analytics.ReportRequest, resps []analytics.Response) error {
	key, err := cacheKey(req)
	if err != nil {
		return err
	}
	data, err := json.Marshal(resps)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Purge drops every cached chunk for viewID and returns how many were removed.
func (c *Cache) Purge(ctx context.Context, viewID string) (int, error) {
	var removed int
	iter := c.client.Scan(ctx, 0, cachePrefix+viewID+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}
