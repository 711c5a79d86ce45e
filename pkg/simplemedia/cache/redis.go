// Package cache stores rendered asset details so repeated reads skip the
// repository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DefaultTTL bounds how long a cached entry can outlive a missed invalidation
const DefaultTTL = 10 * time.Minute

// Redis implements simplemedia.DetailsCache on a redis server
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedis wraps an existing client. A non-positive ttl means DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "simplemedia:asset:"
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

// Dial parses a redis:// URL and checks the connection
func Dial(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(client, ttl, ""), nil
}

func (c *Redis) Key(fileID string) string {
	return c.prefix + fileID
}

func (c *Redis) Get(ctx context.Context, fileID string) (*simplemedia.AssetDetails, error) {
	data, err := c.client.Get(ctx, c.Key(fileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, simplemedia.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var details simplemedia.AssetDetails
	if err := json.Unmarshal(data, &details); err != nil {
		// A corrupt entry is treated as absent
		c.client.Del(ctx, c.Key(fileID))
		return nil, simplemedia.ErrCacheMiss
	}
	return &details, nil
}

func (c *Redis) Set(ctx context.Context, details *simplemedia.AssetDetails) error {
	data, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(details.FileID), data, c.ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, fileID string) error {
	return c.client.Del(ctx, c.Key(fileID)).Err()
}

// Close releases the underlying client
func (c *Redis) Close() error {
	return c.client.Close()
}

var _ simplemedia.DetailsCache = (*Redis)(nil)
