package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client used for cross-instance state: the Daraja
// OAuth token and short-lived callback processing locks. All methods are
// nil-receiver safe so the service degrades gracefully when REDIS_URL is
// not configured.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection. Returns nil (not an
// error) when redisURL is empty.
func New(redisURL string) (*Cache, error) {
	if redisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Println("[Cache] Redis connection established")
	return &Cache{client: client}, nil
}

// Set stores a JSON-encoded value with expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves a JSON-encoded value. Returns redis.Nil on miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if c == nil {
		return redis.Nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// AcquireLock sets a lock key only if it does not exist. Returns true when
// this caller won the lock; when Redis is unavailable the lock is always
// granted, correctness then rests on the database-level conditional update.
func (c *Cache) AcquireLock(ctx context.Context, key string, ttl time.Duration) bool {
	if c == nil {
		return true
	}
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		log.Printf("[Cache] lock %s unavailable: %v", key, err)
		return true
	}
	return ok
}

// ReleaseLock deletes a lock key.
func (c *Cache) ReleaseLock(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("[Cache] release %s failed: %v", key, err)
	}
}

// Close closes the underlying connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
