// Package cache provides a Redis client wrapper for the shared rate limit
// counters. Every counter mutation is a single server-side script so that
// concurrent callers never observe a half-applied update.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client with rate limit counter operations.
type Cache struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Dial creates a Redis client for addr ("host:port") and verifies connectivity.
func Dial(ctx context.Context, addr, password string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: failed to connect to Redis at %s: %w", addr, err)
	}

	log.Printf("cache: connected to Redis at %s", addr)
	return &Cache{client: client}, nil
}

// Close gracefully shuts down the Redis client connection.
func (c *Cache) Close() error {
	if c.client != nil {
		log.Println("cache: closing Redis connection")
		return c.client.Close()
	}
	return nil
}

// Ping checks that Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// takeSlotLua admits one request if the window counter is below the ceiling.
// A rejected request leaves the counter untouched. The TTL is set on the first
// admission only, so later requests never stretch the window; a key that
// somehow lost its TTL gets one back.
var takeSlotLua = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	local limit = tonumber(ARGV[1])
	if current >= limit then
		return {0, current, redis.call('PTTL', KEYS[1])}
	end
	current = redis.call('INCR', KEYS[1])
	if current == 1 or redis.call('PTTL', KEYS[1]) == -1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return {1, current, redis.call('PTTL', KEYS[1])}
`)

// SlotResult is the outcome of TakeSlot.
type SlotResult struct {
	Allowed bool
	Count   int64         // admitted requests in the current window
	TTL     time.Duration // time until the window resets; 0 if unknown
}

// TakeSlot performs a fixed-window check-and-increment for key in one round
// trip. The request is admitted only if fewer than limit requests were
// admitted in the current window.
func (c *Cache) TakeSlot(ctx context.Context, key string, limit int64, window time.Duration) (SlotResult, error) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		return SlotResult{}, fmt.Errorf("cache: window must be at least 1ms, got %v", window)
	}

	vals, err := takeSlotLua.Run(ctx, c.client, []string{key}, limit, windowMs).Int64Slice()
	if err != nil {
		return SlotResult{}, fmt.Errorf("cache: take slot %q: %w", key, err)
	}
	if len(vals) != 3 {
		return SlotResult{}, fmt.Errorf("cache: unexpected result length %d from take slot script", len(vals))
	}

	res := SlotResult{Allowed: vals[0] == 1, Count: vals[1]}
	if vals[2] > 0 {
		res.TTL = time.Duration(vals[2]) * time.Millisecond
	}
	return res, nil
}

// Count returns the current counter value for key, 0 if absent.
func (c *Cache) Count(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: get %q: %w", key, err)
	}
	return n, nil
}

// Client returns the underlying Redis client for advanced operations.
func (c *Cache) Client() *redis.Client {
	return c.client
}
