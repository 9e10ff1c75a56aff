package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/rate_limit.lua
var rateLimitScript string

type Client struct {
	rdb             *redis.Client
	rateLimitScript *redis.Script
}

// RateLimitResult is the outcome of one Allow call
type RateLimitResult struct {
	Allowed   bool
	Count     int64
	Remaining int64
	ResetIn   time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing connection
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:             rdb,
		rateLimitScript: redis.NewScript(rateLimitScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection for readiness probes
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Allow counts one hit against a fixed window keyed by key.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := c.rateLimitScript.Run(ctx, c.rdb,
		[]string{fmt.Sprintf("ratelimit:%s", key)}, window.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected script result type")
	}
	count, ok1 := values[0].(int64)
	ttl, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("unexpected script result type")
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitResult{
		Allowed:   count <= int64(limit),
		Count:     count,
		Remaining: remaining,
		ResetIn:   time.Duration(ttl) * time.Millisecond,
	}, nil
}

// MarkWebhookEvent records a delivered webhook event id. It returns false if
// the id was already recorded within ttl.
func (c *Client) MarkWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("webhook:event:%s", eventID), time.Now().Unix(), ttl).Result()
}

// ForgetWebhookEvent removes a marker so a redelivery is processed again
func (c *Client) ForgetWebhookEvent(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("webhook:event:%s", eventID)).Err()
}
