package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a fixed-window counter over Redis.
//
// HOW IT WORKS:
// 1. Each actor (client IP) gets a counter key whose TTL equals the window
// 2. Every request increments the counter atomically
// 3. When the counter exceeds the limit, requests are rejected until the
//    key expires and the window implicitly resets
//
// WHY USE REDIS?
// - Distributed rate limiting (works across all edge instances)
// - The increment is atomic at the store level, so there is no
//   read-modify-write race between concurrent requests for the same actor
type RateLimiter struct {
	client      *redis.Client
	maxRequests int           // Maximum requests allowed per window
	window      time.Duration // Window size (e.g., 1 minute)
}

// NewFixedWindowLimiter creates a new rate limiter.
// Example: NewFixedWindowLimiter(client, 600, time.Minute)
// allows 600 requests per minute per actor.
func NewFixedWindowLimiter(client *redis.Client, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
	}
}

// allowScript performs increment-with-expiry in one atomic step.
// A Lua script runs atomically inside Redis, so two edge instances
// incrementing the same actor can never interleave.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local current_time = tonumber(ARGV[3])

	local current = redis.call('GET', key)

	if current == false then
		redis.call('SET', key, 1, 'EX', window)
		return {1, max_requests - 1, current_time + window}
	else
		current = tonumber(current)
		if current < max_requests then
			redis.call('INCR', key)
			local ttl = redis.call('TTL', key)
			return {1, max_requests - current - 1, current_time + ttl}
		else
			local ttl = redis.call('TTL', key)
			return {0, 0, current_time + ttl}
		end
	end
`)

// Allow checks if a request from the given actor should be admitted.
// Returns (allowed bool, remaining int, resetTime time.Time, error).
//
// Callers on the redirect hot path must treat an error as "allowed":
// the limiter fails open, because availability of the redirect outranks
// strict enforcement.
func (rl *RateLimiter) Allow(ctx context.Context, actor string) (bool, int, time.Time, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", actor)

	now := time.Now()
	windowSeconds := int(rl.window.Seconds())

	result, err := allowScript.Run(
		ctx,
		rl.client,
		[]string{redisKey},
		rl.maxRequests,
		windowSeconds,
		now.Unix(),
	).Result()

	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected result format")
	}

	allowed := resultSlice[0].(int64) == 1
	remaining := int(resultSlice[1].(int64))
	resetUnix := resultSlice[2].(int64)

	return allowed, remaining, time.Unix(resetUnix, 0), nil
}

// Reset clears the rate limit for an actor
// Useful for testing or manual overrides
func (rl *RateLimiter) Reset(ctx context.Context, actor string) error {
	redisKey := fmt.Sprintf("ratelimit:%s", actor)
	return rl.client.Del(ctx, redisKey).Err()
}

// MaxRequests returns the maximum number of requests allowed per window
func (rl *RateLimiter) MaxRequests() int {
	return rl.maxRequests
}
