package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements sliding-window submission limiting using Redis
// sorted sets. The contract itself prices abuse through fee escalation and
// dust burning; this limiter is the cheaper first line at the node's edge,
// keyed per caller so one noisy key cannot crowd out the call feed.
type RateLimiter struct {
	rdb redis.UniversalClient
}

// RateLimitConfig defines the rate limiting parameters
type RateLimitConfig struct {
	// Key is the rate limit bucket
	Key string
	// Limit is the maximum number of submissions allowed in the window
	Limit int64
	// Window is the duration of the sliding window
	Window time.Duration
}

// SubmissionLimit returns the per-caller config for call submissions.
func SubmissionLimit(caller string, limit int64, window time.Duration) *RateLimitConfig {
	return &RateLimitConfig{
		Key:    "qugate:submit:" + caller,
		Limit:  limit,
		Window: window,
	}
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	// Allowed indicates if the submission should be permitted
	Allowed bool
	// Remaining is the number of submissions remaining in the current window
	Remaining int64
	// ResetAt is when the oldest submission in the window will expire
	ResetAt time.Time
	// RetryAfter is the duration until the next submission can be made (if denied)
	RetryAfter time.Duration
}

// NewRateLimiter creates a new sliding window rate limiter
func NewRateLimiter(rdb redis.UniversalClient) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

// slidingWindowScript is the Lua script for atomic sliding window checks
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

local window_start = now - window

-- Remove expired entries (outside the sliding window)
redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

local current_count = redis.call('ZCARD', key)

if current_count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local retry_after = 0
    if oldest[2] then
        retry_after = oldest[2] + window - now
    end
    return {0, limit - current_count, retry_after}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)

return {1, limit - current_count - 1, 0}
`

// Allow checks if a submission should be allowed under the rate limit
// and records it if allowed.
func (rl *RateLimiter) Allow(ctx context.Context, cfg *RateLimitConfig) (*RateLimitResult, error) {
	now := time.Now()
	nowMs := now.UnixMilli()
	windowMs := cfg.Window.Milliseconds()

	// Timestamp + nanos as unique member
	member := fmt.Sprintf("%d:%d", nowMs, now.UnixNano())

	result, err := rl.rdb.Eval(ctx, slidingWindowScript, []string{cfg.Key}, nowMs, windowMs, cfg.Limit, member).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	arr, ok := result.([]interface{})
	if !ok || len(arr) < 3 {
		return nil, fmt.Errorf("unexpected rate limit response format")
	}

	allowed, _ := arr[0].(int64)
	remaining, _ := arr[1].(int64)
	retryAfterMs, _ := arr[2].(int64)

	return &RateLimitResult{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		ResetAt:    now.Add(cfg.Window),
		RetryAfter: time.Duration(retryAfterMs) * time.Millisecond,
	}, nil
}

// Reset clears the rate limit for a given key
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	return rl.rdb.Del(ctx, key).Err()
}

// GetRemaining returns the remaining quota for a key without consuming
func (rl *RateLimiter) GetRemaining(ctx context.Context, cfg *RateLimitConfig) (int64, error) {
	now := time.Now()
	windowStart := now.Add(-cfg.Window).UnixMilli()

	pipe := rl.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, cfg.Key, "-inf", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, cfg.Key)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return 0, err
	}

	return cfg.Limit - countCmd.Val(), nil
}
