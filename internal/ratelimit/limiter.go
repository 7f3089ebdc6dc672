// Package ratelimit bounds how fast clients may create jobs. Each pipeline
// run fans out to four downstream services, so an unthrottled burst of
// creations multiplies into load the stage services cannot shed themselves.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a token bucket shared across gateway replicas via Redis.
type Limiter struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
}

func NewLimiter(client *redis.Client, capacity int, refillPerSecond float64) *Limiter {
	return &Limiter{client: client, capacity: capacity, refill: refillPerSecond}
}

// Allow consumes one token for key if the bucket has any, refilling first
// based on elapsed time. The check and the consume run in one script so
// concurrent gateways cannot both spend the last token.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := refillScript.Run(ctx, l.client, []string{"ratelimit:" + key},
		l.capacity, l.refill, time.Now().UnixMilli()).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("rate limit check for %s: unexpected reply %T", key, res)
	}
	return allowed == 1, nil
}

var refillScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refilled_ms')
local tokens = tonumber(state[1])
local refilled = tonumber(state[2])
if tokens == nil then tokens = capacity end
if refilled == nil then refilled = now end

tokens = math.min(capacity, tokens + math.max(0, now - refilled) / 1000 * refill)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', KEYS[1], 'tokens', tokens, 'refilled_ms', now)
redis.call('PEXPIRE', KEYS[1], 3600000)
return allowed
`)
