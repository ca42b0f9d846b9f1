package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// registerAttemptScript runs the whole decision atomically: block check,
// counter increment, window start, and block creation. A plain
// INCR-then-EXPIRE sequence would leave a counter without a window when
// the client dies between the two calls.
//
// KEYS[1] = attempt counter, KEYS[2] = block key
// ARGV[1] = max attempts, ARGV[2] = window ms, ARGV[3] = block ms
// Returns {allowed(0|1), retry_after_ms}.
var registerAttemptScript = redis.NewScript(`
local blocked = redis.call('PTTL', KEYS[2])
if blocked > 0 then
    return {0, blocked}
end

local attempts = redis.call('INCR', KEYS[1])
if attempts == 1 then
    redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]))
end

if attempts > tonumber(ARGV[1]) then
    redis.call('SET', KEYS[2], '1', 'PX', tonumber(ARGV[3]))
    redis.call('DEL', KEYS[1])
    return {0, tonumber(ARGV[3])}
end

return {1, 0}
`)

// RedisPolicy implements AttemptPolicy on Redis.
type RedisPolicy struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
}

// NewRedisPolicy creates a policy over an existing Redis client.
func NewRedisPolicy(client *redis.Client, cfg *Config, logger *zap.Logger) (*RedisPolicy, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ratelimit config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPolicy{client: client, config: cfg, logger: logger}, nil
}

func (p *RedisPolicy) RegisterAttempt(ctx context.Context, key string) (Decision, error) {
	res, err := registerAttemptScript.Run(ctx, p.client,
		[]string{attemptsKey(key), blockKey(key)},
		p.config.MaxAttempts,
		p.config.Window.Milliseconds(),
		p.config.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("register attempt: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("register attempt: unexpected script reply %v", res)
	}

	d := Decision{Allowed: res[0] == 1, RetryAfter: time.Duration(res[1]) * time.Millisecond}
	if !d.Allowed {
		p.logger.Warn("login attempts blocked",
			zap.String("key", key),
			zap.Duration("retry_after", d.RetryAfter))
	}
	return d, nil
}

func (p *RedisPolicy) ResetAttempts(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, attemptsKey(key), blockKey(key)).Err(); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}
