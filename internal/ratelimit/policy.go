// Package ratelimit throttles login attempts with a fixed window and a
// hard lockout. The attempt counter and the block decision execute as one
// atomic step against the backing store.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of registering one attempt.
type Decision struct {
	Allowed bool
	// RetryAfter is the store's actual remaining block TTL when the
	// attempt was denied, zero otherwise.
	RetryAfter time.Duration
}

// AttemptPolicy is the port to the login-attempt throttle.
type AttemptPolicy interface {
	// RegisterAttempt counts one attempt against a key. Attempts beyond
	// MaxAttempts within the window trigger a block for BlockDuration.
	RegisterAttempt(ctx context.Context, key string) (Decision, error)

	// ResetAttempts clears both the counter and any block for a key.
	ResetAttempts(ctx context.Context, key string) error
}

// Config holds the throttle parameters.
type Config struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultConfig returns the production defaults: 3 attempts per minute,
// one minute lockout.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:   3,
		Window:        time.Minute,
		BlockDuration: time.Minute,
	}
}

// Validate checks the parameters.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("maxAttempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.BlockDuration <= 0 {
		return fmt.Errorf("blockDuration must be positive, got %s", c.BlockDuration)
	}
	return nil
}

func attemptsKey(key string) string {
	return fmt.Sprintf("login:attempts:%s", key)
}

func blockKey(key string) string {
	return fmt.Sprintf("login:block:%s", key)
}
