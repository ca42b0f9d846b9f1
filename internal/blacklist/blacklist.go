// Package blacklist tracks revoked token jtis until their natural expiry.
package blacklist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authgate/auth-core/internal/clock"
)

// Blacklist is the port to the revocation tombstone store.
type Blacklist interface {
	// Revoke stores a tombstone for a jti that auto-expires at expiresAt.
	// Already-expired tokens are skipped. Idempotent.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked reports whether a jti carries a live tombstone.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func key(jti string) string {
	return fmt.Sprintf("security:blacklist:jti:%s", jti)
}

// RedisBlacklist implements Blacklist on Redis. Tombstones are plain keys
// with a TTL equal to the token's remaining lifetime; Redis expiry is the
// garbage collector.
type RedisBlacklist struct {
	client *redis.Client
	clock  clock.Clock
}

// NewRedisBlacklist creates a blacklist over an existing Redis client.
func NewRedisBlacklist(client *redis.Client, c clock.Clock) (*RedisBlacklist, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if c == nil {
		c = clock.System()
	}
	return &RedisBlacklist{client: client, clock: c}, nil
}

func (b *RedisBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, key(jti), expiresAt.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryBlacklist implements Blacklist in process memory, for tests and
// single-node development profiles. Expiry is lazy.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries map[string]time.Time
}

// NewMemoryBlacklist creates an empty in-memory blacklist.
func NewMemoryBlacklist(c clock.Clock) *MemoryBlacklist {
	if c == nil {
		c = clock.System()
	}
	return &MemoryBlacklist{clock: c, entries: make(map[string]time.Time)}
}

func (b *MemoryBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if !expiresAt.After(b.clock.Now()) {
		return nil
	}
	b.mu.Lock()
	b.entries[jti] = expiresAt
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	b.mu.RLock()
	exp, ok := b.entries[jti]
	b.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if !exp.After(b.clock.Now()) {
		b.mu.Lock()
		delete(b.entries, jti)
		b.mu.Unlock()
		return false, nil
	}
	return true, nil
}
