// Package session maintains the inventory of active refresh sessions per
// user. Entries expire with the refresh token they describe; reads trim
// expired entries before returning.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authgate/auth-core/internal/clock"
)

// Registry is the port to the session inventory.
type Registry interface {
	// RegisterSession records a refresh jti for a user until expiresAt.
	RegisterSession(ctx context.Context, username, jti string, expiresAt time.Time) error

	// ActiveSessions returns the live refresh jtis for a user.
	ActiveSessions(ctx context.Context, username string) ([]string, error)

	// RemoveSession drops one jti. Removing an unknown or expired jti is
	// a no-op.
	RemoveSession(ctx context.Context, username, jti string) error

	// RemoveAll drops every session for a user.
	RemoveAll(ctx context.Context, username string) error

	// Count returns the number of live sessions for a user.
	Count(ctx context.Context, username string) (int, error)
}

func key(username string) string {
	return fmt.Sprintf("security:sessions:v1:%s", username)
}

// RedisRegistry implements Registry on a Redis sorted set per user, with
// the member's expiry epoch as score. Expired members are trimmed lazily
// on every read.
type RedisRegistry struct {
	client *redis.Client
	clock  clock.Clock
}

// NewRedisRegistry creates a registry over an existing Redis client.
func NewRedisRegistry(client *redis.Client, c clock.Clock) (*RedisRegistry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if c == nil {
		c = clock.System()
	}
	return &RedisRegistry{client: client, clock: c}, nil
}

func (r *RedisRegistry) RegisterSession(ctx context.Context, username, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key(username), redis.Z{Score: float64(expiresAt.Unix()), Member: jti})
	// The set expires with its longest-lived member: NX covers a fresh
	// key, GT extends an existing shorter TTL.
	pipe.ExpireNX(ctx, key(username), ttl)
	pipe.ExpireGT(ctx, key(username), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) ActiveSessions(ctx context.Context, username string) ([]string, error) {
	if err := r.trim(ctx, username); err != nil {
		return nil, err
	}
	jtis, err := r.client.ZRange(ctx, key(username), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return jtis, nil
}

func (r *RedisRegistry) RemoveSession(ctx context.Context, username, jti string) error {
	if err := r.client.ZRem(ctx, key(username), jti).Err(); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) RemoveAll(ctx context.Context, username string) error {
	if err := r.client.Del(ctx, key(username)).Err(); err != nil {
		return fmt.Errorf("remove sessions: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Count(ctx context.Context, username string) (int, error) {
	if err := r.trim(ctx, username); err != nil {
		return 0, err
	}
	n, err := r.client.ZCard(ctx, key(username)).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(n), nil
}

func (r *RedisRegistry) trim(ctx context.Context, username string) error {
	max := fmt.Sprintf("%d", r.clock.Now().Unix())
	if err := r.client.ZRemRangeByScore(ctx, key(username), "-inf", max).Err(); err != nil {
		return fmt.Errorf("trim sessions: %w", err)
	}
	return nil
}

// MemoryRegistry implements Registry in process memory, for tests and
// single-node development profiles.
type MemoryRegistry struct {
	mu       sync.Mutex
	clock    clock.Clock
	sessions map[string]map[string]time.Time // username -> jti -> expiry
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry(c clock.Clock) *MemoryRegistry {
	if c == nil {
		c = clock.System()
	}
	return &MemoryRegistry{clock: c, sessions: make(map[string]map[string]time.Time)}
}

func (r *MemoryRegistry) RegisterSession(ctx context.Context, username, jti string, expiresAt time.Time) error {
	if !expiresAt.After(r.clock.Now()) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[username] == nil {
		r.sessions[username] = make(map[string]time.Time)
	}
	r.sessions[username][jti] = expiresAt
	return nil
}

func (r *MemoryRegistry) ActiveSessions(ctx context.Context, username string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trimLocked(username)
	var jtis []string
	for jti := range r.sessions[username] {
		jtis = append(jtis, jti)
	}
	return jtis, nil
}

func (r *MemoryRegistry) RemoveSession(ctx context.Context, username, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions[username], jti)
	return nil
}

func (r *MemoryRegistry) RemoveAll(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, username)
	return nil
}

func (r *MemoryRegistry) Count(ctx context.Context, username string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trimLocked(username)
	return len(r.sessions[username]), nil
}

func (r *MemoryRegistry) trimLocked(username string) {
	now := r.clock.Now()
	for jti, exp := range r.sessions[username] {
		if !exp.After(now) {
			delete(r.sessions[username], jti)
		}
	}
	if len(r.sessions[username]) == 0 {
		delete(r.sessions, username)
	}
}
