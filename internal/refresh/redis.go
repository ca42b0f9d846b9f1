package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/authgate/auth-core/internal/clock"
)

// revokeFamilyScript flips the revoked flag on every member of a family in
// one atomic step. KEYS[1] is the family index set; record keys are derived
// inside the script so no member can be missed between SMEMBERS and the
// writes.
var revokeFamilyScript = redis.NewScript(`
local jtis = redis.call('SMEMBERS', KEYS[1])
local n = 0
for _, jti in ipairs(jtis) do
    local key = 'security:refresh:record:' .. jti
    local raw = redis.call('GET', key)
    if raw then
        local rec = cjson.decode(raw)
        if not rec.revoked then
            rec.revoked = true
            local ttl = redis.call('PTTL', key)
            if ttl > 0 then
                redis.call('SET', key, cjson.encode(rec), 'PX', ttl)
            else
                redis.call('SET', key, cjson.encode(rec))
            end
            n = n + 1
        end
    end
end
return n
`)

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Client *redis.Client
	// Issuer namespaces the consume-once markers so multiple issuers can
	// share one Redis.
	Issuer string
	Clock  clock.Clock
	Logger *zap.Logger
}

// RedisStore implements Store on Redis. Each record lives under its own
// key with a TTL equal to the token's remaining lifetime; secondary sets
// index records by family and by user for enumeration.
type RedisStore struct {
	client *redis.Client
	issuer string
	clock  clock.Clock
	logger *zap.Logger
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(cfg *RedisStoreConfig) (*RedisStore, error) {
	if cfg == nil || cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	c := cfg.Clock
	if c == nil {
		c = clock.System()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: cfg.Client,
		issuer: cfg.Issuer,
		clock:  c,
		logger: logger,
	}, nil
}

// Save persists a record and indexes it by family and user. The index
// sets carry a TTL at least as long as the record so they cannot outlive
// their members by much.
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	if rec.JTI == "" || rec.Username == "" || rec.FamilyID == "" {
		return fmt.Errorf("record jti, username and family id are required")
	}

	ttl := rec.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return fmt.Errorf("record for jti %s is already expired", rec.JTI)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(rec.JTI), raw, ttl)
	pipe.SAdd(ctx, familyKey(rec.FamilyID), rec.JTI)
	pipe.Expire(ctx, familyKey(rec.FamilyID), ttl)
	pipe.SAdd(ctx, userKey(rec.Username), rec.JTI)
	pipe.Expire(ctx, userKey(rec.Username), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save refresh record: %w", err)
	}
	return nil
}

// FindByJti returns the record for a jti.
func (s *RedisStore) FindByJti(ctx context.Context, jti string) (*Record, error) {
	raw, err := s.client.Get(ctx, recordKey(jti)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal refresh record: %w", err)
	}
	return &rec, nil
}

// Revoke marks one record revoked, preserving its TTL.
func (s *RedisStore) Revoke(ctx context.Context, jti string) error {
	rec, err := s.FindByJti(ctx, jti)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Revoked {
		return nil
	}
	rec.Revoked = true

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	ttl := rec.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, recordKey(jti), raw, ttl).Err(); err != nil {
		return fmt.Errorf("revoke refresh record: %w", err)
	}
	return nil
}

// RevokeFamily atomically marks every member of a family revoked.
func (s *RedisStore) RevokeFamily(ctx context.Context, familyID string) error {
	n, err := revokeFamilyScript.Run(ctx, s.client, []string{familyKey(familyID)}).Int()
	if err != nil {
		return fmt.Errorf("revoke family: %w", err)
	}
	s.logger.Warn("refresh token family revoked",
		zap.String("family_id", familyID),
		zap.Int("records", n))
	return nil
}

// DeleteAllForUser removes every stored record for a username.
func (s *RedisStore) DeleteAllForUser(ctx context.Context, username string) error {
	jtis, err := s.client.SMembers(ctx, userKey(username)).Result()
	if err != nil {
		return fmt.Errorf("list user records: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, jti := range jtis {
		pipe.Del(ctx, recordKey(jti))
	}
	pipe.Del(ctx, userKey(username))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete user records: %w", err)
	}
	return nil
}

// FindAllForUser returns the jtis with live records for a username. Index
// entries whose record already expired are dropped on read.
func (s *RedisStore) FindAllForUser(ctx context.Context, username string) ([]string, error) {
	jtis, err := s.client.SMembers(ctx, userKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("list user records: %w", err)
	}

	live := make([]string, 0, len(jtis))
	for _, jti := range jtis {
		exists, err := s.client.Exists(ctx, recordKey(jti)).Result()
		if err != nil {
			return nil, fmt.Errorf("check record: %w", err)
		}
		if exists > 0 {
			live = append(live, jti)
		} else {
			s.client.SRem(ctx, userKey(username), jti)
		}
	}
	return live, nil
}

// DeleteExpired is a no-op on Redis: record keys expire via TTL, and stale
// index members are pruned by FindAllForUser on read.
func (s *RedisStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

// Consume attempts the first-consumer-wins mark for a jti. SETNX with the
// token's remaining lifetime is the serialization point for concurrent
// refreshes.
func (s *RedisStore) Consume(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return false, fmt.Errorf("token %s is already expired", jti)
	}

	won, err := s.client.SetNX(ctx, consumedKey(s.issuer, jti), s.clock.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return won, nil
}
