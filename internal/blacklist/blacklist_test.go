package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/auth-core/internal/clock"
)

func newRedisBlacklist(t *testing.T) (*RedisBlacklist, *miniredis.Miniredis, *clock.Manual) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		// Disable CLIENT SETINFO for miniredis compatibility
		DisableIndentity: true,
	})
	t.Cleanup(func() { client.Close() })

	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	b, err := NewRedisBlacklist(client, clk)
	require.NoError(t, err)
	return b, mr, clk
}

func TestRedisRevokeAndCheck(t *testing.T) {
	b, mr, clk := newRedisBlacklist(t)
	ctx := context.Background()

	exp := clk.Now().Add(time.Hour)
	require.NoError(t, b.Revoke(ctx, "jti-1", exp))

	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = b.IsRevoked(ctx, "other")
	require.NoError(t, err)
	assert.False(t, revoked)

	ttl := mr.TTL("security:blacklist:jti:jti-1")
	assert.InDelta(t, time.Hour, ttl, float64(time.Second))
}

func TestRedisRevokeIdempotent(t *testing.T) {
	b, _, clk := newRedisBlacklist(t)
	ctx := context.Background()

	exp := clk.Now().Add(time.Hour)
	require.NoError(t, b.Revoke(ctx, "jti-1", exp))
	require.NoError(t, b.Revoke(ctx, "jti-1", exp))

	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRedisRevokeSkipsExpired(t *testing.T) {
	b, _, clk := newRedisBlacklist(t)
	ctx := context.Background()

	require.NoError(t, b.Revoke(ctx, "jti-1", clk.Now()))

	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisTombstoneExpires(t *testing.T) {
	b, mr, clk := newRedisBlacklist(t)
	ctx := context.Background()

	require.NoError(t, b.Revoke(ctx, "jti-1", clk.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevokeSurfacesStoreErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	t.Cleanup(func() { client.Close() })

	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	b, err := NewRedisBlacklist(client, clk)
	require.NoError(t, err)

	exp := clk.Now().Add(time.Hour)
	mock.ExpectSet("security:blacklist:jti:jti-1", exp.Unix(), time.Hour).
		SetErr(errors.New("connection refused"))

	err = b.Revoke(context.Background(), "jti-1", exp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revoke token")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisIsRevokedSurfacesStoreErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	t.Cleanup(func() { client.Close() })

	b, err := NewRedisBlacklist(client, clock.NewManual(time.Unix(1_700_000_000, 0)))
	require.NoError(t, err)

	mock.ExpectExists("security:blacklist:jti:jti-1").
		SetErr(errors.New("connection refused"))

	_, err = b.IsRevoked(context.Background(), "jti-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check revocation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryBlacklist(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	b := NewMemoryBlacklist(clk)
	ctx := context.Background()

	require.NoError(t, b.Revoke(ctx, "jti-1", clk.Now().Add(time.Minute)))

	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	clk.Advance(2 * time.Minute)
	revoked, err = b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
