package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGatewayLookup(t *testing.T) {
	g := NewMemoryGateway()
	require.NoError(t, g.Put(&User{
		ID:       "u1",
		Username: "Alice",
		Email:    "Alice@Example.com",
		Status:   StatusActive,
		Roles:    []Role{{Name: "ROLE_USER", Scopes: []string{"user:read"}}},
	}))

	ctx := context.Background()

	u, err := g.FindByUsernameOrEmail(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	u, err = g.FindByUsernameOrEmail(ctx, "ALICE@example.COM")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = g.FindByUsernameOrEmail(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGatewayReturnsCopies(t *testing.T) {
	g := NewMemoryGateway()
	require.NoError(t, g.Put(&User{ID: "u1", Username: "alice", Status: StatusActive}))

	u, err := g.FindByUsernameOrEmail(context.Background(), "alice")
	require.NoError(t, err)
	u.Status = StatusLocked

	again, err := g.FindByUsernameOrEmail(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, again.Status)
}

func TestMemoryGatewayUpdatePasswordHash(t *testing.T) {
	g := NewMemoryGateway()
	require.NoError(t, g.Put(&User{ID: "u1", Username: "alice", PasswordHash: "old"}))

	require.NoError(t, g.UpdatePasswordHash(context.Background(), "u1", "new"))

	u, err := g.FindByUsernameOrEmail(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "new", u.PasswordHash)

	assert.ErrorIs(t, g.UpdatePasswordHash(context.Background(), "missing", "x"), ErrNotFound)
}
