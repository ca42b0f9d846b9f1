package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogoutRetiresSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	pair, err := h.svc.Login(ctx, loginInput())
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, pair.RefreshToken, ""))

	rt, err := h.codec.Verify(pair.RefreshToken)
	require.NoError(t, err)

	revoked, err := h.bl.IsRevoked(ctx, rt.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	n, err := h.sessions.Count(ctx, "admin")
	require.NoError(t, err)
	assert.Zero(t, n)

	// After logout the token is dead for refresh.
	_, err = h.svc.Refresh(ctx, pair.RefreshToken, "")
	assert.ErrorIs(t, err, ErrRefreshReuse)
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	pair, err := h.svc.Login(ctx, loginInput())
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, pair.RefreshToken, ""))
	require.NoError(t, h.svc.Logout(ctx, pair.RefreshToken, ""))

	// Garbage tokens are silently ignored.
	require.NoError(t, h.svc.Logout(ctx, "not-a-token", ""))
}

func TestRevokeAllSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	pair1, err := h.svc.Login(ctx, loginInput())
	require.NoError(t, err)
	pair2, err := h.svc.Login(ctx, loginInput())
	require.NoError(t, err)

	require.NoError(t, h.svc.RevokeAllSessions(ctx, "admin", ""))

	for _, raw := range []string{pair1.RefreshToken, pair2.RefreshToken} {
		rt, err := h.codec.Verify(raw)
		require.NoError(t, err)
		revoked, err := h.bl.IsRevoked(ctx, rt.ID)
		require.NoError(t, err)
		assert.True(t, revoked)

		_, err = h.svc.Refresh(ctx, raw, "")
		assert.Error(t, err)
	}

	jtis, err := h.svc.ActiveSessions(ctx, "admin")
	require.NoError(t, err)
	assert.Empty(t, jtis)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	pair, err := h.svc.Login(ctx, loginInput())
	require.NoError(t, err)

	require.NoError(t, h.svc.ChangePassword(ctx, "admin", "admin123!A", "NewPass1!x", ""))

	// Old password no longer works, new one does.
	in := loginInput()
	_, err = h.svc.Login(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	in.Password = "NewPass1!x"
	_, err = h.svc.Login(ctx, in)
	require.NoError(t, err)

	// Existing sessions died with the old password.
	_, err = h.svc.Refresh(ctx, pair.RefreshToken, "")
	assert.Error(t, err)
}

func TestChangePasswordRejectsWeakPassword(t *testing.T) {
	h := newHarness(t, nil)

	err := h.svc.ChangePassword(context.Background(), "admin", "admin123!A", "weak", "")
	assert.ErrorIs(t, err, ErrPasswordPolicy)
}

func TestChangePasswordRequiresCurrentPassword(t *testing.T) {
	h := newHarness(t, nil)

	err := h.svc.ChangePassword(context.Background(), "admin", "wrong", "NewPass1!x", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
