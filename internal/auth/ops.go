package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/authgate/auth-core/internal/audit"
	"github.com/authgate/auth-core/internal/identity"
	"github.com/authgate/auth-core/internal/refresh"
	"github.com/authgate/auth-core/internal/token"
)

// Logout retires one refresh session: the record is revoked, the jti
// blacklisted until its natural expiry, and the session entry dropped.
// An unknown token is a no-op so logout is idempotent.
func (s *Service) Logout(ctx context.Context, rawRefreshToken, correlationID string) error {
	claims, err := s.cfg.Validator.ValidateUse(rawRefreshToken, token.UseRefresh)
	if err != nil {
		// An expired or garbled token has nothing left to revoke.
		return nil
	}

	rec, err := s.cfg.RefreshStore.FindByJti(ctx, claims.ID)
	if errors.Is(err, refresh.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load refresh record: %w", err)
	}

	if err := s.cfg.RefreshStore.Revoke(ctx, rec.JTI); err != nil {
		return fmt.Errorf("revoke refresh record: %w", err)
	}
	if err := s.cfg.Blacklist.Revoke(ctx, rec.JTI, rec.ExpiresAt); err != nil {
		return fmt.Errorf("blacklist refresh token: %w", err)
	}
	if err := s.cfg.Sessions.RemoveSession(ctx, rec.Username, rec.JTI); err != nil {
		s.logger.Error("remove session failed", zap.Error(err))
	}

	s.cfg.Metrics.SessionRevoked()
	s.publish(ctx, audit.Event{
		EventType:     audit.EventLogout,
		Username:      rec.Username,
		CorrelationID: correlationID,
	})
	return nil
}

// Profile returns the account behind an authenticated principal. A token
// whose account has vanished since mint is treated as invalid.
func (s *Service) Profile(ctx context.Context, username string) (*identity.User, error) {
	user, err := s.cfg.Accounts.FindByUsernameOrEmail(ctx, username)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, token.ErrInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return user, nil
}

// RevokeAccessToken tombstones an access token until its natural expiry,
// so a logout also cuts off the short-lived bearer credential.
func (s *Service) RevokeAccessToken(ctx context.Context, p *Principal) error {
	if p == nil {
		return nil
	}
	if err := s.cfg.Blacklist.Revoke(ctx, p.JTI, p.ExpiresAt); err != nil {
		return fmt.Errorf("blacklist access token: %w", err)
	}
	return nil
}

// ActiveSessions lists the live refresh jtis for a user.
func (s *Service) ActiveSessions(ctx context.Context, username string) ([]string, error) {
	return s.cfg.Sessions.ActiveSessions(ctx, username)
}

// RevokeAllSessions terminates every session of a user: all refresh
// records are revoked and blacklisted, the session inventory cleared.
func (s *Service) RevokeAllSessions(ctx context.Context, username, correlationID string) error {
	jtis, err := s.cfg.RefreshStore.FindAllForUser(ctx, username)
	if err != nil {
		return fmt.Errorf("enumerate refresh records: %w", err)
	}

	for _, jti := range jtis {
		rec, err := s.cfg.RefreshStore.FindByJti(ctx, jti)
		if errors.Is(err, refresh.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load refresh record: %w", err)
		}
		if err := s.cfg.Blacklist.Revoke(ctx, jti, rec.ExpiresAt); err != nil {
			return fmt.Errorf("blacklist refresh token: %w", err)
		}
		s.cfg.Metrics.SessionRevoked()
	}

	if err := s.cfg.RefreshStore.DeleteAllForUser(ctx, username); err != nil {
		return fmt.Errorf("delete refresh records: %w", err)
	}
	if err := s.cfg.Sessions.RemoveAll(ctx, username); err != nil {
		s.logger.Error("remove sessions failed", zap.Error(err), zap.String("username", username))
	}

	s.publish(ctx, audit.Event{
		EventType:     audit.EventSessionRevoked,
		Username:      username,
		CorrelationID: correlationID,
		Detail:        map[string]any{"sessions": len(jtis)},
	})
	return nil
}

// ChangePassword verifies the current password, enforces the complexity
// policy, stores the new hash, and terminates every existing session so
// stolen refresh tokens die with the old password.
func (s *Service) ChangePassword(ctx context.Context, username, currentPassword, newPassword, correlationID string) error {
	user, err := s.cfg.Authenticator.Authenticate(ctx, username, currentPassword)
	if err != nil {
		return err
	}

	if err := identity.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, err)
	}

	hash, err := s.cfg.Authenticator.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.cfg.Accounts.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	if err := s.RevokeAllSessions(ctx, user.Username, correlationID); err != nil {
		s.logger.Error("revoke sessions after password change failed",
			zap.Error(err), zap.String("username", user.Username))
	}

	s.cfg.Metrics.PasswordChange()
	s.publish(ctx, audit.Event{
		EventType:     audit.EventPasswordChanged,
		Username:      user.Username,
		CorrelationID: correlationID,
	})
	return nil
}
