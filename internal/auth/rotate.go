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

// Refresh validates a refresh token, detects replay, and mints a new
// token pair. With rotation enabled the input token is consumed and a new
// refresh token chained onto its family; the atomic consume is the
// serialization point for concurrent refreshes of the same token.
func (s *Service) Refresh(ctx context.Context, rawToken, correlationID string) (*TokenPair, error) {
	claims, err := s.cfg.Validator.ValidateUse(rawToken, token.UseRefresh)
	if err != nil {
		return nil, err
	}

	rec, err := s.cfg.RefreshStore.FindByJti(ctx, claims.ID)
	if errors.Is(err, refresh.ErrNotFound) {
		return nil, ErrRefreshUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh record: %w", err)
	}

	if rec.Revoked {
		return nil, s.handleReuse(ctx, rec, claims.ID, correlationID)
	}

	if !rec.ExpiresAt.After(s.clock.Now()) {
		return nil, ErrRefreshExpired
	}

	if s.cfg.RotateRefreshTokens {
		won, err := s.cfg.RefreshStore.Consume(ctx, claims.ID, rec.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("consume refresh token: %w", err)
		}
		if !won {
			// A concurrent request already rotated this token.
			return nil, s.handleReuse(ctx, rec, claims.ID, correlationID)
		}
	}

	user, roles, scopes, err := s.freshGrants(ctx, rec.Username)
	if err != nil {
		s.cfg.Metrics.RotationFailed()
		return nil, err
	}

	if !s.cfg.RotateRefreshTokens {
		// Rotation off: new access token, same refresh token. Reuse
		// detection still applies through the revoked flag above.
		access, accessClaims, err := s.cfg.Codec.Mint(token.MintSpec{
			Subject:  user.Username,
			Roles:    roles,
			Scopes:   scopes,
			TTL:      s.cfg.AccessTTL,
			Audience: s.cfg.AccessAudience,
			Use:      token.UseAccess,
		})
		if err != nil {
			s.cfg.Metrics.RotationFailed()
			return nil, fmt.Errorf("mint access token: %w", err)
		}
		s.cfg.Metrics.TokenRefresh()
		return &TokenPair{
			AccessToken:  access,
			RefreshToken: rawToken,
			ExpiresAt:    accessClaims.ExpiresAt.Time,
		}, nil
	}

	pair, newClaims, err := s.mintPair(user.Username, roles, scopes)
	if err != nil {
		s.cfg.Metrics.RotationFailed()
		return nil, err
	}

	newRec := &refresh.Record{
		JTI:         newClaims.ID,
		Username:    rec.Username,
		FamilyID:    rec.FamilyID,
		PreviousJTI: rec.JTI,
		IssuedAt:    newClaims.IssuedAt.Time,
		ExpiresAt:   newClaims.ExpiresAt.Time,
	}
	if err := s.cfg.RefreshStore.Save(ctx, newRec); err != nil {
		s.cfg.Metrics.RotationFailed()
		return nil, fmt.Errorf("persist rotated record: %w", err)
	}

	// Retire the consumed token. The record and blacklist writes are
	// fatal: a live old token would break the family invariant.
	if err := s.cfg.RefreshStore.Revoke(ctx, rec.JTI); err != nil {
		s.cfg.Metrics.RotationFailed()
		return nil, fmt.Errorf("revoke rotated record: %w", err)
	}
	if err := s.cfg.Blacklist.Revoke(ctx, rec.JTI, rec.ExpiresAt); err != nil {
		s.cfg.Metrics.RotationFailed()
		return nil, fmt.Errorf("blacklist rotated token: %w", err)
	}
	if err := s.cfg.Sessions.RemoveSession(ctx, rec.Username, rec.JTI); err != nil {
		s.logger.Error("remove rotated session failed", zap.Error(err))
	}
	if err := s.cfg.Sessions.RegisterSession(ctx, rec.Username, newRec.JTI, newRec.ExpiresAt); err != nil {
		s.logger.Error("register rotated session failed", zap.Error(err))
	}

	s.cfg.Metrics.TokenRefresh()
	s.publish(ctx, audit.Event{
		EventType:     audit.EventTokenRefreshed,
		Username:      rec.Username,
		CorrelationID: correlationID,
	})
	return pair, nil
}

// handleReuse revokes the whole family and blacklists the presented jti.
// The returned error is always ErrRefreshReuse; revocation failures are
// logged because the caller's request is already being denied.
func (s *Service) handleReuse(ctx context.Context, rec *refresh.Record, jti, correlationID string) error {
	if err := s.cfg.RefreshStore.RevokeFamily(ctx, rec.FamilyID); err != nil {
		s.logger.Error("revoke family failed",
			zap.Error(err), zap.String("family_id", rec.FamilyID))
	}
	if err := s.cfg.Blacklist.Revoke(ctx, jti, rec.ExpiresAt); err != nil {
		s.logger.Error("blacklist reused token failed", zap.Error(err), zap.String("jti", jti))
	}

	s.cfg.Metrics.RefreshReused()
	s.publish(ctx, audit.Event{
		EventType:     audit.EventRefreshReused,
		Username:      rec.Username,
		CorrelationID: correlationID,
		Detail:        map[string]any{"family_id": rec.FamilyID, "jti": jti},
	})
	s.logger.Warn("refresh token reuse detected",
		zap.String("username", rec.Username),
		zap.String("family_id", rec.FamilyID))
	return ErrRefreshReuse
}

// freshGrants re-reads the account so a refresh never resurrects roles or
// scopes that were withdrawn after login.
func (s *Service) freshGrants(ctx context.Context, username string) (*identity.User, []string, []string, error) {
	user, err := s.cfg.Accounts.FindByUsernameOrEmail(ctx, username)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("lookup account: %w", err)
	}

	switch user.Status {
	case identity.StatusActive:
	case identity.StatusLocked:
		return nil, nil, nil, ErrUserLocked
	case identity.StatusDisabled:
		return nil, nil, nil, ErrUserDisabled
	case identity.StatusDeleted:
		return nil, nil, nil, ErrUserDeleted
	default:
		return nil, nil, nil, ErrInvalidCredentials
	}

	scopes, err := s.cfg.Scopes.Resolve(user)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve scopes: %w", err)
	}
	return user, user.RoleNames(), scopes, nil
}
