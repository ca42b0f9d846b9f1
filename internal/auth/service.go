package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate/auth-core/internal/audit"
	"github.com/authgate/auth-core/internal/blacklist"
	"github.com/authgate/auth-core/internal/clock"
	"github.com/authgate/auth-core/internal/identity"
	"github.com/authgate/auth-core/internal/metrics"
	"github.com/authgate/auth-core/internal/ratelimit"
	"github.com/authgate/auth-core/internal/refresh"
	"github.com/authgate/auth-core/internal/scope"
	"github.com/authgate/auth-core/internal/session"
	"github.com/authgate/auth-core/internal/token"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the access token's expiry.
	ExpiresAt time.Time
}

// ServiceConfig wires the authentication service.
type ServiceConfig struct {
	Codec     *token.Codec
	Validator *token.StrictValidator

	Accounts      identity.AccountGateway
	Authenticator *Authenticator
	Scopes        *scope.Resolver

	RefreshStore refresh.Store
	Blacklist    blacklist.Blacklist
	Sessions     session.Registry

	Attempts    ratelimit.AttemptPolicy
	AttemptKeys *ratelimit.KeyResolver
	ClientIP    *ratelimit.ClientIPResolver

	Metrics *metrics.AuthMetrics
	Audit   audit.Publisher
	Clock   clock.Clock
	Logger  *zap.Logger

	AccessAudience  string
	RefreshAudience string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration

	// RotateRefreshTokens controls whether a refresh mints a new refresh
	// token (recommended) or keeps returning the original one.
	RotateRefreshTokens bool

	// RateLimitEnabled gates the attempt policy on login.
	RateLimitEnabled bool
}

// Service implements the login, refresh and session use cases.
type Service struct {
	cfg    ServiceConfig
	clock  clock.Clock
	logger *zap.Logger
}

// NewService validates the wiring and creates the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Codec == nil:
		return nil, fmt.Errorf("token codec is required")
	case cfg.Validator == nil:
		return nil, fmt.Errorf("strict validator is required")
	case cfg.Accounts == nil:
		return nil, fmt.Errorf("account gateway is required")
	case cfg.Authenticator == nil:
		return nil, fmt.Errorf("authenticator is required")
	case cfg.Scopes == nil:
		return nil, fmt.Errorf("scope resolver is required")
	case cfg.RefreshStore == nil:
		return nil, fmt.Errorf("refresh store is required")
	case cfg.Blacklist == nil:
		return nil, fmt.Errorf("blacklist is required")
	case cfg.Sessions == nil:
		return nil, fmt.Errorf("session registry is required")
	case cfg.AccessAudience == "" || cfg.RefreshAudience == "":
		return nil, fmt.Errorf("access and refresh audiences are required")
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= cfg.AccessTTL:
		return nil, fmt.Errorf("refresh ttl must exceed access ttl")
	}
	if cfg.RateLimitEnabled && (cfg.Attempts == nil || cfg.AttemptKeys == nil || cfg.ClientIP == nil) {
		return nil, fmt.Errorf("rate limiting enabled but attempt policy, key resolver or ip resolver missing")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("authgate")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{cfg: cfg, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// LoginInput carries one login request.
type LoginInput struct {
	UsernameOrEmail string
	Password        string
	RemoteAddr      string
	ForwardedFor    string
	CorrelationID   string
}

// Login authenticates credentials and issues a token pair. The attempt
// throttle runs before any account lookup so unauthenticated traffic
// never reaches the user store.
func (s *Service) Login(ctx context.Context, in LoginInput) (*TokenPair, error) {
	var clientIP string
	if s.cfg.ClientIP != nil {
		clientIP = s.cfg.ClientIP.Resolve(in.RemoteAddr, in.ForwardedFor)
	}

	if s.cfg.RateLimitEnabled {
		key := s.cfg.AttemptKeys.Resolve(clientIP, in.UsernameOrEmail)
		d, err := s.cfg.Attempts.RegisterAttempt(ctx, key)
		if err != nil {
			// Throttle store trouble must not take logins down.
			s.logger.Error("attempt policy unavailable", zap.Error(err))
		} else if !d.Allowed {
			s.cfg.Metrics.BruteforceDetected()
			s.publish(ctx, audit.Event{
				EventType:     audit.EventLoginBlocked,
				Username:      in.UsernameOrEmail,
				ClientIP:      clientIP,
				CorrelationID: in.CorrelationID,
			})
			return nil, &RateLimitedError{RetryAfter: d.RetryAfter}
		}
	}

	user, err := s.cfg.Authenticator.Authenticate(ctx, in.UsernameOrEmail, in.Password)
	if err != nil {
		s.cfg.Metrics.LoginFailure()
		if errors.Is(err, ErrUserLocked) {
			s.cfg.Metrics.UserLocked()
		}
		s.publish(ctx, audit.Event{
			EventType:     audit.EventLoginFailure,
			Username:      in.UsernameOrEmail,
			ClientIP:      clientIP,
			CorrelationID: in.CorrelationID,
			Detail:        map[string]any{"reason": ErrorCode(err)},
		})
		return nil, err
	}

	scopes, err := s.cfg.Scopes.Resolve(user)
	if err != nil {
		return nil, fmt.Errorf("resolve scopes: %w", err)
	}

	familyID := uuid.NewString()
	pair, refreshClaims, err := s.mintPair(user.Username, user.RoleNames(), scopes)
	if err != nil {
		return nil, err
	}

	rec := &refresh.Record{
		JTI:       refreshClaims.ID,
		Username:  user.Username,
		FamilyID:  familyID,
		IssuedAt:  refreshClaims.IssuedAt.Time,
		ExpiresAt: refreshClaims.ExpiresAt.Time,
	}
	// A token whose refresh metadata is missing must never reach the
	// client, so this write is fatal.
	if err := s.cfg.RefreshStore.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist refresh record: %w", err)
	}

	if err := s.cfg.Sessions.RegisterSession(ctx, user.Username, rec.JTI, rec.ExpiresAt); err != nil {
		s.logger.Error("register session failed", zap.Error(err), zap.String("username", user.Username))
	}
	if s.cfg.RateLimitEnabled {
		key := s.cfg.AttemptKeys.Resolve(clientIP, in.UsernameOrEmail)
		if err := s.cfg.Attempts.ResetAttempts(ctx, key); err != nil {
			s.logger.Error("reset attempts failed", zap.Error(err))
		}
	}

	s.cfg.Metrics.LoginSuccess()
	s.publish(ctx, audit.Event{
		EventType:     audit.EventLoginSuccess,
		Username:      user.Username,
		ClientIP:      clientIP,
		CorrelationID: in.CorrelationID,
	})
	return pair, nil
}

// mintPair mints an access/refresh token pair for a subject.
func (s *Service) mintPair(username string, roles, scopes []string) (*TokenPair, *token.Claims, error) {
	access, accessClaims, err := s.cfg.Codec.Mint(token.MintSpec{
		Subject:  username,
		Roles:    roles,
		Scopes:   scopes,
		TTL:      s.cfg.AccessTTL,
		Audience: s.cfg.AccessAudience,
		Use:      token.UseAccess,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mint access token: %w", err)
	}

	refreshTok, refreshClaims, err := s.cfg.Codec.Mint(token.MintSpec{
		Subject:  username,
		TTL:      s.cfg.RefreshTTL,
		Audience: s.cfg.RefreshAudience,
		Use:      token.UseRefresh,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mint refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshTok,
		ExpiresAt:    accessClaims.ExpiresAt.Time,
	}, refreshClaims, nil
}

func (s *Service) publish(ctx context.Context, event audit.Event) {
	if s.cfg.Audit != nil {
		s.cfg.Audit.Publish(ctx, event)
	}
}
