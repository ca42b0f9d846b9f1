package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/authgate/auth-core/internal/token"
)

// Domain errors surfaced by the use cases. The HTTP layer translates them
// with HTTPStatus; nothing below the edge knows about status codes.
var (
	// ErrInvalidCredentials covers both unknown user and wrong password,
	// so responses cannot be used for user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUserLocked   = errors.New("user account is locked")
	ErrUserDisabled = errors.New("user account is disabled")
	ErrUserDeleted  = errors.New("user account is deleted")

	ErrRefreshUnknown = errors.New("unknown refresh token")
	ErrRefreshExpired = errors.New("refresh token expired")
	ErrRefreshReuse   = errors.New("refresh token reuse detected")

	ErrPasswordPolicy = errors.New("password does not meet policy")
)

// RateLimitedError carries the store-derived retry delay.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "too many login attempts"
}

// HTTPStatus maps a domain error to the status the edge should answer
// with. Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	var rl *RateLimitedError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUserLocked),
		errors.Is(err, ErrUserDisabled),
		errors.Is(err, ErrUserDeleted):
		return http.StatusForbidden
	case errors.As(err, &rl):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrRefreshUnknown),
		errors.Is(err, ErrRefreshExpired),
		errors.Is(err, ErrRefreshReuse):
		return http.StatusUnauthorized
	case errors.Is(err, token.ErrInvalid),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrUnknownKid),
		errors.Is(err, token.ErrBadSignature),
		errors.Is(err, token.ErrBadIssuer),
		errors.Is(err, token.ErrBadAudience),
		errors.Is(err, token.ErrBadTokenUse),
		errors.Is(err, token.ErrMissingClaim):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPasswordPolicy):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the stable machine-readable code for a domain error.
func ErrorCode(err error) string {
	var rl *RateLimitedError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUserLocked):
		return "user_locked"
	case errors.Is(err, ErrUserDisabled):
		return "user_disabled"
	case errors.Is(err, ErrUserDeleted):
		return "user_deleted"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.Is(err, ErrRefreshUnknown):
		return "refresh_unknown"
	case errors.Is(err, ErrRefreshExpired):
		return "refresh_expired"
	case errors.Is(err, ErrRefreshReuse):
		return "refresh_reuse"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, token.ErrExpired):
		return "token_expired"
	case errors.Is(err, token.ErrInvalid),
		errors.Is(err, token.ErrUnknownKid),
		errors.Is(err, token.ErrBadSignature),
		errors.Is(err, token.ErrBadIssuer),
		errors.Is(err, token.ErrBadAudience),
		errors.Is(err, token.ErrBadTokenUse),
		errors.Is(err, token.ErrMissingClaim):
		return "token_invalid"
	default:
		return "internal_error"
	}
}
