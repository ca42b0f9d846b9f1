// Package auth holds the authentication use cases: credential checking,
// login, refresh rotation, logout, and the request authorization filter.
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/authgate/auth-core/internal/identity"
)

// Authenticator validates username/password credentials against the
// account store.
type Authenticator struct {
	accounts identity.AccountGateway
	hasher   identity.PasswordHasher
	logger   *zap.Logger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(accounts identity.AccountGateway, hasher identity.PasswordHasher, logger *zap.Logger) (*Authenticator, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account gateway is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{accounts: accounts, hasher: hasher, logger: logger}, nil
}

// Authenticate resolves and verifies a user. Unknown users and wrong
// passwords both return ErrInvalidCredentials; account-state errors are
// specific because they are only reachable with a valid identifier.
func (a *Authenticator) Authenticate(ctx context.Context, usernameOrEmail, password string) (*identity.User, error) {
	user, err := a.accounts.FindByUsernameOrEmail(ctx, usernameOrEmail)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	switch user.Status {
	case identity.StatusActive:
	case identity.StatusLocked:
		return nil, ErrUserLocked
	case identity.StatusDisabled:
		return nil, ErrUserDisabled
	case identity.StatusDeleted:
		return nil, ErrUserDeleted
	default:
		a.logger.Error("account has unknown status",
			zap.String("username", user.Username),
			zap.String("status", string(user.Status)))
		return nil, ErrInvalidCredentials
	}

	if !a.hasher.Matches(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
