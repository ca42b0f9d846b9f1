package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no account matches the lookup key.
var ErrNotFound = errors.New("account not found")

// AccountGateway is the port to the user-account store. Lookups are
// case-insensitive on username and email.
type AccountGateway interface {
	// FindByUsernameOrEmail resolves an account by either identifier.
	FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*User, error)

	// UpdatePasswordHash replaces the stored hash for the given user id.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// PasswordHasher is the port to the password hashing primitive.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(password, hash string) bool
}
