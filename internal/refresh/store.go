// Package refresh persists refresh-token metadata with family chaining.
// Every token minted by a rotation belongs to the family created at login;
// once a family is revoked no member may be used again.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a jti.
	ErrNotFound = errors.New("refresh record not found")
)

// Record is the stored metadata for one refresh token.
type Record struct {
	JTI         string    `json:"jti"`
	Username    string    `json:"username"`
	FamilyID    string    `json:"family_id"`
	PreviousJTI string    `json:"previous_jti,omitempty"`
	Revoked     bool      `json:"revoked"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store is the port to the refresh-token metadata store. Records expire
// from the store together with the tokens they describe.
type Store interface {
	// Save persists a new record. The record's TTL in the store equals its
	// remaining lifetime.
	Save(ctx context.Context, rec *Record) error

	// FindByJti returns the record for a jti, or ErrNotFound.
	FindByJti(ctx context.Context, jti string) (*Record, error)

	// Revoke marks a single record revoked.
	Revoke(ctx context.Context, jti string) error

	// RevokeFamily marks every record of a family revoked. After it
	// returns, no reader may observe any member as non-revoked.
	RevokeFamily(ctx context.Context, familyID string) error

	// DeleteAllForUser removes all records for a username.
	DeleteAllForUser(ctx context.Context, username string) error

	// FindAllForUser returns the jtis of all stored records for a username.
	FindAllForUser(ctx context.Context, username string) ([]string, error)

	// DeleteExpired removes records that expired before the given time and
	// returns how many were dropped.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)

	// Consume attempts the first-consumer-wins mark for a jti. It returns
	// true when this caller won; false means another caller consumed the
	// token first. The marker expires with the token.
	Consume(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
}

func recordKey(jti string) string {
	return fmt.Sprintf("security:refresh:record:%s", jti)
}

func familyKey(familyID string) string {
	return fmt.Sprintf("security:refresh:family:%s", familyID)
}

func userKey(username string) string {
	return fmt.Sprintf("security:refresh:user:%s", username)
}

func consumedKey(issuer, jti string) string {
	return fmt.Sprintf("security:refresh:consumed:%s:%s", issuer, jti)
}
