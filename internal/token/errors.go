package token

import "errors"

var (
	// ErrInvalid is returned when a token cannot be parsed or fails
	// structural validation
	ErrInvalid = errors.New("token is invalid")

	// ErrExpired is returned when a token's exp has passed (or nbf has not
	// been reached)
	ErrExpired = errors.New("token has expired")

	// ErrUnknownKid is returned when the header names a kid outside the
	// verification set
	ErrUnknownKid = errors.New("token signed with unknown kid")

	// ErrBadSignature is returned when signature verification fails
	ErrBadSignature = errors.New("token signature is invalid")

	// ErrBadIssuer is returned when iss does not match the configured issuer
	ErrBadIssuer = errors.New("token issuer mismatch")

	// ErrBadAudience is returned when aud does not contain the audience
	// expected for the declared token use
	ErrBadAudience = errors.New("token audience mismatch")

	// ErrBadTokenUse is returned when token_use is missing, unknown, or
	// inconsistent with the token's claims
	ErrBadTokenUse = errors.New("token use is invalid")

	// ErrMissingClaim is returned when a mandatory claim is absent or blank
	ErrMissingClaim = errors.New("token is missing a mandatory claim")
)
