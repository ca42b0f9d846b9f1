// Package token mints and verifies the service's signed JWTs. The codec
// covers cryptographic and temporal validation; StrictValidator layers the
// semantic claim checks on top.
package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Use discriminates access tokens from refresh tokens via the token_use
// claim.
type Use string

const (
	// UseAccess marks short-lived tokens that authorize API requests
	UseAccess Use = "access"
	// UseRefresh marks tokens whose sole purpose is minting new pairs
	UseRefresh Use = "refresh"
)

// Valid reports whether u is a known token use.
func (u Use) Valid() bool {
	return u == UseAccess || u == UseRefresh
}

// Claims is the canonical claim set carried by every minted token.
// Refresh tokens never carry roles or scopes.
type Claims struct {
	jwt.RegisteredClaims

	Roles    []string `json:"roles,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	TokenUse string   `json:"token_use"`
}

// Use returns the typed token use.
func (c *Claims) Use() Use {
	return Use(c.TokenUse)
}

// HasRole checks if the claims contain a specific role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasScope checks if the claims contain a specific scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
