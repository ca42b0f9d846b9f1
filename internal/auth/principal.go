package auth

import (
	"time"

	"github.com/authgate/auth-core/internal/scope"
	"github.com/authgate/auth-core/internal/token"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	Username  string
	JTI       string
	Roles     []string
	Scopes    []string
	ExpiresAt time.Time
}

// PrincipalFromClaims builds a principal from verified access claims.
func PrincipalFromClaims(claims *token.Claims) *Principal {
	p := &Principal{
		Username: claims.Subject,
		JTI:      claims.ID,
		Roles:    claims.Roles,
		Scopes:   claims.Scopes,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p
}

// HasRole reports whether the principal carries a role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasScope reports whether the principal's scopes satisfy a required
// scope, including resource wildcards.
func (p *Principal) HasScope(required string) bool {
	return scope.Satisfies(p.Scopes, required)
}
