package token

import (
	"fmt"
	"strings"
)

// StrictValidatorConfig contains configuration for semantic claim checks.
type StrictValidatorConfig struct {
	Codec           *Codec
	Issuer          string
	AccessAudience  string
	RefreshAudience string
}

// StrictValidator runs after the codec and rejects tokens whose claims are
// structurally valid but semantically wrong for this service: bad issuer,
// missing sub/jti, missing token_use, wrong audience for the declared use,
// or refresh tokens carrying roles/scopes.
type StrictValidator struct {
	codec           *Codec
	issuer          string
	accessAudience  string
	refreshAudience string
}

// NewStrictValidator creates a new strict validator.
func NewStrictValidator(cfg *StrictValidatorConfig) (*StrictValidator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.AccessAudience == "" || cfg.RefreshAudience == "" {
		return nil, fmt.Errorf("access and refresh audiences are required")
	}

	return &StrictValidator{
		codec:           cfg.Codec,
		issuer:          cfg.Issuer,
		accessAudience:  cfg.AccessAudience,
		refreshAudience: cfg.RefreshAudience,
	}, nil
}

// Validate verifies the token cryptographically and then semantically,
// returning the canonical claims used throughout the core.
func (v *StrictValidator) Validate(tokenString string) (*Claims, error) {
	claims, err := v.codec.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if err := v.Check(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateUse is Validate plus a requirement on the declared token use.
func (v *StrictValidator) ValidateUse(tokenString string, use Use) (*Claims, error) {
	claims, err := v.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Use() != use {
		return nil, fmt.Errorf("%w: expected %s token", ErrBadTokenUse, use)
	}
	return claims, nil
}

// Check runs the semantic checks against already-verified claims.
func (v *StrictValidator) Check(claims *Claims) error {
	if claims.Issuer != v.issuer {
		return fmt.Errorf("%w: got %q", ErrBadIssuer, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: exp", ErrMissingClaim)
	}
	if claims.TokenUse == "" {
		return fmt.Errorf("%w: token_use", ErrMissingClaim)
	}
	if !claims.Use().Valid() {
		return fmt.Errorf("%w: unknown token_use %q", ErrBadTokenUse, claims.TokenUse)
	}
	if len(claims.Audience) == 0 {
		return fmt.Errorf("%w: aud", ErrMissingClaim)
	}

	expected := v.accessAudience
	if claims.Use() == UseRefresh {
		expected = v.refreshAudience
	}
	found := false
	for _, aud := range claims.Audience {
		if aud == expected {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: expected %q", ErrBadAudience, expected)
	}

	if claims.Use() == UseRefresh && (len(claims.Roles) > 0 || len(claims.Scopes) > 0) {
		return fmt.Errorf("%w: refresh token must not carry roles or scopes", ErrBadTokenUse)
	}

	return nil
}
