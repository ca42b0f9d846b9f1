package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate/auth-core/internal/clock"
	"github.com/authgate/auth-core/internal/keys"
)

// CodecConfig contains configuration for the token codec.
type CodecConfig struct {
	Registry *keys.Registry
	Issuer   string
	Clock    clock.Clock
	Skew     time.Duration // zero unless explicitly configured
	Logger   *zap.Logger
}

// Codec mints and verifies RS256-signed JWTs. Verification here is
// cryptographic and temporal only; semantic claim checks live in
// StrictValidator.
type Codec struct {
	registry *keys.Registry
	issuer   string
	clock    clock.Clock
	skew     time.Duration
	logger   *zap.Logger
}

// MintSpec describes one token to mint.
type MintSpec struct {
	Subject  string
	Roles    []string
	Scopes   []string
	TTL      time.Duration
	Audience string
	Use      Use
}

// NewCodec creates a new token codec.
func NewCodec(cfg *CodecConfig) (*Codec, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("key registry is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Codec{
		registry: cfg.Registry,
		issuer:   cfg.Issuer,
		clock:    cfg.Clock,
		skew:     cfg.Skew,
		logger:   cfg.Logger,
	}, nil
}

// Mint builds and signs a token. The jti is a fresh UUIDv4, nbf equals iat,
// and refresh tokens are stripped of roles and scopes regardless of input.
func (c *Codec) Mint(spec MintSpec) (string, *Claims, error) {
	if spec.Subject == "" {
		return "", nil, fmt.Errorf("subject is required")
	}
	if spec.Audience == "" {
		return "", nil, fmt.Errorf("audience is required")
	}
	if !spec.Use.Valid() {
		return "", nil, fmt.Errorf("unknown token use %q", spec.Use)
	}
	if spec.TTL <= 0 {
		return "", nil, fmt.Errorf("ttl must be positive")
	}

	now := c.clock.Now()
	roles := spec.Roles
	scopes := spec.Scopes
	if spec.Use == UseRefresh {
		roles = nil
		scopes = nil
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   spec.Subject,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{spec.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(spec.TTL)),
			ID:        uuid.NewString(),
		},
		Roles:    roles,
		Scopes:   scopes,
		TokenUse: string(spec.Use),
	}

	kid, priv := c.registry.Active()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(priv)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses a compact JWS, selects the verification key by kid, checks
// the signature, and validates exp/nbf against the injected clock with zero
// tolerance unless a skew was configured.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalid)
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, c.keyFunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithLeeway(c.skew),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, c.mapParseError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalid)
	}

	return claims, nil
}

// ExtractJTI fully verifies the token and returns its jti claim.
func (c *Codec) ExtractJTI(tokenString string) (string, error) {
	claims, err := c.Verify(tokenString)
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	return claims.ID, nil
}

// ExtractSubject fully verifies the token and returns its sub claim.
func (c *Codec) ExtractSubject(tokenString string) (string, error) {
	claims, err := c.Verify(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims.Subject, nil
}

// keyFunc selects the verification key by the kid header.
func (c *Codec) keyFunc(tok *jwt.Token) (interface{}, error) {
	kid, ok := tok.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("%w: missing kid header", ErrUnknownKid)
	}
	pub, err := c.registry.Verification(kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKid, kid)
	}
	return pub, nil
}

// mapParseError folds golang-jwt parse failures into the codec's error set.
func (c *Codec) mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKid):
		return ErrUnknownKid
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}
