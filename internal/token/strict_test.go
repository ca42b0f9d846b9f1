package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/auth-core/internal/clock"
)

func testValidator(t *testing.T, codec *Codec) *StrictValidator {
	t.Helper()
	v, err := NewStrictValidator(&StrictValidatorConfig{
		Codec:           codec,
		Issuer:          "authgate",
		AccessAudience:  "authgate-api",
		RefreshAudience: "authgate-refresh",
	})
	require.NoError(t, err)
	return v
}

func TestStrictValidateAccessToken(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	codec := testCodec(t, clk)
	v := testValidator(t, codec)

	signed, _, err := codec.Mint(MintSpec{
		Subject:  "admin",
		Roles:    []string{"ROLE_ADMIN"},
		Scopes:   []string{"user:manage"},
		TTL:      time.Minute,
		Audience: "authgate-api",
		Use:      UseAccess,
	})
	require.NoError(t, err)

	claims, err := v.ValidateUse(signed, UseAccess)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)

	_, err = v.ValidateUse(signed, UseRefresh)
	assert.ErrorIs(t, err, ErrBadTokenUse)
}

func TestStrictValidateAudiencePerUse(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	codec := testCodec(t, clk)
	v := testValidator(t, codec)

	// Access token carrying the refresh audience must be rejected.
	signed, _, err := codec.Mint(MintSpec{
		Subject:  "admin",
		TTL:      time.Minute,
		Audience: "authgate-refresh",
		Use:      UseAccess,
	})
	require.NoError(t, err)

	_, err = v.Validate(signed)
	assert.ErrorIs(t, err, ErrBadAudience)

	// And a refresh token with the refresh audience passes.
	signed, _, err = codec.Mint(MintSpec{
		Subject:  "admin",
		TTL:      time.Minute,
		Audience: "authgate-refresh",
		Use:      UseRefresh,
	})
	require.NoError(t, err)

	_, err = v.Validate(signed)
	assert.NoError(t, err)
}

func TestStrictCheckClaimGaps(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	codec := testCodec(t, clk)
	v := testValidator(t, codec)

	now := clk.Now()
	base := func() *Claims {
		return &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "admin",
				Issuer:    "authgate",
				Audience:  jwt.ClaimStrings{"authgate-api"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
				ID:        "jti-1",
			},
			TokenUse: string(UseAccess),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Claims)
		wantErr error
	}{
		{"valid", func(c *Claims) {}, nil},
		{"wrong issuer", func(c *Claims) { c.Issuer = "someone-else" }, ErrBadIssuer},
		{"blank sub", func(c *Claims) { c.Subject = "  " }, ErrMissingClaim},
		{"blank jti", func(c *Claims) { c.ID = "" }, ErrMissingClaim},
		{"missing exp", func(c *Claims) { c.ExpiresAt = nil }, ErrMissingClaim},
		{"missing token_use", func(c *Claims) { c.TokenUse = "" }, ErrMissingClaim},
		{"unknown token_use", func(c *Claims) { c.TokenUse = "session" }, ErrBadTokenUse},
		{"empty aud", func(c *Claims) { c.Audience = nil }, ErrMissingClaim},
		{"wrong aud", func(c *Claims) { c.Audience = jwt.ClaimStrings{"other"} }, ErrBadAudience},
		{
			"refresh with roles",
			func(c *Claims) {
				c.TokenUse = string(UseRefresh)
				c.Audience = jwt.ClaimStrings{"authgate-refresh"}
				c.Roles = []string{"ROLE_ADMIN"}
			},
			ErrBadTokenUse,
		},
		{
			"refresh with scopes",
			func(c *Claims) {
				c.TokenUse = string(UseRefresh)
				c.Audience = jwt.ClaimStrings{"authgate-refresh"}
				c.Scopes = []string{"user:manage"}
			},
			ErrBadTokenUse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := base()
			tt.mutate(claims)
			err := v.Check(claims)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
