package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.JWT.Issuer = "authgate"
	cfg.JWT.AccessAudience = "authgate-api"
	cfg.JWT.RefreshAudience = "authgate-refresh"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateStartupConstraints(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"access ttl below minimum",
			func(c *Config) { c.JWT.AccessTTL = 4 * time.Minute },
			"accessTtl",
		},
		{
			"refresh ttl not above access ttl",
			func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL },
			"refreshTtl",
		},
		{
			"missing issuer",
			func(c *Config) { c.JWT.Issuer = "" },
			"issuer",
		},
		{
			"identical audiences",
			func(c *Config) { c.JWT.RefreshAudience = c.JWT.AccessAudience },
			"audiences",
		},
		{
			"short hmac fallback secret",
			func(c *Config) { c.JWT.HMACFallbackSecret = strings.Repeat("x", 63) },
			"64 bytes",
		},
		{
			"production without trusted proxies",
			func(c *Config) { c.Environment = "production" },
			"trustedProxyCidrs",
		},
		{
			"bad trusted proxy cidr",
			func(c *Config) { c.Network.TrustedProxyCIDRs = []string{"nope"} },
			"CIDR",
		},
		{
			"bad ratelimit strategy",
			func(c *Config) { c.RateLimit.Strategy = "PER_GALAXY" },
			"strategy",
		},
		{
			"zero ratelimit attempts",
			func(c *Config) { c.RateLimit.MaxAttempts = 0 },
			"maxAttempts",
		},
		{
			"unknown environment",
			func(c *Config) { c.Environment = "staging" },
			"environment",
		},
		{
			"unknown log format",
			func(c *Config) { c.Log.Format = "xml" },
			"log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHMACFallbackLongEnough(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.HMACFallbackSecret = strings.Repeat("x", 64)
	assert.NoError(t, cfg.Validate())
}

func TestProductionWithProxiesValidates(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	cfg.Network.TrustedProxyCIDRs = []string{"10.0.0.0/8"}
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
jwt:
  issuer: authgate
  accessAudience: authgate-api
  refreshAudience: authgate-refresh
  accessTtl: 10m
  refreshTtl: 12h
  rotateRefreshTokens: true
network:
  trustedProxyCidrs:
    - 10.0.0.0/8
ratelimit:
  enabled: true
  strategy: IP_USER
  maxAttempts: 5
  windowSeconds: 60
  blockSeconds: 120
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Production())
	assert.Equal(t, 10*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 12*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, 5, cfg.RateLimit.MaxAttempts)
	// Defaults survive under partial files.
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt:
  issuer: authgate
  accessAudience: a
  refreshAudience: r
  accessTtl: 1m
  refreshTtl: 2m
`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
