// Package config loads and validates the service configuration. Every
// constraint that would make the service unsafe to run is checked at
// startup; a bad config aborts the process before it accepts traffic.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/authgate/auth-core/internal/keys"
	"github.com/authgate/auth-core/internal/ratelimit"
)

const minAccessTTL = 5 * time.Minute

// Config is the full configuration tree.
type Config struct {
	Environment string         `yaml:"environment"` // production | development
	Server      ServerConfig   `yaml:"server"`
	Log         LogConfig      `yaml:"log"`
	Redis       RedisConfig    `yaml:"redis"`
	Postgres    PostgresConfig `yaml:"postgres"`
	JWT         JWTConfig      `yaml:"jwt"`
	RateLimit   RateLimit      `yaml:"ratelimit"`
	Network     NetworkConfig  `yaml:"network"`
	Audit       AuditConfig    `yaml:"audit"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN           string `yaml:"dsn"`
	MaxOpenConns  int    `yaml:"maxOpenConns"`
	RunMigrations bool   `yaml:"runMigrations"`
}

type JWTConfig struct {
	Issuer              string            `yaml:"issuer"`
	AccessAudience      string            `yaml:"accessAudience"`
	RefreshAudience     string            `yaml:"refreshAudience"`
	AccessTTL           time.Duration     `yaml:"accessTtl"`
	RefreshTTL          time.Duration     `yaml:"refreshTtl"`
	Skew                time.Duration     `yaml:"skew"`
	RotateRefreshTokens bool              `yaml:"rotateRefreshTokens"`
	Keys                keys.SourceConfig `yaml:"keys"`
	// HMACFallbackSecret is validated (at least 64 bytes when set) but not
	// yet consumed; it reserves the config surface for an HS512 development
	// signer without RSA key files.
	HMACFallbackSecret string `yaml:"hmacFallbackSecret"`
}

type RateLimit struct {
	Enabled       bool               `yaml:"enabled"`
	Strategy      ratelimit.Strategy `yaml:"strategy"`
	MaxAttempts   int                `yaml:"maxAttempts"`
	WindowSeconds int                `yaml:"windowSeconds"`
	BlockSeconds  int                `yaml:"blockSeconds"`
	LoginPath     string             `yaml:"loginPath"`
}

type NetworkConfig struct {
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
}

type AuditConfig struct {
	File          string        `yaml:"file"` // empty: events go to the service log
	MaxSizeMB     int           `yaml:"maxSizeMb"`
	MaxAgeDays    int           `yaml:"maxAgeDays"`
	MaxBackups    int           `yaml:"maxBackups"`
	BufferSize    int           `yaml:"bufferSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// Default returns the development defaults. Production deployments are
// expected to override most of this from a file.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		JWT: JWTConfig{
			AccessTTL:           15 * time.Minute,
			RefreshTTL:          24 * time.Hour,
			RotateRefreshTokens: true,
		},
		RateLimit: RateLimit{
			Enabled:       true,
			Strategy:      ratelimit.StrategyIPUser,
			MaxAttempts:   3,
			WindowSeconds: 60,
			BlockSeconds:  60,
			LoginPath:     "/auth/login",
		},
		Audit: AuditConfig{
			MaxSizeMB:     100,
			MaxAgeDays:    30,
			MaxBackups:    10,
			BufferSize:    1024,
			FlushInterval: time.Second,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Production reports whether the production constraints apply.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Validate enforces the startup constraints.
func (c *Config) Validate() error {
	switch c.Environment {
	case "production", "development":
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if err := c.JWT.validate(); err != nil {
		return err
	}

	if c.RateLimit.Enabled {
		if !c.RateLimit.Strategy.Valid() {
			return fmt.Errorf("unknown ratelimit strategy %q", c.RateLimit.Strategy)
		}
		if c.RateLimit.MaxAttempts < 1 {
			return fmt.Errorf("ratelimit maxAttempts must be at least 1")
		}
		if c.RateLimit.WindowSeconds < 1 || c.RateLimit.BlockSeconds < 1 {
			return fmt.Errorf("ratelimit window and block must be at least 1s")
		}
	}

	// Without trusted proxy CIDRs the client IP behind a load balancer is
	// unknowable, which silently breaks the brute-force throttle.
	if c.Production() && len(c.Network.TrustedProxyCIDRs) == 0 {
		return fmt.Errorf("trustedProxyCidrs must be configured in production")
	}
	if _, err := ratelimit.NewClientIPResolver(c.Network.TrustedProxyCIDRs); err != nil {
		return err
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}

func (j *JWTConfig) validate() error {
	if j.Issuer == "" {
		return fmt.Errorf("jwt issuer is required")
	}
	if j.AccessAudience == "" || j.RefreshAudience == "" {
		return fmt.Errorf("jwt access and refresh audiences are required")
	}
	if j.AccessAudience == j.RefreshAudience {
		return fmt.Errorf("jwt access and refresh audiences must differ")
	}
	if j.AccessTTL < minAccessTTL {
		return fmt.Errorf("jwt accessTtl %s below minimum %s", j.AccessTTL, minAccessTTL)
	}
	if j.RefreshTTL <= j.AccessTTL {
		return fmt.Errorf("jwt refreshTtl %s must exceed accessTtl %s", j.RefreshTTL, j.AccessTTL)
	}
	if j.Skew < 0 {
		return fmt.Errorf("jwt skew must not be negative")
	}
	if j.HMACFallbackSecret != "" && len(j.HMACFallbackSecret) < 64 {
		return fmt.Errorf("hmac fallback secret must be at least 64 bytes, got %d", len(j.HMACFallbackSecret))
	}
	return nil
}
