package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Strategy selects how attempts are bucketed.
type Strategy string

const (
	// StrategyIP buckets attempts per client IP.
	StrategyIP Strategy = "IP"
	// StrategyIPUser buckets attempts per client IP and username, so one
	// attacker cannot exhaust another user's budget from a shared NAT.
	StrategyIPUser Strategy = "IP_USER"
)

// Valid reports whether the strategy is known.
func (s Strategy) Valid() bool {
	return s == StrategyIP || s == StrategyIPUser
}

// KeyResolver builds the throttle key for a login attempt.
type KeyResolver struct {
	strategy Strategy
}

// NewKeyResolver creates a resolver for a strategy.
func NewKeyResolver(strategy Strategy) (*KeyResolver, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown ratelimit strategy %q", strategy)
	}
	return &KeyResolver{strategy: strategy}, nil
}

// Resolve builds the key. Usernames are hashed so no PII reaches the
// store's keyspace.
func (r *KeyResolver) Resolve(ip, username string) string {
	switch r.strategy {
	case StrategyIPUser:
		sum := sha256.Sum256([]byte(strings.ToLower(username)))
		return fmt.Sprintf("ratelimit:ipuser:%s:%s", ip, hex.EncodeToString(sum[:]))
	default:
		return fmt.Sprintf("ratelimit:ip:%s", ip)
	}
}
