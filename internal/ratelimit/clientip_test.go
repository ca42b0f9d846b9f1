package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIPResolver(t *testing.T) {
	r, err := NewClientIPResolver([]string{"10.0.0.0/8", "192.168.0.0/16"})
	require.NoError(t, err)

	tests := []struct {
		name         string
		remoteAddr   string
		forwardedFor string
		want         string
	}{
		{"untrusted peer ignores header", "203.0.113.7:4411", "1.2.3.4", "203.0.113.7"},
		{"trusted peer honors header", "10.1.2.3:4411", "203.0.113.9", "203.0.113.9"},
		{"leftmost forwarded entry wins", "10.1.2.3:4411", "203.0.113.9, 10.1.2.3", "203.0.113.9"},
		{"garbage header falls back to peer", "10.1.2.3:4411", "not-an-ip", "10.1.2.3"},
		{"empty header falls back to peer", "10.1.2.3:4411", "", "10.1.2.3"},
		{"peer without port", "203.0.113.7", "", "203.0.113.7"},
		{"ipv6 peer", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"unparseable peer passes through", "garbage", "1.2.3.4", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.remoteAddr, tt.forwardedFor))
		})
	}
}

func TestClientIPResolverNoTrustedProxies(t *testing.T) {
	r, err := NewClientIPResolver(nil)
	require.NoError(t, err)

	// With no trusted proxies every header is ignored.
	assert.Equal(t, "203.0.113.7", r.Resolve("203.0.113.7:80", "1.2.3.4"))
}

func TestClientIPResolverRejectsBadCIDR(t *testing.T) {
	_, err := NewClientIPResolver([]string{"10.0.0.0/8", "not-a-cidr"})
	assert.Error(t, err)
}

func TestKeyResolver(t *testing.T) {
	ipOnly, err := NewKeyResolver(StrategyIP)
	require.NoError(t, err)
	assert.Equal(t, "ratelimit:ip:203.0.113.7", ipOnly.Resolve("203.0.113.7", "admin"))

	ipUser, err := NewKeyResolver(StrategyIPUser)
	require.NoError(t, err)
	k1 := ipUser.Resolve("203.0.113.7", "Admin")
	k2 := ipUser.Resolve("203.0.113.7", "admin")
	assert.Equal(t, k1, k2, "username hashing is case-insensitive")
	assert.NotContains(t, k1, "admin", "raw username never appears in the key")

	_, err = NewKeyResolver("BOGUS")
	assert.Error(t, err)
}
